package model

import (
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/rendis/flowgraph/pkg/schema"
)

// SwimlaneCollection is a mutable, ordered set of swimlanes that keeps every
// node in at most one lane. It is not safe for concurrent mutation.
type SwimlaneCollection struct {
	lanes *orderedmap.OrderedMap[string, *schema.Swimlane]
}

// NewSwimlaneCollection returns an empty collection.
func NewSwimlaneCollection() *SwimlaneCollection {
	return &SwimlaneCollection{lanes: orderedmap.New[string, *schema.Swimlane]()}
}

// Len returns the number of lanes.
func (c *SwimlaneCollection) Len() int { return c.lanes.Len() }

// Add inserts lane. Members already held by another lane move to this one.
func (c *SwimlaneCollection) Add(lane schema.Swimlane) error {
	if lane.ID == "" {
		return schema.NewError(schema.ErrCodeValidation, "swimlane must have an id")
	}
	if _, exists := c.lanes.Get(lane.ID); exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "swimlane %q already exists", lane.ID)
	}
	lane = lane.Clone()
	lane.ContainedNodes = dedupe(lane.ContainedNodes)
	for _, id := range lane.ContainedNodes {
		c.Unassign(id)
	}
	c.lanes.Set(lane.ID, &lane)
	return nil
}

// Remove deletes the lane.
func (c *SwimlaneCollection) Remove(id string) error {
	if _, ok := c.lanes.Delete(id); !ok {
		return swimlaneNotFound(id)
	}
	return nil
}

// Get returns a copy of the lane.
func (c *SwimlaneCollection) Get(id string) (schema.Swimlane, bool) {
	lane, ok := c.lanes.Get(id)
	if !ok {
		return schema.Swimlane{}, false
	}
	return lane.Clone(), true
}

// Rename changes a lane's display name.
func (c *SwimlaneCollection) Rename(id, name string) error {
	lane, ok := c.lanes.Get(id)
	if !ok {
		return swimlaneNotFound(id)
	}
	lane.Name = name
	return nil
}

// Assign moves nodeID into laneID, leaving any previous lane first.
func (c *SwimlaneCollection) Assign(nodeID, laneID string) error {
	lane, ok := c.lanes.Get(laneID)
	if !ok {
		return swimlaneNotFound(laneID)
	}
	if lane.Contains(nodeID) {
		return nil
	}
	c.Unassign(nodeID)
	lane.ContainedNodes = append(lane.ContainedNodes, nodeID)
	return nil
}

// Unassign removes nodeID from its lane and reports whether it had one.
func (c *SwimlaneCollection) Unassign(nodeID string) bool {
	for p := c.lanes.Oldest(); p != nil; p = p.Next() {
		if p.Value.Contains(nodeID) {
			p.Value.ContainedNodes = without(p.Value.ContainedNodes, nodeID)
			return true
		}
	}
	return false
}

// LaneOf returns the id of the lane holding nodeID.
func (c *SwimlaneCollection) LaneOf(nodeID string) (string, bool) {
	for p := c.lanes.Oldest(); p != nil; p = p.Next() {
		if p.Value.Contains(nodeID) {
			return p.Key, true
		}
	}
	return "", false
}

// Export returns copies of the lanes in insertion order.
func (c *SwimlaneCollection) Export() []schema.Swimlane {
	out := make([]schema.Swimlane, 0, c.lanes.Len())
	for p := c.lanes.Oldest(); p != nil; p = p.Next() {
		out = append(out, p.Value.Clone())
	}
	return out
}

// Import replaces the collection with lanes. It fails without changing the
// collection when two lanes share an id or a node.
func (c *SwimlaneCollection) Import(lanes []schema.Swimlane) error {
	owner := make(map[string]string)
	next := orderedmap.New[string, *schema.Swimlane](len(lanes))
	for _, lane := range lanes {
		if _, dup := next.Get(lane.ID); dup {
			return schema.NewErrorf(schema.ErrCodeConflict, "swimlane %q imported twice", lane.ID)
		}
		lane = lane.Clone()
		lane.ContainedNodes = dedupe(lane.ContainedNodes)
		for _, id := range lane.ContainedNodes {
			if prev, taken := owner[id]; taken {
				return schema.NewErrorf(schema.ErrCodeConflict,
					"node %q belongs to swimlanes %q and %q", id, prev, lane.ID).WithNode(id)
			}
			owner[id] = lane.ID
		}
		next.Set(lane.ID, &lane)
	}
	c.lanes = next
	return nil
}

// Apply returns m with its swimlanes replaced by the collection's lanes.
// Members unknown to m are dropped.
func (c *SwimlaneCollection) Apply(m *WorkflowModel) *WorkflowModel {
	next := m.copy()
	next.lanes = orderedmap.New[string, schema.Swimlane](c.lanes.Len())
	for p := c.lanes.Oldest(); p != nil; p = p.Next() {
		lane := p.Value.Clone()
		kept := lane.ContainedNodes[:0]
		for _, id := range lane.ContainedNodes {
			if m.HasNode(id) {
				kept = append(kept, id)
			}
		}
		lane.ContainedNodes = kept
		next.lanes.Set(lane.ID, lane)
	}
	return next.touch()
}

// SwimlanesOf loads the lanes of m into a new collection. Decoded models may
// carry overlapping lanes, which Import rejects.
func SwimlanesOf(m *WorkflowModel) (*SwimlaneCollection, error) {
	c := NewSwimlaneCollection()
	if err := c.Import(m.Swimlanes()); err != nil {
		return nil, err
	}
	return c, nil
}
