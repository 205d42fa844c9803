package concurrent

import (
	"slices"

	"github.com/rendis/flowgraph/internal/graph"
	"github.com/rendis/flowgraph/internal/model"
	"github.com/rendis/flowgraph/pkg/schema"
)

// FromModel builds a manager for the region of a Concurrent node. Members are
// loaded as-is, illegal kinds included, so Validate can report them. The edges
// touching a member are cached. One branch is derived per in-region successor
// of the Concurrent node, holding the members reachable from it that no
// earlier branch claimed. The region end is the single node outside the region
// that members lead to, when there is exactly one.
func FromModel(m *model.WorkflowModel, concurrentNodeID string, opts ...Option) (*Manager, error) {
	n, ok := m.Node(concurrentNodeID)
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "node %q does not exist", concurrentNodeID).WithNode(concurrentNodeID)
	}
	region, ok := n.(*schema.ConcurrentNode)
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"node %q is a %s node, not a concurrent node", concurrentNodeID, schema.TypeLabel(n.Type())).WithNode(concurrentNodeID)
	}

	mgr := newManager(opts...)
	members := dedupe(region.ParallelBranches)
	mgr.data = schema.ConcurrentProcessData{
		ID:                    mgr.gen.Next(PrefixProcess),
		ConcurrentStartNodeID: concurrentNodeID,
		ContainedNodeIDs:      members,
		Branches:              []schema.ConcurrentBranch{},
	}
	for _, id := range members {
		if member, ok := m.Node(id); ok {
			mgr.nodes[id] = member
		}
	}

	exits := make([]string, 0, 1)
	for _, e := range m.Edges() {
		src, dst := slices.Contains(members, e.Source), slices.Contains(members, e.Target)
		if !src && !dst {
			continue
		}
		mgr.edges.Set(e.ID, e)
		if src && !dst && e.Target != concurrentNodeID && !slices.Contains(exits, e.Target) {
			exits = append(exits, e.Target)
		}
	}
	if len(exits) == 1 {
		mgr.data.ConcurrentEndNodeID = exits[0]
	}

	mgr.deriveBranches(m.OutgoingEdges(concurrentNodeID))
	return mgr, nil
}

func (m *Manager) deriveBranches(fromRegion []schema.Edge) {
	adj := graph.BuildAdjacency(m.Edges(), m.data.ContainedNodeIDs)
	claimed := make(map[string]bool)

	for _, e := range fromRegion {
		if !adj.Contains(e.Target) || claimed[e.Target] {
			continue
		}
		reached := graph.Reachable(adj, []string{e.Target})
		b := schema.ConcurrentBranch{
			ID:          m.gen.Next(PrefixBranch),
			Name:        label(m, e.Target),
			StartNodeID: e.Target,
			NodeIDs:     []string{},
		}
		var sinks []string
		for _, id := range adj.IDs {
			if !reached[id] || claimed[id] {
				continue
			}
			claimed[id] = true
			b.NodeIDs = append(b.NodeIDs, id)
			if adj.OutDegree(id) == 0 {
				sinks = append(sinks, id)
			}
		}
		if len(sinks) == 1 {
			b.EndNodeID = sinks[0]
		}
		m.data.Branches = append(m.data.Branches, b)
	}
}

// Apply writes the member list back into the Concurrent node the region
// starts at and returns the updated model.
func (m *Manager) Apply(wm *model.WorkflowModel) (*model.WorkflowModel, error) {
	n, ok := wm.Node(m.data.ConcurrentStartNodeID)
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "node %q does not exist", m.data.ConcurrentStartNodeID).
			WithNode(m.data.ConcurrentStartNodeID)
	}
	region, ok := n.(*schema.ConcurrentNode)
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "node %q is not a concurrent node", m.data.ConcurrentStartNodeID).
			WithNode(m.data.ConcurrentStartNodeID)
	}
	updated := region.Clone().(*schema.ConcurrentNode)
	updated.ParallelBranches = m.ContainedNodeIDs()
	return wm.UpdateNode(updated)
}
