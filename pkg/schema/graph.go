package schema

// Edge connects two nodes of a workflow.
type Edge struct {
	ID        string `json:"id"`
	Source    string `json:"source"`
	Target    string `json:"target"`
	Condition string `json:"condition,omitempty"` // CEL expression over data/edge/node
	Value     string `json:"value,omitempty"`     // branch discriminator for decision sources
	DataType  string `json:"dataType,omitempty"`
}

// Bounds is the swimlane geometry. Pass-through only.
type Bounds struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Swimlane groups nodes. A node belongs to at most one swimlane.
type Swimlane struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Bounds         Bounds   `json:"bounds"`
	Color          string   `json:"color,omitempty"`
	ContainedNodes []string `json:"containedNodes"`
}

// Clone deep-copies the swimlane.
func (s Swimlane) Clone() Swimlane {
	s.ContainedNodes = cloneSlice(s.ContainedNodes)
	return s
}

// Contains reports whether nodeID is a member of the swimlane.
func (s Swimlane) Contains(nodeID string) bool {
	for _, id := range s.ContainedNodes {
		if id == nodeID {
			return true
		}
	}
	return false
}

// ConcurrentBranch is one parallel path of a concurrent region.
type ConcurrentBranch struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	NodeIDs     []string `json:"nodeIds"`
	StartNodeID string   `json:"startNodeId,omitempty"`
	EndNodeID   string   `json:"endNodeId,omitempty"`
}

// Clone deep-copies the branch.
func (b ConcurrentBranch) Clone() ConcurrentBranch {
	b.NodeIDs = cloneSlice(b.NodeIDs)
	return b
}

// ConcurrentProcessData is the raw, exportable shape of a concurrent region.
// ContainedNodeIDs is a superset of every branch's NodeIDs.
type ConcurrentProcessData struct {
	ID                    string             `json:"id"`
	ConcurrentStartNodeID string             `json:"concurrentStartNodeId"`
	ConcurrentEndNodeID   string             `json:"concurrentEndNodeId"`
	Branches              []ConcurrentBranch `json:"branches"`
	ContainedNodeIDs      []string           `json:"containedNodeIds"`
}

// Clone deep-copies the data.
func (d ConcurrentProcessData) Clone() ConcurrentProcessData {
	out := d
	out.ContainedNodeIDs = cloneSlice(d.ContainedNodeIDs)
	if d.Branches != nil {
		out.Branches = make([]ConcurrentBranch, len(d.Branches))
		for i, b := range d.Branches {
			out.Branches[i] = b.Clone()
		}
	}
	return out
}
