// Package diagram renders workflow models as Mermaid, ASCII or graphviz
// output. Validation issues can be overlaid on the nodes they concern.
package diagram

import "github.com/rendis/flowgraph/pkg/schema"

// DiagramModel is the intermediate representation used by all renderers.
type DiagramModel struct {
	Title  string
	Nodes  []*Node
	Edges  []Edge
	Levels [][]string
	Lanes  []*Lane
}

// Node is a single workflow node.
type Node struct {
	ID        string
	Label     string
	Kind      schema.NodeType
	Reference bool
	Issues    *IssueOverlay
}

// IssueOverlay summarizes the validation issues reported against a node.
// Severity is the worst severity found.
type IssueOverlay struct {
	Severity schema.ValidationSeverity
	Codes    []string
}

// Lane is a swimlane drawn as a cluster around its member nodes.
type Lane struct {
	ID      string
	Label   string
	NodeIDs []string
}

// Edge connects two nodes. Label carries the branch value or condition.
type Edge struct {
	From  string
	To    string
	Label string
}

// node looks up a node by ID.
func (d *DiagramModel) node(id string) *Node {
	for _, n := range d.Nodes {
		if n.ID == id {
			return n
		}
	}
	return nil
}
