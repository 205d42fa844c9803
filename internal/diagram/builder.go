package diagram

import (
	"github.com/rendis/flowgraph/internal/graph"
	"github.com/rendis/flowgraph/internal/model"
	"github.com/rendis/flowgraph/pkg/schema"
)

// Build constructs a DiagramModel from a workflow model. When result is
// non-nil its node-scoped issues are overlaid on the matching nodes.
func Build(m *model.WorkflowModel, result *schema.WorkflowValidationResult) *DiagramModel {
	overlays := issueOverlays(result)

	ids := m.NodeIDs()
	nodes := make([]*Node, 0, len(ids))
	for _, n := range m.Nodes() {
		c := n.Common()
		nodes = append(nodes, &Node{
			ID:        c.ID,
			Label:     nodeLabel(n),
			Kind:      n.Type(),
			Reference: c.Reference != nil,
			Issues:    overlays[c.ID],
		})
	}

	edges := make([]Edge, 0, len(m.Edges()))
	for _, e := range m.Edges() {
		if !m.HasNode(e.Source) || !m.HasNode(e.Target) {
			continue
		}
		edges = append(edges, Edge{From: e.Source, To: e.Target, Label: edgeLabel(e)})
	}

	var lanes []*Lane
	for _, sl := range m.Swimlanes() {
		lane := &Lane{ID: sl.ID, Label: sl.Name}
		for _, id := range sl.ContainedNodes {
			if m.HasNode(id) {
				lane.NodeIDs = append(lane.NodeIDs, id)
			}
		}
		if len(lane.NodeIDs) > 0 {
			lanes = append(lanes, lane)
		}
	}

	return &DiagramModel{
		Title:  title(m),
		Nodes:  nodes,
		Edges:  edges,
		Levels: buildLevels(graph.BuildAdjacency(m.Edges(), ids)),
		Lanes:  lanes,
	}
}

// nodeLabel is the node name, falling back to its ID.
func nodeLabel(n schema.Node) string {
	c := n.Common()
	if c.Name == "" {
		return c.ID
	}
	return c.Name
}

func edgeLabel(e schema.Edge) string {
	if e.Value != "" {
		return e.Value
	}
	return e.Condition
}

func title(m *model.WorkflowModel) string {
	meta := m.Metadata()
	switch {
	case meta.Name != "":
		return meta.Name
	case meta.ID != "":
		return meta.ID
	default:
		return "Workflow"
	}
}

// buildLevels layers the graph by longest path. Cyclic graphs fall back to
// breadth-first depth from the entry points; nodes reached by neither land
// on a final level.
func buildLevels(adj graph.Adjacency) [][]string {
	if order, ok := graph.TopologicalSortIn(adj); ok {
		return graph.Levels(adj, order)
	}

	roots := graph.EntryPoints(adj)
	if len(roots) == 0 && len(adj.IDs) > 0 {
		roots = adj.IDs[:1]
	}
	depth := make(map[string]int, len(adj.IDs))
	queue := make([]string, 0, len(adj.IDs))
	for _, r := range roots {
		depth[r] = 0
		queue = append(queue, r)
	}
	maxDepth := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, next := range adj.Forward[id] {
			if _, seen := depth[next]; seen {
				continue
			}
			depth[next] = depth[id] + 1
			maxDepth = max(maxDepth, depth[next])
			queue = append(queue, next)
		}
	}

	levels := make([][]string, maxDepth+1)
	var rest []string
	for _, id := range adj.IDs {
		d, ok := depth[id]
		if !ok {
			rest = append(rest, id)
			continue
		}
		levels[d] = append(levels[d], id)
	}
	if len(rest) > 0 {
		levels = append(levels, rest)
	}
	return levels
}

func issueOverlays(result *schema.WorkflowValidationResult) map[string]*IssueOverlay {
	if result == nil {
		return nil
	}
	out := make(map[string]*IssueOverlay)
	add := func(issues []schema.ValidationIssue) {
		for _, issue := range issues {
			if issue.NodeID == "" {
				continue
			}
			ov, ok := out[issue.NodeID]
			if !ok {
				ov = &IssueOverlay{Severity: issue.Severity}
				out[issue.NodeID] = ov
			}
			ov.Codes = append(ov.Codes, issue.Code)
		}
	}
	// Worst severity first so it wins the overlay.
	add(result.Errors)
	add(result.Warnings)
	add(result.Infos)
	return out
}
