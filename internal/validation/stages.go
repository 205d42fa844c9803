package validation

import (
	"github.com/rendis/flowgraph/internal/concurrent"
	"github.com/rendis/flowgraph/internal/model"
	"github.com/rendis/flowgraph/pkg/schema"
)

// --- Stage 1: nodes ---

func (wv *WorkflowValidator) validateNodes(m *model.WorkflowModel) []schema.ValidationIssue {
	memberTypes := make(map[string]schema.NodeType, m.NodeCount())
	for _, n := range m.Nodes() {
		memberTypes[n.Common().ID] = n.Type()
	}

	var issues []schema.ValidationIssue
	for _, n := range m.Nodes() {
		ctx := &NodeContext{MemberTypes: memberTypes}
		if n.Type() == schema.NodeTypeProcess {
			ctx.OutgoingEdges = countOutgoing(m.OutgoingEdges(n.Common().ID))
		}
		issues = append(issues, NodeIssues(n, ctx, wv.locale)...)
	}
	return issues
}

// countOutgoing counts the edges leaving a node, skipping exact duplicates
// (same target and value) that the edge stage reports on its own.
func countOutgoing(edges []schema.Edge) int {
	type key struct{ target, value string }
	seen := make(map[key]bool, len(edges))
	for _, e := range edges {
		seen[key{e.Target, e.Value}] = true
	}
	return len(seen)
}

// --- Stage 2: edges ---

func (wv *WorkflowValidator) validateEdges(m *model.WorkflowModel) []schema.ValidationIssue {
	var issues []schema.ValidationIssue
	type edgeKey struct{ source, target, value string }
	first := make(map[edgeKey]string)

	for _, e := range m.Edges() {
		src, srcOK := m.Node(e.Source)
		_, dstOK := m.Node(e.Target)
		if !srcOK {
			issue := newIssue(wv.locale, CodeEdgeDangling, e.ID, "source", e.Source)
			issue.Property = "source"
			issues = append(issues, issue)
		}
		if !dstOK {
			issue := forNode(newIssue(wv.locale, CodeEdgeDangling, e.ID, "target", e.Target), src)
			issue.Property = "target"
			issues = append(issues, issue)
		}

		if e.Source == e.Target {
			issues = append(issues, forNode(newIssue(wv.locale, CodeEdgeSelfLoop, e.ID, e.Source), src))
		}

		key := edgeKey{e.Source, e.Target, e.Value}
		if prev, dup := first[key]; dup {
			issues = append(issues, forNode(newIssue(wv.locale, CodeEdgeDuplicate, e.ID, prev), src))
		} else {
			first[key] = e.ID
		}

		if d, ok := src.(*schema.DecisionNode); ok && e.Value != "" && !hasBranch(d, e.Value) {
			issue := forNode(newIssue(wv.locale, CodeEdgeUnknownBranch, e.ID, e.Value), src)
			issue.Property = "value"
			issues = append(issues, issue)
		}
	}
	return issues
}

func hasBranch(d *schema.DecisionNode, value string) bool {
	for _, b := range d.Branches {
		if b.Value == value {
			return true
		}
	}
	return false
}

// --- Stage 3: graph ---

func (wv *WorkflowValidator) validateGraph(m *model.WorkflowModel) []schema.ValidationIssue {
	var issues []schema.ValidationIssue

	begins := m.NodesOfType(schema.NodeTypeBegin)
	switch {
	case len(begins) == 0:
		issues = append(issues, newIssue(wv.locale, CodeMissingBegin))
	case len(begins) > 1:
		issues = append(issues, newIssue(wv.locale, CodeMultipleBegin, len(begins)))
	}
	if len(m.NodesOfType(schema.NodeTypeEnd)) == 0 {
		issues = append(issues, newIssue(wv.locale, CodeMissingEnd))
	}

	if m.NodeCount() > 1 {
		connected := make(map[string]bool, m.NodeCount())
		for _, e := range m.Edges() {
			if m.HasNode(e.Source) && m.HasNode(e.Target) {
				connected[e.Source] = true
				connected[e.Target] = true
			}
		}
		for _, n := range m.Nodes() {
			if !connected[n.Common().ID] {
				issues = append(issues, forNode(newIssue(wv.locale, CodeDisconnectedNode, n.Common().ID), n))
			}
		}
	}

	owner := make(map[string]string)
	for _, lane := range m.Swimlanes() {
		for _, id := range lane.ContainedNodes {
			n, ok := m.Node(id)
			if !ok {
				issues = append(issues, newIssue(wv.locale, CodeSwimlaneUnknownNode, lane.ID, id))
				continue
			}
			if prev, taken := owner[id]; taken && prev != lane.ID {
				issues = append(issues, forNode(newIssue(wv.locale, CodeSwimlaneMultipleMembership, id, prev, lane.ID), n))
				continue
			}
			owner[id] = lane.ID
		}
	}
	return issues
}

// --- Stage 4: concurrent regions ---

// validateRegions checks the sub-graph of every Concurrent node. Illegal
// members are left to the node stage so they are reported once.
func (wv *WorkflowValidator) validateRegions(m *model.WorkflowModel) []schema.ValidationIssue {
	var issues []schema.ValidationIssue
	edges := m.Edges()

	for _, n := range m.NodesOfType(schema.NodeTypeConcurrent) {
		region := n.(*schema.ConcurrentNode)
		if len(region.ParallelBranches) == 0 {
			continue
		}
		res := concurrent.ValidateRegion(region.ParallelBranches, edges, m)

		if res.HasCycle {
			issue := forNode(newIssue(wv.locale, CodeConcurrentCycle, concurrent.DescribePath(res.CyclePath, m)), n)
			issue.Suggestion = "remove one edge of the cycle or move a node out of the region"
			issues = append(issues, issue)
		}
		for _, id := range res.DisconnectedNodes {
			issues = append(issues, forNode(newIssue(wv.locale, CodeConcurrentDisconnected, id), n))
		}
		for _, id := range res.UnreachableNodes {
			issues = append(issues, forNode(newIssue(wv.locale, CodeConcurrentUnreachable, id), n))
		}
	}
	return issues
}

// --- Stage 5: references ---

func (wv *WorkflowValidator) validateReferences(m *model.WorkflowModel) []schema.ValidationIssue {
	var issues []schema.ValidationIssue
	for _, n := range m.Nodes() {
		sourceID := schema.SourceNodeID(n)
		if sourceID == "" {
			continue // missing source ids are a node-stage finding
		}
		source, ok := m.Node(sourceID)
		switch {
		case !ok:
			issue := forNode(newIssue(wv.locale, CodeReferenceDangling, sourceID), n)
			issue.Suggestion = "delete the reference or point it at an existing node"
			issues = append(issues, issue)
		case schema.IsReference(source):
			issues = append(issues, forNode(newIssue(wv.locale, CodeReferenceOfReference, sourceID), n))
		case source.Type() != n.Type():
			issues = append(issues, forNode(newIssue(wv.locale, CodeReferenceTypeMismatch, n.Type(), source.Type()), n))
		}
	}
	return issues
}

// --- Stage 6: expressions ---

func (wv *WorkflowValidator) validateExpressions(m *model.WorkflowModel) []schema.ValidationIssue {
	var issues []schema.ValidationIssue

	for _, e := range m.Edges() {
		if e.Condition == "" {
			continue
		}
		if err := wv.exprs.CEL.Compile(e.Condition); err != nil {
			src, _ := m.Node(e.Source)
			issue := forNode(newIssue(wv.locale, CodeInvalidCondition, e.ID, err.Error()), src)
			issue.Property = "condition"
			issues = append(issues, issue)
		}
	}

	for _, n := range m.Nodes() {
		outgoing := make(map[string]bool)
		for _, e := range m.OutgoingEdges(n.Common().ID) {
			outgoing[e.ID] = true
		}

		for _, a := range n.Common().AutomationActions {
			if !outgoing[a.EdgeID] {
				issues = append(issues, forNode(newIssue(wv.locale, CodeUnboundAutomation, "automation action", a.ID, a.EdgeID), n))
			}
			if msg := wv.actionProblem(a); msg != "" {
				issues = append(issues, forNode(newIssue(wv.locale, CodeInvalidAction, a.ID, msg), n))
			}
		}
		for _, td := range n.Common().TestData {
			if !outgoing[td.EdgeID] {
				issues = append(issues, forNode(newIssue(wv.locale, CodeUnboundAutomation, "test data", td.ID, td.EdgeID), n))
			}
		}

		if auto, ok := n.(*schema.AutoNode); ok {
			issues = append(issues, wv.inputSchemaIssues(auto)...)
		}
	}
	return issues
}

// actionProblem returns why an automation action cannot run, or "".
func (wv *WorkflowValidator) actionProblem(a schema.AutomationAction) string {
	if a.Type == schema.ActionTypeNoop {
		return ""
	}
	engine, expression, ok := wv.exprs.ActionExpression(a)
	if !ok {
		return "unknown action type " + a.Type
	}
	if err := engine.Compile(expression); err != nil {
		return err.Error()
	}
	return ""
}

// inputSchemaIssues compiles an Auto node's inputSchema and checks every test
// datum of the node against it.
func (wv *WorkflowValidator) inputSchemaIssues(n *schema.AutoNode) []schema.ValidationIssue {
	def, ok := n.AutomationConfig[InputSchemaKey]
	if !ok {
		return nil
	}
	ds, err := wv.jsonSchema.DataSchema(def)
	if err != nil {
		return []schema.ValidationIssue{forNode(newIssue(wv.locale, CodeAutoInvalidInputSchema, errorCause(err)), n)}
	}

	var issues []schema.ValidationIssue
	for _, td := range n.TestData {
		if err := ds.Validate(td.Data); err != nil {
			issues = append(issues, forNode(newIssue(wv.locale, CodeTestDataSchemaMismatch, td.ID, err.Error()), n))
		}
	}
	return issues
}
