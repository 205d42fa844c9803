package validation

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/robfig/cron/v3"

	"github.com/rendis/flowgraph/pkg/schema"
)

// ScheduleKey is the automationConfig key holding an Auto node's cron schedule.
const ScheduleKey = "schedule"

// InputSchemaKey is the automationConfig key holding a JSON Schema for test data.
const InputSchemaKey = "inputSchema"

var scheduleParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// NodeContext carries what a node's own fields cannot tell the validator.
type NodeContext struct {
	// OutgoingEdges is the number of distinct targets a Process node leads to.
	OutgoingEdges int
	// MemberTypes maps the ids known to the model to their kinds. When nil,
	// Concurrent membership checks are skipped.
	MemberTypes map[string]schema.NodeType
}

// ValidateNode runs the rules of n's kind. It never traverses the graph and
// never mutates n.
func ValidateNode(n schema.Node, ctx *NodeContext) schema.NodeValidationResult {
	result := schema.NodeValidationResult{IsValid: true, Errors: []string{}}
	for _, issue := range NodeIssues(n, ctx, LocaleEnglish) {
		if issue.Severity == schema.SeverityError {
			result.IsValid = false
			result.Errors = append(result.Errors, issue.Message)
		} else {
			result.Warnings = append(result.Warnings, issue.Message)
		}
	}
	return result
}

// NodeIssues returns the coded findings for n, localized to locale.
func NodeIssues(n schema.Node, ctx *NodeContext, locale string) []schema.ValidationIssue {
	if n == nil {
		return []schema.ValidationIssue{newIssue(locale, CodeDocumentStructure, "node is nil")}
	}
	if ctx == nil {
		ctx = &NodeContext{}
	}
	v := &nodeRules{locale: locale, node: n}

	if schema.IsNameBlank(n) {
		v.add(CodeNodeNameBlank, schema.TypeLabel(n.Type()), n.Common().ID)
	}

	switch node := n.(type) {
	case *schema.BeginNode, *schema.EndNode, *schema.ExceptionNode:
		// Expected-value presence is a property of the raw document; the
		// typed node always has the right shape.
	case *schema.ProcessNode:
		v.process(ctx)
	case *schema.DecisionNode:
		v.decision(node)
	case *schema.DecisionTableNode:
		v.decisionTable(node)
	case *schema.SubprocessNode:
		if strings.TrimSpace(node.ReferencePath) == "" {
			v.add(CodeSubprocessMissingReference)
		}
	case *schema.ConcurrentNode:
		v.concurrent(node, ctx)
	case *schema.AutoNode:
		v.auto(node)
	case *schema.APINode:
		if strings.TrimSpace(node.APIEndpoint) == "" {
			v.add(CodeAPIMissingEndpoint)
		}
	}

	if schema.IsReference(n) {
		v.reference()
	}
	return v.issues
}

type nodeRules struct {
	locale string
	node   schema.Node
	issues []schema.ValidationIssue
}

func (v *nodeRules) add(code string, args ...any) {
	v.issues = append(v.issues, forNode(newIssue(v.locale, code, args...), v.node))
}

func (v *nodeRules) process(ctx *NodeContext) {
	if ctx.OutgoingEdges > 1 {
		v.add(CodeProcessMultipleOutgoing, ctx.OutgoingEdges)
	}
}

func (v *nodeRules) decision(n *schema.DecisionNode) {
	if len(n.Branches) < 2 {
		v.add(CodeDecisionInsufficientBranches, len(n.Branches))
	}

	counts := make(map[string]int, len(n.Branches))
	var order []string
	defaults := 0
	for _, b := range n.Branches {
		if b.IsDefault {
			defaults++
		}
		if b.Value == "" {
			v.add(CodeDecisionEmptyBranch, b.ID)
			continue
		}
		if counts[b.Value] == 0 {
			order = append(order, b.Value)
		}
		counts[b.Value]++
	}
	for _, value := range order {
		if counts[value] > 1 {
			v.add(CodeDecisionDuplicateBranch, value, counts[value])
		}
	}
	if defaults > 1 {
		v.add(CodeDecisionMultipleDefaults, defaults)
	}
}

func (v *nodeRules) decisionTable(n *schema.DecisionTableNode) {
	data := n.TableData
	if len(data.DecisionColumns) == 0 {
		v.add(CodeTableNoDecisionColumns)
	}
	if len(data.OutputColumns) == 0 {
		v.add(CodeTableNoOutputColumns)
	}
	if len(data.Rows) == 0 {
		v.add(CodeTableNoRows)
		return
	}
	if len(data.DecisionColumns) == 0 {
		return
	}

	groups := make(map[string][]string)
	var order []string
	for i, row := range data.Rows {
		key := decisionKey(data.DecisionColumns, row)
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		label := row.ID
		if label == "" {
			label = fmt.Sprintf("#%d", i+1)
		}
		groups[key] = append(groups[key], label)
	}
	for _, key := range order {
		if rows := groups[key]; len(rows) > 1 {
			v.add(CodeTableDuplicateRows, strings.Join(rows, ", "))
		}
	}
}

// decisionKey renders a row's decision cells canonically. encoding/json sorts
// map keys, so equal values always render equally; missing cells render as null.
func decisionKey(cols []schema.TableColumn, row schema.TableRow) string {
	var sb strings.Builder
	for _, col := range cols {
		raw, err := json.Marshal(row.Values[col.ID])
		if err != nil {
			raw = []byte(fmt.Sprintf("%#v", row.Values[col.ID]))
		}
		sb.Write(raw)
		sb.WriteByte(0)
	}
	return sb.String()
}

func (v *nodeRules) concurrent(n *schema.ConcurrentNode, ctx *NodeContext) {
	if len(n.ParallelBranches) == 0 {
		v.add(CodeConcurrentEmpty)
		return
	}
	if ctx.MemberTypes == nil {
		return
	}
	for _, id := range n.ParallelBranches {
		t, known := ctx.MemberTypes[id]
		switch {
		case !known:
			v.add(CodeConcurrentUnknownMember, id)
		case schema.IsIllegalInConcurrent(t):
			v.add(CodeConcurrentIllegalMember, schema.TypeLabel(t), id)
		}
	}
}

func (v *nodeRules) auto(n *schema.AutoNode) {
	if len(n.AutomationConfig) == 0 {
		v.add(CodeAutoMissingConfig)
		return
	}
	raw, present := n.AutomationConfig[ScheduleKey]
	if !present {
		return
	}
	spec, _ := raw.(string)
	if _, err := scheduleParser.Parse(spec); err != nil {
		v.add(CodeAutoInvalidSchedule, fmt.Sprint(raw), err.Error())
	}
}

func (v *nodeRules) reference() {
	ref := v.node.Common().Reference
	if !schema.IsReferenceableType(v.node.Type()) {
		v.add(CodeReferenceNotReferenceable, schema.TypeLabel(v.node.Type()))
	}
	if ref.SourceNodeID == "" {
		v.add(CodeReferenceMissingSource)
	}
	if !sameSet(ref.EditableProperties, schema.ReferenceEditableProperties) {
		v.add(CodeReferenceEditableFields, schema.ReferenceEditableProperties)
	}
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	as, bs := slices.Clone(a), slices.Clone(b)
	slices.Sort(as)
	slices.Sort(bs)
	return slices.Equal(as, bs)
}
