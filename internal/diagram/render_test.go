package diagram

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/flowgraph/pkg/schema"
)

// --- Mermaid ---

func TestRenderMermaid_Shapes(t *testing.T) {
	out := RenderMermaid(Build(decisionWorkflow(t), nil))

	assert.True(t, strings.HasPrefix(out, "graph TD\n"))
	assert.Contains(t, out, "%% Approval")
	assert.Contains(t, out, `begin_1(("Start"))`)
	assert.Contains(t, out, `d1{"Approved?"}`)
	assert.Contains(t, out, `end_ok((("Approved")))`)
	assert.Contains(t, out, `exc_1>"Rejected"]`)
	assert.Contains(t, out, "d1 -->|yes| end_ok")
	assert.Contains(t, out, "d1 -->|no| exc_1")
}

func TestRenderMermaid_OverlayClasses(t *testing.T) {
	result := &schema.WorkflowValidationResult{}
	result.Add(schema.ValidationIssue{Code: "unreachable", Severity: schema.SeverityWarning, NodeID: "p1"})

	out := RenderMermaid(Build(linearWorkflow(t), result))
	assert.Contains(t, out, "classDef warning")
	assert.Contains(t, out, "class p1 warning")
	assert.NotContains(t, out, "class begin_1")
}

func TestRenderMermaid_Lanes(t *testing.T) {
	m := linearWorkflow(t)
	m, err := m.AddSwimlane(schema.Swimlane{ID: "ops", Name: "Ops", ContainedNodes: []string{"p1"}})
	require.NoError(t, err)

	out := RenderMermaid(Build(m, nil))
	assert.Contains(t, out, `subgraph lane_ops["Ops"]`)
	assert.Equal(t, 1, strings.Count(out, `p1["Review"]`), "lane members are declared once")
}

func TestMermaidSafeID(t *testing.T) {
	assert.Equal(t, "a_b_c_d", mermaidSafeID("a.b-c d"))
}

// --- ASCII ---

func TestRenderASCII_Linear(t *testing.T) {
	out := RenderASCII(Build(linearWorkflow(t), nil))

	assert.Contains(t, out, "=== Claims Intake ===")
	assert.Contains(t, out, "┌")
	assert.Contains(t, out, "┘")
	assert.Contains(t, out, "<process>")
	assert.Contains(t, out, "▼")
	assert.Contains(t, out, "p1 ─→ end_1")
}

func TestRenderASCII_OverlayAndReference(t *testing.T) {
	d := &DiagramModel{
		Nodes: []*Node{
			{ID: "a", Label: "A", Kind: schema.NodeTypeProcess, Issues: &IssueOverlay{Severity: schema.SeverityError}},
			{ID: "b", Label: "B", Kind: schema.NodeTypeProcess, Reference: true},
		},
		Levels: [][]string{{"a", "b"}},
	}
	out := RenderASCII(d)
	assert.Contains(t, out, "[ERR]")
	assert.Contains(t, out, "&B")
	assert.NotContains(t, out, "▼", "single level has no connector")
}

func TestRenderASCII_EdgeLabels(t *testing.T) {
	out := RenderASCII(Build(decisionWorkflow(t), nil))
	assert.Contains(t, out, "d1 ─→ end_ok [yes]")
}

// --- Graphviz ---

func TestParseImageFormat(t *testing.T) {
	f, err := ParseImageFormat("svg")
	require.NoError(t, err)
	assert.Equal(t, FormatSVG, f)

	_, err = ParseImageFormat("gif")
	assert.Error(t, err)
}

func TestRenderImage_PNG(t *testing.T) {
	png, err := RenderImage(context.Background(), Build(decisionWorkflow(t), nil), FormatPNG)
	require.NoError(t, err)
	require.Greater(t, len(png), 8)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, png[:4])
}

func TestRenderImage_SVGWithLanes(t *testing.T) {
	m := linearWorkflow(t)
	m, err := m.AddSwimlane(schema.Swimlane{ID: "ops", Name: "Ops", ContainedNodes: []string{"p1"}})
	require.NoError(t, err)
	result := &schema.WorkflowValidationResult{}
	result.Add(schema.ValidationIssue{Code: "x", Severity: schema.SeverityError, NodeID: "p1"})

	svg, err := RenderImage(context.Background(), Build(m, result), FormatSVG)
	require.NoError(t, err)
	assert.Contains(t, string(svg), "<svg")
	assert.Contains(t, string(svg), "Ops")
}

func TestRenderImage_DOT(t *testing.T) {
	dot, err := RenderImage(context.Background(), Build(linearWorkflow(t), nil), FormatDOT)
	require.NoError(t, err)
	assert.Contains(t, string(dot), "digraph")
	assert.Contains(t, string(dot), "begin_1")
}
