package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/rendis/flowgraph/internal/ids"
	"github.com/rendis/flowgraph/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tickingClock() func() time.Time {
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		ts = ts.Add(time.Second)
		return ts
	}
}

func process(id string) schema.Node {
	return &schema.ProcessNode{NodeCommon: schema.NodeCommon{ID: id, Name: id}}
}

func mustAddNodes(t *testing.T, m *WorkflowModel, nodes ...schema.Node) *WorkflowModel {
	t.Helper()
	for _, n := range nodes {
		var err error
		m, err = m.AddNode(n)
		require.NoError(t, err)
	}
	return m
}

// --- Immutability ---

func TestModel_AddNodeReturnsNewModel(t *testing.T) {
	m0 := New(WithClock(tickingClock()))
	m1, err := m0.AddNode(process("p1"))
	require.NoError(t, err)

	assert.Equal(t, 0, m0.NodeCount())
	assert.Equal(t, 1, m1.NodeCount())
	assert.True(t, m1.Metadata().UpdatedAt.After(m0.Metadata().UpdatedAt))
	assert.Equal(t, m0.Metadata().CreatedAt, m1.Metadata().CreatedAt)
}

func TestModel_UpdatedAtMonotonicWithFrozenClock(t *testing.T) {
	frozen := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m0 := New(WithClock(func() time.Time { return frozen }))
	m1, err := m0.AddNode(process("p1"))
	require.NoError(t, err)
	assert.True(t, m1.Metadata().UpdatedAt.After(m0.Metadata().UpdatedAt))
}

func TestModel_FailedMutationLeavesModelUnchanged(t *testing.T) {
	m := mustAddNodes(t, New(), process("p1"))
	before := m.Metadata().UpdatedAt

	_, err := m.AddNode(process("p1"))
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeConflict, schema.ErrorCode(err))
	assert.Equal(t, 1, m.NodeCount())
	assert.Equal(t, before, m.Metadata().UpdatedAt)
}

func TestModel_NodesKeepInsertionOrder(t *testing.T) {
	m := mustAddNodes(t, New(), process("c"), process("a"), process("b"))
	assert.Equal(t, []string{"c", "a", "b"}, m.NodeIDs())

	updated := process("a")
	updated.Common().Name = "renamed"
	m, err := m.UpdateNode(updated)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a", "b"}, m.NodeIDs())
	n, _ := m.Node("a")
	assert.Equal(t, "renamed", n.Common().Name)
}

// --- Edges ---

func TestModel_AddEdgeRequiresEndpoints(t *testing.T) {
	m := mustAddNodes(t, New(), process("a"))
	_, err := m.AddEdge(schema.Edge{ID: "e1", Source: "a", Target: "missing"})
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeNotFound, schema.ErrorCode(err))
}

func TestModel_RemoveNodeCascades(t *testing.T) {
	m := mustAddNodes(t, New(), process("a"), process("b"), process("c"))
	var err error
	for _, e := range []schema.Edge{
		{ID: "ab", Source: "a", Target: "b"},
		{ID: "bc", Source: "b", Target: "c"},
		{ID: "ac", Source: "a", Target: "c"},
	} {
		m, err = m.AddEdge(e)
		require.NoError(t, err)
	}
	m, err = m.AddSwimlane(schema.Swimlane{ID: "lane", ContainedNodes: []string{"a", "b"}})
	require.NoError(t, err)

	after, err := m.RemoveNode("b")
	require.NoError(t, err)

	assert.False(t, after.HasNode("b"))
	assert.Len(t, after.Edges(), 1)
	lane, ok := after.Swimlane("lane")
	require.True(t, ok)
	assert.Equal(t, []string{"a"}, lane.ContainedNodes)

	// The original model still holds everything.
	assert.Len(t, m.Edges(), 3)
	lane, _ = m.Swimlane("lane")
	assert.Equal(t, []string{"a", "b"}, lane.ContainedNodes)
}

func TestModel_IncidentEdgeQueries(t *testing.T) {
	m := mustAddNodes(t, New(), process("a"), process("b"))
	m, err := m.AddEdge(schema.Edge{ID: "ab", Source: "a", Target: "b"})
	require.NoError(t, err)

	assert.Len(t, m.OutgoingEdges("a"), 1)
	assert.Empty(t, m.OutgoingEdges("b"))
	assert.Len(t, m.IncomingEdges("b"), 1)

	m, err = m.RemoveEdge("ab")
	require.NoError(t, err)
	assert.Empty(t, m.Edges())
}

// --- Swimlanes ---

func TestModel_AssignMovesBetweenLanes(t *testing.T) {
	m := mustAddNodes(t, New(), process("a"))
	m, err := m.AddSwimlane(schema.Swimlane{ID: "l1", ContainedNodes: []string{"a"}})
	require.NoError(t, err)
	m, err = m.AddSwimlane(schema.Swimlane{ID: "l2"})
	require.NoError(t, err)

	m, err = m.AssignToSwimlane("a", "l2")
	require.NoError(t, err)

	l1, _ := m.Swimlane("l1")
	l2, _ := m.Swimlane("l2")
	assert.Empty(t, l1.ContainedNodes)
	assert.Equal(t, []string{"a"}, l2.ContainedNodes)

	lane, ok := m.SwimlaneOf("a")
	require.True(t, ok)
	assert.Equal(t, "l2", lane.ID)

	m = m.UnassignFromSwimlane("a")
	_, ok = m.SwimlaneOf("a")
	assert.False(t, ok)
}

func TestModel_AddSwimlaneStealsMembers(t *testing.T) {
	m := mustAddNodes(t, New(), process("a"), process("b"))
	m, err := m.AddSwimlane(schema.Swimlane{ID: "l1", ContainedNodes: []string{"a", "b"}})
	require.NoError(t, err)
	m, err = m.AddSwimlane(schema.Swimlane{ID: "l2", ContainedNodes: []string{"b"}})
	require.NoError(t, err)

	l1, _ := m.Swimlane("l1")
	assert.Equal(t, []string{"a"}, l1.ContainedNodes)
}

func TestModel_RemoveSwimlaneKeepsNodes(t *testing.T) {
	m := mustAddNodes(t, New(), process("a"))
	m, err := m.AddSwimlane(schema.Swimlane{ID: "l1", ContainedNodes: []string{"a"}})
	require.NoError(t, err)
	m, err = m.RemoveSwimlane("l1")
	require.NoError(t, err)
	assert.True(t, m.HasNode("a"))
	assert.Empty(t, m.Swimlanes())
}

// --- SwimlaneCollection ---

func TestSwimlaneCollection_ExportImportRoundTrip(t *testing.T) {
	f := NewFactory(ids.NewCounter())
	c := NewSwimlaneCollection()
	l1 := f.NewSwimlane("Sales", schema.Bounds{Width: 100, Height: 50})
	l2 := f.NewSwimlane("Ops", schema.Bounds{})
	require.NoError(t, c.Add(l1))
	require.NoError(t, c.Add(l2))
	require.NoError(t, c.Assign("n1", l1.ID))
	require.NoError(t, c.Assign("n2", l1.ID))
	require.NoError(t, c.Assign("n2", l2.ID))

	exported := c.Export()
	restored := NewSwimlaneCollection()
	require.NoError(t, restored.Import(exported))

	assert.Equal(t, exported, restored.Export())
	lane, ok := restored.LaneOf("n2")
	require.True(t, ok)
	assert.Equal(t, l2.ID, lane)
}

func TestSwimlaneCollection_ImportRejectsOverlap(t *testing.T) {
	c := NewSwimlaneCollection()
	require.NoError(t, c.Add(schema.Swimlane{ID: "keep"}))

	err := c.Import([]schema.Swimlane{
		{ID: "a", ContainedNodes: []string{"n1"}},
		{ID: "b", ContainedNodes: []string{"n1"}},
	})
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeConflict, schema.ErrorCode(err))
	assert.Equal(t, 1, c.Len(), "failed import leaves the collection unchanged")
}

func TestSwimlaneCollection_ApplyDropsUnknownMembers(t *testing.T) {
	m := mustAddNodes(t, New(), process("a"))
	c := NewSwimlaneCollection()
	require.NoError(t, c.Add(schema.Swimlane{ID: "l", ContainedNodes: []string{"a", "ghost"}}))

	m = c.Apply(m)
	lane, ok := m.Swimlane("l")
	require.True(t, ok)
	assert.Equal(t, []string{"a"}, lane.ContainedNodes)

	back, err := SwimlanesOf(m)
	require.NoError(t, err)
	assert.Equal(t, 1, back.Len())
}

// --- Factory ---

func TestFactory_DecisionDefaults(t *testing.T) {
	f := NewFactory(ids.NewCounter())
	n := f.MustNode(schema.NodeTypeDecision, "", schema.Position{})
	d := n.(*schema.DecisionNode)

	require.Len(t, d.Branches, 2)
	assert.Equal(t, "true", d.Branches[0].Value)
	assert.Equal(t, "false", d.Branches[1].Value)
	defaults := 0
	for _, b := range d.Branches {
		if b.IsDefault {
			defaults++
		}
	}
	assert.Equal(t, 1, defaults)
	assert.True(t, d.Branches[1].IsDefault)
	assert.Equal(t, "Decision", d.Name)
}

func TestFactory_ExpectedValuePresence(t *testing.T) {
	f := NewFactory(nil)
	for _, kind := range []schema.NodeType{schema.NodeTypeBegin, schema.NodeTypeEnd, schema.NodeTypeException} {
		raw, err := json.Marshal(f.MustNode(kind, "x", schema.Position{X: 1}))
		require.NoError(t, err)
		var fields map[string]any
		require.NoError(t, json.Unmarshal(raw, &fields))
		_, has := fields["expectedValue"]
		assert.Equal(t, schema.HasExpectedValue(kind), has, "kind %s", kind)
		if has {
			assert.Nil(t, fields["expectedValue"])
		}
	}
}

func TestFactory_IDsPerPrefix(t *testing.T) {
	f := NewFactory(ids.NewCounter())
	p1 := f.MustNode(schema.NodeTypeProcess, "", schema.Position{})
	p2 := f.MustNode(schema.NodeTypeProcess, "", schema.Position{})
	dt := f.MustNode(schema.NodeTypeDecisionTable, "", schema.Position{})
	e := f.NewEdge(p1.Common().ID, p2.Common().ID)

	assert.Equal(t, "process_1", p1.Common().ID)
	assert.Equal(t, "process_2", p2.Common().ID)
	assert.Equal(t, "decision_table_1", dt.Common().ID)
	assert.Equal(t, "edge_1", e.ID)
}

func TestFactory_UnknownKind(t *testing.T) {
	f := NewFactory(nil)
	_, err := f.NewNode("gateway", "", schema.Position{})
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeUnsupportedNodeType, schema.ErrorCode(err))
	assert.Panics(t, func() { f.MustNode("gateway", "", schema.Position{}) })
}

func TestFactory_EveryKind(t *testing.T) {
	f := NewFactory(nil)
	for _, kind := range schema.AllNodeTypes {
		n, err := f.NewNode(kind, "", schema.Position{})
		require.NoError(t, err)
		assert.Equal(t, kind, n.Type())
		sd, ok := schema.StepDisplay(n)
		assert.True(t, ok && sd)
	}
}

// --- Codec ---

func TestCodec_RoundTrip(t *testing.T) {
	f := NewFactory(ids.NewCounter())
	begin := f.MustNode(schema.NodeTypeBegin, "Start", schema.Position{})
	end := f.MustNode(schema.NodeTypeEnd, "Done", schema.Position{X: 10})
	m := mustAddNodes(t, New(WithID("wf-1"), WithName("Onboarding")), begin, end)
	m, err := m.AddEdge(f.NewEdge(begin.Common().ID, end.Common().ID))
	require.NoError(t, err)
	lane := f.NewSwimlane("Main", schema.Bounds{})
	lane.ContainedNodes = []string{begin.Common().ID}
	m, err = m.AddSwimlane(lane)
	require.NoError(t, err)

	data, err := json.Marshal(m)
	require.NoError(t, err)

	var back WorkflowModel
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, m.Metadata().ID, back.Metadata().ID)
	assert.Equal(t, m.Metadata().Name, back.Metadata().Name)
	assert.True(t, m.Metadata().UpdatedAt.Equal(back.Metadata().UpdatedAt))
	assert.Equal(t, m.NodeIDs(), back.NodeIDs())
	assert.Equal(t, m.Edges(), back.Edges())
	assert.Equal(t, m.Swimlanes(), back.Swimlanes())
}

func TestCodec_KeepsDanglingEdges(t *testing.T) {
	doc := `{"id":"wf","nodes":[{"id":"a","type":"process","name":"A"}],
		"edges":[{"id":"e1","source":"a","target":"ghost"}]}`
	m, err := Decode([]byte(doc))
	require.NoError(t, err)
	assert.Len(t, m.Edges(), 1)
	assert.Equal(t, DefaultVersion, m.Metadata().Version)
}

func TestCodec_RejectsDuplicateNodeIDs(t *testing.T) {
	doc := `{"nodes":[{"id":"a","type":"process"},{"id":"a","type":"auto"}]}`
	_, err := Decode([]byte(doc))
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeConflict, schema.ErrorCode(err))
}

func TestCodec_Malformed(t *testing.T) {
	_, err := Decode([]byte(`{"nodes":`))
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeValidation, schema.ErrorCode(err))

	_, err = Decode([]byte(`{"nodes":[{"id":"a","type":"gateway"}]}`))
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeUnsupportedNodeType, schema.ErrorCode(err))
}
