package concurrent

import (
	"strings"
	"testing"

	"github.com/rendis/flowgraph/internal/ids"
	"github.com/rendis/flowgraph/internal/model"
	"github.com/rendis/flowgraph/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func process(id, name string) schema.Node {
	return &schema.ProcessNode{NodeCommon: schema.NodeCommon{ID: id, Name: name}}
}

func edge(src, dst string) schema.Edge {
	return schema.Edge{ID: src + "->" + dst, Source: src, Target: dst}
}

func newRegion(t *testing.T, members ...string) *Manager {
	t.Helper()
	m := NewManager("fork", "join")
	for _, id := range members {
		require.NoError(t, m.AddNode(process(id, strings.ToUpper(id))))
	}
	return m
}

// --- Members ---

func TestAddNode_RejectsIllegalKinds(t *testing.T) {
	m := NewManager("fork", "join")
	illegal := []schema.Node{
		&schema.BeginNode{NodeCommon: schema.NodeCommon{ID: "b", Name: "Start"}},
		&schema.EndNode{NodeCommon: schema.NodeCommon{ID: "e", Name: "Done"}},
		&schema.ExceptionNode{NodeCommon: schema.NodeCommon{ID: "x", Name: "Failed"}},
	}
	for _, n := range illegal {
		err := m.AddNode(n)
		require.Error(t, err)
		assert.Equal(t, schema.ErrCodeIllegalMember, schema.ErrorCode(err))
		assert.False(t, m.CanAddNode(n))
	}
	assert.Empty(t, m.ContainedNodeIDs())
}

func TestAddNode_IsIdempotent(t *testing.T) {
	m := newRegion(t, "a")
	require.NoError(t, m.AddNode(process("a", "Renamed")))

	assert.Equal(t, []string{"a"}, m.ContainedNodeIDs())
	n, ok := m.Node("a")
	require.True(t, ok)
	assert.Equal(t, "Renamed", n.Common().Name)
}

func TestRemoveNode_CascadesToBranchesAndEdges(t *testing.T) {
	m := newRegion(t, "a", "b")
	require.NoError(t, m.AddEdge(edge("a", "b")))
	b := m.CreateBranch("left")
	require.NoError(t, m.AddNodeToBranch(b.ID, "a"))
	b, _ = m.Branch(b.ID)
	b.StartNodeID = "a"
	require.NoError(t, m.UpdateBranch(b))

	require.NoError(t, m.RemoveNode("a"))

	assert.Equal(t, []string{"b"}, m.ContainedNodeIDs())
	assert.Empty(t, m.Edges())
	got, _ := m.Branch(b.ID)
	assert.Empty(t, got.NodeIDs)
	assert.Empty(t, got.StartNodeID)

	err := m.RemoveNode("a")
	assert.Equal(t, schema.ErrCodeNotFound, schema.ErrorCode(err))
}

// --- Edges ---

func TestAddEdge_RejectsDuplicates(t *testing.T) {
	m := newRegion(t, "a", "b")
	require.NoError(t, m.AddEdge(edge("a", "b")))
	err := m.AddEdge(edge("a", "b"))
	assert.Equal(t, schema.ErrCodeConflict, schema.ErrorCode(err))

	require.NoError(t, m.RemoveEdge("a->b"))
	assert.Equal(t, schema.ErrCodeNotFound, schema.ErrorCode(m.RemoveEdge("a->b")))
}

// --- Branches ---

func TestAddNodeToBranch_AutoEnrols(t *testing.T) {
	m := NewManager("fork", "join")
	b := m.CreateBranch("left")

	require.NoError(t, m.AddNodeToBranch(b.ID, "late"))

	assert.True(t, m.Contains("late"))
	got, ok := m.Branch(b.ID)
	require.True(t, ok)
	assert.Equal(t, []string{"late"}, got.NodeIDs)
}

func TestAddNodeToBranch_MovesBetweenBranches(t *testing.T) {
	m := newRegion(t, "a")
	left, right := m.CreateBranch("left"), m.CreateBranch("right")

	require.NoError(t, m.AddNodeToBranch(left.ID, "a"))
	require.NoError(t, m.AddNodeToBranch(right.ID, "a"))

	l, _ := m.Branch(left.ID)
	r, _ := m.Branch(right.ID)
	assert.Empty(t, l.NodeIDs)
	assert.Equal(t, []string{"a"}, r.NodeIDs)
}

func TestAddNodeToBranch_UnknownBranch(t *testing.T) {
	m := newRegion(t, "a")
	err := m.AddNodeToBranch("missing", "a")
	assert.Equal(t, schema.ErrCodeNotFound, schema.ErrorCode(err))
}

func TestRemoveNodeFromBranch_KeepsMembership(t *testing.T) {
	m := newRegion(t, "a")
	b := m.CreateBranch("left")
	require.NoError(t, m.AddNodeToBranch(b.ID, "a"))

	require.NoError(t, m.RemoveNodeFromBranch(b.ID, "a"))
	assert.True(t, m.Contains("a"))
	assert.Error(t, m.RemoveNodeFromBranch(b.ID, "a"))
}

func TestUpdateBranch_BoundaryMustBeMember(t *testing.T) {
	m := newRegion(t, "a")
	b := m.CreateBranch("left")
	b.NodeIDs = []string{"a"}
	b.EndNodeID = "z"

	err := m.UpdateBranch(b)
	assert.Equal(t, schema.ErrCodeValidation, schema.ErrorCode(err))
}

func TestDeleteBranch_KeepsNodes(t *testing.T) {
	m := newRegion(t, "a")
	b := m.CreateBranch("left")
	require.NoError(t, m.AddNodeToBranch(b.ID, "a"))

	require.NoError(t, m.DeleteBranch(b.ID))
	assert.Empty(t, m.Branches())
	assert.True(t, m.Contains("a"))
	assert.Error(t, m.DeleteBranch(b.ID))
}

func TestCreateBranch_UsesGenerator(t *testing.T) {
	m := NewManager("fork", "join", WithGenerator(ids.NewCounter()))
	assert.Equal(t, "concurrent_process_1", m.ID())
	assert.Equal(t, "concurrent_branch_1", m.CreateBranch("a").ID)
	assert.Equal(t, "concurrent_branch_2", m.CreateBranch("b").ID)
}

// --- Analysis ---

func TestValidate_CycleOfThree(t *testing.T) {
	m := newRegion(t, "a", "b", "c")
	for _, e := range []schema.Edge{edge("a", "b"), edge("b", "c"), edge("c", "a")} {
		require.NoError(t, m.AddEdge(e))
	}

	res := m.Validate()
	assert.False(t, res.IsValid)
	assert.True(t, res.HasCycle)
	require.Len(t, res.CyclePath, 4)
	assert.Equal(t, res.CyclePath[0], res.CyclePath[3])
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "A → B → C → A")

	assert.True(t, m.HasCycle())
	assert.Equal(t, res.CyclePath, m.CyclePath())
	_, ok := m.TopologicalOrder()
	assert.False(t, ok)
}

func TestValidate_AccumulatesInOrder(t *testing.T) {
	m := newRegion(t, "a", "b", "lonely")
	require.NoError(t, m.AddEdge(edge("a", "b")))
	require.NoError(t, m.AddEdge(edge("b", "a")))
	require.NoError(t, m.AddNodeToBranch(m.CreateBranch("x").ID, "ghost"))

	res := m.Validate()
	assert.True(t, res.HasCycle)
	assert.Equal(t, []string{"lonely", "ghost"}, res.DisconnectedNodes)
	// The only entry points are the disconnected members, so the ring is
	// unreachable while the disconnected members are not counted twice.
	assert.Equal(t, []string{"a", "b"}, res.UnreachableNodes)
	assert.Len(t, res.Errors, 1)
	assert.Len(t, res.Warnings, 4)
}

func TestValidate_IllegalMemberFromImport(t *testing.T) {
	wm := model.New()
	wm, err := wm.AddNode(&schema.EndNode{NodeCommon: schema.NodeCommon{ID: "end_1", Name: "End"}})
	require.NoError(t, err)
	wm, err = wm.AddNode(&schema.ConcurrentNode{
		NodeCommon:       schema.NodeCommon{ID: "fork", Name: "Fork"},
		ParallelBranches: []string{"end_1"},
	})
	require.NoError(t, err)

	m, err := FromModel(wm, "fork")
	require.NoError(t, err)
	res := m.Validate()
	assert.False(t, res.IsValid)
	assert.Equal(t, []string{"end_1"}, res.InvalidNodes)
}

func TestValidate_UnreachableIsNotDisconnected(t *testing.T) {
	m := newRegion(t, "a", "b", "c", "d", "lonely")
	for _, e := range []schema.Edge{edge("a", "b"), edge("c", "d"), edge("d", "c")} {
		require.NoError(t, m.AddEdge(e))
	}

	res := m.Validate()
	assert.Equal(t, []string{"lonely"}, res.DisconnectedNodes)
	assert.Equal(t, []string{"c", "d"}, res.UnreachableNodes)
}

func TestValidate_SingleMemberIsNotDisconnected(t *testing.T) {
	res := newRegion(t, "a").Validate()
	assert.True(t, res.IsValid)
	assert.Empty(t, res.DisconnectedNodes)
	assert.Empty(t, res.Warnings)
}

func TestTopologicalOrder_AgreesWithCycleDetection(t *testing.T) {
	m := newRegion(t, "a", "b", "c", "d")
	for _, e := range []schema.Edge{edge("a", "b"), edge("a", "c"), edge("b", "d"), edge("c", "d")} {
		require.NoError(t, m.AddEdge(e))
	}

	order, ok := m.TopologicalOrder()
	require.True(t, ok)
	assert.False(t, m.HasCycle())
	assert.Len(t, order, 4)
	assert.Equal(t, "a", order[0])
	assert.Equal(t, "d", order[3])

	require.NoError(t, m.AddEdge(edge("d", "a")))
	_, ok = m.TopologicalOrder()
	assert.False(t, ok)
	assert.True(t, m.HasCycle())
}

func TestAnalyzeStructure_IsStricterThanValidate(t *testing.T) {
	m := newRegion(t, "a", "b")
	require.NoError(t, m.AddEdge(edge("a", "b")))
	require.NoError(t, m.AddEdge(edge("b", "a")))
	require.NoError(t, m.RemoveEdge("b->a"))

	s := m.AnalyzeStructure()
	assert.True(t, s.IsValid)
	assert.Equal(t, []string{"a"}, s.StartNodes)
	assert.Equal(t, []string{"b"}, s.EndNodes)

	ring := newRegion(t, "x", "y")
	require.NoError(t, ring.AddEdge(edge("x", "y")))
	require.NoError(t, ring.AddEdge(edge("y", "x")))
	assert.False(t, ring.AnalyzeStructure().IsValid)
}

// --- Import / export ---

func TestExportImport_RoundTrip(t *testing.T) {
	m := newRegion(t, "a", "b")
	b := m.CreateBranch("left")
	require.NoError(t, m.AddNodeToBranch(b.ID, "a"))

	data := m.ExportData()
	data.Branches[0].NodeIDs[0] = "mutated"
	assert.Equal(t, []string{"a"}, m.Branches()[0].NodeIDs, "export must be a deep copy")

	restored, err := Import(m.ExportData())
	require.NoError(t, err)
	assert.Equal(t, m.ExportData(), restored.ExportData())
}

func TestImportData_EnrolsBranchNodes(t *testing.T) {
	m := newRegion(t, "a", "gone")
	err := m.ImportData(schema.ConcurrentProcessData{
		ID:               "region",
		ContainedNodeIDs: []string{"a"},
		Branches:         []schema.ConcurrentBranch{{ID: "b1", NodeIDs: []string{"x"}}},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "x"}, m.ContainedNodeIDs())
	_, cached := m.Node("gone")
	assert.False(t, cached)
}

func TestImportData_DropsEdgesOfRemovedMembers(t *testing.T) {
	m := newRegion(t, "a", "b", "gone")
	for _, e := range []schema.Edge{edge("a", "b"), edge("b", "gone"), edge("gone", "a"), edge("fork", "a")} {
		require.NoError(t, m.AddEdge(e))
	}

	require.NoError(t, m.ImportData(schema.ConcurrentProcessData{ID: "region", ContainedNodeIDs: []string{"a", "b"}}))

	var ids []string
	for _, e := range m.Edges() {
		ids = append(ids, e.ID)
	}
	assert.Equal(t, []string{"a->b", "fork->a"}, ids)
	assert.False(t, m.HasCycle())
}

func TestImportData_RejectsDuplicateBranches(t *testing.T) {
	m := NewManager("fork", "join")
	err := m.ImportData(schema.ConcurrentProcessData{
		Branches: []schema.ConcurrentBranch{{ID: "b1"}, {ID: "b1"}},
	})
	assert.Equal(t, schema.ErrCodeConflict, schema.ErrorCode(err))
}

// --- Model bridge ---

func regionModel(t *testing.T) *model.WorkflowModel {
	t.Helper()
	wm := model.New()
	var err error
	nodes := []schema.Node{
		&schema.ConcurrentNode{NodeCommon: schema.NodeCommon{ID: "fork", Name: "Fork"}, ParallelBranches: []string{"a1", "a2", "b1"}},
		process("a1", "A1"), process("a2", "A2"), process("b1", "B1"), process("join", "Join"),
	}
	for _, n := range nodes {
		wm, err = wm.AddNode(n)
		require.NoError(t, err)
	}
	for _, e := range []schema.Edge{
		edge("fork", "a1"), edge("fork", "b1"), edge("a1", "a2"), edge("a2", "join"), edge("b1", "join"),
	} {
		wm, err = wm.AddEdge(e)
		require.NoError(t, err)
	}
	return wm
}

func TestFromModel_DerivesBranches(t *testing.T) {
	m, err := FromModel(regionModel(t), "fork")
	require.NoError(t, err)

	assert.Equal(t, "fork", m.StartNodeID())
	assert.Equal(t, "join", m.EndNodeID())
	assert.Equal(t, []string{"a1", "a2", "b1"}, m.ContainedNodeIDs())

	branches := m.Branches()
	require.Len(t, branches, 2)
	assert.Equal(t, []string{"a1", "a2"}, branches[0].NodeIDs)
	assert.Equal(t, "a1", branches[0].StartNodeID)
	assert.Equal(t, "a2", branches[0].EndNodeID)
	assert.Equal(t, []string{"b1"}, branches[1].NodeIDs)
	assert.True(t, m.Validate().IsValid)
}

func TestFromModel_Errors(t *testing.T) {
	wm := regionModel(t)
	_, err := FromModel(wm, "missing")
	assert.Equal(t, schema.ErrCodeNotFound, schema.ErrorCode(err))
	_, err = FromModel(wm, "a1")
	assert.Equal(t, schema.ErrCodeValidation, schema.ErrorCode(err))
}

func TestApply_WritesMembersBack(t *testing.T) {
	wm := regionModel(t)
	m, err := FromModel(wm, "fork")
	require.NoError(t, err)
	require.NoError(t, m.RemoveNode("b1"))

	updated, err := m.Apply(wm)
	require.NoError(t, err)
	n, _ := updated.Node("fork")
	assert.Equal(t, []string{"a1", "a2"}, n.(*schema.ConcurrentNode).ParallelBranches)

	orig, _ := wm.Node("fork")
	assert.Len(t, orig.(*schema.ConcurrentNode).ParallelBranches, 3)
}
