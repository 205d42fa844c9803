package schema

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeMap(t *testing.T, n Node) map[string]any {
	t.Helper()
	data, err := json.Marshal(n)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

// --- expectedValue presence ---

func TestBeginNode_NeverSerializesExpectedValue(t *testing.T) {
	for _, n := range []*BeginNode{
		{NodeCommon: NodeCommon{ID: "begin_1"}},
		{NodeCommon: NodeCommon{ID: "begin_2", Name: "Start", Position: Position{X: 10, Y: 20}}},
		{NodeCommon: NodeCommon{ID: "begin_3", Properties: map[string]any{"expectedValue": "x"}}},
	} {
		out := decodeMap(t, n)
		_, has := out["expectedValue"]
		assert.False(t, has, n.ID)
		assert.Equal(t, "begin", out["type"])
	}
}

func TestTerminalNodes_AlwaysSerializeExpectedValue(t *testing.T) {
	for _, n := range []Node{
		&EndNode{NodeCommon: NodeCommon{ID: "end_1"}},
		&ExceptionNode{NodeCommon: NodeCommon{ID: "exception_1"}},
	} {
		out := decodeMap(t, n)
		v, has := out["expectedValue"]
		assert.True(t, has, n.Common().ID)
		assert.Nil(t, v)
	}
}

// --- Round trip ---

func TestUnmarshalNode_AllKinds(t *testing.T) {
	nodes := []Node{
		&BeginNode{NodeCommon: NodeCommon{ID: "b", Name: "Begin"}},
		&EndNode{NodeCommon: NodeCommon{ID: "e", Name: "End"}, ExpectedValue: "ok"},
		&ExceptionNode{NodeCommon: NodeCommon{ID: "x", Name: "Fail"}},
		&ProcessNode{NodeCommon: NodeCommon{ID: "p", Name: "Work", Properties: map[string]any{PropStepDisplay: true}}},
		&DecisionNode{NodeCommon: NodeCommon{ID: "d"}, Branches: []BranchCondition{{ID: "b1", Value: "true"}, {ID: "b2", Value: "false", IsDefault: true}}},
		&DecisionTableNode{NodeCommon: NodeCommon{ID: "t"}, TableData: DecisionTableData{
			DecisionColumns: []TableColumn{{ID: "c1", Name: "Score"}},
			OutputColumns:   []TableColumn{{ID: "o1", Name: "Grade"}},
			Rows:            []TableRow{{ID: "r1", Values: map[string]any{"c1": "high", "o1": "A"}}},
		}},
		&SubprocessNode{NodeCommon: NodeCommon{ID: "s"}, ReferencePath: "flows/child.json"},
		&ConcurrentNode{NodeCommon: NodeCommon{ID: "c"}, ParallelBranches: []string{"p"}},
		&AutoNode{NodeCommon: NodeCommon{ID: "a"}, AutomationConfig: map[string]any{"schedule": "*/5 * * * *"}},
		&APINode{NodeCommon: NodeCommon{ID: "api"}, APIEndpoint: "https://example.test/hook"},
	}

	for _, n := range nodes {
		data, err := json.Marshal(n)
		require.NoError(t, err)
		got, err := UnmarshalNode(data)
		require.NoError(t, err, n.Common().ID)
		assert.Equal(t, n, got, n.Common().ID)
	}
}

func TestUnmarshalNode_ReferenceOverlay(t *testing.T) {
	data := []byte(`{"id":"p_ref","type":"process","name":"Work (Reference)","position":{"x":1,"y":2},
		"sourceNodeId":"p","isReference":true,"editableProperties":["name","stepDisplay"]}`)
	n, err := UnmarshalNode(data)
	require.NoError(t, err)
	assert.True(t, IsReference(n))
	assert.Equal(t, "p", SourceNodeID(n))
	assert.ElementsMatch(t, ReferenceEditableProperties, n.Common().Reference.EditableProperties)
}

func TestUnmarshalNode_UnknownType(t *testing.T) {
	_, err := UnmarshalNode([]byte(`{"id":"q","type":"quantum"}`))
	require.Error(t, err)
	assert.Equal(t, ErrCodeUnsupportedNodeType, ErrorCode(err))
}

func TestUnmarshalNode_Malformed(t *testing.T) {
	_, err := UnmarshalNode([]byte(`{`))
	require.Error(t, err)
	assert.Equal(t, ErrCodeValidation, ErrorCode(err))
}

// --- Clone ---

func TestClone_IsDeep(t *testing.T) {
	orig := &DecisionNode{
		NodeCommon: NodeCommon{
			ID:         "d",
			Properties: map[string]any{"nested": map[string]any{"k": "v"}},
			Reference:  &ReferenceInfo{SourceNodeID: "src", EditableProperties: []string{"name", "stepDisplay"}},
		},
		Branches: []BranchCondition{{ID: "b1", Value: "true"}},
	}
	cp := orig.Clone().(*DecisionNode)
	cp.Branches[0].Value = "changed"
	cp.Properties["nested"].(map[string]any)["k"] = "changed"
	cp.Reference.SourceNodeID = "other"

	assert.Equal(t, "true", orig.Branches[0].Value)
	assert.Equal(t, "v", orig.Properties["nested"].(map[string]any)["k"])
	assert.Equal(t, "src", orig.Reference.SourceNodeID)
}

// --- Predicates ---

func TestPredicates(t *testing.T) {
	for _, typ := range []NodeType{NodeTypeSubprocess, NodeTypeConcurrent, NodeTypeAPI} {
		assert.False(t, IsReferenceableType(typ), typ)
	}
	for _, typ := range []NodeType{NodeTypeBegin, NodeTypeEnd, NodeTypeProcess, NodeTypeDecision, NodeTypeDecisionTable, NodeTypeAuto, NodeTypeException} {
		assert.True(t, IsReferenceableType(typ), typ)
	}
	assert.True(t, IsIllegalInConcurrent(NodeTypeBegin))
	assert.True(t, IsIllegalInConcurrent(NodeTypeException))
	assert.False(t, IsIllegalInConcurrent(NodeTypeProcess))
	assert.True(t, NodeTypeDecisionTable.Valid())
	assert.False(t, NodeType("nope").Valid())
	assert.Equal(t, "decision_table", IDPrefix(NodeTypeDecisionTable))
}

func TestDisplayName_FallsBackToID(t *testing.T) {
	assert.Equal(t, "p1", DisplayName(&ProcessNode{NodeCommon: NodeCommon{ID: "p1", Name: "  "}}))
	assert.Equal(t, "Work", DisplayName(&ProcessNode{NodeCommon: NodeCommon{ID: "p1", Name: "Work"}}))
}

func TestStepDisplay(t *testing.T) {
	n := &ProcessNode{NodeCommon: NodeCommon{ID: "p", Properties: map[string]any{PropStepDisplay: true}}}
	v, ok := StepDisplay(n)
	assert.True(t, ok)
	assert.True(t, v)

	_, ok = StepDisplay(&ProcessNode{})
	assert.False(t, ok)
}
