package schema

// NodeType enumerates the kinds of workflow nodes.
type NodeType string

const (
	NodeTypeBegin         NodeType = "begin"
	NodeTypeEnd           NodeType = "end"
	NodeTypeException     NodeType = "exception"
	NodeTypeProcess       NodeType = "process"
	NodeTypeDecision      NodeType = "decision"
	NodeTypeDecisionTable NodeType = "decisionTable"
	NodeTypeSubprocess    NodeType = "subprocess"
	NodeTypeConcurrent    NodeType = "concurrent"
	NodeTypeAuto          NodeType = "auto"
	NodeTypeAPI           NodeType = "api"
)

// AllNodeTypes lists every node kind in declaration order.
var AllNodeTypes = []NodeType{
	NodeTypeBegin,
	NodeTypeEnd,
	NodeTypeException,
	NodeTypeProcess,
	NodeTypeDecision,
	NodeTypeDecisionTable,
	NodeTypeSubprocess,
	NodeTypeConcurrent,
	NodeTypeAuto,
	NodeTypeAPI,
}

// PropStepDisplay is the recognized boolean key of NodeCommon.Properties.
const PropStepDisplay = "stepDisplay"

// Editable property names of a reference node.
const (
	EditableName        = "name"
	EditableStepDisplay = PropStepDisplay
)

// ReferenceEditableProperties is the frozen whitelist of fields a reference node may change.
var ReferenceEditableProperties = []string{EditableName, EditableStepDisplay}

// Node is a workflow node. The set of implementations is closed: one pointer
// type per NodeType. Values held by a model are treated as immutable; callers
// that need to change a node Clone it first.
type Node interface {
	Type() NodeType
	Common() *NodeCommon
	Clone() Node
	isNode()
}

// Position is the author-assigned diagram location. The engine never reads it.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// NodeCommon holds the fields shared by every node kind.
type NodeCommon struct {
	ID                string             `json:"id"`
	Name              string             `json:"name"`
	Properties        map[string]any     `json:"properties,omitempty"`
	Position          Position           `json:"position"`
	TestData          []TestData         `json:"testData,omitempty"`
	AutomationActions []AutomationAction `json:"automationActions,omitempty"`
	Reference         *ReferenceInfo     `json:"-"`
}

// ReferenceInfo is the overlay carried by a reference node.
type ReferenceInfo struct {
	SourceNodeID       string   `json:"sourceNodeId"`
	EditableProperties []string `json:"editableProperties"`
}

// TestData is a simulated input bound to an outgoing edge.
type TestData struct {
	ID       string         `json:"id"`
	EdgeID   string         `json:"edgeId"`
	Name     string         `json:"name,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
	Expected any            `json:"expected,omitempty"`
}

// AutomationAction is a simulated side effect bound to an outgoing edge.
type AutomationAction struct {
	ID     string         `json:"id"`
	EdgeID string         `json:"edgeId"`
	Name   string         `json:"name,omitempty"`
	Type   string         `json:"type"`
	Config map[string]any `json:"config,omitempty"`
}

// Automation action types understood by the simulator.
const (
	ActionTypeJQ   = "jq"
	ActionTypeExpr = "expr"
	ActionTypeNoop = "noop"
)

// BranchCondition is a labeled outgoing-edge discriminator owned by a Decision node.
type BranchCondition struct {
	ID        string `json:"id"`
	Value     string `json:"value"`
	IsDefault bool   `json:"isDefault,omitempty"`
}

// TableColumn describes one column of a decision table.
type TableColumn struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	DataType string `json:"dataType,omitempty"`
}

// TableRow maps column IDs to cell values.
type TableRow struct {
	ID     string         `json:"id"`
	Values map[string]any `json:"values"`
}

// DecisionTableData is the body of a DecisionTable node.
type DecisionTableData struct {
	InputColumns    []TableColumn `json:"inputColumns"`
	OutputColumns   []TableColumn `json:"outputColumns"`
	DecisionColumns []TableColumn `json:"decisionColumns"`
	Rows            []TableRow    `json:"rows"`
}

// BeginNode is the single entry point of a workflow. It never carries an expected value.
type BeginNode struct {
	NodeCommon
}

// EndNode terminates a workflow with an expected value (nil is a valid value).
type EndNode struct {
	NodeCommon
	ExpectedValue any
}

// ExceptionNode terminates a workflow on a failure path.
type ExceptionNode struct {
	NodeCommon
	ExpectedValue any
}

// ProcessNode is a plain step with at most one outgoing edge.
type ProcessNode struct {
	NodeCommon
}

// DecisionNode routes on branch values.
type DecisionNode struct {
	NodeCommon
	Branches []BranchCondition
}

// DecisionTableNode routes on a rule table.
type DecisionTableNode struct {
	NodeCommon
	TableData DecisionTableData
}

// SubprocessNode points at another workflow.
type SubprocessNode struct {
	NodeCommon
	ReferencePath string
}

// ConcurrentNode encloses a parallel region.
type ConcurrentNode struct {
	NodeCommon
	ParallelBranches []string
}

// AutoNode is an automated step.
type AutoNode struct {
	NodeCommon
	AutomationConfig map[string]any
}

// APINode calls an external endpoint.
type APINode struct {
	NodeCommon
	APIEndpoint string
	APIConfig   map[string]any
}

func (n *BeginNode) Type() NodeType         { return NodeTypeBegin }
func (n *EndNode) Type() NodeType           { return NodeTypeEnd }
func (n *ExceptionNode) Type() NodeType     { return NodeTypeException }
func (n *ProcessNode) Type() NodeType       { return NodeTypeProcess }
func (n *DecisionNode) Type() NodeType      { return NodeTypeDecision }
func (n *DecisionTableNode) Type() NodeType { return NodeTypeDecisionTable }
func (n *SubprocessNode) Type() NodeType    { return NodeTypeSubprocess }
func (n *ConcurrentNode) Type() NodeType    { return NodeTypeConcurrent }
func (n *AutoNode) Type() NodeType          { return NodeTypeAuto }
func (n *APINode) Type() NodeType           { return NodeTypeAPI }

func (n *BeginNode) Common() *NodeCommon         { return &n.NodeCommon }
func (n *EndNode) Common() *NodeCommon           { return &n.NodeCommon }
func (n *ExceptionNode) Common() *NodeCommon     { return &n.NodeCommon }
func (n *ProcessNode) Common() *NodeCommon       { return &n.NodeCommon }
func (n *DecisionNode) Common() *NodeCommon      { return &n.NodeCommon }
func (n *DecisionTableNode) Common() *NodeCommon { return &n.NodeCommon }
func (n *SubprocessNode) Common() *NodeCommon    { return &n.NodeCommon }
func (n *ConcurrentNode) Common() *NodeCommon    { return &n.NodeCommon }
func (n *AutoNode) Common() *NodeCommon          { return &n.NodeCommon }
func (n *APINode) Common() *NodeCommon           { return &n.NodeCommon }

func (*BeginNode) isNode()         {}
func (*EndNode) isNode()           {}
func (*ExceptionNode) isNode()     {}
func (*ProcessNode) isNode()       {}
func (*DecisionNode) isNode()      {}
func (*DecisionTableNode) isNode() {}
func (*SubprocessNode) isNode()    {}
func (*ConcurrentNode) isNode()    {}
func (*AutoNode) isNode()          {}
func (*APINode) isNode()           {}

func (n *BeginNode) Clone() Node {
	return &BeginNode{NodeCommon: n.NodeCommon.clone()}
}

func (n *EndNode) Clone() Node {
	return &EndNode{NodeCommon: n.NodeCommon.clone(), ExpectedValue: cloneValue(n.ExpectedValue)}
}

func (n *ExceptionNode) Clone() Node {
	return &ExceptionNode{NodeCommon: n.NodeCommon.clone(), ExpectedValue: cloneValue(n.ExpectedValue)}
}

func (n *ProcessNode) Clone() Node {
	return &ProcessNode{NodeCommon: n.NodeCommon.clone()}
}

func (n *DecisionNode) Clone() Node {
	return &DecisionNode{NodeCommon: n.NodeCommon.clone(), Branches: cloneSlice(n.Branches)}
}

func (n *DecisionTableNode) Clone() Node {
	return &DecisionTableNode{NodeCommon: n.NodeCommon.clone(), TableData: n.TableData.clone()}
}

func (n *SubprocessNode) Clone() Node {
	return &SubprocessNode{NodeCommon: n.NodeCommon.clone(), ReferencePath: n.ReferencePath}
}

func (n *ConcurrentNode) Clone() Node {
	return &ConcurrentNode{NodeCommon: n.NodeCommon.clone(), ParallelBranches: cloneSlice(n.ParallelBranches)}
}

func (n *AutoNode) Clone() Node {
	return &AutoNode{NodeCommon: n.NodeCommon.clone(), AutomationConfig: CloneMap(n.AutomationConfig)}
}

func (n *APINode) Clone() Node {
	return &APINode{NodeCommon: n.NodeCommon.clone(), APIEndpoint: n.APIEndpoint, APIConfig: CloneMap(n.APIConfig)}
}

func (c NodeCommon) clone() NodeCommon {
	out := c
	out.Properties = CloneMap(c.Properties)
	if c.TestData != nil {
		out.TestData = make([]TestData, len(c.TestData))
		for i, td := range c.TestData {
			td.Data = CloneMap(td.Data)
			td.Expected = cloneValue(td.Expected)
			out.TestData[i] = td
		}
	}
	if c.AutomationActions != nil {
		out.AutomationActions = make([]AutomationAction, len(c.AutomationActions))
		for i, a := range c.AutomationActions {
			a.Config = CloneMap(a.Config)
			out.AutomationActions[i] = a
		}
	}
	if c.Reference != nil {
		ref := *c.Reference
		ref.EditableProperties = cloneSlice(c.Reference.EditableProperties)
		out.Reference = &ref
	}
	return out
}

func (d DecisionTableData) clone() DecisionTableData {
	out := DecisionTableData{
		InputColumns:    cloneSlice(d.InputColumns),
		OutputColumns:   cloneSlice(d.OutputColumns),
		DecisionColumns: cloneSlice(d.DecisionColumns),
	}
	if d.Rows != nil {
		out.Rows = make([]TableRow, len(d.Rows))
		for i, r := range d.Rows {
			out.Rows[i] = TableRow{ID: r.ID, Values: CloneMap(r.Values)}
		}
	}
	return out
}

// CloneMap deep-copies a JSON-like map. A nil map stays nil.
func CloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return CloneMap(val)
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

func cloneSlice[T any](s []T) []T {
	if s == nil {
		return nil
	}
	out := make([]T, len(s))
	copy(out, s)
	return out
}
