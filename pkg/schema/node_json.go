package schema

import "encoding/json"

// nodeWire is the flat JSON shape shared by every node kind.
type nodeWire struct {
	ID                 string             `json:"id"`
	Type               NodeType           `json:"type"`
	Name               string             `json:"name"`
	Properties         map[string]any     `json:"properties,omitempty"`
	Position           Position           `json:"position"`
	TestData           []TestData         `json:"testData,omitempty"`
	AutomationActions  []AutomationAction `json:"automationActions,omitempty"`
	SourceNodeID       string             `json:"sourceNodeId,omitempty"`
	IsReference        bool               `json:"isReference,omitempty"`
	EditableProperties []string           `json:"editableProperties,omitempty"`
}

// nodeUnion decodes any node kind; the type tag decides which fields are kept.
type nodeUnion struct {
	nodeWire
	ExpectedValue    any               `json:"expectedValue"`
	Branches         []BranchCondition `json:"branches"`
	TableData        DecisionTableData `json:"tableData"`
	ReferencePath    string            `json:"referencePath"`
	ParallelBranches []string          `json:"parallelBranches"`
	AutomationConfig map[string]any    `json:"automationConfig"`
	APIEndpoint      string            `json:"apiEndpoint"`
	APIConfig        map[string]any    `json:"apiConfig"`
}

func wireOf(t NodeType, c *NodeCommon) nodeWire {
	w := nodeWire{
		ID:                c.ID,
		Type:              t,
		Name:              c.Name,
		Properties:        c.Properties,
		Position:          c.Position,
		TestData:          c.TestData,
		AutomationActions: c.AutomationActions,
	}
	if c.Reference != nil {
		w.SourceNodeID = c.Reference.SourceNodeID
		w.IsReference = true
		w.EditableProperties = c.Reference.EditableProperties
	}
	return w
}

func (w nodeWire) common() NodeCommon {
	c := NodeCommon{
		ID:                w.ID,
		Name:              w.Name,
		Properties:        w.Properties,
		Position:          w.Position,
		TestData:          w.TestData,
		AutomationActions: w.AutomationActions,
	}
	if w.IsReference || w.SourceNodeID != "" {
		c.Reference = &ReferenceInfo{
			SourceNodeID:       w.SourceNodeID,
			EditableProperties: w.EditableProperties,
		}
	}
	return c
}

func (n *BeginNode) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireOf(n.Type(), &n.NodeCommon))
}

func (n *EndNode) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		nodeWire
		ExpectedValue any `json:"expectedValue"`
	}{wireOf(n.Type(), &n.NodeCommon), n.ExpectedValue})
}

func (n *ExceptionNode) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		nodeWire
		ExpectedValue any `json:"expectedValue"`
	}{wireOf(n.Type(), &n.NodeCommon), n.ExpectedValue})
}

func (n *ProcessNode) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireOf(n.Type(), &n.NodeCommon))
}

func (n *DecisionNode) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		nodeWire
		Branches []BranchCondition `json:"branches"`
	}{wireOf(n.Type(), &n.NodeCommon), n.Branches})
}

func (n *DecisionTableNode) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		nodeWire
		TableData DecisionTableData `json:"tableData"`
	}{wireOf(n.Type(), &n.NodeCommon), n.TableData})
}

func (n *SubprocessNode) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		nodeWire
		ReferencePath string `json:"referencePath"`
	}{wireOf(n.Type(), &n.NodeCommon), n.ReferencePath})
}

func (n *ConcurrentNode) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		nodeWire
		ParallelBranches []string `json:"parallelBranches"`
	}{wireOf(n.Type(), &n.NodeCommon), n.ParallelBranches})
}

func (n *AutoNode) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		nodeWire
		AutomationConfig map[string]any `json:"automationConfig,omitempty"`
	}{wireOf(n.Type(), &n.NodeCommon), n.AutomationConfig})
}

func (n *APINode) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		nodeWire
		APIEndpoint string         `json:"apiEndpoint,omitempty"`
		APIConfig   map[string]any `json:"apiConfig,omitempty"`
	}{wireOf(n.Type(), &n.NodeCommon), n.APIEndpoint, n.APIConfig})
}

// UnmarshalNode decodes a node of any kind from its flat JSON form.
// An unknown type tag yields ErrCodeUnsupportedNodeType.
func UnmarshalNode(data []byte) (Node, error) {
	var u nodeUnion
	if err := json.Unmarshal(data, &u); err != nil {
		return nil, NewError(ErrCodeValidation, "malformed node JSON").WithCause(err)
	}

	c := u.common()
	switch u.Type {
	case NodeTypeBegin:
		return &BeginNode{NodeCommon: c}, nil
	case NodeTypeEnd:
		return &EndNode{NodeCommon: c, ExpectedValue: u.ExpectedValue}, nil
	case NodeTypeException:
		return &ExceptionNode{NodeCommon: c, ExpectedValue: u.ExpectedValue}, nil
	case NodeTypeProcess:
		return &ProcessNode{NodeCommon: c}, nil
	case NodeTypeDecision:
		return &DecisionNode{NodeCommon: c, Branches: u.Branches}, nil
	case NodeTypeDecisionTable:
		return &DecisionTableNode{NodeCommon: c, TableData: u.TableData}, nil
	case NodeTypeSubprocess:
		return &SubprocessNode{NodeCommon: c, ReferencePath: u.ReferencePath}, nil
	case NodeTypeConcurrent:
		return &ConcurrentNode{NodeCommon: c, ParallelBranches: u.ParallelBranches}, nil
	case NodeTypeAuto:
		return &AutoNode{NodeCommon: c, AutomationConfig: u.AutomationConfig}, nil
	case NodeTypeAPI:
		return &APINode{NodeCommon: c, APIEndpoint: u.APIEndpoint, APIConfig: u.APIConfig}, nil
	default:
		return nil, NewErrorf(ErrCodeUnsupportedNodeType, "unsupported node type %q", u.Type).WithNode(u.ID)
	}
}
