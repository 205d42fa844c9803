package model

import (
	"fmt"

	"github.com/rendis/flowgraph/internal/ids"
	"github.com/rendis/flowgraph/pkg/schema"
)

// Id prefixes for the non-node entities.
const (
	PrefixEdge     = "edge"
	PrefixSwimlane = "swimlane"
	PrefixBranch   = "branch"
	PrefixRow      = "row"
	PrefixColumn   = "column"
)

// Factory builds nodes, edges and swimlanes with ids from an injected generator.
type Factory struct {
	gen ids.Generator
}

// NewFactory returns a factory backed by gen. A nil gen uses a fresh counter.
func NewFactory(gen ids.Generator) *Factory {
	if gen == nil {
		gen = ids.NewCounter()
	}
	return &Factory{gen: gen}
}

// Generator returns the id generator used by the factory.
func (f *Factory) Generator() ids.Generator { return f.gen }

// NewNode creates a node of kind t. A blank name defaults to the kind label.
func (f *Factory) NewNode(t schema.NodeType, name string, pos schema.Position) (schema.Node, error) {
	if !t.Valid() {
		return nil, schema.NewErrorf(schema.ErrCodeUnsupportedNodeType, "unsupported node type %q", t)
	}
	if name == "" {
		name = schema.TypeLabel(t)
	}
	common := schema.NodeCommon{
		ID:         f.gen.Next(schema.IDPrefix(t)),
		Name:       name,
		Properties: map[string]any{schema.PropStepDisplay: true},
		Position:   pos,
	}

	switch t {
	case schema.NodeTypeBegin:
		return &schema.BeginNode{NodeCommon: common}, nil
	case schema.NodeTypeEnd:
		return &schema.EndNode{NodeCommon: common}, nil
	case schema.NodeTypeException:
		return &schema.ExceptionNode{NodeCommon: common}, nil
	case schema.NodeTypeProcess:
		return &schema.ProcessNode{NodeCommon: common}, nil
	case schema.NodeTypeDecision:
		return &schema.DecisionNode{NodeCommon: common, Branches: f.DefaultBranches()}, nil
	case schema.NodeTypeDecisionTable:
		return &schema.DecisionTableNode{NodeCommon: common, TableData: f.DefaultTable()}, nil
	case schema.NodeTypeSubprocess:
		return &schema.SubprocessNode{NodeCommon: common}, nil
	case schema.NodeTypeConcurrent:
		return &schema.ConcurrentNode{NodeCommon: common, ParallelBranches: []string{}}, nil
	case schema.NodeTypeAuto:
		return &schema.AutoNode{NodeCommon: common}, nil
	case schema.NodeTypeAPI:
		return &schema.APINode{NodeCommon: common}, nil
	}
	// Valid() covers every case above.
	return nil, schema.NewErrorf(schema.ErrCodeUnsupportedNodeType, "unsupported node type %q", t)
}

// MustNode is NewNode for callers that pass a constant kind. It panics on an
// unknown kind.
func (f *Factory) MustNode(t schema.NodeType, name string, pos schema.Position) schema.Node {
	n, err := f.NewNode(t, name, pos)
	if err != nil {
		panic(fmt.Sprintf("model: %v", err))
	}
	return n
}

// DefaultBranches returns the "true"/"false" pair of a new decision node. The
// second branch is the default.
func (f *Factory) DefaultBranches() []schema.BranchCondition {
	return []schema.BranchCondition{
		{ID: f.gen.Next(PrefixBranch), Value: "true"},
		{ID: f.gen.Next(PrefixBranch), Value: "false", IsDefault: true},
	}
}

// DefaultTable returns the table of a new decision-table node: one column of
// each kind and no rows.
func (f *Factory) DefaultTable() schema.DecisionTableData {
	return schema.DecisionTableData{
		InputColumns:    []schema.TableColumn{{ID: f.gen.Next(PrefixColumn), Name: "Input", DataType: "string"}},
		OutputColumns:   []schema.TableColumn{{ID: f.gen.Next(PrefixColumn), Name: "Output", DataType: "string"}},
		DecisionColumns: []schema.TableColumn{{ID: f.gen.Next(PrefixColumn), Name: "Condition", DataType: "string"}},
		Rows:            []schema.TableRow{},
	}
}

// NewRow returns an empty decision-table row.
func (f *Factory) NewRow(values map[string]any) schema.TableRow {
	if values == nil {
		values = map[string]any{}
	}
	return schema.TableRow{ID: f.gen.Next(PrefixRow), Values: values}
}

// NewEdge creates an edge from source to target.
func (f *Factory) NewEdge(source, target string) schema.Edge {
	return schema.Edge{ID: f.gen.Next(PrefixEdge), Source: source, Target: target}
}

// NewSwimlane creates an empty swimlane.
func (f *Factory) NewSwimlane(name string, bounds schema.Bounds) schema.Swimlane {
	return schema.Swimlane{
		ID:             f.gen.Next(PrefixSwimlane),
		Name:           name,
		Bounds:         bounds,
		ContainedNodes: []string{},
	}
}
