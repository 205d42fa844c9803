package automation

import (
	"context"
	"reflect"

	"github.com/rendis/flowgraph/internal/expressions"
	"github.com/rendis/flowgraph/pkg/schema"
)

// InputKey is the action config key holding the document an action runs on.
const InputKey = "input"

// Simulator is the default Executor.
//
// A test datum evaluates its edge's CEL condition with the datum as data and
// yields whether the edge would be taken (true when the edge has no
// condition). A non-nil Expected must match that outcome.
//
// An action runs its jq query or expr expression over config["input"]; noop
// actions yield nil.
type Simulator struct {
	exprs *expressions.Set
}

// NewSimulator creates a Simulator over an engine set.
func NewSimulator(set *expressions.Set) *Simulator {
	return &Simulator{exprs: set}
}

// Execute runs one item.
func (s *Simulator) Execute(ctx context.Context, item Item) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	switch {
	case item.TestData != nil:
		return s.testData(ctx, item)
	case item.Action != nil:
		return s.action(ctx, *item.Action)
	default:
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "item %q carries neither an action nor test data", item.ID)
	}
}

func (s *Simulator) testData(ctx context.Context, item Item) (any, error) {
	td := item.TestData
	taken := true
	if item.Edge.Condition != "" {
		data := td.Data
		if data == nil {
			data = map[string]any{}
		}
		var err error
		taken, err = s.exprs.CEL.EvaluateBool(ctx, item.Edge.Condition, map[string]any{
			"data": data,
			"edge": edgeVars(item.Edge),
			"node": nodeVars(item.Node),
		})
		if err != nil {
			return nil, err
		}
	}
	if td.Expected != nil && !reflect.DeepEqual(td.Expected, taken) {
		return nil, schema.NewErrorf(schema.ErrCodeExecution,
			"test data %q expected %v, edge %q evaluated to %v", td.ID, td.Expected, item.Edge.ID, taken).
			WithDetails(map[string]any{"expected": td.Expected, "actual": taken})
	}
	return taken, nil
}

func (s *Simulator) action(ctx context.Context, a schema.AutomationAction) (any, error) {
	if a.Type == schema.ActionTypeNoop {
		return nil, nil
	}
	engine, expression, ok := s.exprs.ActionExpression(a)
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "action %q has unknown type %q", a.ID, a.Type)
	}
	input, _ := a.Config[InputKey].(map[string]any)
	if input == nil {
		input = map[string]any{}
	}
	return engine.Evaluate(ctx, expression, input)
}

func edgeVars(e schema.Edge) map[string]any {
	return map[string]any{"id": e.ID, "source": e.Source, "target": e.Target, "value": e.Value}
}

func nodeVars(n schema.Node) map[string]any {
	if n == nil {
		return map[string]any{}
	}
	return map[string]any{"id": n.Common().ID, "name": n.Common().Name, "type": string(n.Type())}
}

var _ Executor = (*Simulator)(nil)
