package expressions

import (
	"context"

	"github.com/rendis/flowgraph/pkg/schema"
)

// Engine compiles and evaluates expressions attached to a workflow.
// Three implementations: CEL (edge conditions), GoJQ (jq actions), Expr (expr actions).
type Engine interface {
	Name() string
	// Compile checks an expression without evaluating it. Compiled programs
	// are cached, so a later Evaluate of the same expression is cheap.
	Compile(expression string) error
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
}

// Set bundles one engine per expression language.
type Set struct {
	CEL  *CELEngine
	Expr *ExprEngine
	JQ   *GoJQEngine
}

// NewSet builds all three engines.
func NewSet() (*Set, error) {
	cel, err := NewCELEngine()
	if err != nil {
		return nil, err
	}
	return &Set{CEL: cel, Expr: NewExprEngine(), JQ: NewGoJQEngine()}, nil
}

// ForAction returns the engine that runs automation actions of actionType and
// the config key that holds the expression. ok is false for types without an
// expression (noop) or unknown types.
func (s *Set) ForAction(actionType string) (engine Engine, configKey string, ok bool) {
	switch actionType {
	case schema.ActionTypeJQ:
		return s.JQ, "query", true
	case schema.ActionTypeExpr:
		return s.Expr, "expression", true
	default:
		return nil, "", false
	}
}

// ActionExpression extracts the expression of an automation action.
func (s *Set) ActionExpression(a schema.AutomationAction) (engine Engine, expression string, ok bool) {
	engine, key, ok := s.ForAction(a.Type)
	if !ok {
		return nil, "", false
	}
	expression, _ = a.Config[key].(string)
	return engine, expression, true
}
