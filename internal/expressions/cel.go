package expressions

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/rendis/flowgraph/pkg/schema"
)

// Edge conditions see three map(string, dyn) variables.
const (
	celData = "data" // the test data payload
	celEdge = "edge" // the edge being evaluated: id, source, target, value
	celNode = "node" // the edge's source node: id, name, type
)

var celVariables = [...]string{celData, celEdge, celNode}

// CELEngine evaluates edge conditions.
type CELEngine struct {
	env      *cel.Env
	programs *programCache[cel.Program]
}

// NewCELEngine declares the edge condition variables.
func NewCELEngine() (*CELEngine, error) {
	vars := make([]cel.EnvOption, 0, len(celVariables))
	for _, name := range celVariables {
		vars = append(vars, cel.Variable(name, cel.MapType(cel.StringType, cel.DynType)))
	}
	env, err := cel.NewEnv(vars...)
	if err != nil {
		return nil, fmt.Errorf("cel environment: %w", err)
	}
	return &CELEngine{env: env, programs: newProgramCache[cel.Program]()}, nil
}

func (e *CELEngine) Name() string { return "cel" }

// Compile type-checks a condition.
func (e *CELEngine) Compile(expression string) error {
	_, err := e.program(expression)
	return err
}

// Evaluate runs a condition. Variables missing from vars are bound to empty
// maps so conditions over edge or node alone still evaluate.
func (e *CELEngine) Evaluate(ctx context.Context, expression string, vars map[string]any) (any, error) {
	prg, err := e.program(expression)
	if err != nil {
		return nil, err
	}
	out, _, err := prg.ContextEval(ctx, activation(vars))
	if err != nil {
		return nil, evalError(e.Name(), expression, err)
	}
	return out.Value(), nil
}

// EvaluateBool runs a condition that must yield a boolean.
func (e *CELEngine) EvaluateBool(ctx context.Context, expression string, vars map[string]any) (bool, error) {
	out, err := e.Evaluate(ctx, expression, vars)
	if err != nil {
		return false, err
	}
	taken, ok := out.(bool)
	if !ok {
		return false, schema.NewErrorf(schema.ErrCodeExecution, "cel: condition %q yields %T, not bool", expression, out).
			WithDetails(map[string]any{"engine": e.Name(), "expression": expression})
	}
	return taken, nil
}

func (e *CELEngine) program(expression string) (cel.Program, error) {
	if expression == "" {
		return nil, emptyExpression(e.Name())
	}
	return e.programs.get(expression, func(src string) (cel.Program, error) {
		ast, issues := e.env.Compile(src)
		if err := issues.Err(); err != nil {
			return nil, compileError(e.Name(), src, err)
		}
		prg, err := e.env.Program(ast)
		if err != nil {
			return nil, compileError(e.Name(), src, err)
		}
		return prg, nil
	})
}

func activation(vars map[string]any) map[string]any {
	act := make(map[string]any, len(celVariables))
	for _, name := range celVariables {
		if v := vars[name]; v != nil {
			act[name] = v
			continue
		}
		act[name] = map[string]any{}
	}
	return act
}

var _ Engine = (*CELEngine)(nil)
