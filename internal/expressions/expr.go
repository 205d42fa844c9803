package expressions

import (
	"context"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// ExprEngine runs "expr" automation actions. The action's test data is the
// environment: its keys are top-level variables.
type ExprEngine struct {
	programs *programCache[*vm.Program]
}

func NewExprEngine() *ExprEngine {
	return &ExprEngine{programs: newProgramCache[*vm.Program]()}
}

func (e *ExprEngine) Name() string { return "expr" }

// Compile checks an expression. Programs are compiled without a typed
// environment so one compilation serves every data shape.
func (e *ExprEngine) Compile(expression string) error {
	_, err := e.program(expression)
	return err
}

func (e *ExprEngine) Evaluate(ctx context.Context, expression string, env map[string]any) (any, error) {
	prg, err := e.program(expression)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, evalError(e.Name(), expression, err)
	}
	if env == nil {
		env = map[string]any{}
	}
	out, err := vm.Run(prg, env)
	if err != nil {
		return nil, evalError(e.Name(), expression, err)
	}
	return out, nil
}

func (e *ExprEngine) program(expression string) (*vm.Program, error) {
	if expression == "" {
		return nil, emptyExpression(e.Name())
	}
	return e.programs.get(expression, func(src string) (*vm.Program, error) {
		prg, err := expr.Compile(src, expr.AllowUndefinedVariables())
		if err != nil {
			return nil, compileError(e.Name(), src, err)
		}
		return prg, nil
	})
}

var _ Engine = (*ExprEngine)(nil)
