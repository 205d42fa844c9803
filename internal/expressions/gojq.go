package expressions

import (
	"context"

	"github.com/itchyny/gojq"
)

// GoJQEngine runs "jq" automation actions; the test data object is the query
// input.
type GoJQEngine struct {
	programs *programCache[*gojq.Code]
}

func NewGoJQEngine() *GoJQEngine {
	return &GoJQEngine{programs: newProgramCache[*gojq.Code]()}
}

func (e *GoJQEngine) Name() string { return "jq" }

// Compile parses and compiles a query.
func (e *GoJQEngine) Compile(expression string) error {
	_, err := e.program(expression)
	return err
}

// Evaluate runs a query over input. A single output is returned as is, none
// as nil and several as []any. Go integer types in input are widened to
// float64 first, matching jq's number model.
func (e *GoJQEngine) Evaluate(ctx context.Context, expression string, input map[string]any) (any, error) {
	code, err := e.program(expression)
	if err != nil {
		return nil, err
	}

	var outputs []any
	iter := code.RunWithContext(ctx, toJQ(input))
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, isErr := v.(error); isErr {
			return nil, evalError(e.Name(), expression, err)
		}
		outputs = append(outputs, v)
	}

	switch len(outputs) {
	case 0:
		return nil, nil
	case 1:
		return outputs[0], nil
	default:
		return outputs, nil
	}
}

func (e *GoJQEngine) program(expression string) (*gojq.Code, error) {
	if expression == "" {
		return nil, emptyExpression(e.Name())
	}
	return e.programs.get(expression, func(src string) (*gojq.Code, error) {
		query, err := gojq.Parse(src)
		if err != nil {
			return nil, compileError(e.Name(), src, err)
		}
		// $ENV is always empty.
		code, err := gojq.Compile(query, gojq.WithEnvironLoader(func() []string { return nil }))
		if err != nil {
			return nil, compileError(e.Name(), src, err)
		}
		return code, nil
	})
}

// toJQ widens Go numeric types gojq does not accept.
func toJQ(v any) any {
	switch val := v.(type) {
	case map[string]any:
		if val == nil {
			return map[string]any{}
		}
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = toJQ(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = toJQ(item)
		}
		return out
	case int:
		return float64(val)
	case int32:
		return float64(val)
	case int64:
		return float64(val)
	case float32:
		return float64(val)
	default:
		return v
	}
}

var _ Engine = (*GoJQEngine)(nil)
