package expressions

import (
	"sync"

	"github.com/rendis/flowgraph/pkg/schema"
)

// programCache memoizes compiled programs by source text. Safe for
// concurrent use; compile runs at most once per expression under the write
// lock.
type programCache[P any] struct {
	mu       sync.RWMutex
	programs map[string]P
}

func newProgramCache[P any]() *programCache[P] {
	return &programCache[P]{programs: make(map[string]P)}
}

func (c *programCache[P]) get(expression string, compile func(string) (P, error)) (P, error) {
	c.mu.RLock()
	p, ok := c.programs[expression]
	c.mu.RUnlock()
	if ok {
		return p, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.programs[expression]; ok {
		return p, nil
	}
	p, err := compile(expression)
	if err != nil {
		return p, err
	}
	c.programs[expression] = p
	return p, nil
}

func (c *programCache[P]) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.programs)
}

// --- Errors shared by the engines ---

func emptyExpression(engine string) error {
	return schema.NewErrorf(schema.ErrCodeValidation, "empty %s expression", engine)
}

func compileError(engine, expression string, err error) error {
	return schema.NewErrorf(schema.ErrCodeValidation, "%s: cannot compile %q: %v", engine, expression, err).
		WithCause(err).
		WithDetails(map[string]any{"engine": engine, "expression": expression})
}

func evalError(engine, expression string, err error) error {
	return schema.NewErrorf(schema.ErrCodeExecution, "%s: evaluating %q: %v", engine, expression, err).
		WithCause(err).
		WithDetails(map[string]any{"engine": engine, "expression": expression})
}
