// Package ids provides the identifier generators threaded through node,
// edge, swimlane and branch factories.
package ids

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Generator produces identifiers scoped to a prefix.
type Generator interface {
	Next(prefix string) string
}

// Counter yields "prefix_N" with one monotonically increasing counter per prefix.
type Counter struct {
	mu     sync.Mutex
	counts map[string]int
}

// NewCounter creates a Counter with every prefix at zero.
func NewCounter() *Counter {
	return &Counter{counts: make(map[string]int)}
}

// Next increments the counter for prefix and returns the new identifier.
func (c *Counter) Next(prefix string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts == nil {
		c.counts = make(map[string]int)
	}
	c.counts[prefix]++
	return fmt.Sprintf("%s_%d", prefix, c.counts[prefix])
}

// Peek returns the last value issued for prefix (0 if none).
func (c *Counter) Peek(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[prefix]
}

// Reset sets every counter back to zero.
func (c *Counter) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts = make(map[string]int)
}

// UUID yields "prefix_<random uuid>". It keeps no state.
type UUID struct{}

// Next returns a new random identifier under prefix.
func (UUID) Next(prefix string) string {
	return prefix + "_" + uuid.New().String()
}

// Func adapts a plain function to Generator.
type Func func(prefix string) string

// Next calls f.
func (f Func) Next(prefix string) string { return f(prefix) }

var (
	_ Generator = (*Counter)(nil)
	_ Generator = UUID{}
	_ Generator = Func(nil)
)
