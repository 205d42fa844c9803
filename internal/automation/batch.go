// Package automation simulates the automation actions and test data bound to
// workflow edges. Nothing here executes a workflow; items run against a
// pluggable Executor and every item gets its own result.
package automation

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/rendis/flowgraph/internal/logging"
	"github.com/rendis/flowgraph/internal/model"
	"github.com/rendis/flowgraph/pkg/schema"
)

// Kind tells an action item from a test-data item.
type Kind string

const (
	KindAction   Kind = "action"
	KindTestData Kind = "testData"
)

// Item is one unit of a batch. Exactly one of Action and TestData is set.
type Item struct {
	ID       string                   `json:"id"`
	Kind     Kind                     `json:"kind"`
	Node     schema.Node              `json:"-"`
	Edge     schema.Edge              `json:"edge"`
	Action   *schema.AutomationAction `json:"action,omitempty"`
	TestData *schema.TestData         `json:"testData,omitempty"`
}

func (i Item) nodeID() string {
	if i.Node == nil {
		return ""
	}
	return i.Node.Common().ID
}

// Result is the outcome of one item.
type Result struct {
	ItemID   string        `json:"itemId"`
	Kind     Kind          `json:"kind"`
	NodeID   string        `json:"nodeId"`
	EdgeID   string        `json:"edgeId"`
	Success  bool          `json:"success"`
	Output   any           `json:"output,omitempty"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// BatchResult lists one Result per item, in item order. Panicked and
// Skipped are subsets of Failed: items whose executor panicked and items that
// never started because the context ended.
type BatchResult struct {
	ID        string   `json:"id"`
	Results   []Result `json:"results"`
	Succeeded int      `json:"succeeded"`
	Failed    int      `json:"failed"`
	Panicked  int      `json:"panicked,omitempty"`
	Skipped   int      `json:"skipped,omitempty"`
}

// Executor runs one item. Implementations must honour ctx.
type Executor interface {
	Execute(ctx context.Context, item Item) (any, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, item Item) (any, error)

// Execute calls f.
func (f ExecutorFunc) Execute(ctx context.Context, item Item) (any, error) { return f(ctx, item) }

// CollectItems gathers every automation action and test datum of m, node by
// node in model order, actions before test data. Items bound to an edge the
// model does not have carry an Edge with only its ID set.
func CollectItems(m *model.WorkflowModel) []Item {
	var items []Item
	for _, n := range m.Nodes() {
		c := n.Common()
		for i := range c.AutomationActions {
			a := c.AutomationActions[i]
			items = append(items, Item{ID: a.ID, Kind: KindAction, Node: n, Edge: edgeOf(m, a.EdgeID), Action: &a})
		}
		for i := range c.TestData {
			td := c.TestData[i]
			items = append(items, Item{ID: td.ID, Kind: KindTestData, Node: n, Edge: edgeOf(m, td.EdgeID), TestData: &td})
		}
	}
	return items
}

func edgeOf(m *model.WorkflowModel, id string) schema.Edge {
	if e, ok := m.Edge(id); ok {
		return e
	}
	return schema.Edge{ID: id}
}

type batchConfig struct {
	concurrency int
	logger      *slog.Logger
}

// BatchOption configures RunBatch.
type BatchOption func(*batchConfig)

// WithConcurrency bounds how many items run at once. The default runs every
// item at once.
func WithConcurrency(n int) BatchOption {
	return func(c *batchConfig) { c.concurrency = n }
}

// WithLogger sets the logger for per-item outcomes at debug level.
func WithLogger(logger *slog.Logger) BatchOption {
	return func(c *batchConfig) { c.logger = logger }
}

// RunBatch runs every item through exec and returns once all of them have
// finished. A failing or panicking item fails alone. Items that have not
// started when ctx is cancelled fail with the context error.
func RunBatch(ctx context.Context, items []Item, exec Executor, opts ...BatchOption) BatchResult {
	cfg := batchConfig{concurrency: len(items)}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = logging.Discard()
	}

	batch := BatchResult{ID: uuid.NewString()}
	ctx = logging.WithRunID(ctx, batch.ID)

	run := newRunner(exec, cfg.concurrency, len(items))
	for i, item := range items {
		run.start(logging.WithNodeID(ctx, item.nodeID()), i, item)
	}
	run.wait()

	batch.Results = run.results
	batch.Panicked = int(run.panicked.Load())
	batch.Skipped = int(run.skipped.Load())
	for _, r := range batch.Results {
		if r.Success {
			batch.Succeeded++
		} else {
			batch.Failed++
		}
		cfg.logger.DebugContext(logging.WithNodeID(ctx, r.NodeID), "automation item finished",
			slog.String("item_id", r.ItemID),
			slog.Bool("success", r.Success),
		)
	}
	return batch
}

func resultOf(item Item, out any, err error, elapsed time.Duration) Result {
	r := Result{
		ItemID:   item.ID,
		Kind:     item.Kind,
		EdgeID:   item.Edge.ID,
		Success:  err == nil,
		Output:   out,
		Duration: elapsed,
	}
	r.NodeID = item.nodeID()
	if err != nil {
		r.Error = err.Error()
		r.Output = nil
	}
	return r
}
