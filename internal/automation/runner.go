package automation

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rendis/flowgraph/pkg/schema"
)

// runner executes batch items with at most cap(slots) in flight and writes
// each outcome at the item's index. Every index is written exactly once.
type runner struct {
	exec    Executor
	slots   chan struct{}
	wg      sync.WaitGroup
	results []Result

	panicked atomic.Int64
	skipped  atomic.Int64
}

func newRunner(exec Executor, size, n int) *runner {
	if size <= 0 {
		size = 1
	}
	return &runner{
		exec:    exec,
		slots:   make(chan struct{}, size),
		results: make([]Result, n),
	}
}

// start waits for a free slot and runs item in its own goroutine. When ctx
// ends first the item is recorded as skipped and never reaches the executor.
func (r *runner) start(ctx context.Context, i int, item Item) {
	if err := ctx.Err(); err != nil {
		r.skip(i, item, err)
		return
	}
	select {
	case r.slots <- struct{}{}:
	case <-ctx.Done():
		r.skip(i, item, ctx.Err())
		return
	}
	if err := ctx.Err(); err != nil {
		<-r.slots
		r.skip(i, item, err)
		return
	}

	r.wg.Add(1)
	go func() {
		began := time.Now()
		defer func() {
			if p := recover(); p != nil {
				r.panicked.Add(1)
				err := schema.NewError(schema.ErrCodeExecution, fmt.Sprintf("executor panicked on item %q: %v", item.ID, p))
				r.results[i] = resultOf(item, nil, err, time.Since(began))
			}
			<-r.slots
			r.wg.Done()
		}()

		out, err := r.exec.Execute(ctx, item)
		r.results[i] = resultOf(item, out, err, time.Since(began))
	}()
}

func (r *runner) skip(i int, item Item, err error) {
	r.skipped.Add(1)
	r.results[i] = resultOf(item, nil, err, 0)
}

// wait blocks until every started item has finished.
func (r *runner) wait() {
	r.wg.Wait()
}
