// Package pool implements a bounded-queue worker pool / admission
// valve, generalizing the shape exercised by weed/util's
// LimitedAsyncExecutor tests (NewLimitedAsyncExecutor, Execute
// returning a Future, Future.Await) to typed tasks whose errors are
// captured as structured results rather than panicking or propagating
// into the pool.
package pool

import (
	"sync"
	"sync/atomic"

	"github.com/windkit/leo-storage/internal/stats"
)

// PendingLimit is the aggregate pending-depth gate: the pool never
// admits a task once this many are queued.
const PendingLimit = 200

// ErrUnavailable is returned by Enqueue when the pool is over its
// pending-depth gate.
type ErrUnavailable struct{ Name string }

func (e *ErrUnavailable) Error() string { return "worker pool " + e.Name + " unavailable" }

// Result captures a task's outcome without ever propagating a panic or
// error out of the pool itself.
type Result struct {
	Value interface{}
	Err   error
}

// Future is returned by Enqueue; Await blocks for the task's Result.
type Future struct {
	done chan struct{}
	res  Result
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func (f *Future) complete(res Result) {
	f.res = res
	close(f.done)
}

// Await blocks until the task completes and returns its Result.
func (f *Future) Await() Result {
	<-f.done
	return f.res
}

// Pool is a named, bounded-queue admission gate. It provides no
// ordering guarantee across tasks.
type Pool struct {
	name    string
	limit   int64
	pending int64
	wg      sync.WaitGroup
}

// New creates a named pool with the given pending-depth limit.
func New(name string, limit int64) *Pool {
	if limit <= 0 {
		limit = PendingLimit
	}
	return &Pool{name: name, limit: limit}
}

// Name returns the pool's identifying name.
func (p *Pool) Name() string { return p.name }

// PendingDepth returns the current aggregate pending depth.
func (p *Pool) PendingDepth() int64 { return atomic.LoadInt64(&p.pending) }

// Enqueue dispatches task if the pool's pending depth is at or below
// its limit; otherwise it returns ErrUnavailable without touching the
// task at all. Enqueued tasks run to completion on their own
// goroutine; any panic recovered from task is captured into the
// returned Future's Result rather than crashing the pool.
func (p *Pool) Enqueue(task func() (interface{}, error)) (*Future, error) {
	depth := atomic.AddInt64(&p.pending, 1)
	if depth > p.limit {
		atomic.AddInt64(&p.pending, -1)
		stats.PoolRejected.WithLabelValues(p.name).Inc()
		return nil, &ErrUnavailable{Name: p.name}
	}
	stats.PoolPendingDepth.WithLabelValues(p.name).Set(float64(depth))

	fut := newFuture()
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer atomic.AddInt64(&p.pending, -1)
		defer stats.PoolPendingDepth.WithLabelValues(p.name).Set(float64(atomic.LoadInt64(&p.pending)))
		res := p.run(task)
		fut.complete(res)
	}()
	return fut, nil
}

func (p *Pool) run(task func() (interface{}, error)) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = Result{Err: &taskPanic{r}}
		}
	}()
	v, err := task()
	return Result{Value: v, Err: err}
}

// Wait blocks until all dispatched tasks have completed; intended for
// tests and graceful shutdown, never for serving a request.
func (p *Pool) Wait() { p.wg.Wait() }

type taskPanic struct{ v interface{} }

func (t *taskPanic) Error() string { return "worker pool task panicked" }
