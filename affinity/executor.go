package affinity

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

type ctxKey struct{}

// Executor is a single-threaded, named task queue. Exactly one goroutine
// ever runs tasks scheduled on a given Executor; callers already running on
// that goroutine run inline instead of round-tripping through the queue.
type Executor struct {
	name string

	// token is this executor's identity, stamped into the context every
	// task it runs carries. AssertExecuting compares a caller's context
	// against it to decide whether the caller is already on this
	// executor's goroutine.
	token *int32

	// immediate executors (the SAME_THREAD test variant) never hand work
	// to a separate goroutine; every call always "is" on the executor.
	immediate bool

	tasks chan func(context.Context)
	quit  chan struct{}
	wg    sync.WaitGroup

	started int32
	stopped int32
}

// New creates a named executor with its own worker goroutine. Start must be
// called before it accepts work.
func New(name string) *Executor {
	return &Executor{
		name:  name,
		token: new(int32),
		tasks: make(chan func(context.Context), 64),
		quit:  make(chan struct{}),
	}
}

// NewSameThread returns an executor that always runs work inline on the
// calling goroutine, for use in tests that want deterministic ordering
// without a background worker.
func NewSameThread(name string) *Executor {
	return &Executor{name: name, immediate: true}
}

// Start launches the executor's worker goroutine. A no-op on an
// immediate/SAME_THREAD executor or on a second call.
func (e *Executor) Start() error {
	if e.immediate {
		return nil
	}
	if !atomic.CompareAndSwapInt32(&e.started, 0, 1) {
		return nil
	}
	e.wg.Add(1)
	go e.run()
	return nil
}

func (e *Executor) run() {
	defer e.wg.Done()
	ctx := context.WithValue(context.Background(), ctxKey{}, e.token)
	for {
		select {
		case task := <-e.tasks:
			task(ctx)
		case <-e.quit:
			return
		}
	}
}

// Stop drains the worker goroutine and waits for it to exit. A no-op on an
// immediate executor.
func (e *Executor) Stop() {
	if e.immediate {
		return
	}
	if !atomic.CompareAndSwapInt32(&e.stopped, 0, 1) {
		return
	}
	close(e.quit)
	e.wg.Wait()
}

// Execute schedules fn to run on the executor's goroutine. If the caller is
// already executing on it, fn runs immediately rather than being enqueued
// behind itself.
func (e *Executor) Execute(ctx context.Context, fn func(context.Context)) {
	if e.immediate || e.onExecutor(ctx) {
		fn(e.stampedContext(ctx))
		return
	}
	select {
	case e.tasks <- fn:
	case <-e.quit:
	}
}

// ExecuteSync runs fn on the executor and blocks until it has completed.
func (e *Executor) ExecuteSync(ctx context.Context, fn func(context.Context)) {
	if e.immediate || e.onExecutor(ctx) {
		fn(e.stampedContext(ctx))
		return
	}
	done := make(chan struct{})
	e.Execute(ctx, func(taskCtx context.Context) {
		fn(taskCtx)
		close(done)
	})
	<-done
}

func (e *Executor) stampedContext(ctx context.Context) context.Context {
	if e.immediate {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, e.token)
}

func (e *Executor) onExecutor(ctx context.Context) bool {
	if e.immediate {
		return true
	}
	tok, _ := ctx.Value(ctxKey{}).(*int32)
	return tok == e.token
}

// AssertExecuting panics (in debug builds; see assert_debug.go) if the
// calling code is not running on a task dispatched by this executor.
func (e *Executor) AssertExecuting(ctx context.Context) {
	assertExecuting(e, ctx)
}

func (e *Executor) String() string {
	return fmt.Sprintf("affinity.Executor(%s)", e.name)
}
