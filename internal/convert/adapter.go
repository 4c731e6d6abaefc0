// Package convert wraps document conversion engines behind an asynchronous,
// bounded task API.
package convert

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/spherical-ai/spherical/libs/docbatch/internal/observability"
)

// Engine converts the document at path into an opaque result. Convert blocks
// until the engine is done; it may ignore ctx.
type Engine interface {
	Name() string
	Convert(ctx context.Context, path string) (any, error)
	Close() error
}

// Adapter runs engine calls on their own goroutines, at most maxWorkers at a time
// across every caller sharing the adapter.
type Adapter struct {
	logger *observability.Logger
	engine Engine
	sem    *semaphore.Weighted
}

// NewAdapter creates an adapter over engine.
func NewAdapter(logger *observability.Logger, engine Engine, maxWorkers int) *Adapter {
	if maxWorkers <= 0 {
		maxWorkers = 4
	}
	return &Adapter{
		logger: logger.WithComponent("convert"),
		engine: engine,
		sem:    semaphore.NewWeighted(int64(maxWorkers)),
	}
}

// Engine returns the wrapped engine.
func (a *Adapter) Engine() Engine {
	return a.engine
}

// Task is a conversion in flight.
type Task struct {
	path   string
	done   chan struct{}
	result any
	err    error
}

// Submit starts converting path and returns immediately.
// Engine errors are returned from Wait unchanged.
func (a *Adapter) Submit(ctx context.Context, path string) *Task {
	t := &Task{path: path, done: make(chan struct{})}
	go a.run(ctx, t)
	return t
}

// Convert submits path and waits for the result.
func (a *Adapter) Convert(ctx context.Context, path string) (any, error) {
	return a.Submit(ctx, path).Wait(ctx)
}

func (a *Adapter) run(ctx context.Context, t *Task) {
	defer close(t.done)

	if err := a.sem.Acquire(ctx, 1); err != nil {
		t.err = err
		return
	}
	defer a.sem.Release(1)

	defer func() {
		if r := recover(); r != nil {
			t.err = fmt.Errorf("%s engine panicked: %v", a.engine.Name(), r)
		}
	}()

	start := time.Now()
	t.result, t.err = a.engine.Convert(ctx, t.path)

	a.logger.WithContext(ctx).Debug().
		Str("engine", a.engine.Name()).
		Str("path", t.path).
		Dur("elapsed", time.Since(start)).
		Bool("ok", t.err == nil).
		Msg("Conversion finished")
}

// Wait blocks until the task finishes or ctx is done. A ctx error does not stop
// the task; use Done to wait for it to release its file.
func (t *Task) Wait(ctx context.Context) (any, error) {
	select {
	case <-t.done:
		return t.result, t.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Done is closed once the engine call has returned.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Path is the file the task converts.
func (t *Task) Path() string {
	return t.path
}
