package convert

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical-ai/spherical/libs/docbatch/internal/observability"
)

type funcEngine struct {
	fn func(ctx context.Context, path string) (any, error)
}

func (e funcEngine) Name() string { return "func" }
func (e funcEngine) Close() error { return nil }
func (e funcEngine) Convert(ctx context.Context, path string) (any, error) {
	return e.fn(ctx, path)
}

func TestAdapter_ReturnsEngineResult(t *testing.T) {
	a := NewAdapter(observability.NopLogger(), funcEngine{fn: func(_ context.Context, path string) (any, error) {
		return "converted:" + path, nil
	}}, 2)

	got, err := a.Convert(context.Background(), "/tmp/a.pdf")
	require.NoError(t, err)
	assert.Equal(t, "converted:/tmp/a.pdf", got)
}

func TestAdapter_PropagatesErrorUnchanged(t *testing.T) {
	cause := errors.New("bad document")
	a := NewAdapter(observability.NopLogger(), funcEngine{fn: func(context.Context, string) (any, error) {
		return nil, cause
	}}, 1)

	_, err := a.Convert(context.Background(), "x")
	assert.Same(t, cause, err)
}

func TestAdapter_RecoversPanic(t *testing.T) {
	a := NewAdapter(observability.NopLogger(), funcEngine{fn: func(context.Context, string) (any, error) {
		panic("boom")
	}}, 1)

	_, err := a.Convert(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked: boom")
}

func TestAdapter_BoundsConcurrency(t *testing.T) {
	var running, peak int32
	a := NewAdapter(observability.NopLogger(), funcEngine{fn: func(context.Context, string) (any, error) {
		n := atomic.AddInt32(&running, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&running, -1)
		return nil, nil
	}}, 2)

	tasks := make([]*Task, 6)
	for i := range tasks {
		tasks[i] = a.Submit(context.Background(), "x")
	}
	for _, task := range tasks {
		_, err := task.Wait(context.Background())
		require.NoError(t, err)
	}
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestTask_WaitHonorsContextButTaskKeepsRunning(t *testing.T) {
	release := make(chan struct{})
	a := NewAdapter(observability.NopLogger(), funcEngine{fn: func(context.Context, string) (any, error) {
		<-release
		return "late", nil
	}}, 1)

	task := a.Submit(context.Background(), "x")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := task.Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	select {
	case <-task.Done():
		t.Fatal("task finished before the engine returned")
	default:
	}

	close(release)
	<-task.Done()
	got, err := task.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "late", got)
}
