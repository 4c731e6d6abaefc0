// Package batch orchestrates a batch extraction request: it validates the batch,
// materializes every source into a request-scoped directory, fans conversions
// out concurrently, and joins them in submission order.
package batch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/spherical-ai/spherical/libs/docbatch/internal/convert"
	"github.com/spherical-ai/spherical/libs/docbatch/internal/domain"
	"github.com/spherical-ai/spherical/libs/docbatch/internal/observability"
	"github.com/spherical-ai/spherical/libs/docbatch/internal/serialize"
	"github.com/spherical-ai/spherical/libs/docbatch/internal/source"
)

// MaxDocuments is the largest batch accepted.
const MaxDocuments = 4

// State is a step of the orchestration state machine.
type State string

const (
	StateValidating    State = "validating"
	StateMaterializing State = "materializing"
	StateConverting    State = "converting"
	StateSerializing   State = "serializing"
	StateDone          State = "done"
	StateFailed        State = "failed"
)

// Request is one batch: uploads are processed first, then URLs, each in order.
type Request struct {
	Uploads []source.Descriptor
	URLs    []string

	// OnProgress, when set, is called from the orchestrating goroutine on every
	// state change and after each source is materialized or converted.
	OnProgress func(Progress)
}

// Progress reports orchestration progress.
type Progress struct {
	State  State
	Source string
	Done   int
	Total  int
}

// Item is one converted document.
type Item struct {
	Source   string `json:"source"`
	Document any    `json:"document"`
}

// Result is the aggregate response for a batch.
type Result struct {
	Count   int    `json:"count"`
	Results []Item `json:"results"`
}

// Materializer writes one source into a directory.
type Materializer interface {
	Materialize(ctx context.Context, desc source.Descriptor, dir string) (source.Materialized, error)
}

// Converter starts conversions.
type Converter interface {
	Submit(ctx context.Context, path string) *convert.Task
}

// Config holds orchestrator configuration.
type Config struct {
	// TempRoot is the parent of per-request directories; empty uses os.TempDir.
	TempRoot string
}

// Orchestrator runs batch requests. It holds no per-request state and is safe
// for concurrent use.
type Orchestrator struct {
	logger       *observability.Logger
	materializer Materializer
	converter    Converter
	config       Config
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(logger *observability.Logger, materializer Materializer, converter Converter, cfg Config) *Orchestrator {
	return &Orchestrator{
		logger:       logger.WithComponent("batch"),
		materializer: materializer,
		converter:    converter,
		config:       cfg,
	}
}

// Validate checks the batch size. It performs no I/O.
func Validate(req Request) error {
	total := len(req.Uploads) + len(req.URLs)
	if total == 0 {
		return domain.EmptyBatchError()
	}
	if total > MaxDocuments {
		return domain.BatchTooLargeError(MaxDocuments)
	}
	return nil
}

// Run processes a batch. Any failure aborts the whole batch; no partial results
// are returned. The request directory is removed before Run returns, after every
// submitted conversion has finished.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Result, error) {
	requestID := observability.RequestIDFromContext(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	run := &runState{
		req:    req,
		logger: o.logger.WithRequestID(requestID),
		total:  len(req.Uploads) + len(req.URLs),
		start:  time.Now(),
	}

	run.enter(StateValidating, "")
	if err := Validate(req); err != nil {
		return nil, run.fail(err)
	}

	dir, err := os.MkdirTemp(o.config.TempRoot, "docbatch-*")
	if err != nil {
		return nil, run.fail(fmt.Errorf("create request directory: %w", err))
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			run.logger.Warn().Err(err).Str("dir", dir).Msg("Failed to remove request directory")
		}
	}()

	run.enter(StateMaterializing, "")
	sources, err := o.materializeAll(ctx, run, dir)
	if err != nil {
		return nil, run.fail(err)
	}

	run.enter(StateConverting, "")
	outcomes, err := o.convertAll(ctx, run, sources)
	if err != nil {
		return nil, run.fail(err)
	}

	run.enter(StateSerializing, "")
	items := make([]Item, len(outcomes))
	for i, outcome := range outcomes {
		items[i] = Item{
			Source:   sources[i].DisplayName,
			Document: serialize.Serialize(outcome),
		}
	}

	run.enter(StateDone, "")
	run.logger.Info().
		Int("count", len(items)).
		Dur("elapsed", time.Since(run.start)).
		Msg("Batch extracted")

	return &Result{Count: len(items), Results: items}, nil
}

// materializeAll writes uploads then URLs, sequentially. Each source gets its own
// slot directory so identical on-disk names never overwrite each other.
func (o *Orchestrator) materializeAll(ctx context.Context, run *runState, dir string) ([]source.Materialized, error) {
	descs := make([]source.Descriptor, 0, run.total)
	descs = append(descs, run.req.Uploads...)
	for i, u := range run.req.URLs {
		descs = append(descs, source.RemoteLink(i+1, u))
	}

	out := make([]source.Materialized, 0, len(descs))
	for n, desc := range descs {
		slot := filepath.Join(dir, strconv.Itoa(n+1))
		if err := os.Mkdir(slot, 0o700); err != nil {
			return nil, fmt.Errorf("create slot directory: %w", err)
		}

		m, err := o.materializer.Materialize(ctx, desc, slot)
		if err != nil {
			var de *domain.Error
			if errors.As(err, &de) {
				return nil, err
			}
			return nil, fmt.Errorf("materialize %s: %w", describe(desc), err)
		}
		out = append(out, m)
		run.report(StateMaterializing, m.DisplayName, len(out))
	}
	return out, nil
}

// convertAll submits every conversion, then waits for them in submission order.
// On the first failure the shared context is cancelled and every task is
// drained before returning, so no task outlives the request directory.
func (o *Orchestrator) convertAll(ctx context.Context, run *runState, sources []source.Materialized) ([]any, error) {
	convCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	tasks := make([]*convert.Task, len(sources))
	for i, s := range sources {
		tasks[i] = o.converter.Submit(convCtx, s.Path)
	}

	outcomes := make([]any, 0, len(tasks))
	for i, task := range tasks {
		result, err := task.Wait(ctx)
		if err != nil {
			cancel()
			drain(tasks)
			return nil, domain.ConversionError(sources[i].DisplayName, err)
		}
		outcomes = append(outcomes, result)
		run.report(StateConverting, sources[i].DisplayName, len(outcomes))
	}
	return outcomes, nil
}

func drain(tasks []*convert.Task) {
	for _, t := range tasks {
		<-t.Done()
	}
}

type runState struct {
	req    Request
	logger *observability.Logger
	total  int
	state  State
	start  time.Time
}

func (r *runState) enter(state State, src string) {
	r.logger.Debug().
		Str("from", string(r.state)).
		Str("to", string(state)).
		Int("total", r.total).
		Msg("Batch state change")
	r.state = state
	r.report(state, src, 0)
}

func (r *runState) report(state State, src string, done int) {
	if r.req.OnProgress != nil {
		r.req.OnProgress(Progress{State: state, Source: src, Done: done, Total: r.total})
	}
}

func (r *runState) fail(err error) error {
	failedIn := r.state
	r.enter(StateFailed, "")

	evt := r.logger.Warn()
	if domain.KindOf(err).Status() >= 500 {
		evt = r.logger.Error()
	}
	evt.Err(err).
		Str("state", string(failedIn)).
		Dur("elapsed", time.Since(r.start)).
		Msg("Batch failed")
	return err
}

func describe(desc source.Descriptor) string {
	if desc.Kind == source.KindRemoteLink {
		return fmt.Sprintf("drive-%d", desc.Index)
	}
	if desc.Filename == "" {
		return "upload"
	}
	return desc.Filename
}
