package ui

import (
	"os"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/spherical-ai/spherical/libs/docbatch/internal/batch"
)

// ProgressHandler consumes orchestrator progress events.
type ProgressHandler interface {
	Handle(p batch.Progress)
	Stop()
}

// stepsPerItem counts the stages a source goes through: prepared, converted.
const stepsPerItem = 2

// ItemTracker renders one row per document, each advancing as the document is
// prepared and then converted.
type ItemTracker struct {
	ui       *UI
	progress *mpb.Progress
	bars     map[string]*mpb.Bar
	order    []string
}

// NewItemTracker creates a per-document tracker.
func (ui *UI) NewItemTracker() *ItemTracker {
	return &ItemTracker{ui: ui, bars: make(map[string]*mpb.Bar)}
}

// Handle consumes one progress event.
func (t *ItemTracker) Handle(p batch.Progress) {
	if t.ui.quiet {
		return
	}

	switch p.State {
	case batch.StateMaterializing, batch.StateConverting:
		if p.Source == "" {
			return
		}
		bar := t.bar(p.Source)
		bar.Increment()

	case batch.StateFailed:
		for _, name := range t.order {
			if b := t.bars[name]; !b.Completed() {
				b.Abort(false)
			}
		}
		t.Stop()

	case batch.StateDone:
		t.Stop()
	}
}

// Stop waits for the rows to render their final state.
func (t *ItemTracker) Stop() {
	if t.progress != nil {
		t.progress.Wait()
		t.progress = nil
	}
}

func (t *ItemTracker) bar(name string) *mpb.Bar {
	if b, ok := t.bars[name]; ok {
		return b
	}
	if t.progress == nil {
		t.progress = mpb.New(mpb.WithWidth(40), mpb.WithOutput(os.Stderr))
	}

	b := t.progress.AddBar(stepsPerItem,
		mpb.PrependDecorators(
			decor.Name(name, decor.WC{W: len(name) + 1, C: decor.DSyncSpaceR}),
			decor.OnComplete(decor.Name("converting", decor.WCSyncSpaceR), "done"),
		),
		mpb.AppendDecorators(
			decor.Elapsed(decor.ET_STYLE_GO, decor.WC{W: 8}),
		),
	)
	t.bars[name] = b
	t.order = append(t.order, name)
	return b
}
