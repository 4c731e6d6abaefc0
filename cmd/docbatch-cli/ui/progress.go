package ui

import (
	"fmt"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/schollz/progressbar/v3"

	"github.com/spherical-ai/spherical/libs/docbatch/internal/batch"
)

// Tracker renders batch progress: a spinner while sources are materialized and
// a progress bar while conversions complete. Handle must be called from a
// single goroutine, which batch.Orchestrator guarantees.
type Tracker struct {
	ui      *UI
	spinner *spinner.Spinner
	bar     *progressbar.ProgressBar
}

// NewTracker creates a tracker writing to the UI's stderr.
func (ui *UI) NewTracker() *Tracker {
	return &Tracker{ui: ui}
}

// Handle consumes one progress event.
func (t *Tracker) Handle(p batch.Progress) {
	if t.ui.quiet {
		return
	}

	switch p.State {
	case batch.StateMaterializing:
		if t.spinner == nil {
			t.spinner = spinner.New(spinner.CharSets[14], 100*time.Millisecond)
			t.spinner.Writer = os.Stderr
			t.spinner.Start()
		}
		if p.Source == "" {
			t.spinner.Suffix = fmt.Sprintf(" Preparing %d document(s)", p.Total)
		} else {
			t.spinner.Suffix = fmt.Sprintf(" Prepared %s (%d/%d)", p.Source, p.Done, p.Total)
		}

	case batch.StateConverting:
		t.stopSpinner()
		if t.bar == nil {
			t.bar = newBar(int64(p.Total), "Converting")
		}
		if p.Source != "" {
			t.bar.Describe("Converted " + p.Source)
			_ = t.bar.Set(p.Done)
		}

	case batch.StateDone, batch.StateFailed:
		t.Stop()
	}
}

// Stop tears down any active widget.
func (t *Tracker) Stop() {
	t.stopSpinner()
	if t.bar != nil {
		_ = t.bar.Finish()
		t.bar = nil
	}
}

func (t *Tracker) stopSpinner() {
	if t.spinner != nil {
		t.spinner.Stop()
		t.spinner = nil
	}
}

func newBar(total int64, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions64(
		total,
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "│",
			BarEnd:        "│",
		}),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(os.Stderr, "\n")
		}),
		progressbar.OptionSetRenderBlankState(true),
	)
}
