// Package ui provides terminal output for the docbatch CLI.
package ui

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// UI writes status lines and progress to the terminal.
type UI struct {
	out     io.Writer
	err     io.Writer
	noColor bool
	quiet   bool
}

// New creates a UI. Progress widgets are suppressed when quiet is set or
// stderr is not a terminal.
func New(noColor, quiet bool) *UI {
	if noColor {
		color.NoColor = true
	}
	return &UI{
		out:     os.Stdout,
		err:     os.Stderr,
		noColor: noColor,
		quiet:   quiet || !IsTerminal(os.Stderr),
	}
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Success prints a success message to stderr.
func (ui *UI) Success(format string, args ...interface{}) {
	ui.line(ui.err, color.FgGreen, "✓", format, args...)
}

// Error prints an error message to stderr.
func (ui *UI) Error(format string, args ...interface{}) {
	ui.line(ui.err, color.FgRed, "✗", format, args...)
}

// Info prints an informational message to stderr.
func (ui *UI) Info(format string, args ...interface{}) {
	if ui.quiet {
		return
	}
	ui.line(ui.err, color.FgCyan, "ℹ", format, args...)
}

// Step prints a step message to stderr.
func (ui *UI) Step(format string, args ...interface{}) {
	if ui.quiet {
		return
	}
	ui.line(ui.err, color.FgBlue, "→", format, args...)
}

func (ui *UI) line(w io.Writer, attr color.Attribute, mark, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if ui.noColor {
		fmt.Fprintf(w, "%s %s\n", mark, msg)
		return
	}
	color.New(attr).Fprintf(w, "%s %s\n", mark, msg)
}
