// Package view projects session state onto the terminal.
package view

import (
	"fmt"
	"io"
	"sync"

	"github.com/pterm/pterm"

	"github.com/roach88/tinker/internal/engine"
	"github.com/roach88/tinker/internal/state"
)

// Line is one rendered log line.
type Line struct {
	Kind state.Kind
	Text string
}

// Render returns the log of st oldest-first, the order a terminal shows it.
func Render(st state.State) []Line {
	lines := make([]Line, len(st.Log))
	for i, e := range st.Log {
		lines[len(st.Log)-1-i] = Line{Kind: e.Kind, Text: e.Text}
	}
	return lines
}

// Format renders one line with the pterm prefix for its kind.
func Format(l Line) string {
	switch l.Kind {
	case state.KindError:
		return pterm.Error.Sprint(l.Text) + "\n"
	case state.KindInfo:
		return pterm.Info.Sprint(l.Text) + "\n"
	case state.KindResult:
		return pterm.Success.Sprint(l.Text) + "\n"
	default:
		return l.Text + "\n"
	}
}

// Printer writes log entries to a terminal as snapshots arrive. Each entry
// is printed once.
type Printer struct {
	mu    sync.Mutex
	out   io.Writer
	shown int
}

// NewPrinter creates a Printer writing to out.
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// Observe prints the entries snap added since the last call. It has the
// engine.Observer signature.
func (p *Printer) Observe(snap engine.Snapshot) {
	p.Print(snap.State)
}

// Print writes the entries of st not yet shown, oldest first.
func (p *Printer) Print(st state.State) {
	p.mu.Lock()
	defer p.mu.Unlock()

	lines := Render(st)
	if len(lines) < p.shown {
		// A shorter log is a different session.
		p.shown = 0
	}
	for _, l := range lines[p.shown:] {
		if _, err := fmt.Fprint(p.out, Format(l)); err != nil {
			return
		}
		p.shown++
	}
}

// Shown returns how many entries have been printed.
func (p *Printer) Shown() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.shown
}
