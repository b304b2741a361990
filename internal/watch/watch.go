// Package watch turns edits of a module file into SourceChanged events.
package watch

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/roach88/tinker/internal/engine"
)

// DefaultInterval is the poll period when none is configured.
const DefaultInterval = 500 * time.Millisecond

// Sink accepts events. Implemented by engine.Engine.
type Sink interface {
	Enqueue(ev engine.Event) bool
}

// Watcher polls one file and emits a SourceChanged event whenever its
// content changes. A changed mtime with identical content emits nothing.
type Watcher struct {
	path     string
	interval time.Duration
	sink     Sink

	modTime time.Time
	content []byte
}

// New creates a Watcher for path. The file's current content is the
// baseline, so the first event is the first edit.
func New(path string, interval time.Duration, sink Sink) (*Watcher, error) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	w := &Watcher{path: path, interval: interval, sink: sink}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("watch %s: %w", path, err)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("watch %s: %w", path, err)
	}
	w.modTime = info.ModTime()
	w.content = content
	return w, nil
}

// Run polls until ctx is cancelled or the sink stops accepting events.
func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if !w.Poll() {
				slog.Debug("watcher stopping: sink closed", "path", w.path)
				return nil
			}
		}
	}
}

// Poll checks the file once. It returns false if an event was rejected by
// the sink. Read errors are logged and retried on the next poll, since
// editors often replace files in several steps.
func (w *Watcher) Poll() bool {
	info, err := os.Stat(w.path)
	if err != nil {
		slog.Debug("watch stat failed", "path", w.path, "error", err)
		return true
	}
	if info.ModTime().Equal(w.modTime) {
		return true
	}

	content, err := os.ReadFile(w.path)
	if err != nil {
		slog.Debug("watch read failed", "path", w.path, "error", err)
		return true
	}
	w.modTime = info.ModTime()
	if bytes.Equal(content, w.content) {
		return true
	}
	w.content = content

	slog.Info("module changed", "path", w.path, "bytes", len(content))
	return w.sink.Enqueue(engine.SourceChanged(string(content)))
}
