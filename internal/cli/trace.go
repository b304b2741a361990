package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/tinker/internal/state"
	"github.com/roach88/tinker/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	Session  string // optional - defaults to the latest session
	Kind     string // optional - filter to one event kind
}

// TraceEvent represents a single event in the trace timeline.
type TraceEvent struct {
	Seq     int64            `json:"seq"`
	Kind    string           `json:"kind"`
	Payload map[string]any   `json:"payload,omitempty"`
	Entries []state.LogEntry `json:"entries,omitempty"`
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	Session       string       `json:"session"`
	InitialSource string       `json:"initial_source"`
	Timeline      []TraceEvent `json:"timeline"`
	Stats         TraceStats   `json:"stats"`
}

// TraceStats holds summary statistics for the trace.
type TraceStats struct {
	TotalEvents int            `json:"total_events"`
	LogEntries  int            `json:"log_entries"`
	Errors      int            `json:"errors"`
	ByKind      map[string]int `json:"by_kind"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show the event timeline of a journaled session",
		Long: `Show the recorded event timeline of a journaled session.

Every applied event is listed in seq order with its inputs and the log
entries it added.

The output includes:
- Timeline: the events in the order they were applied
- Stats: event counts per kind and the number of log and error entries

Without --session the session that started last is shown.

Examples:
  tinker trace --db ./tinker.db
  tinker trace --db ./tinker.db --session 0192f0c4-...
  tinker trace --db ./tinker.db --kind command_submitted
  tinker trace --db ./tinker.db --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite journal (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Session, "session", "", "session id to trace (default: latest)")
	cmd.Flags().StringVar(&opts.Kind, "kind", "", "filter to one event kind")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		_ = formatter.Error(ErrCodeReadFailed, "failed to open database", err.Error())
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	sess, err := traceSession(ctx, st, opts.Session)
	if errors.Is(err, store.ErrNotFound) && opts.Session == "" {
		if formatter.JSON() {
			return formatter.Encode(CLIResponse{Status: "ok", Data: TraceResult{
				Timeline: []TraceEvent{},
				Stats:    TraceStats{ByKind: map[string]int{}},
			}})
		}
		fmt.Fprintln(formatter.Writer, "No sessions found in database.")
		return nil
	}
	if err != nil {
		code := ErrCodeReadFailed
		if errors.Is(err, store.ErrNotFound) {
			code = ErrCodeNotFound
		}
		_ = formatter.Error(code, "failed to read session", err.Error())
		return WrapExitError(ExitCommandError, "failed to read session", err)
	}

	records, err := st.ReadEvents(ctx, sess.ID)
	if err != nil {
		_ = formatter.Error(ErrCodeReadFailed, "failed to read events", err.Error())
		return WrapExitError(ExitCommandError, "failed to read events", err)
	}

	stats := buildStats(records)
	stats.Errors, err = st.CountEntries(ctx, sess.ID, state.KindError)
	if err != nil {
		_ = formatter.Error(ErrCodeReadFailed, "failed to count errors", err.Error())
		return WrapExitError(ExitCommandError, "failed to count errors", err)
	}

	result := TraceResult{
		Session:       sess.ID,
		InitialSource: sess.InitialSource,
		Timeline:      buildTimeline(records, opts.Kind),
		Stats:         stats,
	}

	if formatter.JSON() {
		return formatter.Encode(CLIResponse{Status: "ok", Data: result, Session: sess.ID})
	}
	return outputTraceText(formatter.Writer, result, opts.Verbose)
}

// traceSession resolves the session to trace: by id, or the latest.
func traceSession(ctx context.Context, st *store.Store, id string) (store.Session, error) {
	if id == "" {
		return st.LatestSession(ctx)
	}
	return st.ReadSession(ctx, id)
}

// buildTimeline converts journal rows to timeline events, keeping only
// kindFilter when it is set.
func buildTimeline(records []store.EventRecord, kindFilter string) []TraceEvent {
	timeline := make([]TraceEvent, 0, len(records))
	for _, rec := range records {
		if kindFilter != "" && rec.Kind != kindFilter {
			continue
		}
		timeline = append(timeline, TraceEvent{
			Seq:     rec.Seq,
			Kind:    rec.Kind,
			Payload: rec.Payload,
			Entries: rec.Entries,
		})
	}
	return timeline
}

// buildStats counts over the whole session regardless of the kind filter.
// Errors are counted by the journal.
func buildStats(records []store.EventRecord) TraceStats {
	stats := TraceStats{
		TotalEvents: len(records),
		ByKind:      make(map[string]int),
	}
	for _, rec := range records {
		stats.ByKind[rec.Kind]++
		stats.LogEntries += len(rec.Entries)
	}
	return stats
}

// outputTraceText outputs the trace result as text.
func outputTraceText(w io.Writer, result TraceResult, verbose bool) error {
	fmt.Fprintf(w, "Trace for Session: %s\n", result.Session)
	if verbose {
		fmt.Fprintf(w, "Initial source: %d byte(s)\n", len(result.InitialSource))
	}
	fmt.Fprintln(w)

	// Timeline section
	fmt.Fprintln(w, "=== Timeline ===")
	if len(result.Timeline) == 0 {
		fmt.Fprintln(w, "  (no events)")
	} else {
		for _, event := range result.Timeline {
			formatTimelineEvent(w, event, verbose)
		}
	}
	fmt.Fprintln(w)

	// Stats section
	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Total Events: %d\n", result.Stats.TotalEvents)
	kinds := make([]string, 0, len(result.Stats.ByKind))
	for k := range result.Stats.ByKind {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		fmt.Fprintf(w, "  %s: %d\n", k, result.Stats.ByKind[k])
	}
	fmt.Fprintf(w, "  Log Entries:  %d\n", result.Stats.LogEntries)
	fmt.Fprintf(w, "  Errors:       %d\n", result.Stats.Errors)

	return nil
}

// formatTimelineEvent formats a single timeline event for text output.
// Entries are printed oldest first, the way the terminal shows them.
func formatTimelineEvent(w io.Writer, event TraceEvent, verbose bool) {
	fmt.Fprintf(w, "  [%d] %s %s\n", event.Seq, event.Kind, formatArgs(event.Payload, verbose))
	for i := len(event.Entries) - 1; i >= 0; i-- {
		e := event.Entries[i]
		fmt.Fprintf(w, "       %s: %s\n", e.Kind, e.Text)
	}
}

// formatArgs formats a payload for display.
// Uses sorted keys to ensure deterministic output. Long values are
// shortened unless verbose.
func formatArgs(args map[string]any, verbose bool) string {
	if len(args) == 0 {
		return "{}"
	}

	// Sort keys for deterministic output
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var parts []string
	for _, k := range keys {
		v := formatValue(args[k])
		if !verbose {
			v = truncate(v)
		}
		parts = append(parts, fmt.Sprintf("%s=%s", k, v))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// formatValue formats a single value for display, handling nested structures deterministically.
func formatValue(v any) string {
	switch val := v.(type) {
	case map[string]any:
		return formatArgs(val, true)
	case []any:
		parts := make([]string, len(val))
		for i, elem := range val {
			parts[i] = formatValue(elem)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case []string:
		return "[" + strings.Join(val, ", ") + "]"
	case string:
		return fmt.Sprintf("%q", val)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// truncate shortens a long value (module sources) for display.
func truncate(s string) string {
	const limit = 40
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit-3]) + "..."
}
