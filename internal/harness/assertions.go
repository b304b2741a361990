package harness

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/roach88/tinker/internal/state"
)

// ExpectationError describes one unmet expectation.
type ExpectationError struct {
	Field    string
	Expected string
	Actual   string
}

func (e *ExpectationError) Error() string {
	return fmt.Sprintf("%s: expected %s, got %s", e.Field, e.Expected, e.Actual)
}

// Check compares st against exp and returns every mismatch.
func Check(exp *Expectation, st state.State) []error {
	if exp == nil {
		return nil
	}

	var errs []error
	fail := func(field, expected, actual string) {
		errs = append(errs, &ExpectationError{Field: field, Expected: expected, Actual: actual})
	}

	if len(exp.Log) > 0 {
		if len(st.Log) < len(exp.Log) {
			fail("log", formatLog(exp.Log), formatLog(st.Log))
		} else if !slices.Equal(st.Log[:len(exp.Log)], exp.Log) {
			fail("log", formatLog(exp.Log), formatLog(st.Log[:len(exp.Log)]))
		}
	}

	if exp.LogLength != nil && *exp.LogLength != len(st.Log) {
		fail("log_length", strconv.Itoa(*exp.LogLength), strconv.Itoa(len(st.Log)))
	}

	if exp.History != nil && !slices.Equal(*exp.History, st.History) {
		fail("history", fmt.Sprintf("%q", *exp.History), fmt.Sprintf("%q", st.History))
	}

	if exp.Command != nil && *exp.Command != st.Command {
		fail("command", strconv.Quote(*exp.Command), strconv.Quote(st.Command))
	}

	if exp.Cursor != nil {
		want, err := parseCursor(*exp.Cursor)
		if err != nil {
			fail("cursor", *exp.Cursor, err.Error())
		} else if want != st.Cursor {
			fail("cursor", want.String(), st.Cursor.String())
		}
	}

	for _, name := range exp.Env {
		if _, ok := st.Env[name]; !ok {
			fail("env", "name "+strconv.Quote(name)+" bound", "["+strings.Join(st.Env.Names(), ", ")+"]")
		}
	}

	if exp.Source != nil && *exp.Source != st.Source {
		fail("source", strconv.Quote(*exp.Source), strconv.Quote(st.Source))
	}

	return errs
}

// parseCursor reads "none" or a non-negative history index.
func parseCursor(s string) (state.Cursor, error) {
	if s == "none" {
		return state.NoCursor, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return state.NoCursor, fmt.Errorf("cursor must be \"none\" or an index, got %q", s)
	}
	return state.Cursor(n), nil
}

func formatLog(entries []state.LogEntry) string {
	parts := make([]string, len(entries))
	for i, e := range entries {
		parts[i] = fmt.Sprintf("{%s %q}", e.Kind, e.Text)
	}
	return "[" + strings.Join(parts, " ") + "]"
}
