package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/tinker/internal/state"
)

// Scenario is a scripted session with expectations.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Session is an optional fixed session id. Defaults to "test-session".
	Session string `yaml:"session,omitempty"`

	// Source is the initial module text. SourceFile loads it from a file
	// relative to the scenario instead. With neither, the default module is
	// used.
	Source     *string `yaml:"source,omitempty"`
	SourceFile string  `yaml:"source_file,omitempty"`

	// Modules scripts the compiler. When present, every source the
	// scenario compiles must be listed; wasmtime is not used.
	Modules []ModuleScript `yaml:"modules,omitempty"`

	// Steps are applied in order.
	Steps []Step `yaml:"steps"`

	// Expect is checked after all steps and a final settle.
	Expect *Expectation `yaml:"expect,omitempty"`
}

// ModuleScript is the scripted compile outcome of one source text.
type ModuleScript struct {
	Source  string   `yaml:"source"`
	Exports []string `yaml:"exports,omitempty"`
	Error   string   `yaml:"error,omitempty"`
}

// Step is one user action or check. Exactly one field other than Async
// is set.
type Step struct {
	Source   *string      `yaml:"source,omitempty"`
	Async    bool         `yaml:"async,omitempty"`
	Input    *string      `yaml:"input,omitempty"`
	Submit   *string      `yaml:"submit,omitempty"`
	Previous bool         `yaml:"previous,omitempty"`
	Next     bool         `yaml:"next,omitempty"`
	Settle   bool         `yaml:"settle,omitempty"`
	Expect   *Expectation `yaml:"expect,omitempty"`
}

// Step kinds.
const (
	StepSource   = "source"
	StepInput    = "input"
	StepSubmit   = "submit"
	StepPrevious = "previous"
	StepNext     = "next"
	StepSettle   = "settle"
	StepExpect   = "expect"
)

// Kinds returns the kinds set on the step. A valid step has exactly one.
func (s Step) Kinds() []string {
	var kinds []string
	if s.Source != nil {
		kinds = append(kinds, StepSource)
	}
	if s.Input != nil {
		kinds = append(kinds, StepInput)
	}
	if s.Submit != nil {
		kinds = append(kinds, StepSubmit)
	}
	if s.Previous {
		kinds = append(kinds, StepPrevious)
	}
	if s.Next {
		kinds = append(kinds, StepNext)
	}
	if s.Settle {
		kinds = append(kinds, StepSettle)
	}
	if s.Expect != nil {
		kinds = append(kinds, StepExpect)
	}
	return kinds
}

// Expectation checks the session state. Unset fields are not checked.
type Expectation struct {
	// Log is matched against the front of the log, most recent first.
	Log []state.LogEntry `yaml:"log,omitempty"`

	// LogLength checks the total number of log entries.
	LogLength *int `yaml:"log_length,omitempty"`

	History *[]string `yaml:"history,omitempty"`
	Command *string   `yaml:"command,omitempty"`

	// Cursor is "none" or a history index.
	Cursor *string `yaml:"cursor,omitempty"`

	// Env lists names that must be bound.
	Env []string `yaml:"env,omitempty"`

	Source *string `yaml:"source,omitempty"`
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
// A source_file is resolved relative to the scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	if scenario.SourceFile != "" {
		file := scenario.SourceFile
		if !filepath.IsAbs(file) {
			file = filepath.Join(filepath.Dir(path), file)
		}
		text, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("invalid scenario: source file: %w", err)
		}
		source := string(text)
		scenario.Source = &source
	}

	return scenario, nil
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// LoadDir loads every *.yaml and *.yml scenario in dir, sorted by file name.
func LoadDir(dir string) ([]*Scenario, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		ext := filepath.Ext(entry.Name())
		if entry.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	scenarios := make([]*Scenario, 0, len(names))
	for _, name := range names {
		s, err := LoadScenario(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Steps) == 0 && s.Expect == nil {
		return fmt.Errorf("steps or expect is required")
	}

	if s.Source != nil && s.SourceFile != "" {
		return fmt.Errorf("source and source_file are mutually exclusive")
	}

	seen := make(map[string]bool, len(s.Modules))
	for i, m := range s.Modules {
		if seen[m.Source] {
			return fmt.Errorf("modules[%d]: duplicate source %q", i, m.Source)
		}
		seen[m.Source] = true
		if m.Error != "" && len(m.Exports) > 0 {
			return fmt.Errorf("modules[%d]: exports and error are mutually exclusive", i)
		}
	}

	for i, step := range s.Steps {
		kinds := step.Kinds()
		switch len(kinds) {
		case 0:
			return fmt.Errorf("steps[%d]: one of source, input, submit, previous, next, settle, expect is required", i)
		case 1:
		default:
			return fmt.Errorf("steps[%d]: only one action per step, got %s", i, strings.Join(kinds, ", "))
		}
		if step.Async && step.Source == nil {
			return fmt.Errorf("steps[%d]: async applies to source steps only", i)
		}
		if step.Expect != nil {
			if err := validateExpectation(step.Expect); err != nil {
				return fmt.Errorf("steps[%d].expect: %w", i, err)
			}
		}
	}

	if s.Expect != nil {
		if err := validateExpectation(s.Expect); err != nil {
			return fmt.Errorf("expect: %w", err)
		}
	}

	return nil
}

func validateExpectation(e *Expectation) error {
	for i, entry := range e.Log {
		switch entry.Kind {
		case state.KindPlain, state.KindError, state.KindResult, state.KindInfo:
		default:
			return fmt.Errorf("log[%d]: unknown kind %q", i, entry.Kind)
		}
	}
	if e.Cursor != nil {
		if _, err := parseCursor(*e.Cursor); err != nil {
			return err
		}
	}
	return nil
}
