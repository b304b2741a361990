// Package config loads tinker settings from a CUE file.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
)

// DefaultFile is looked up in the working directory when no path is given.
const DefaultFile = "tinker.cue"

//go:embed schema.cue
var schemaSrc string

// Config holds every setting. Zero-valued fields in a file keep their
// defaults.
type Config struct {
	Source  string      `json:"source"`
	Prompt  string      `json:"prompt"`
	Journal string      `json:"journal"`
	Watch   WatchConfig `json:"watch"`
	Log     LogConfig   `json:"log"`
	Eval    EvalConfig  `json:"eval"`
}

// WatchConfig configures the module file watcher.
type WatchConfig struct {
	Interval string `json:"interval"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level    string `json:"level"`
	File     string `json:"file"`
	Journald bool   `json:"journald"`
}

// EvalConfig configures expression evaluation.
type EvalConfig struct {
	MaxSteps uint64 `json:"maxSteps"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Prompt: "> ",
		Watch:  WatchConfig{Interval: "500ms"},
		Log:    LogConfig{Level: "warn"},
		Eval:   EvalConfig{MaxSteps: 1_000_000},
	}
}

// WatchInterval returns the parsed poll period.
func (c Config) WatchInterval() time.Duration {
	d, err := time.ParseDuration(c.Watch.Interval)
	if err != nil || d <= 0 {
		return 500 * time.Millisecond
	}
	return d
}

// SlogLevel maps Log.Level to a slog level. Unknown names give warn.
func (c Config) SlogLevel() slog.Level {
	switch c.Log.Level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

// Find returns the config file to load: explicit if set, else DefaultFile
// if it exists in the working directory, else "".
func Find(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if info, err := os.Stat(DefaultFile); err == nil && !info.IsDir() {
		return DefaultFile
	}
	return ""
}

// Load reads path over the defaults. An empty path returns Default().
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(path, content)
}

// Parse validates content against the schema and decodes it over the
// defaults. filename is used in error positions.
func Parse(filename string, content []byte) (Config, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString("close({"+schemaSrc+"})", cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return Config{}, fmt.Errorf("config schema: %w", err)
	}

	value := ctx.CompileBytes(content, cue.Filename(filename))
	if err := value.Err(); err != nil {
		return Config{}, &Error{Path: filename, Err: err}
	}

	unified := schema.Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return Config{}, &Error{Path: filename, Err: err}
	}

	cfg := Default()
	if err := unified.Decode(&cfg); err != nil {
		return Config{}, &Error{Path: filename, Err: err}
	}

	if _, err := time.ParseDuration(cfg.Watch.Interval); err != nil {
		return Config{}, &Error{Path: filename, Err: fmt.Errorf("watch.interval: %w", err)}
	}

	return cfg, nil
}

// Error is an invalid config file.
type Error struct {
	Path string
	Err  error
}

func (e *Error) Error() string {
	var cerr cueerrors.Error
	if errors.As(e.Err, &cerr) {
		return fmt.Sprintf("config %s: %s", e.Path, cueerrors.Details(e.Err, nil))
	}
	return fmt.Sprintf("config %s: %v", e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
