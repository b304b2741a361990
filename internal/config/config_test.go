package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "> ", cfg.Prompt)
	assert.Equal(t, "", cfg.Source)
	assert.Equal(t, "", cfg.Journal)
	assert.Equal(t, 500*time.Millisecond, cfg.WatchInterval())
	assert.Equal(t, slog.LevelWarn, cfg.SlogLevel())
	assert.Equal(t, uint64(1_000_000), cfg.Eval.MaxSteps)
}

func TestLoad_EmptyPath(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.cue"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestParse_AllFields(t *testing.T) {
	cfg, err := Parse("tinker.cue", []byte(`
source:  "module.wat"
prompt:  "wat> "
journal: "tinker.db"
watch: interval: "2s"
log: {
	level: "debug"
	file:  "tinker.log"
	journald: true
}
eval: maxSteps: 500
`))
	require.NoError(t, err)

	assert.Equal(t, "module.wat", cfg.Source)
	assert.Equal(t, "wat> ", cfg.Prompt)
	assert.Equal(t, "tinker.db", cfg.Journal)
	assert.Equal(t, 2*time.Second, cfg.WatchInterval())
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
	assert.Equal(t, "tinker.log", cfg.Log.File)
	assert.True(t, cfg.Log.Journald)
	assert.Equal(t, uint64(500), cfg.Eval.MaxSteps)
}

func TestParse_PartialKeepsDefaults(t *testing.T) {
	cfg, err := Parse("tinker.cue", []byte(`log: level: "info"`))
	require.NoError(t, err)

	assert.Equal(t, slog.LevelInfo, cfg.SlogLevel())
	assert.Equal(t, "> ", cfg.Prompt)
	assert.Equal(t, "500ms", cfg.Watch.Interval)
	assert.Equal(t, uint64(1_000_000), cfg.Eval.MaxSteps)
}

func TestParse_Empty(t *testing.T) {
	cfg, err := Parse("tinker.cue", nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown top-level field", `colour: "red"`},
		{"unknown nested field", `log: format: "json"`},
		{"wrong type", `prompt: 3`},
		{"bad level", `log: level: "trace"`},
		{"negative steps", `eval: maxSteps: -1`},
		{"bad interval", `watch: interval: "soon"`},
		{"syntax error", `prompt: "unterminated`},
		{"not concrete", `prompt: string`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse("bad.cue", []byte(tt.content))
			require.Error(t, err)

			var cfgErr *Error
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, "bad.cue", cfgErr.Path)
			assert.Contains(t, err.Error(), "config bad.cue")
		})
	}
}

func TestFind(t *testing.T) {
	assert.Equal(t, "x.cue", Find("x.cue"))

	dir := t.TempDir()
	t.Chdir(dir)
	assert.Equal(t, "", Find(""))

	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultFile), []byte(`prompt: "$ "`), 0644))
	assert.Equal(t, DefaultFile, Find(""))

	cfg, err := Load(Find(""))
	require.NoError(t, err)
	assert.Equal(t, "$ ", cfg.Prompt)
}

func TestSlogLevel_Unknown(t *testing.T) {
	cfg := Default()
	cfg.Log.Level = "loud"
	assert.Equal(t, slog.LevelWarn, cfg.SlogLevel())
}
