package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, "", cfg.Store.Path)
	assert.Equal(t, "127.0.0.1:7070", cfg.Server.Listen)
	assert.Equal(t, 64, cfg.Server.NotifyBuffer)
	assert.Equal(t, []string{"Track", "TrackSubject", "TrackFunc"}, cfg.SourceKey.Calls)
	assert.Equal(t, slog.LevelInfo, cfg.Log.SlogLevel())
}

func TestLoad_EmptyPathIsDefault(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "streamscope.cue")
	require.NoError(t, os.WriteFile(path, []byte(`
log: level: "debug"
store: path: "out.db"
server: notify_buffer: 8
sourcekey: calls: ["Stable"]
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, "out.db", cfg.Store.Path)
	assert.Equal(t, 8, cfg.Server.NotifyBuffer)
	assert.Equal(t, "127.0.0.1:7070", cfg.Server.Listen)
	assert.Equal(t, []string{"Stable"}, cfg.SourceKey.Calls)
	assert.Equal(t, slog.LevelDebug, cfg.Log.SlogLevel())
}

func TestParse_RejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"unknown level", `log: level: "verbose"`},
		{"negative buffer", `server: notify_buffer: -1`},
		{"unknown field", `colour: "blue"`},
		{"syntax", `log: {`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.src), "bad.cue")
			require.Error(t, err)
			var cfgErr *Error
			assert.True(t, errors.As(err, &cfgErr))
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.cue"))
	require.Error(t, err)
	var cfgErr *Error
	require.True(t, errors.As(err, &cfgErr))
	assert.Contains(t, cfgErr.Error(), "missing.cue")
}
