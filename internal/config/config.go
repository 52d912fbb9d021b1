// Package config loads streamscope settings from a CUE file validated
// against an embedded schema.
package config

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

//go:embed schema.cue
var schemaCUE string

// Config is the full set of settings.
type Config struct {
	Log       LogConfig       `json:"log"`
	Store     StoreConfig     `json:"store"`
	Server    ServerConfig    `json:"server"`
	SourceKey SourceKeyConfig `json:"sourcekey"`
}

type LogConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

type StoreConfig struct {
	Path string `json:"path"`
}

type ServerConfig struct {
	Listen         string `json:"listen"`
	NotifyBuffer   int    `json:"notify_buffer"`
	ExportInterval int    `json:"export_interval"`
}

type SourceKeyConfig struct {
	Calls []string `json:"calls"`
}

// SlogLevel maps the configured level to a slog.Level.
func (c LogConfig) SlogLevel() slog.Level {
	switch c.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Error is a configuration problem, with the CUE position when known.
type Error struct {
	Path    string
	Message string
	Pos     token.Pos
}

func (e *Error) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Message)
	}
	if e.Path != "" {
		return fmt.Sprintf("%s: %s", e.Path, e.Message)
	}
	return e.Message
}

// Default returns the schema defaults.
func Default() *Config {
	cfg, err := decode(nil, "")
	if err != nil {
		// The embedded schema is fixed; a failure here is a build defect.
		panic(fmt.Sprintf("config: invalid embedded schema: %v", err))
	}
	return cfg
}

// Load reads the CUE file at path and applies the schema defaults. An
// empty path yields the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Path: path, Message: err.Error()}
	}
	return decode(data, path)
}

// Parse validates CUE source given in memory.
func Parse(data []byte, filename string) (*Config, error) {
	return decode(data, filename)
}

func decode(data []byte, filename string) (*Config, error) {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, formatCUEError(err, "schema.cue")
	}
	v := schema.LookupPath(cue.ParsePath("#Config"))

	if data != nil {
		user := ctx.CompileBytes(data, cue.Filename(filename))
		if err := user.Err(); err != nil {
			return nil, formatCUEError(err, filename)
		}
		v = v.Unify(user)
	}

	if err := v.Validate(cue.Final(), cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err, filename)
	}

	var cfg Config
	if err := v.Decode(&cfg); err != nil {
		return nil, formatCUEError(err, filename)
	}
	return &cfg, nil
}

// formatCUEError keeps the first CUE error with its position.
func formatCUEError(err error, path string) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &Error{Path: path, Message: err.Error()}
	}
	first := errs[0]
	e := &Error{Path: path, Message: first.Error()}
	if positions := cueerrors.Positions(first); len(positions) > 0 {
		e.Pos = positions[0]
	}
	return e
}
