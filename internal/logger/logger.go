package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Default rotation configuration constants
const (
	DefaultMaxSizeMB  = 10 // MB
	DefaultMaxBackups = 3  // number of backup files
	DefaultMaxAgeDays = 7  // days
)

// Config describes the supervisor's own audit log for a target. The audit
// log is distinct from the worker's log: it records every supervision
// decision, append-only and timestamped. If Path is empty and Dir is set,
// the file is Dir/<name>.audit.log. Rotation follows lumberjack semantics.
type Config struct {
	Dir        string `mapstructure:"dir"`
	Path       string `mapstructure:"path"` // explicit path overrides Dir
	Level      string `mapstructure:"level"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// AuditPath resolves the audit log location for a target name.
func (c Config) AuditPath(name string) string {
	if c.Path != "" {
		return c.Path
	}
	if c.Dir != "" {
		return filepath.Join(c.Dir, fmt.Sprintf("%s.audit.log", name))
	}
	return ""
}

// AuditWriter returns a rotated writer for the target's audit log, or nil
// when no log destination is configured.
func (c Config) AuditWriter(name string) io.WriteCloser {
	path := c.AuditPath(name)
	if path == "" {
		return nil
	}
	return &lj.Logger{
		Filename:   path,
		MaxSize:    valOr(c.MaxSizeMB, DefaultMaxSizeMB),
		MaxBackups: valOr(c.MaxBackups, DefaultMaxBackups),
		MaxAge:     valOr(c.MaxAgeDays, DefaultMaxAgeDays),
		Compress:   c.Compress,
	}
}

// SlogLevel maps the configured level string onto a slog.Level.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(c.Level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New builds the supervisor logger for a target: a plain text handler on the
// rotated audit file plus a colorized handler on console (when console is
// non-nil). Returns the logger and a closer for the audit writer.
func New(name string, c Config, console io.Writer) (*slog.Logger, io.Closer) {
	level := c.SlogLevel()
	var handlers []slog.Handler
	var closer io.Closer

	if w := c.AuditWriter(name); w != nil {
		handlers = append(handlers, slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
		closer = w
	}
	if console != nil {
		handlers = append(handlers, NewColorTextHandler(console, &slog.HandlerOptions{Level: level}, true))
	}
	if len(handlers) == 0 {
		return slog.New(discardHandler{}), nopCloser{}
	}

	var h slog.Handler
	if len(handlers) == 1 {
		h = handlers[0]
	} else {
		h = fanoutHandler(handlers)
	}
	logger := slog.New(h).With("target", name)
	if closer == nil {
		closer = nopCloser{}
	}
	return logger, closer
}

func valOr(v int, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// fanoutHandler duplicates records to every wrapped handler.
type fanoutHandler []slog.Handler

func (f fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanoutHandler) Handle(ctx context.Context, r slog.Record) error {
	var firstErr error
	for _, h := range f {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (f fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanoutHandler, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanoutHandler) WithGroup(name string) slog.Handler {
	out := make(fanoutHandler, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
