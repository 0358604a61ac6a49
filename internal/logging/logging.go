// Package logging holds the swappable slog loggers of dispatch and its
// backends. Every logger discards records until one is installed.
package logging

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// NopHandler is a slog.Handler that silently discards all log records.
// Enabled returns false so callers skip message formatting entirely.
type NopHandler struct{}

func (NopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (NopHandler) Handle(context.Context, slog.Record) error { return nil }
func (NopHandler) WithAttrs([]slog.Attr) slog.Handler        { return NopHandler{} }
func (NopHandler) WithGroup(string) slog.Handler             { return NopHandler{} }

var nop = slog.New(NopHandler{})

// Nop returns a logger that discards everything.
func Nop() *slog.Logger { return nop }

// Logger is a *slog.Logger that may be replaced while other goroutines log
// through it. The zero value discards everything.
type Logger struct {
	p atomic.Pointer[slog.Logger]
}

// Get returns the installed logger.
func (l *Logger) Get() *slog.Logger {
	if lg := l.p.Load(); lg != nil {
		return lg
	}
	return nop
}

// Set installs lg. nil restores the silent default.
func (l *Logger) Set(lg *slog.Logger) {
	if lg == nil {
		lg = nop
	}
	l.p.Store(lg)
}
