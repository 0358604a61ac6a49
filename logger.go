package dispatch

import (
	"log/slog"

	"github.com/gogpu/dispatch/internal/logging"
)

// logger stores the package logger. SetLogger may race with logging from
// any goroutine.
var logger logging.Logger

// SetLogger configures the logger used by dispatch. By default nothing is
// logged. Pass nil to restore the silent default.
//
// The logger is also handed to every registered backend that accepts one
// (has a SetLogger method), so backend diagnostics follow the same
// configuration. Backends registered later receive the current logger.
//
// Log levels used:
//   - [slog.LevelDebug]: pipeline, buffer and dispatch details
//   - [slog.LevelInfo]: device selection and teardown
//   - [slog.LevelWarn]: failures reported by the device
//
// Example:
//
//	dispatch.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	logger.Set(l)
	l = logger.Get()

	backendsMu.RLock()
	defer backendsMu.RUnlock()
	for _, b := range backends {
		propagateLogger(b, l)
	}
}

// Logger returns the current package logger. Backend packages may call it
// to share the configuration without an explicit option.
func Logger() *slog.Logger {
	return logger.Get()
}

// loggerSetter is implemented by backends that accept a logger.
type loggerSetter interface {
	SetLogger(*slog.Logger)
}

// propagateLogger passes l to b if the backend accepts a logger.
func propagateLogger(b Backend, l *slog.Logger) {
	if ls, ok := b.(loggerSetter); ok {
		ls.SetLogger(l)
	}
}
