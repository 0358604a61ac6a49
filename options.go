package dispatch

import "log/slog"

// ContextOption configures a Context during creation.
//
// Example:
//
//	// Registered default backend, 3-slot layout
//	c := dispatch.NewContext()
//
//	// Injected backend and a custom layout
//	c := dispatch.NewContext(
//	    dispatch.WithBackend(host.New()),
//	    dispatch.WithBindings([]dispatch.Binding{{Slot: 0, Role: dispatch.RoleInOut}}),
//	)
type ContextOption func(*contextOptions)

type contextOptions struct {
	backend    Backend
	bindings   []Binding
	translator ShaderTranslator
	logger     *slog.Logger
}

func defaultOptions() contextOptions {
	return contextOptions{
		backend:  nil, // DefaultBackend() at InitDevice time
		bindings: DefaultBindings(),
	}
}

// WithBackend selects the backend used by InitDevice. Without it the
// registered default backend is used.
func WithBackend(b Backend) ContextOption {
	return func(o *contextOptions) {
		o.backend = b
	}
}

// WithBindings replaces the default 3-slot layout. The list is validated
// by CreateBuffers; slots must be 0..n-1 in order.
func WithBindings(bindings []Binding) ContextOption {
	return func(o *contextOptions) {
		o.bindings = append([]Binding(nil), bindings...)
	}
}

// WithTranslator installs the shader translator applied to source text
// before the backend compiles it.
func WithTranslator(t ShaderTranslator) ContextOption {
	return func(o *contextOptions) {
		o.translator = t
	}
}

// WithLogger sets a context-specific logger. Without it the package
// logger (see SetLogger) is used.
func WithLogger(l *slog.Logger) ContextOption {
	return func(o *contextOptions) {
		o.logger = l
	}
}
