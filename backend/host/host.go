// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package host provides a compute device that runs on the CPU.
//
// The host device accepts WGSL and validates it with the same compiler the
// wgpu backend uses, but it cannot execute shader code. Instead, a Go
// Kernel is registered for each shader source and run once per work item
// when the shader is dispatched. Threadgroups are spread over a
// work-stealing worker pool.
//
// Importing the package registers a host backend under the name "host":
//
//	import _ "github.com/gogpu/dispatch/backend/host"
//
// Kernels for the registered backend are added with RegisterKernel.
package host

import (
	"log/slog"
	"sync"

	"github.com/gogpu/dispatch"
	"github.com/gogpu/dispatch/internal/logging"
)

// BackendName is the name the host backend registers under.
const BackendName = "host"

// Backend opens host compute devices.
type Backend struct {
	workers     int
	memoryLimit uint64

	mu      sync.RWMutex
	kernels map[Fingerprint]Kernel
}

// Option configures a Backend.
type Option func(*Backend)

// WithWorkers sets the number of worker goroutines per device.
// Zero or negative means GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(b *Backend) {
		b.workers = n
	}
}

// WithKernel registers k as the implementation of the shader src.
func WithKernel(src []byte, k Kernel) Option {
	return func(b *Backend) {
		_ = b.RegisterKernel(src, k)
	}
}

// WithMemoryLimit caps the total bytes of live buffers per device.
// Zero means unlimited.
func WithMemoryLimit(bytes uint64) Option {
	return func(b *Backend) {
		b.memoryLimit = bytes
	}
}

// New creates a host backend.
func New(opts ...Option) *Backend {
	b := &Backend{kernels: make(map[Fingerprint]Kernel)}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name implements dispatch.Backend.
func (b *Backend) Name() string { return BackendName }

// logger is replaced by SetLogger; the zero value is silent.
var logger logging.Logger

// SetLogger sets the logger for host devices.
func (b *Backend) SetLogger(l *slog.Logger) { logger.Set(l) }

// RegisterKernel registers k as the implementation of the shader src.
// Registering the same source again replaces its kernel.
func (b *Backend) RegisterKernel(src []byte, k Kernel) error {
	if k == nil {
		return ErrNilKernel
	}
	fp, err := FingerprintSource(src)
	if err != nil {
		return err
	}
	b.mu.Lock()
	b.kernels[fp] = k
	b.mu.Unlock()
	logger.Get().Debug("host: kernel registered", "fingerprint", fp.String())
	return nil
}

func (b *Backend) kernel(fp Fingerprint) (Kernel, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	k, ok := b.kernels[fp]
	return k, ok
}

// OpenDevice implements dispatch.Backend. The host device is always
// available.
func (b *Backend) OpenDevice() (dispatch.ComputeDevice, error) {
	return newDevice(b), nil
}

var defaultBackend = New()

// Default returns the backend registered on import.
func Default() *Backend { return defaultBackend }

// RegisterKernel registers k on the default backend.
func RegisterKernel(src []byte, k Kernel) error {
	return defaultBackend.RegisterKernel(src, k)
}

func init() {
	_ = dispatch.RegisterBackend(defaultBackend)
}
