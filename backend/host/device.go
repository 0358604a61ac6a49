package host

import (
	"errors"
	"fmt"
	"math"
	"runtime"
	"sync"

	"github.com/gogpu/dispatch"
	"github.com/gogpu/dispatch/internal/parallel"
	"github.com/gogpu/dispatch/internal/shader"
)

// Device errors.
var (
	// ErrOutOfMemory is returned when a buffer would exceed the memory limit.
	ErrOutOfMemory = errors.New("host: out of memory")

	// ErrNoKernel is returned when no kernel is registered for a shader.
	ErrNoKernel = errors.New("host: no kernel registered for shader")

	// ErrForeignObject is returned when an object from another backend or
	// device is passed in.
	ErrForeignObject = errors.New("host: object not created by this device")

	// ErrReleased is returned when using a released object.
	ErrReleased = errors.New("host: object released")
)

// MaxBufferSize is the largest buffer a host device allocates, whatever
// the memory limit.
const MaxBufferSize uint64 = 1 << 32

type device struct {
	backend *Backend
	pool    *parallel.WorkerPool

	mu        sync.Mutex
	allocated uint64
	released  bool
}

func newDevice(b *Backend) *device {
	d := &device{
		backend: b,
		pool:    parallel.NewWorkerPool(b.workers),
	}
	logger.Get().Debug("host: device opened", "workers", d.pool.Workers())
	return d
}

func (d *device) Info() dispatch.DeviceInfo {
	return dispatch.DeviceInfo{
		Name:    fmt.Sprintf("Go host (%s/%s, %d workers)", runtime.GOOS, runtime.GOARCH, d.pool.Workers()),
		Backend: BackendName,
		Type:    "CPU",
	}
}

func (d *device) CreateQueue() (dispatch.ComputeQueue, error) {
	if d.isReleased() {
		return nil, ErrReleased
	}
	return &queue{device: d}, nil
}

// CompileLibrary validates src with the WGSL compiler and records its
// compute entry points.
func (d *device) CompileLibrary(src []byte) (dispatch.ComputeLibrary, error) {
	m, err := shader.Compile(src)
	if err != nil {
		return nil, &dispatch.CompileError{Diagnostics: err.Error(), Err: err}
	}
	fp, err := FingerprintSource(src)
	if err != nil {
		return nil, err
	}
	return &library{
		fingerprint: fp,
		entries:     m.EntryPoints,
	}, nil
}

func (d *device) CreatePipeline(fn dispatch.ComputeFunction, bindings []dispatch.Binding) (dispatch.ComputePipeline, error) {
	f, ok := fn.(*function)
	if !ok {
		return nil, ErrForeignObject
	}
	k, ok := d.backend.kernel(f.fingerprint)
	if !ok {
		return nil, fmt.Errorf("%w %s", ErrNoKernel, f.fingerprint)
	}
	return &pipeline{
		entry:    f.name,
		kernel:   k,
		bindings: len(bindings),
	}, nil
}

func (d *device) CreateBuffer(slot int, size uint64) (dispatch.ComputeBuffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.released {
		return nil, ErrReleased
	}
	if size > MaxBufferSize || size > math.MaxInt {
		return nil, fmt.Errorf("%w: slot %d needs %d bytes, buffers are limited to %d",
			ErrOutOfMemory, slot, size, MaxBufferSize)
	}
	limit := d.backend.memoryLimit
	if limit > 0 && size > limit-d.allocated {
		return nil, fmt.Errorf("%w: slot %d needs %d bytes, %d of %d in use",
			ErrOutOfMemory, slot, size, d.allocated, limit)
	}
	d.allocated += size
	return &buffer{device: d, data: make([]byte, size)}, nil
}

func (d *device) free(n uint64) {
	d.mu.Lock()
	d.allocated -= n
	d.mu.Unlock()
}

func (d *device) isReleased() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.released
}

func (d *device) Release() {
	d.mu.Lock()
	if d.released {
		d.mu.Unlock()
		return
	}
	d.released = true
	d.mu.Unlock()

	d.pool.Close()
	logger.Get().Debug("host: device released")
}

type library struct {
	fingerprint Fingerprint
	entries     []string
}

func (l *library) Function(name string) (dispatch.ComputeFunction, error) {
	for _, e := range l.entries {
		if e == name {
			return &function{name: name, fingerprint: l.fingerprint}, nil
		}
	}
	return nil, fmt.Errorf("host: no compute function %q (have %v)", name, l.entries)
}

func (l *library) Release() {}

type function struct {
	name        string
	fingerprint Fingerprint
}

func (f *function) Name() string { return f.name }
func (f *function) Release()     {}

type pipeline struct {
	entry    string
	kernel   Kernel
	bindings int
}

func (p *pipeline) EntryPoint() string { return p.entry }
func (p *pipeline) Release()           {}

type buffer struct {
	device *device

	mu   sync.Mutex
	data []byte
}

func (b *buffer) Size() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return uint64(len(b.data))
}

func (b *buffer) span(offset uint64, n int) ([]byte, error) {
	if b.data == nil {
		return nil, ErrReleased
	}
	end := offset + uint64(n)
	if end < offset || end > uint64(len(b.data)) {
		return nil, fmt.Errorf("host: range [%d,%d) outside buffer of %d bytes", offset, end, len(b.data))
	}
	return b.data[offset:end], nil
}

func (b *buffer) Write(offset uint64, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	dst, err := b.span(offset, len(data))
	if err != nil {
		return err
	}
	copy(dst, data)
	return nil
}

func (b *buffer) Read(offset uint64, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	src, err := b.span(offset, len(data))
	if err != nil {
		return err
	}
	copy(data, src)
	return nil
}

// bytes returns the backing store for kernel access.
func (b *buffer) bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.data
}

func (b *buffer) Release() {
	b.mu.Lock()
	n := uint64(len(b.data))
	released := b.data == nil
	b.data = nil
	b.mu.Unlock()
	if !released {
		b.device.free(n)
	}
}
