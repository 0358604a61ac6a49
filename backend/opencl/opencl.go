//go:build opencl

// Package opencl runs compute dispatches on OpenCL devices.
//
// Shaders are OpenCL C source with a kernel named computeMain whose
// arguments are the storage buffers in slot order:
//
//	__kernel void computeMain(__global const float *a,
//	                          __global const float *b,
//	                          __global float *result) {
//	    size_t i = get_global_id(0);
//	    result[i] = a[i] + b[i];
//	}
//
// The package needs cgo and an OpenCL ICD loader, so it is only built with
// the opencl tag. Importing it registers the backend under the name
// "opencl".
package opencl

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/robvanmieghem/go-opencl/cl"

	"github.com/gogpu/dispatch"
	"github.com/gogpu/dispatch/internal/logging"
)

// BackendName is the name the OpenCL backend registers under.
const BackendName = "opencl"

// Errors.
var (
	ErrForeignObject = errors.New("opencl: object not created by this device")
	ErrReleased      = errors.New("opencl: object released")
	ErrNotEncoded    = errors.New("opencl: command buffer has no finished encoder")
	ErrNotCommitted  = errors.New("opencl: command buffer not committed")
	ErrNoPipeline    = errors.New("opencl: no pipeline set")
	ErrUnboundBuffer = errors.New("opencl: buffer slot not bound")
)

// Backend opens OpenCL devices.
type Backend struct {
	deviceType cl.DeviceType
}

// Option configures a Backend.
type Option func(*Backend)

// WithDeviceType restricts device discovery, for example to
// cl.DeviceTypeAll to include CPU devices. The default is
// cl.DeviceTypeGPU.
func WithDeviceType(t cl.DeviceType) Option {
	return func(b *Backend) {
		b.deviceType = t
	}
}

// New creates an OpenCL backend.
func New(opts ...Option) *Backend {
	b := &Backend{deviceType: cl.DeviceTypeGPU}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name implements dispatch.Backend.
func (b *Backend) Name() string { return BackendName }

// logger is replaced by SetLogger; the zero value is silent.
var logger logging.Logger

// SetLogger sets the logger for OpenCL devices.
func (b *Backend) SetLogger(l *slog.Logger) { logger.Set(l) }

// OpenDevice implements dispatch.Backend. It picks the first device of the
// configured type across all platforms.
func (b *Backend) OpenDevice() (dispatch.ComputeDevice, error) {
	platforms, err := cl.GetPlatforms()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", dispatch.ErrDeviceUnavailable, err)
	}

	var selected *cl.Device
	for _, platform := range platforms {
		devices, err := cl.GetDevices(platform, b.deviceType)
		if err != nil {
			logger.Get().Debug("opencl: no devices on platform", "platform", platform.Name(), "err", err)
			continue
		}
		if len(devices) > 0 {
			selected = devices[0]
			break
		}
	}
	if selected == nil {
		return nil, fmt.Errorf("%w: no OpenCL devices found", dispatch.ErrDeviceUnavailable)
	}

	ctx, err := cl.CreateContext([]*cl.Device{selected})
	if err != nil {
		return nil, fmt.Errorf("opencl: create context on %s: %w", selected.Name(), err)
	}

	d := &device{
		dev: selected,
		ctx: ctx,
		info: dispatch.DeviceInfo{
			Name:    selected.Name(),
			Backend: BackendName,
			Type:    fmt.Sprint(selected.Type()),
		},
	}
	logger.Get().Info("opencl: device opened", "device", d.info.Name, "type", d.info.Type)
	return d, nil
}

func init() {
	_ = dispatch.RegisterBackend(New())
}

type device struct {
	dev  *cl.Device
	ctx  *cl.Context
	info dispatch.DeviceInfo

	// transfer serves blocking buffer reads and writes.
	transfer *cl.CommandQueue
}

func (d *device) transferQueue() (*cl.CommandQueue, error) {
	if d.ctx == nil {
		return nil, ErrReleased
	}
	if d.transfer == nil {
		q, err := d.ctx.CreateCommandQueue(d.dev, 0)
		if err != nil {
			return nil, err
		}
		d.transfer = q
	}
	return d.transfer, nil
}

func (d *device) Info() dispatch.DeviceInfo { return d.info }

func (d *device) CreateQueue() (dispatch.ComputeQueue, error) {
	if d.ctx == nil {
		return nil, ErrReleased
	}
	q, err := d.ctx.CreateCommandQueue(d.dev, 0)
	if err != nil {
		return nil, err
	}
	return &queue{device: d, q: q}, nil
}

// CompileLibrary builds an OpenCL program from source.
func (d *device) CompileLibrary(src []byte) (dispatch.ComputeLibrary, error) {
	if d.ctx == nil {
		return nil, ErrReleased
	}
	program, err := d.ctx.CreateProgramWithSource([]string{string(src)})
	if err != nil {
		return nil, &dispatch.CompileError{Diagnostics: err.Error(), Err: err}
	}
	if err := program.BuildProgram([]*cl.Device{d.dev}, ""); err != nil {
		program.Release()
		return nil, &dispatch.CompileError{Diagnostics: err.Error(), Err: err}
	}
	return &library{device: d, program: program}, nil
}

func (d *device) CreatePipeline(fn dispatch.ComputeFunction, bindings []dispatch.Binding) (dispatch.ComputePipeline, error) {
	f, ok := fn.(*function)
	if !ok || f.device != d {
		return nil, ErrForeignObject
	}
	if f.kernel == nil {
		return nil, ErrReleased
	}
	p := &pipeline{entry: f.name, kernel: f.kernel, bindings: len(bindings)}
	// The pipeline owns the kernel from here on.
	f.kernel = nil
	return p, nil
}

func (d *device) CreateBuffer(slot int, size uint64) (dispatch.ComputeBuffer, error) {
	if d.ctx == nil {
		return nil, ErrReleased
	}
	mem, err := d.ctx.CreateEmptyBuffer(cl.MemReadWrite, int(size)) //nolint:gosec // sizes come from CreateBuffers
	if err != nil {
		return nil, fmt.Errorf("opencl: slot %d: %w", slot, err)
	}
	return &buffer{device: d, mem: mem, size: size}, nil
}

func (d *device) Release() {
	if d.transfer != nil {
		d.transfer.Release()
		d.transfer = nil
	}
	if d.ctx != nil {
		d.ctx.Release()
		d.ctx = nil
		logger.Get().Debug("opencl: device released", "device", d.info.Name)
	}
}

type library struct {
	device  *device
	program *cl.Program
}

// Function creates the named kernel.
func (l *library) Function(name string) (dispatch.ComputeFunction, error) {
	if l.program == nil {
		return nil, ErrReleased
	}
	k, err := l.program.CreateKernel(name)
	if err != nil {
		return nil, err
	}
	return &function{device: l.device, name: name, kernel: k}, nil
}

func (l *library) Release() {
	if l.program != nil {
		l.program.Release()
		l.program = nil
	}
}

type function struct {
	device *device
	name   string
	kernel *cl.Kernel
}

func (f *function) Name() string { return f.name }

func (f *function) Release() {
	if f.kernel != nil {
		f.kernel.Release()
		f.kernel = nil
	}
}

type pipeline struct {
	entry    string
	kernel   *cl.Kernel
	bindings int
}

func (p *pipeline) EntryPoint() string { return p.entry }

func (p *pipeline) Release() {
	if p.kernel != nil {
		p.kernel.Release()
		p.kernel = nil
	}
}
