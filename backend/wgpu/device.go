//go:build !nogpu

package wgpu

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gogpu/dispatch"
	"github.com/gogpu/dispatch/internal/shader"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// Device errors.
var (
	// ErrForeignObject is returned when an object from another backend or
	// device is passed in.
	ErrForeignObject = errors.New("wgpu: object not created by this device")

	// ErrReleased is returned when using a released object.
	ErrReleased = errors.New("wgpu: object released")

	// ErrFenceTimeout is returned when the device does not signal a fence
	// within the configured timeout.
	ErrFenceTimeout = errors.New("wgpu: timed out waiting for the GPU")
)

type device struct {
	instance hal.Instance
	device   hal.Device
	queue    hal.Queue
	external bool
	timeout  time.Duration
	limits   gputypes.Limits
	info     dispatch.DeviceInfo

	mu       sync.Mutex
	released bool
}

func (d *device) Info() dispatch.DeviceInfo { return d.info }

func (d *device) CreateQueue() (dispatch.ComputeQueue, error) {
	if d.isReleased() {
		return nil, ErrReleased
	}
	if d.queue == nil {
		return nil, errors.New("wgpu: device has no queue")
	}
	return &queue{device: d}, nil
}

func (d *device) isReleased() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.released
}

// Release destroys the device and instance unless they are shared.
func (d *device) Release() {
	d.mu.Lock()
	if d.released {
		d.mu.Unlock()
		return
	}
	d.released = true
	d.mu.Unlock()

	if !d.external {
		d.device.Destroy()
		if d.instance != nil {
			d.instance.Destroy()
		}
	}
	d.device = nil
	d.queue = nil
	d.instance = nil
	logger.Get().Debug("wgpu: device released", "external", d.external)
}

// CompileLibrary compiles WGSL to SPIR-V and creates a shader module.
func (d *device) CompileLibrary(src []byte) (dispatch.ComputeLibrary, error) {
	if d.isReleased() {
		return nil, ErrReleased
	}
	m, err := shader.Compile(src)
	if err != nil {
		return nil, &dispatch.CompileError{Diagnostics: err.Error(), Err: err}
	}
	module, err := d.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label: "dispatch_compute",
		Source: hal.ShaderSource{
			SPIRV: m.SPIRV,
		},
	})
	if err != nil {
		return nil, &dispatch.CompileError{Diagnostics: err.Error(), Err: err}
	}
	logger.Get().Debug("wgpu: shader module created", "spirv_words", len(m.SPIRV))
	return &library{
		device:  d,
		module:  module,
		entries: m.EntryPoints,
	}, nil
}

// bindingLayout maps buffer roles to storage binding types.
func bindingLayout(bindings []dispatch.Binding) []gputypes.BindGroupLayoutEntry {
	entries := make([]gputypes.BindGroupLayoutEntry, len(bindings))
	for i, b := range bindings {
		typ := gputypes.BufferBindingTypeStorage
		if !b.Role.Writable() {
			typ = gputypes.BufferBindingTypeReadOnlyStorage
		}
		entries[i] = gputypes.BindGroupLayoutEntry{
			Binding:    uint32(b.Slot), //nolint:gosec // slots are validated non-negative
			Visibility: gputypes.ShaderStageCompute,
			Buffer:     &gputypes.BufferBindingLayout{Type: typ},
		}
	}
	return entries
}

func (d *device) CreatePipeline(fn dispatch.ComputeFunction, bindings []dispatch.Binding) (dispatch.ComputePipeline, error) {
	f, ok := fn.(*function)
	if !ok || f.library.device != d {
		return nil, ErrForeignObject
	}
	if f.library.module == nil {
		return nil, ErrReleased
	}

	p := &pipeline{device: d, entry: f.name, bindings: len(bindings)}

	bgl, err := d.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   "dispatch_bind_layout",
		Entries: bindingLayout(bindings),
	})
	if err != nil {
		return nil, fmt.Errorf("create bind group layout: %w", err)
	}
	p.bindLayout = bgl

	layout, err := d.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "dispatch_pipe_layout",
		BindGroupLayouts: []hal.BindGroupLayout{bgl},
	})
	if err != nil {
		p.Release()
		return nil, fmt.Errorf("create pipeline layout: %w", err)
	}
	p.layout = layout

	cp, err := d.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:  "dispatch_pipeline",
		Layout: layout,
		Compute: hal.ComputeState{
			Module:     f.library.module,
			EntryPoint: f.name,
		},
	})
	if err != nil {
		p.Release()
		return nil, fmt.Errorf("create compute pipeline: %w", err)
	}
	p.pipeline = cp
	return p, nil
}

type library struct {
	device  *device
	module  hal.ShaderModule
	entries []string
}

func (l *library) Function(name string) (dispatch.ComputeFunction, error) {
	for _, e := range l.entries {
		if e == name {
			return &function{library: l, name: name}, nil
		}
	}
	return nil, fmt.Errorf("wgpu: no compute function %q (have %v)", name, l.entries)
}

// Release destroys the shader module. Pipelines created from it stay
// valid.
func (l *library) Release() {
	if l.module != nil && !l.device.isReleased() {
		l.device.device.DestroyShaderModule(l.module)
	}
	l.module = nil
}

type function struct {
	library *library
	name    string
}

func (f *function) Name() string { return f.name }
func (f *function) Release()     {}

type pipeline struct {
	device     *device
	entry      string
	bindings   int
	bindLayout hal.BindGroupLayout
	layout     hal.PipelineLayout
	pipeline   hal.ComputePipeline
}

func (p *pipeline) EntryPoint() string { return p.entry }

// Release destroys pipeline objects in reverse creation order.
func (p *pipeline) Release() {
	if p.device.isReleased() {
		return
	}
	dev := p.device.device
	if p.pipeline != nil {
		dev.DestroyComputePipeline(p.pipeline)
		p.pipeline = nil
	}
	if p.layout != nil {
		dev.DestroyPipelineLayout(p.layout)
		p.layout = nil
	}
	if p.bindLayout != nil {
		dev.DestroyBindGroupLayout(p.bindLayout)
		p.bindLayout = nil
	}
}
