//go:build !nogpu

// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package wgpu

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gogpu/dispatch"
	"github.com/gogpu/dispatch/internal/logging"
	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	_ "github.com/gogpu/wgpu/hal/vulkan" // register the Vulkan HAL backend
)

// BackendName is the name the wgpu backend registers under.
const BackendName = "wgpu"

// DefaultFenceTimeout bounds the wait for a submitted dispatch.
const DefaultFenceTimeout = 5 * time.Second

// ErrProviderNoHAL is returned when a device provider does not expose HAL
// device and queue handles.
var ErrProviderNoHAL = errors.New("wgpu: provider does not expose HAL types")

// AdapterPreference selects among the adapters of the instance.
type AdapterPreference int

const (
	// PreferHardware picks the first discrete or integrated GPU, then
	// falls back to the first adapter.
	PreferHardware AdapterPreference = iota
	// PreferDiscrete picks a discrete GPU first, then any hardware GPU.
	PreferDiscrete
	// PreferIntegrated picks an integrated GPU first, then any hardware GPU.
	PreferIntegrated
	// PreferFirst picks the first enumerated adapter.
	PreferFirst
)

// String returns the string representation of AdapterPreference.
func (p AdapterPreference) String() string {
	switch p {
	case PreferHardware:
		return "Hardware"
	case PreferDiscrete:
		return "Discrete"
	case PreferIntegrated:
		return "Integrated"
	case PreferFirst:
		return "First"
	default:
		return fmt.Sprintf("AdapterPreference(%d)", int(p))
	}
}

// HALBackend creates HAL instances. The Vulkan backend registered with hal
// is used by default; tests pass the noop backend.
type HALBackend interface {
	CreateInstance(desc *hal.InstanceDescriptor) (hal.Instance, error)
}

// Backend opens GPU compute devices.
type Backend struct {
	fenceTimeout time.Duration
	provider     gpucontext.DeviceProvider
	preference   AdapterPreference
	hal          HALBackend
}

// Option configures a Backend.
type Option func(*Backend)

// WithFenceTimeout sets how long a dispatch or download waits for the
// device. Non-positive values restore DefaultFenceTimeout.
func WithFenceTimeout(d time.Duration) Option {
	return func(b *Backend) {
		if d <= 0 {
			d = DefaultFenceTimeout
		}
		b.fenceTimeout = d
	}
}

// WithDeviceProvider makes the backend use the provider's device instead
// of opening its own. The device is not destroyed on release.
func WithDeviceProvider(p gpucontext.DeviceProvider) Option {
	return func(b *Backend) {
		b.provider = p
	}
}

// WithAdapterPreference sets the adapter selection policy.
func WithAdapterPreference(p AdapterPreference) Option {
	return func(b *Backend) {
		b.preference = p
	}
}

// WithHALBackend opens devices through hb instead of the registered
// Vulkan backend.
func WithHALBackend(hb HALBackend) Option {
	return func(b *Backend) {
		b.hal = hb
	}
}

// New creates a wgpu backend.
func New(opts ...Option) *Backend {
	b := &Backend{fenceTimeout: DefaultFenceTimeout}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name implements dispatch.Backend.
func (b *Backend) Name() string { return BackendName }

// logger is replaced by SetLogger; the zero value is silent.
var logger logging.Logger

// SetLogger sets the logger for wgpu devices.
func (b *Backend) SetLogger(l *slog.Logger) { logger.Set(l) }

// OpenDevice implements dispatch.Backend. It returns an error wrapping
// dispatch.ErrDeviceUnavailable when the platform has no usable GPU.
func (b *Backend) OpenDevice() (dispatch.ComputeDevice, error) {
	if b.provider != nil {
		return b.openProvided()
	}

	hb := b.hal
	if hb == nil {
		vk, ok := hal.GetBackend(gputypes.BackendVulkan)
		if !ok {
			return nil, fmt.Errorf("%w: vulkan backend not available", dispatch.ErrDeviceUnavailable)
		}
		hb = vk
	}

	instance, err := hb.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("%w: create instance: %w", dispatch.ErrDeviceUnavailable, err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, fmt.Errorf("%w: no GPU adapters found", dispatch.ErrDeviceUnavailable)
	}

	selected := selectAdapter(adapters, b.preference)
	limits := gputypes.DefaultLimits()
	openDev, err := selected.Adapter.Open(gputypes.Features(0), limits)
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("wgpu: open %s: %w", selected.Info.Name, err)
	}

	d := &device{
		instance: instance,
		device:   openDev.Device,
		queue:    openDev.Queue,
		timeout:  b.fenceTimeout,
		limits:   limits,
		info: dispatch.DeviceInfo{
			Name:    selected.Info.Name,
			Backend: BackendName,
			Type:    fmt.Sprint(selected.Info.DeviceType),
		},
	}
	logger.Get().Info("wgpu: device opened",
		"adapter", selected.Info.Name,
		"type", d.info.Type,
		"adapters", len(adapters))
	return d, nil
}

// openProvided wraps the HAL handles of the configured provider.
func (b *Backend) openProvided() (dispatch.ComputeDevice, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := b.provider.(halProvider)
	if !ok {
		return nil, ErrProviderNoHAL
	}
	dev, ok := hp.HalDevice().(hal.Device)
	if !ok || dev == nil {
		return nil, fmt.Errorf("%w: HalDevice is not hal.Device", ErrProviderNoHAL)
	}
	q, ok := hp.HalQueue().(hal.Queue)
	if !ok || q == nil {
		return nil, fmt.Errorf("%w: HalQueue is not hal.Queue", ErrProviderNoHAL)
	}

	logger.Get().Info("wgpu: using provided device")
	return &device{
		device:   dev,
		queue:    q,
		external: true,
		timeout:  b.fenceTimeout,
		// The provider's limits are unknown; assume the WebGPU defaults.
		limits: gputypes.DefaultLimits(),
		info: dispatch.DeviceInfo{
			Name:    "provided device",
			Backend: BackendName,
			Type:    "External",
		},
	}, nil
}

// selectAdapter applies pref to a non-empty adapter list.
func selectAdapter(adapters []hal.ExposedAdapter, pref AdapterPreference) *hal.ExposedAdapter {
	find := func(match func(gputypes.DeviceType) bool) *hal.ExposedAdapter {
		for i := range adapters {
			if match(adapters[i].Info.DeviceType) {
				return &adapters[i]
			}
		}
		return nil
	}
	hardware := func(t gputypes.DeviceType) bool {
		return t == gputypes.DeviceTypeDiscreteGPU || t == gputypes.DeviceTypeIntegratedGPU
	}

	var selected *hal.ExposedAdapter
	switch pref {
	case PreferFirst:
		return &adapters[0]
	case PreferDiscrete:
		selected = find(func(t gputypes.DeviceType) bool { return t == gputypes.DeviceTypeDiscreteGPU })
	case PreferIntegrated:
		selected = find(func(t gputypes.DeviceType) bool { return t == gputypes.DeviceTypeIntegratedGPU })
	}
	if selected == nil {
		selected = find(hardware)
	}
	if selected == nil {
		selected = &adapters[0]
	}
	return selected
}

func init() {
	_ = dispatch.RegisterBackend(New())
}
