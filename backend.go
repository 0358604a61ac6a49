package dispatch

import (
	"errors"
	"sort"
	"sync"
)

// EntryPoint is the fixed name of the compute function every pipeline is
// bound to.
const EntryPoint = "computeMain"

// Backend opens compute devices for one platform API.
//
// Implementations live in backend packages (backend/wgpu, backend/opencl,
// backend/host). A backend is either injected with WithBackend or
// registered for blank-import use:
//
//	import _ "github.com/gogpu/dispatch/backend/wgpu"
type Backend interface {
	// Name returns the backend identifier (e.g. "wgpu", "host").
	Name() string

	// OpenDevice acquires the platform's default compute device.
	// It returns an error wrapping ErrDeviceUnavailable when no
	// compute-capable device exists.
	OpenDevice() (ComputeDevice, error)
}

// DeviceInfo describes an opened device.
type DeviceInfo struct {
	Name    string
	Backend string
	Type    string
}

// ComputeDevice is an opened device. It is the root of every other handle
// and must outlive them.
type ComputeDevice interface {
	Info() DeviceInfo

	// CreateQueue creates the device's command queue.
	CreateQueue() (ComputeQueue, error)

	// CompileLibrary compiles shader text into a transient library.
	// The error text is reported to the caller as compiler diagnostics.
	CompileLibrary(src []byte) (ComputeLibrary, error)

	// CreatePipeline builds an executable pipeline from a library function.
	// The function may be released as soon as CreatePipeline returns.
	CreatePipeline(fn ComputeFunction, bindings []Binding) (ComputePipeline, error)

	// CreateBuffer allocates a host-visible storage buffer for slot.
	CreateBuffer(slot int, size uint64) (ComputeBuffer, error)

	Release()
}

// ComputeLibrary is a compiled shader module. It only lives for the
// duration of a pipeline build.
type ComputeLibrary interface {
	// Function looks up an entry point by name.
	Function(name string) (ComputeFunction, error)
	Release()
}

// ComputeFunction is an entry point looked up in a ComputeLibrary.
type ComputeFunction interface {
	Name() string
	Release()
}

// ComputePipeline is a device-resident executable bound to one entry point.
type ComputePipeline interface {
	EntryPoint() string
	Release()
}

// ComputeBuffer is a storage buffer shared between host and device.
type ComputeBuffer interface {
	Size() uint64

	// Write copies data into the buffer starting at offset.
	Write(offset uint64, data []byte) error

	// Read copies len(data) bytes starting at offset into data.
	Read(offset uint64, data []byte) error

	Release()
}

// ComputeQueue submits command buffers to its device in order.
type ComputeQueue interface {
	NewCommandBuffer() (CommandBuffer, error)
	Release()
}

// CommandBuffer records one submission.
type CommandBuffer interface {
	// ComputeEncoder begins recording compute commands.
	ComputeEncoder() (ComputeEncoder, error)

	// Commit submits the recorded commands.
	Commit() error

	// WaitUntilCompleted blocks until the device finished executing the
	// commands. A non-nil error means the device reported a failure.
	WaitUntilCompleted() error

	Release()
}

// ComputeEncoder records pipeline and buffer bindings plus dispatches.
type ComputeEncoder interface {
	SetPipeline(p ComputePipeline)
	SetBuffer(index int, b ComputeBuffer)
	Dispatch(grid Grid) error
	End() error
}

var (
	backendsMu     sync.RWMutex
	backends       = map[string]Backend{}
	defaultBackend Backend
)

// RegisterBackend makes b available by name and selects it as the default
// backend. Subsequent registrations replace the default.
//
// Typical usage from a backend package:
//
//	func init() {
//	    dispatch.RegisterBackend(New())
//	}
func RegisterBackend(b Backend) error {
	if b == nil {
		return errors.New("dispatch: backend must not be nil")
	}
	backendsMu.Lock()
	backends[b.Name()] = b
	defaultBackend = b
	backendsMu.Unlock()

	propagateLogger(b, Logger())
	return nil
}

// LookupBackend returns the registered backend with the given name.
func LookupBackend(name string) (Backend, bool) {
	backendsMu.RLock()
	defer backendsMu.RUnlock()
	b, ok := backends[name]
	return b, ok
}

// DefaultBackend returns the most recently registered backend, or nil.
func DefaultBackend() Backend {
	backendsMu.RLock()
	defer backendsMu.RUnlock()
	return defaultBackend
}

// Backends returns the names of all registered backends, sorted.
func Backends() []string {
	backendsMu.RLock()
	defer backendsMu.RUnlock()
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
