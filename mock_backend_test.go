package dispatch

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

var errInjected = errors.New("injected failure")

// mockBackend is a configurable in-memory backend. Each fail* field makes
// the corresponding step return errInjected.
type mockBackend struct {
	name string

	openErr       error
	nilDevice     bool
	failQueue     bool
	failCompile   bool
	failPipeline  bool
	failBufferAt  int // slot, or -1
	failCmdBuffer bool
	failEncoder   bool
	failDispatch  bool
	failCommit    bool
	failWait      bool

	// kernel runs on WaitUntilCompleted for each recorded dispatch.
	kernel func(grid Grid, buffers [][]byte)

	mu       sync.Mutex
	released map[string]int
	device   *mockDevice
	grids    []Grid
	commits  int
}

func newMockBackend() *mockBackend {
	return &mockBackend{name: "mock", failBufferAt: -1, released: map[string]int{}}
}

func (b *mockBackend) Name() string { return b.name }

func (b *mockBackend) OpenDevice() (ComputeDevice, error) {
	if b.openErr != nil {
		return nil, b.openErr
	}
	if b.nilDevice {
		return nil, nil
	}
	b.device = &mockDevice{backend: b}
	return b.device, nil
}

func (b *mockBackend) release(kind string) {
	b.mu.Lock()
	b.released[kind]++
	b.mu.Unlock()
}

func (b *mockBackend) releases(kind string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.released[kind]
}

type mockDevice struct {
	backend *mockBackend
}

func (d *mockDevice) Info() DeviceInfo {
	return DeviceInfo{Name: "Mock Device", Backend: d.backend.name, Type: "Virtual"}
}

func (d *mockDevice) CreateQueue() (ComputeQueue, error) {
	if d.backend.failQueue {
		return nil, errInjected
	}
	return &mockQueue{backend: d.backend}, nil
}

// CompileLibrary accepts any text; functions are the words following
// "fn ".
func (d *mockDevice) CompileLibrary(src []byte) (ComputeLibrary, error) {
	if d.backend.failCompile {
		return nil, fmt.Errorf("line 1: %w", errInjected)
	}
	var names []string
	for _, f := range strings.Split(string(src), "fn ")[1:] {
		name, _, _ := strings.Cut(f, "(")
		names = append(names, strings.TrimSpace(name))
	}
	return &mockLibrary{backend: d.backend, names: names}, nil
}

func (d *mockDevice) CreatePipeline(fn ComputeFunction, bindings []Binding) (ComputePipeline, error) {
	if d.backend.failPipeline {
		return nil, errInjected
	}
	return &mockPipeline{backend: d.backend, entry: fn.Name()}, nil
}

func (d *mockDevice) CreateBuffer(slot int, size uint64) (ComputeBuffer, error) {
	if slot == d.backend.failBufferAt {
		return nil, errInjected
	}
	return &mockBuffer{backend: d.backend, data: make([]byte, size)}, nil
}

func (d *mockDevice) Release() { d.backend.release("device") }

type mockLibrary struct {
	backend *mockBackend
	names   []string
}

func (l *mockLibrary) Function(name string) (ComputeFunction, error) {
	for _, n := range l.names {
		if n == name {
			return &mockFunction{backend: l.backend, name: name}, nil
		}
	}
	return nil, fmt.Errorf("no function %q", name)
}

func (l *mockLibrary) Release() { l.backend.release("library") }

type mockFunction struct {
	backend *mockBackend
	name    string
}

func (f *mockFunction) Name() string { return f.name }
func (f *mockFunction) Release()     { f.backend.release("function") }

type mockPipeline struct {
	backend *mockBackend
	entry   string
}

func (p *mockPipeline) EntryPoint() string { return p.entry }
func (p *mockPipeline) Release()           { p.backend.release("pipeline") }

type mockBuffer struct {
	backend *mockBackend
	data    []byte
}

func (b *mockBuffer) Size() uint64 { return uint64(len(b.data)) }

func (b *mockBuffer) Write(offset uint64, data []byte) error {
	copy(b.data[offset:], data)
	return nil
}

func (b *mockBuffer) Read(offset uint64, data []byte) error {
	copy(data, b.data[offset:])
	return nil
}

func (b *mockBuffer) Release() { b.backend.release("buffer") }

type mockQueue struct {
	backend *mockBackend
}

func (q *mockQueue) NewCommandBuffer() (CommandBuffer, error) {
	if q.backend.failCmdBuffer {
		return nil, errInjected
	}
	return &mockCommandBuffer{backend: q.backend}, nil
}

func (q *mockQueue) Release() { q.backend.release("queue") }

type mockCommandBuffer struct {
	backend *mockBackend
	grids   []Grid
	buffers [][]byte
}

func (cb *mockCommandBuffer) ComputeEncoder() (ComputeEncoder, error) {
	if cb.backend.failEncoder {
		return nil, errInjected
	}
	return &mockEncoder{cb: cb}, nil
}

func (cb *mockCommandBuffer) Commit() error {
	if cb.backend.failCommit {
		return errInjected
	}
	cb.backend.mu.Lock()
	cb.backend.commits++
	cb.backend.grids = append(cb.backend.grids, cb.grids...)
	cb.backend.mu.Unlock()
	return nil
}

func (cb *mockCommandBuffer) WaitUntilCompleted() error {
	if cb.backend.failWait {
		return errInjected
	}
	if cb.backend.kernel != nil {
		for _, g := range cb.grids {
			cb.backend.kernel(g, cb.buffers)
		}
	}
	return nil
}

func (cb *mockCommandBuffer) Release() { cb.backend.release("command") }

type mockEncoder struct {
	cb       *mockCommandBuffer
	pipeline ComputePipeline
}

func (e *mockEncoder) SetPipeline(p ComputePipeline) { e.pipeline = p }

func (e *mockEncoder) SetBuffer(index int, b ComputeBuffer) {
	for len(e.cb.buffers) <= index {
		e.cb.buffers = append(e.cb.buffers, nil)
	}
	e.cb.buffers[index] = b.(*mockBuffer).data
}

func (e *mockEncoder) Dispatch(grid Grid) error {
	if e.cb.backend.failDispatch {
		return errInjected
	}
	if e.pipeline == nil {
		return errors.New("no pipeline")
	}
	e.cb.grids = append(e.cb.grids, grid)
	return nil
}

func (e *mockEncoder) End() error { return nil }

// addShader is accepted by the mock compiler and names computeMain.
const addShader = `@compute @workgroup_size(1) fn computeMain(@builtin(global_invocation_id) id: vec3<u32>) {}`

// addKernel adds float32 slots 0 and 1 into slot 2.
func addKernel(grid Grid, buffers [][]byte) {
	a, b := BytesFloat32(buffers[0]), BytesFloat32(buffers[1])
	out := make([]float32, len(a))
	for i := range min(int(grid.Invocations()), len(out)) {
		out[i] = a[i] + b[i]
	}
	copy(buffers[2], Float32Bytes(out))
}

// readyContext returns a context with device, pipeline and buffers of
// size bytes on a fresh mock backend.
func readyContext(size uint64) (*Context, *mockBackend, error) {
	b := newMockBackend()
	c := NewContext(WithBackend(b))
	if err := c.InitDevice(); err != nil {
		return nil, nil, err
	}
	if err := c.CreateComputePipeline([]byte(addShader)); err != nil {
		return nil, nil, err
	}
	if err := c.CreateBuffers(size); err != nil {
		return nil, nil, err
	}
	return c, b, nil
}
