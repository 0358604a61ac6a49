package dispatch

import (
	"errors"
	"testing"
)

func TestStateString(t *testing.T) {
	tests := []struct {
		s    State
		want string
	}{
		{StateUninitialized, "Uninitialized"},
		{StateDeviceReady, "DeviceReady"},
		{StatePipelineReady, "PipelineReady"},
		{StateBuffersReady, "BuffersReady"},
		{StateDispatched, "Dispatched"},
		{StateResultsAvailable, "ResultsAvailable"},
		{State(42), "State(42)"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", int(tt.s), got, tt.want)
		}
	}
}

func TestInitDevice(t *testing.T) {
	b := newMockBackend()
	c := NewContext(WithBackend(b))
	defer c.Close()

	if c.HasDevice() {
		t.Fatal("HasDevice() = true before InitDevice")
	}
	if err := c.InitDevice(); err != nil {
		t.Fatalf("InitDevice() error = %v", err)
	}
	if !c.HasDevice() {
		t.Error("HasDevice() = false after InitDevice")
	}
	if c.State() != StateDeviceReady {
		t.Errorf("State() = %v, want DeviceReady", c.State())
	}
	info := c.DeviceInfo()
	if info.Name != "Mock Device" || info.Backend != "mock" {
		t.Errorf("DeviceInfo() = %+v", info)
	}

	if err := c.InitDevice(); !errors.Is(err, ErrAlreadyInitialized) {
		t.Errorf("second InitDevice() error = %v, want ErrAlreadyInitialized", err)
	}
}

func TestInitDeviceFailures(t *testing.T) {
	tests := []struct {
		name        string
		setup       func(b *mockBackend)
		want        error
		unavailable bool
	}{
		{
			name:        "no device",
			setup:       func(b *mockBackend) { b.openErr = ErrDeviceUnavailable },
			want:        ErrDeviceUnavailable,
			unavailable: true,
		},
		{
			name:        "nil device",
			setup:       func(b *mockBackend) { b.nilDevice = true },
			want:        ErrDeviceUnavailable,
			unavailable: true,
		},
		{
			name:  "open error",
			setup: func(b *mockBackend) { b.openErr = errInjected },
			want:  errInjected,
		},
		{
			name:  "queue",
			setup: func(b *mockBackend) { b.failQueue = true },
			want:  ErrQueueCreationFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newMockBackend()
			tt.setup(b)
			c := NewContext(WithBackend(b))

			err := c.InitDevice()
			if !errors.Is(err, tt.want) {
				t.Fatalf("InitDevice() error = %v, want %v", err, tt.want)
			}
			if got := IsDeviceUnavailable(err); got != tt.unavailable {
				t.Errorf("IsDeviceUnavailable() = %v, want %v", got, tt.unavailable)
			}
			if c.HasDevice() {
				t.Error("HasDevice() = true after failure")
			}
			if c.State() != StateUninitialized {
				t.Errorf("State() = %v, want Uninitialized", c.State())
			}
			if err := c.Close(); err != nil {
				t.Errorf("Close() error = %v", err)
			}
		})
	}
}

func TestInitDeviceQueueFailureReleasesDevice(t *testing.T) {
	b := newMockBackend()
	b.failQueue = true
	c := NewContext(WithBackend(b))

	_ = c.InitDevice()
	if got := b.releases("device"); got != 1 {
		t.Errorf("device released %d times, want 1", got)
	}
}

func TestCloseReleasesEverything(t *testing.T) {
	c, b, err := readyContext(16)
	if err != nil {
		t.Fatalf("readyContext() error = %v", err)
	}
	if c.State() != StateBuffersReady {
		t.Fatalf("State() = %v, want BuffersReady", c.State())
	}

	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	for kind, want := range map[string]int{"pipeline": 1, "buffer": 3, "queue": 1, "device": 1} {
		if got := b.releases(kind); got != want {
			t.Errorf("%s released %d times, want %d", kind, got, want)
		}
	}
	if c.HasDevice() || c.HasPipeline() || c.BufferSize() != 0 {
		t.Error("handles populated after Close")
	}
	if c.State() != StateUninitialized {
		t.Errorf("State() = %v, want Uninitialized", c.State())
	}

	// Idempotent.
	if err := c.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	if got := b.releases("device"); got != 1 {
		t.Errorf("device released %d times after second Close, want 1", got)
	}
}

func TestCloseFromPartialStates(t *testing.T) {
	tests := []struct {
		name  string
		steps func(c *Context) error
	}{
		{"never initialized", func(c *Context) error { return nil }},
		{"device only", func(c *Context) error { return c.InitDevice() }},
		{"pipeline without buffers", func(c *Context) error {
			if err := c.InitDevice(); err != nil {
				return err
			}
			return c.CreateComputePipeline([]byte(addShader))
		}},
		{"buffers without pipeline", func(c *Context) error {
			if err := c.InitDevice(); err != nil {
				return err
			}
			return c.CreateBuffers(8)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewContext(WithBackend(newMockBackend()))
			if err := tt.steps(c); err != nil {
				t.Fatalf("setup error = %v", err)
			}
			if err := c.Close(); err != nil {
				t.Fatalf("Close() error = %v", err)
			}
			if c.HasDevice() {
				t.Error("HasDevice() = true after Close")
			}
		})
	}
}

func TestReinitAfterClose(t *testing.T) {
	b := newMockBackend()
	c := NewContext(WithBackend(b))
	if err := c.InitDevice(); err != nil {
		t.Fatalf("InitDevice() error = %v", err)
	}
	_ = c.Close()
	if err := c.InitDevice(); err != nil {
		t.Fatalf("InitDevice() after Close error = %v", err)
	}
	_ = c.Close()
}

func TestInitDeviceUsesDefaultBackend(t *testing.T) {
	b := newMockBackend()
	b.name = "mock-default"
	if err := RegisterBackend(b); err != nil {
		t.Fatalf("RegisterBackend() error = %v", err)
	}

	c := NewContext()
	defer c.Close()
	if err := c.InitDevice(); err != nil {
		t.Fatalf("InitDevice() error = %v", err)
	}
	if got := c.DeviceInfo().Backend; got != "mock-default" {
		t.Errorf("Backend = %q, want mock-default", got)
	}
}
