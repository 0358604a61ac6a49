package dispatch

import (
	"errors"
	"testing"
)

func TestDispatchGrid(t *testing.T) {
	for _, n := range []uint32{1, 16, 65535, 1 << 20} {
		g := DispatchGrid(n)
		if g.Groups != [3]uint32{n, 1, 1} {
			t.Errorf("DispatchGrid(%d).Groups = %v", n, g.Groups)
		}
		if g.GroupSize != [3]uint32{1, 1, 1} {
			t.Errorf("DispatchGrid(%d).GroupSize = %v", n, g.GroupSize)
		}
		if g.Invocations() != uint64(n) {
			t.Errorf("DispatchGrid(%d).Invocations() = %d", n, g.Invocations())
		}
	}
}

func TestGridInvocations(t *testing.T) {
	g := Grid{Groups: [3]uint32{4, 2, 1}, GroupSize: [3]uint32{8, 1, 2}}
	if got := g.Invocations(); got != 128 {
		t.Errorf("Invocations() = %d, want 128", got)
	}
}

func TestDispatchCompute(t *testing.T) {
	c, b, err := readyContext(16 * 4)
	if err != nil {
		t.Fatalf("readyContext() error = %v", err)
	}
	defer c.Close()
	b.kernel = addKernel

	in := make([]float32, 16)
	for i := range in {
		in[i] = float32(i)
	}
	_ = c.UploadData(0, Float32Bytes(in))
	_ = c.UploadData(1, Float32Bytes(in))

	if err := c.DispatchCompute(16); err != nil {
		t.Fatalf("DispatchCompute() error = %v", err)
	}
	if c.State() != StateResultsAvailable {
		t.Errorf("State() = %v, want ResultsAvailable", c.State())
	}
	if len(b.grids) != 1 || b.grids[0] != DispatchGrid(16) {
		t.Errorf("recorded grids = %v, want [%v]", b.grids, DispatchGrid(16))
	}
	if got := b.releases("command"); got != 1 {
		t.Errorf("command buffer released %d times, want 1", got)
	}

	out := make([]byte, 16*4)
	if err := c.DownloadData(2, out); err != nil {
		t.Fatalf("DownloadData() error = %v", err)
	}
	for i, v := range BytesFloat32(out) {
		if v != float32(2*i) {
			t.Errorf("result[%d] = %v, want %v", i, v, float32(2*i))
		}
	}

	// A second dispatch on the same state is allowed.
	if err := c.DispatchCompute(16); err != nil {
		t.Fatalf("second DispatchCompute() error = %v", err)
	}
}

func TestDispatchComputeZeroItems(t *testing.T) {
	c, b, err := readyContext(16)
	if err != nil {
		t.Fatalf("readyContext() error = %v", err)
	}
	defer c.Close()

	if err := c.DispatchCompute(0); err != nil {
		t.Fatalf("DispatchCompute(0) error = %v", err)
	}
	if b.commits != 0 {
		t.Errorf("commits = %d, want 0", b.commits)
	}
	if c.State() != StateBuffersReady {
		t.Errorf("State() = %v, want BuffersReady", c.State())
	}
}

func TestDispatchComputePreconditions(t *testing.T) {
	tests := []struct {
		name  string
		steps func(c *Context)
		want  error
	}{
		{
			name:  "no device",
			steps: func(c *Context) {},
			want:  ErrBufferNotInitialized,
		},
		{
			name:  "no pipeline",
			steps: func(c *Context) { _ = c.InitDevice(); _ = c.CreateBuffers(4) },
			want:  ErrPipelineNotReady,
		},
		{
			name: "no buffers",
			steps: func(c *Context) {
				_ = c.InitDevice()
				_ = c.CreateComputePipeline([]byte(addShader))
			},
			want: ErrBufferNotInitialized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newMockBackend()
			c := NewContext(WithBackend(b))
			defer c.Close()
			tt.steps(c)

			if err := c.DispatchCompute(4); !errors.Is(err, tt.want) {
				t.Fatalf("DispatchCompute() error = %v, want %v", err, tt.want)
			}
			if b.commits != 0 {
				t.Error("work submitted despite failed precondition")
			}
		})
	}
}

func TestDispatchComputeIncompleteBuffers(t *testing.T) {
	b := newMockBackend()
	b.failBufferAt = 2
	c := NewContext(WithBackend(b))
	defer c.Close()
	_ = c.InitDevice()
	_ = c.CreateComputePipeline([]byte(addShader))
	_ = c.CreateBuffers(4)

	if err := c.DispatchCompute(1); !errors.Is(err, ErrBufferNotInitialized) {
		t.Fatalf("DispatchCompute() error = %v, want ErrBufferNotInitialized", err)
	}
	if c.State() != StatePipelineReady {
		t.Errorf("State() = %v, want PipelineReady", c.State())
	}
}

func TestDispatchComputeFailures(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(b *mockBackend)
		want      error
		wantState State
	}{
		{"command buffer", func(b *mockBackend) { b.failCmdBuffer = true }, ErrCommandBufferCreation, StateBuffersReady},
		{"encoder", func(b *mockBackend) { b.failEncoder = true }, ErrEncoderCreation, StateBuffersReady},
		{"record", func(b *mockBackend) { b.failDispatch = true }, ErrEncoderCreation, StateBuffersReady},
		{"submit", func(b *mockBackend) { b.failCommit = true }, ErrDeviceExecution, StateBuffersReady},
		{"completion", func(b *mockBackend) { b.failWait = true }, ErrDeviceExecution, StateDispatched},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, b, err := readyContext(16)
			if err != nil {
				t.Fatalf("readyContext() error = %v", err)
			}
			defer c.Close()
			tt.setup(b)

			err = c.DispatchCompute(4)
			if !errors.Is(err, tt.want) {
				t.Fatalf("DispatchCompute() error = %v, want %v", err, tt.want)
			}
			if !errors.Is(err, errInjected) {
				t.Errorf("backend error not in chain: %v", err)
			}
			if c.State() != tt.wantState {
				t.Errorf("State() = %v, want %v", c.State(), tt.wantState)
			}
		})
	}
}
