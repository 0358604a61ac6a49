//go:build opencl

package opencl

import (
	"fmt"

	"github.com/robvanmieghem/go-opencl/cl"

	"github.com/gogpu/dispatch"
)

type buffer struct {
	device *device
	mem    *cl.MemObject
	size   uint64
}

func (b *buffer) Size() uint64 { return b.size }

func (b *buffer) check(offset uint64, n int) (*cl.CommandQueue, error) {
	if b.mem == nil {
		return nil, ErrReleased
	}
	end := offset + uint64(n)
	if end < offset || end > b.size {
		return nil, fmt.Errorf("opencl: range [%d,%d) outside buffer of %d bytes", offset, end, b.size)
	}
	return b.device.transferQueue()
}

func (b *buffer) Write(offset uint64, data []byte) error {
	q, err := b.check(offset, len(data))
	if err != nil {
		return err
	}
	_, err = q.EnqueueWriteBufferByte(b.mem, true, int(offset), data, nil) //nolint:gosec // bounds checked
	return err
}

func (b *buffer) Read(offset uint64, data []byte) error {
	q, err := b.check(offset, len(data))
	if err != nil {
		return err
	}
	_, err = q.EnqueueReadBufferByte(b.mem, true, int(offset), data, nil) //nolint:gosec // bounds checked
	return err
}

func (b *buffer) Release() {
	if b.mem != nil {
		b.mem.Release()
		b.mem = nil
	}
}

type queue struct {
	device *device
	q      *cl.CommandQueue
}

func (q *queue) NewCommandBuffer() (dispatch.CommandBuffer, error) {
	if q.q == nil {
		return nil, ErrReleased
	}
	return &commandBuffer{queue: q}, nil
}

func (q *queue) Release() {
	if q.q != nil {
		q.q.Release()
		q.q = nil
	}
}

// launch is one recorded kernel launch.
type launch struct {
	kernel *cl.Kernel
	global []int
	local  []int
}

type commandBuffer struct {
	queue     *queue
	launches  []launch
	ended     bool
	committed bool
}

func (cb *commandBuffer) ComputeEncoder() (dispatch.ComputeEncoder, error) {
	if cb.committed {
		return nil, fmt.Errorf("opencl: command buffer already committed")
	}
	return &encoder{cb: cb}, nil
}

// Commit enqueues the recorded launches without waiting for them.
func (cb *commandBuffer) Commit() error {
	if !cb.ended || len(cb.launches) == 0 {
		return ErrNotEncoded
	}
	q := cb.queue.q
	for _, l := range cb.launches {
		offset := make([]int, len(l.global))
		if _, err := q.EnqueueNDRangeKernel(l.kernel, offset, l.global, l.local, nil); err != nil {
			return fmt.Errorf("enqueue kernel: %w", err)
		}
	}
	cb.committed = true
	return nil
}

// WaitUntilCompleted blocks until the queue has drained.
func (cb *commandBuffer) WaitUntilCompleted() error {
	if !cb.committed {
		return ErrNotCommitted
	}
	return cb.queue.q.Finish()
}

func (cb *commandBuffer) Release() {}

type encoder struct {
	cb       *commandBuffer
	pipeline *pipeline
	buffers  []*buffer
	err      error
}

func (e *encoder) SetPipeline(p dispatch.ComputePipeline) {
	cp, ok := p.(*pipeline)
	if !ok {
		e.err = ErrForeignObject
		return
	}
	e.pipeline = cp
}

func (e *encoder) SetBuffer(index int, b dispatch.ComputeBuffer) {
	cb, ok := b.(*buffer)
	if !ok || cb.device != e.cb.queue.device {
		e.err = ErrForeignObject
		return
	}
	if index < 0 {
		e.err = fmt.Errorf("opencl: negative buffer index %d", index)
		return
	}
	for len(e.buffers) <= index {
		e.buffers = append(e.buffers, nil)
	}
	e.buffers[index] = cb
}

// Dispatch sets the kernel arguments and records the launch. The global
// size is groups times group size per dimension.
func (e *encoder) Dispatch(grid dispatch.Grid) error {
	if e.err != nil {
		return e.err
	}
	if e.pipeline == nil || e.pipeline.kernel == nil {
		return ErrNoPipeline
	}
	if len(e.buffers) < e.pipeline.bindings {
		return fmt.Errorf("%w: %d of %d bound", ErrUnboundBuffer, len(e.buffers), e.pipeline.bindings)
	}
	for i := range e.pipeline.bindings {
		b := e.buffers[i]
		if b == nil || b.mem == nil {
			return fmt.Errorf("%w: %d", ErrUnboundBuffer, i)
		}
		if err := e.pipeline.kernel.SetArgBuffer(i, b.mem); err != nil {
			return fmt.Errorf("opencl: set argument %d: %w", i, err)
		}
	}

	dims := 1
	if grid.Groups[2] > 1 || grid.GroupSize[2] > 1 {
		dims = 3
	} else if grid.Groups[1] > 1 || grid.GroupSize[1] > 1 {
		dims = 2
	}
	l := launch{kernel: e.pipeline.kernel, global: make([]int, dims), local: make([]int, dims)}
	for i := range dims {
		l.global[i] = int(grid.Groups[i]) * int(grid.GroupSize[i])
		l.local[i] = int(grid.GroupSize[i])
	}
	e.cb.launches = append(e.cb.launches, l)
	return nil
}

func (e *encoder) End() error {
	e.cb.ended = true
	return e.err
}
