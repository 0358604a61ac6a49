package host

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/gogpu/dispatch"
	"github.com/gogpu/dispatch/internal/parallel"
)

// Command errors.
var (
	ErrNotEncoded       = errors.New("host: command buffer has no finished encoder")
	ErrAlreadyCommitted = errors.New("host: command buffer already committed")
	ErrNotCommitted     = errors.New("host: command buffer not committed")
	ErrUnboundBuffer    = errors.New("host: buffer slot not bound")
	ErrNoPipeline       = errors.New("host: no pipeline set")
)

type queue struct {
	device *device
}

func (q *queue) NewCommandBuffer() (dispatch.CommandBuffer, error) {
	if q.device.isReleased() {
		return nil, ErrReleased
	}
	return &commandBuffer{queue: q}, nil
}

func (q *queue) Release() {}

// dispatchCmd is one recorded dispatch.
type dispatchCmd struct {
	pipeline *pipeline
	buffers  []*buffer
	grid     dispatch.Grid
}

type commandBuffer struct {
	queue *queue

	mu        sync.Mutex
	commands  []dispatchCmd
	encoding  bool
	ended     bool
	committed bool
	done      chan error
}

func (cb *commandBuffer) ComputeEncoder() (dispatch.ComputeEncoder, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.committed {
		return nil, ErrAlreadyCommitted
	}
	if cb.encoding {
		return nil, errors.New("host: encoder already open")
	}
	cb.encoding = true
	return &encoder{cb: cb}, nil
}

// Commit starts executing the recorded dispatches in order and returns
// without waiting for them.
func (cb *commandBuffer) Commit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.committed {
		return ErrAlreadyCommitted
	}
	if !cb.ended || cb.encoding {
		return ErrNotEncoded
	}
	cb.committed = true
	cb.done = make(chan error, 1)

	commands := cb.commands
	pool := cb.queue.device.pool
	go func() {
		for _, c := range commands {
			if err := run(pool, c); err != nil {
				cb.done <- err
				return
			}
		}
		cb.done <- nil
	}()
	return nil
}

func (cb *commandBuffer) WaitUntilCompleted() error {
	cb.mu.Lock()
	done := cb.done
	cb.mu.Unlock()
	if done == nil {
		return ErrNotCommitted
	}
	err := <-done
	// Leave the result for repeated waits.
	done <- err
	return err
}

func (cb *commandBuffer) Release() {}

// invocations returns the number of invocations of g and whether it fits
// in a uint32.
func invocations(g dispatch.Grid) (uint64, bool) {
	dims := [6]uint32{
		g.Groups[0], g.Groups[1], g.Groups[2],
		g.GroupSize[0], g.GroupSize[1], g.GroupSize[2],
	}
	for _, d := range dims {
		if d == 0 {
			return 0, true
		}
	}
	n := uint64(1)
	for _, d := range dims {
		n *= uint64(d)
		if n > math.MaxUint32 {
			return n, false
		}
	}
	return n, true
}

// run executes every threadgroup of c on pool. Invocation ids are the
// flattened global index, x fastest.
func run(pool *parallel.WorkerPool, c dispatchCmd) error {
	n, ok := invocations(c.grid)
	if n == 0 {
		return nil
	}
	// Every id, and so every group count, must fit in a uint32.
	if !ok {
		return fmt.Errorf("host: grid %v x %v exceeds the id range", c.grid.Groups, c.grid.GroupSize)
	}
	groups := c.grid.Groups[0] * c.grid.Groups[1] * c.grid.Groups[2]
	perGroup := c.grid.GroupSize[0] * c.grid.GroupSize[1] * c.grid.GroupSize[2]

	views := make([][]byte, len(c.buffers))
	for i, b := range c.buffers {
		views[i] = b.bytes()
		if views[i] == nil {
			return fmt.Errorf("%w: buffer %d", ErrReleased, i)
		}
	}

	k := c.pipeline.kernel
	err := pool.Dispatch(groups, func(g uint32) {
		base := g * perGroup
		for t := range perGroup {
			k(base+t, views)
		}
	}).Wait()
	if err != nil {
		return fmt.Errorf("host: kernel %s: %w", c.pipeline.entry, err)
	}
	return nil
}

type encoder struct {
	cb *commandBuffer

	pipeline *pipeline
	buffers  []*buffer
	err      error
}

func (e *encoder) SetPipeline(p dispatch.ComputePipeline) {
	hp, ok := p.(*pipeline)
	if !ok {
		e.err = ErrForeignObject
		return
	}
	e.pipeline = hp
}

func (e *encoder) SetBuffer(index int, b dispatch.ComputeBuffer) {
	hb, ok := b.(*buffer)
	if !ok || hb.device != e.cb.queue.device {
		e.err = ErrForeignObject
		return
	}
	if index < 0 {
		e.err = fmt.Errorf("host: negative buffer index %d", index)
		return
	}
	for len(e.buffers) <= index {
		e.buffers = append(e.buffers, nil)
	}
	e.buffers[index] = hb
}

func (e *encoder) Dispatch(grid dispatch.Grid) error {
	if e.err != nil {
		return e.err
	}
	if e.pipeline == nil {
		return ErrNoPipeline
	}
	if len(e.buffers) < e.pipeline.bindings {
		return fmt.Errorf("%w: %d of %d bound", ErrUnboundBuffer, len(e.buffers), e.pipeline.bindings)
	}
	for i, b := range e.buffers {
		if b == nil {
			return fmt.Errorf("%w: %d", ErrUnboundBuffer, i)
		}
	}

	e.cb.mu.Lock()
	defer e.cb.mu.Unlock()
	e.cb.commands = append(e.cb.commands, dispatchCmd{
		pipeline: e.pipeline,
		buffers:  append([]*buffer(nil), e.buffers...),
		grid:     grid,
	})
	return nil
}

func (e *encoder) End() error {
	e.cb.mu.Lock()
	defer e.cb.mu.Unlock()
	e.cb.encoding = false
	e.cb.ended = true
	return e.err
}
