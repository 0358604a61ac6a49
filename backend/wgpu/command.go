//go:build !nogpu

package wgpu

import (
	"errors"
	"fmt"

	"github.com/gogpu/dispatch"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// Command errors.
var (
	ErrNotEncoded       = errors.New("wgpu: command buffer has no finished encoder")
	ErrAlreadyCommitted = errors.New("wgpu: command buffer already committed")
	ErrNotCommitted     = errors.New("wgpu: command buffer not committed")
	ErrNoPipeline       = errors.New("wgpu: no pipeline set")
	ErrUnboundBuffer    = errors.New("wgpu: buffer slot not bound")
	ErrGridTooLarge     = errors.New("wgpu: dispatch exceeds the device workgroup limit")
)

type queue struct {
	device *device
}

// checkGrid rejects grids the HAL would pass to the driver unchecked.
func (d *device) checkGrid(grid dispatch.Grid) error {
	limit := d.limits.MaxComputeWorkgroupsPerDimension
	for i, n := range grid.Groups {
		if n > limit {
			return fmt.Errorf("%w: %d workgroups in dimension %d, limit %d", ErrGridTooLarge, n, i, limit)
		}
	}
	return nil
}

// NewCommandBuffer opens a HAL command encoder.
func (q *queue) NewCommandBuffer() (dispatch.CommandBuffer, error) {
	d := q.device
	if d.isReleased() {
		return nil, ErrReleased
	}
	encoder, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "dispatch_encoder"})
	if err != nil {
		return nil, fmt.Errorf("create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("dispatch"); err != nil {
		return nil, fmt.Errorf("begin encoding: %w", err)
	}
	return &commandBuffer{device: d, encoder: encoder}, nil
}

func (q *queue) Release() {}

type commandBuffer struct {
	device  *device
	encoder hal.CommandEncoder

	bindGroups []hal.BindGroup
	passes     int
	ended      bool
	committed  bool
	waited     bool
	waitErr    error

	cmdBuf hal.CommandBuffer
	fence  hal.Fence
}

func (cb *commandBuffer) ComputeEncoder() (dispatch.ComputeEncoder, error) {
	if cb.committed {
		return nil, ErrAlreadyCommitted
	}
	return &encoder{cb: cb}, nil
}

// Commit ends encoding and submits with a fresh fence.
func (cb *commandBuffer) Commit() error {
	if cb.committed {
		return ErrAlreadyCommitted
	}
	if !cb.ended || cb.passes == 0 {
		return ErrNotEncoded
	}
	d := cb.device

	cmdBuf, err := cb.encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("end encoding: %w", err)
	}
	cb.encoder = nil
	cb.cmdBuf = cmdBuf

	fence, err := d.device.CreateFence()
	if err != nil {
		return fmt.Errorf("create fence: %w", err)
	}
	cb.fence = fence

	if err := d.queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1); err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	cb.committed = true
	return nil
}

func (cb *commandBuffer) WaitUntilCompleted() error {
	if !cb.committed {
		return ErrNotCommitted
	}
	if !cb.waited {
		cb.waitErr = cb.device.wait(cb.fence)
		cb.waited = true
	}
	return cb.waitErr
}

// Release frees the command buffer, its fence and bind groups. An
// unfinished encoding is discarded.
func (cb *commandBuffer) Release() {
	d := cb.device
	if d.isReleased() {
		return
	}
	if cb.encoder != nil {
		cb.encoder.DiscardEncoding()
		cb.encoder = nil
	}
	if cb.cmdBuf != nil {
		d.device.FreeCommandBuffer(cb.cmdBuf)
		cb.cmdBuf = nil
	}
	if cb.fence != nil {
		d.device.DestroyFence(cb.fence)
		cb.fence = nil
	}
	for _, bg := range cb.bindGroups {
		d.device.DestroyBindGroup(bg)
	}
	cb.bindGroups = nil
}

type encoder struct {
	cb *commandBuffer

	pipeline *pipeline
	buffers  []*buffer
	err      error
}

func (e *encoder) SetPipeline(p dispatch.ComputePipeline) {
	wp, ok := p.(*pipeline)
	if !ok || wp.device != e.cb.device {
		e.err = ErrForeignObject
		return
	}
	e.pipeline = wp
}

func (e *encoder) SetBuffer(index int, b dispatch.ComputeBuffer) {
	wb, ok := b.(*buffer)
	if !ok || wb.device != e.cb.device {
		e.err = ErrForeignObject
		return
	}
	if index < 0 {
		e.err = fmt.Errorf("wgpu: negative buffer index %d", index)
		return
	}
	for len(e.buffers) <= index {
		e.buffers = append(e.buffers, nil)
	}
	e.buffers[index] = wb
}

// Dispatch creates the bind group for the bound buffers and records one
// compute pass.
func (e *encoder) Dispatch(grid dispatch.Grid) error {
	if e.err != nil {
		return e.err
	}
	if e.pipeline == nil || e.pipeline.pipeline == nil {
		return ErrNoPipeline
	}
	if e.cb.encoder == nil {
		return ErrAlreadyCommitted
	}
	if len(e.buffers) < e.pipeline.bindings {
		return fmt.Errorf("%w: %d of %d bound", ErrUnboundBuffer, len(e.buffers), e.pipeline.bindings)
	}
	if err := e.cb.device.checkGrid(grid); err != nil {
		return err
	}

	entries := make([]gputypes.BindGroupEntry, 0, e.pipeline.bindings)
	for i := range e.pipeline.bindings {
		b := e.buffers[i]
		if b == nil || b.buf == nil {
			return fmt.Errorf("%w: %d", ErrUnboundBuffer, i)
		}
		entries = append(entries, gputypes.BindGroupEntry{
			Binding:  uint32(i), //nolint:gosec // i < bindings
			Resource: gputypes.BufferBinding{Buffer: b.buf.NativeHandle(), Offset: 0, Size: b.padded},
		})
	}

	d := e.cb.device
	bg, err := d.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   "dispatch_bind_group",
		Layout:  e.pipeline.bindLayout,
		Entries: entries,
	})
	if err != nil {
		return fmt.Errorf("create bind group: %w", err)
	}
	e.cb.bindGroups = append(e.cb.bindGroups, bg)

	pass := e.cb.encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: "dispatch_pass"})
	pass.SetPipeline(e.pipeline.pipeline)
	pass.SetBindGroup(0, bg, nil)
	pass.Dispatch(grid.Groups[0], grid.Groups[1], grid.Groups[2])
	pass.End()
	e.cb.passes++

	logger.Get().Debug("wgpu: dispatch recorded",
		"entry", e.pipeline.entry,
		"groups", grid.Groups)
	return nil
}

func (e *encoder) End() error {
	e.cb.ended = true
	return e.err
}
