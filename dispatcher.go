package dispatch

import (
	"fmt"
)

// Grid is a dispatch size in threadgroups and threads per group.
type Grid struct {
	Groups    [3]uint32
	GroupSize [3]uint32
}

// Invocations returns the total number of kernel invocations.
func (g Grid) Invocations() uint64 {
	n := uint64(1)
	for i := range 3 {
		n *= uint64(g.Groups[i]) * uint64(g.GroupSize[i])
	}
	return n
}

// DispatchGrid maps workItemCount to a grid of workItemCount threadgroups of
// exactly one thread each. Shaders must declare a workgroup size of one.
func DispatchGrid(workItemCount uint32) Grid {
	return Grid{
		Groups:    [3]uint32{workItemCount, 1, 1},
		GroupSize: [3]uint32{1, 1, 1},
	}
}

// DispatchCompute records one compute dispatch over workItemCount items,
// binding the current pipeline and every buffer to argument slots
// 0..n-1, submits it and blocks until the device reports completion.
//
// A zero workItemCount is a no-op. Failures after submission, including
// kernel faults reported by the backend and completion timeouts, are
// returned as ErrDeviceExecution.
func (c *Context) DispatchCompute(workItemCount uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.device == nil || c.queue == nil {
		return fmt.Errorf("%w: %w", ErrBufferNotInitialized, ErrDeviceNotInitialized)
	}
	if c.pipeline == nil {
		return ErrPipelineNotReady
	}
	if !c.buffersCompleteLocked() {
		return fmt.Errorf("%w: buffer set incomplete", ErrBufferNotInitialized)
	}
	if workItemCount == 0 {
		return nil
	}

	grid := DispatchGrid(workItemCount)

	cmd, err := c.queue.NewCommandBuffer()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCommandBufferCreation, err)
	}
	if cmd == nil {
		return ErrCommandBufferCreation
	}
	defer cmd.Release()

	if err := c.encodeLocked(cmd, grid); err != nil {
		return err
	}

	if err := cmd.Commit(); err != nil {
		return fmt.Errorf("%w: submit: %w", ErrDeviceExecution, err)
	}
	c.state = StateDispatched

	if err := cmd.WaitUntilCompleted(); err != nil {
		c.logger.Warn("dispatch: device reported failure", "err", err)
		return fmt.Errorf("%w: %w", ErrDeviceExecution, err)
	}
	c.state = StateResultsAvailable

	c.logger.Debug("dispatch: compute completed",
		"entry", c.pipeline.EntryPoint(),
		"groups", grid.Groups[0],
		"buffers", len(c.buffers))
	return nil
}

// encodeLocked records pipeline, buffer bindings and the dispatch into cmd.
func (c *Context) encodeLocked(cmd CommandBuffer, grid Grid) error {
	enc, err := cmd.ComputeEncoder()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrEncoderCreation, err)
	}
	if enc == nil {
		return ErrEncoderCreation
	}

	enc.SetPipeline(c.pipeline)
	for i, b := range c.buffers {
		enc.SetBuffer(i, b)
	}
	if err := enc.Dispatch(grid); err != nil {
		_ = enc.End()
		return fmt.Errorf("%w: record dispatch: %w", ErrEncoderCreation, err)
	}
	if err := enc.End(); err != nil {
		return fmt.Errorf("%w: end encoding: %w", ErrEncoderCreation, err)
	}
	return nil
}
