package dispatch

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// CreateBuffers allocates one shared storage buffer of size bytes per
// binding (three with the default layout).
//
// If an allocation fails, the returned *BufferAllocationError names the
// failing slot; buffers allocated before it stay allocated and are
// released by Close. Calling CreateBuffers again releases the whole
// previous set first. Individual buffers cannot be reallocated.
func (c *Context) CreateBuffers(size uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.device == nil {
		return fmt.Errorf("%w: %w", ErrBufferNotInitialized, ErrDeviceNotInitialized)
	}
	if err := validateBindings(c.opts.bindings); err != nil {
		return err
	}
	if size == 0 {
		return &BufferAllocationError{Slot: 0, Size: size, Err: errors.New("zero size")}
	}

	if c.buffers != nil {
		c.releaseBuffersLocked()
	}
	c.buffers = make([]ComputeBuffer, len(c.opts.bindings))
	c.bufferSize = size

	for _, b := range c.opts.bindings {
		buf, err := c.device.CreateBuffer(b.Slot, size)
		if err == nil && buf == nil {
			err = errors.New("backend returned no buffer")
		}
		if err != nil {
			c.updateStateLocked()
			c.logger.Debug("dispatch: buffer allocation failed",
				"slot", b.Slot,
				"size", size,
				"err", err)
			return &BufferAllocationError{Slot: b.Slot, Size: size, Err: err}
		}
		c.buffers[b.Slot] = buf
	}

	c.updateStateLocked()
	c.logger.Debug("dispatch: buffers created",
		"count", len(c.buffers),
		"size", size)
	return nil
}

// UploadData copies data into the buffer at index.
// len(data) must not exceed the allocated buffer size.
func (c *Context) UploadData(index int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	buf, err := c.bufferLocked(index, len(data))
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	if err := buf.Write(0, data); err != nil {
		return fmt.Errorf("dispatch: upload slot %d: %w", index, err)
	}
	return nil
}

// DownloadData copies len(data) bytes from the buffer at index into data.
// len(data) must not exceed the allocated buffer size.
func (c *Context) DownloadData(index int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	buf, err := c.bufferLocked(index, len(data))
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	if err := buf.Read(0, data); err != nil {
		return fmt.Errorf("dispatch: download slot %d: %w", index, err)
	}
	return nil
}

// bufferLocked validates index and transfer size and returns the slot's
// buffer.
func (c *Context) bufferLocked(index, n int) (ComputeBuffer, error) {
	count := len(c.opts.bindings)
	if index < 0 || index >= count {
		return nil, fmt.Errorf("%w: %d not in [0,%d)", ErrInvalidBufferIndex, index, count)
	}
	if index >= len(c.buffers) || c.buffers[index] == nil {
		return nil, fmt.Errorf("%w: slot %d", ErrBufferNotInitialized, index)
	}
	if uint64(n) > c.bufferSize {
		return nil, fmt.Errorf("%w: %d bytes, slot %d holds %d", ErrBufferBounds, n, index, c.bufferSize)
	}
	return c.buffers[index], nil
}

// BufferSize returns the per-buffer size of the current set, or 0.
func (c *Context) BufferSize() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bufferSize
}

// Bindings returns a copy of the context's binding list.
func (c *Context) Bindings() []Binding {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Binding(nil), c.opts.bindings...)
}

// AllocatedBuffers reports which slots currently hold a buffer.
func (c *Context) AllocatedBuffers() []bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]bool, len(c.opts.bindings))
	for i := range out {
		out[i] = i < len(c.buffers) && c.buffers[i] != nil
	}
	return out
}

// Float32Bytes encodes vs as little-endian IEEE 754 bytes, the layout of
// an array<f32> storage buffer.
func Float32Bytes(vs []float32) []byte {
	out := make([]byte, len(vs)*4)
	for i, v := range vs {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
	return out
}

// BytesFloat32 decodes little-endian IEEE 754 bytes. Trailing bytes that
// do not form a whole float are ignored.
func BytesFloat32(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}
