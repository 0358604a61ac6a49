//go:build !nogpu

package wgpu

import (
	"fmt"

	"github.com/gogpu/dispatch"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// align4 rounds n up to the 4-byte granularity of buffer copies.
func align4(n uint64) uint64 { return (n + 3) &^ 3 }

func (d *device) CreateBuffer(slot int, size uint64) (dispatch.ComputeBuffer, error) {
	if d.isReleased() {
		return nil, ErrReleased
	}
	padded := align4(size)
	buf, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: fmt.Sprintf("dispatch_slot_%d", slot),
		Size:  padded,
		Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst | gputypes.BufferUsageCopySrc,
	})
	if err != nil {
		return nil, err
	}
	return &buffer{device: d, buf: buf, size: size, padded: padded}, nil
}

// buffer is a device-local storage buffer. Its allocation is padded to a
// multiple of four bytes; size is the length visible to callers.
type buffer struct {
	device *device
	buf    hal.Buffer
	size   uint64
	padded uint64
}

func (b *buffer) Size() uint64 { return b.size }

func (b *buffer) check(offset uint64, n int) error {
	if b.buf == nil || b.device.isReleased() {
		return ErrReleased
	}
	end := offset + uint64(n)
	if end < offset || end > b.size {
		return fmt.Errorf("wgpu: range [%d,%d) outside buffer of %d bytes", offset, end, b.size)
	}
	return nil
}

// Write uploads data at offset. Unaligned ranges are widened to whole
// words with a read-modify-write.
func (b *buffer) Write(offset uint64, data []byte) error {
	if err := b.check(offset, len(data)); err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}

	lo := offset &^ 3
	hi := align4(offset + uint64(len(data)))
	if lo == offset && hi == offset+uint64(len(data)) {
		b.device.queue.WriteBuffer(b.buf, offset, data)
		return nil
	}

	words := make([]byte, hi-lo)
	if err := b.readRange(lo, words); err != nil {
		return err
	}
	copy(words[offset-lo:], data)
	b.device.queue.WriteBuffer(b.buf, lo, words)
	return nil
}

// Read downloads len(data) bytes at offset.
func (b *buffer) Read(offset uint64, data []byte) error {
	if err := b.check(offset, len(data)); err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}

	lo := offset &^ 3
	hi := align4(offset + uint64(len(data)))
	if lo == offset && hi == offset+uint64(len(data)) {
		return b.readRange(offset, data)
	}
	words := make([]byte, hi-lo)
	if err := b.readRange(lo, words); err != nil {
		return err
	}
	copy(data, words[offset-lo:])
	return nil
}

// readRange copies a word-aligned range into a staging buffer, waits for
// the copy and reads it back. len(out) must be a multiple of four.
func (b *buffer) readRange(offset uint64, out []byte) error {
	d := b.device
	size := uint64(len(out))

	staging, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "dispatch_staging",
		Size:  size,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("create staging buffer: %w", err)
	}
	defer d.device.DestroyBuffer(staging)

	err = d.submitAndWait("dispatch_readback", func(enc hal.CommandEncoder) error {
		enc.CopyBufferToBuffer(b.buf, staging, []hal.BufferCopy{
			{SrcOffset: offset, DstOffset: 0, Size: size},
		})
		return nil
	})
	if err != nil {
		return err
	}
	if err := d.queue.ReadBuffer(staging, 0, out); err != nil {
		return fmt.Errorf("readback: %w", err)
	}
	return nil
}

func (b *buffer) Release() {
	if b.buf != nil && !b.device.isReleased() {
		b.device.device.DestroyBuffer(b.buf)
	}
	b.buf = nil
}

// submitAndWait records commands with encode, submits them and blocks until
// the fence signals.
func (d *device) submitAndWait(label string, encode func(hal.CommandEncoder) error) error {
	encoder, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: label})
	if err != nil {
		return fmt.Errorf("create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding(label); err != nil {
		return fmt.Errorf("begin encoding: %w", err)
	}
	if err := encode(encoder); err != nil {
		encoder.DiscardEncoding()
		return err
	}
	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("end encoding: %w", err)
	}
	defer d.device.FreeCommandBuffer(cmdBuf)

	fence, err := d.device.CreateFence()
	if err != nil {
		return fmt.Errorf("create fence: %w", err)
	}
	defer d.device.DestroyFence(fence)

	if err := d.queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1); err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	return d.wait(fence)
}

// wait blocks until fence reaches 1 or the timeout expires.
func (d *device) wait(fence hal.Fence) error {
	ok, err := d.device.Wait(fence, 1, d.timeout)
	if err != nil {
		return fmt.Errorf("wait for GPU: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w after %v", ErrFenceTimeout, d.timeout)
	}
	return nil
}
