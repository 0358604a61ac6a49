// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package dispatch

import (
	"fmt"
	"log/slog"
	"sync"
)

// State is the furthest lifecycle stage a Context has reached.
type State int

const (
	// StateUninitialized means no device is held.
	StateUninitialized State = iota
	// StateDeviceReady means device and queue exist.
	StateDeviceReady
	// StatePipelineReady means a pipeline exists but no buffer set.
	StatePipelineReady
	// StateBuffersReady means pipeline and buffer set exist.
	StateBuffersReady
	// StateDispatched means a dispatch was submitted.
	StateDispatched
	// StateResultsAvailable means the last dispatch completed.
	StateResultsAvailable
)

// String returns the string representation of State.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "Uninitialized"
	case StateDeviceReady:
		return "DeviceReady"
	case StatePipelineReady:
		return "PipelineReady"
	case StateBuffersReady:
		return "BuffersReady"
	case StateDispatched:
		return "Dispatched"
	case StateResultsAvailable:
		return "ResultsAvailable"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Context owns one compute device, its command queue, at most one
// pipeline and one buffer set.
//
// The intended call order is
//
//	InitDevice → CreateComputePipeline → CreateBuffers → UploadData →
//	DispatchCompute → DownloadData → Close
//
// Every operation checks its own preconditions and returns an error rather
// than panicking when called out of order. Close may be called from any
// state, any number of times.
//
// Context is safe for concurrent use, but operations are serialized:
// a dispatch holds the context until the device has finished.
type Context struct {
	mu sync.Mutex

	opts   contextOptions
	logger *slog.Logger

	backend  Backend
	device   ComputeDevice
	queue    ComputeQueue
	pipeline ComputePipeline

	buffers    []ComputeBuffer
	bufferSize uint64

	info  DeviceInfo
	state State
}

// NewContext creates a context. No device is acquired until InitDevice.
func NewContext(opts ...ContextOption) *Context {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	l := o.logger
	if l == nil {
		l = Logger()
	}
	return &Context{opts: o, logger: l}
}

// InitDevice acquires the backend's default compute device and creates its
// command queue.
//
// It returns an error wrapping ErrDeviceUnavailable when no compute device
// exists (or no backend is available), ErrQueueCreationFailed when the
// queue cannot be created, and ErrAlreadyInitialized when the context
// already holds a device.
func (c *Context) InitDevice() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.device != nil {
		return ErrAlreadyInitialized
	}

	b := c.opts.backend
	if b == nil {
		b = DefaultBackend()
	}
	if b == nil {
		return fmt.Errorf("%w: no backend registered", ErrDeviceUnavailable)
	}
	if c.opts.logger != nil {
		propagateLogger(b, c.opts.logger)
	}

	device, err := b.OpenDevice()
	if err != nil {
		if IsDeviceUnavailable(err) {
			c.logger.Info("dispatch: no compute device", "backend", b.Name(), "err", err)
			return err
		}
		return fmt.Errorf("dispatch: open %s device: %w", b.Name(), err)
	}
	if device == nil {
		return fmt.Errorf("%w: %s returned no device", ErrDeviceUnavailable, b.Name())
	}

	queue, err := device.CreateQueue()
	if err != nil || queue == nil {
		device.Release()
		if err == nil {
			return ErrQueueCreationFailed
		}
		return fmt.Errorf("%w: %w", ErrQueueCreationFailed, err)
	}

	c.backend = b
	c.device = device
	c.queue = queue
	c.info = device.Info()
	c.state = StateDeviceReady
	c.logger.Info("dispatch: device initialized",
		"backend", c.info.Backend,
		"device", c.info.Name,
		"type", c.info.Type)
	return nil
}

// HasDevice reports whether the device handle is populated.
func (c *Context) HasDevice() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.device != nil
}

// DeviceInfo describes the opened device. It is zero before InitDevice.
func (c *Context) DeviceInfo() DeviceInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.info
}

// State returns the furthest lifecycle stage reached.
func (c *Context) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Close releases the pipeline, the buffers, the queue and the device, in
// that order. Each step is skipped when its handle is nil and the handle
// is cleared afterwards, so Close is safe on a partially initialized
// context and may be called repeatedly.
func (c *Context) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pipeline != nil {
		c.pipeline.Release()
		c.pipeline = nil
	}
	c.releaseBuffersLocked()
	if c.queue != nil {
		c.queue.Release()
		c.queue = nil
	}
	if c.device != nil {
		c.device.Release()
		c.device = nil
		c.logger.Info("dispatch: device released", "device", c.info.Name)
	}
	c.backend = nil
	c.info = DeviceInfo{}
	c.state = StateUninitialized
	return nil
}

// releaseBuffersLocked releases every allocated buffer of the set.
func (c *Context) releaseBuffersLocked() {
	for i, b := range c.buffers {
		if b != nil {
			b.Release()
			c.buffers[i] = nil
		}
	}
	c.buffers = nil
	c.bufferSize = 0
}

// updateStateLocked recomputes the resource-derived part of the state.
func (c *Context) updateStateLocked() {
	switch {
	case c.device == nil:
		c.state = StateUninitialized
	case c.pipeline != nil && c.buffersCompleteLocked():
		c.state = StateBuffersReady
	case c.pipeline != nil:
		c.state = StatePipelineReady
	default:
		c.state = StateDeviceReady
	}
}

// buffersCompleteLocked reports whether every slot holds a buffer.
func (c *Context) buffersCompleteLocked() bool {
	if len(c.buffers) == 0 {
		return false
	}
	for _, b := range c.buffers {
		if b == nil {
			return false
		}
	}
	return true
}
