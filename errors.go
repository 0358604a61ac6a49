// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package dispatch

import (
	"errors"
	"fmt"
)

// Device errors.
var (
	// ErrDeviceUnavailable is returned when the host has no compute-capable
	// device. Callers should treat it as an unsupported platform rather
	// than a defect.
	ErrDeviceUnavailable = errors.New("dispatch: no compute-capable device available")

	// ErrQueueCreationFailed is returned when a device was found but its
	// command queue could not be created.
	ErrQueueCreationFailed = errors.New("dispatch: command queue creation failed")

	// ErrAlreadyInitialized is returned by InitDevice on a context that
	// already owns a device.
	ErrAlreadyInitialized = errors.New("dispatch: device already initialized")

	// ErrDeviceNotInitialized is returned when an operation needs a device
	// and InitDevice has not succeeded yet.
	ErrDeviceNotInitialized = errors.New("dispatch: device not initialized")
)

// Pipeline errors.
var (
	// ErrSourceEncoding is returned when shader text is empty or cannot be
	// decoded as UTF-8.
	ErrSourceEncoding = errors.New("dispatch: shader source encoding error")

	// ErrCompile is returned when the shader compiler rejects the source.
	// The concrete error is a *CompileError carrying the diagnostics.
	ErrCompile = errors.New("dispatch: shader compilation failed")

	// ErrEntryPointNotFound is returned when the compiled library has no
	// function named EntryPoint.
	ErrEntryPointNotFound = errors.New("dispatch: entry point not found")

	// ErrPipelineBuild is returned when the entry point was found but the
	// pipeline object could not be created.
	ErrPipelineBuild = errors.New("dispatch: pipeline creation failed")

	// ErrPipelineNotReady is returned by DispatchCompute when no pipeline
	// has been created.
	ErrPipelineNotReady = errors.New("dispatch: pipeline not created")
)

// Buffer errors.
var (
	// ErrBufferAllocationFailed is returned when a buffer of the set could
	// not be allocated. The concrete error is a *BufferAllocationError.
	ErrBufferAllocationFailed = errors.New("dispatch: buffer allocation failed")

	// ErrInvalidBufferIndex is returned for a slot outside [0, n).
	ErrInvalidBufferIndex = errors.New("dispatch: invalid buffer index")

	// ErrBufferNotInitialized is returned when the addressed buffer (or the
	// whole set) has not been allocated.
	ErrBufferNotInitialized = errors.New("dispatch: buffer not initialized")

	// ErrBufferBounds is returned when an upload or download is larger than
	// the allocated buffer.
	ErrBufferBounds = errors.New("dispatch: transfer exceeds buffer size")

	// ErrInvalidBindings is returned for a malformed binding list.
	ErrInvalidBindings = errors.New("dispatch: invalid binding list")
)

// Dispatch errors.
var (
	// ErrCommandBufferCreation is returned when the queue cannot provide a
	// command buffer.
	ErrCommandBufferCreation = errors.New("dispatch: command buffer creation failed")

	// ErrEncoderCreation is returned when a compute encoder cannot be
	// obtained or cannot record the dispatch.
	ErrEncoderCreation = errors.New("dispatch: compute encoder creation failed")

	// ErrDeviceExecution is returned when the device reports a failure at or
	// after submission, including completion timeouts.
	ErrDeviceExecution = errors.New("dispatch: device execution failed")
)

// CompileError describes a shader compilation failure.
type CompileError struct {
	// Diagnostics is the compiler's message, verbatim.
	Diagnostics string

	// Err is the underlying compiler error, if any.
	Err error
}

func (e *CompileError) Error() string {
	if e.Diagnostics == "" {
		return ErrCompile.Error()
	}
	return fmt.Sprintf("%s: %s", ErrCompile.Error(), e.Diagnostics)
}

// Unwrap returns the underlying compiler error.
func (e *CompileError) Unwrap() error { return e.Err }

// Is reports whether target is ErrCompile.
func (e *CompileError) Is(target error) bool { return target == ErrCompile }

// BufferAllocationError reports the first slot whose allocation failed.
// Slots before it remain allocated.
type BufferAllocationError struct {
	Slot int
	Size uint64
	Err  error
}

func (e *BufferAllocationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: slot %d (%d bytes)", ErrBufferAllocationFailed.Error(), e.Slot, e.Size)
	}
	return fmt.Sprintf("%s: slot %d (%d bytes): %v", ErrBufferAllocationFailed.Error(), e.Slot, e.Size, e.Err)
}

// Unwrap returns the backend error.
func (e *BufferAllocationError) Unwrap() error { return e.Err }

// Is reports whether target is ErrBufferAllocationFailed.
func (e *BufferAllocationError) Is(target error) bool { return target == ErrBufferAllocationFailed }

// IsDeviceUnavailable reports whether err means the platform has no
// compute device. An embedding program may treat this as a skipped run.
func IsDeviceUnavailable(err error) bool {
	return errors.Is(err, ErrDeviceUnavailable)
}

// newCompileError wraps a backend compiler error, keeping an existing
// *CompileError intact.
func newCompileError(err error) error {
	var ce *CompileError
	if errors.As(err, &ce) {
		return ce
	}
	return &CompileError{Diagnostics: err.Error(), Err: err}
}
