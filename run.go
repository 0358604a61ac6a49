package dispatch

import (
	"fmt"
	"maps"
	"slices"
)

// Stage names one step of the Run sequence.
type Stage string

// Run stages, in execution order.
const (
	StageDevice   Stage = "device"
	StagePipeline Stage = "pipeline"
	StageBuffers  Stage = "buffers"
	StageUpload   Stage = "upload"
	StageDispatch Stage = "dispatch"
	StageDownload Stage = "download"
)

// StageError reports which stage of Run failed.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("dispatch: %s stage: %v", e.Stage, e.Err)
}

// Unwrap returns the stage's error.
func (e *StageError) Unwrap() error { return e.Err }

// Job describes one complete compute run.
type Job struct {
	// Shader is the native shader text with a computeMain entry point.
	Shader []byte

	// BufferSize is the size in bytes of every buffer of the set.
	BufferSize uint64

	// Inputs maps slots to the bytes uploaded before dispatch.
	Inputs map[int][]byte

	// WorkItems is the number of kernel invocations.
	WorkItems uint32

	// Output is the slot read back after dispatch.
	Output int
}

// Run executes job on c: device, pipeline, buffers, upload, dispatch and
// download, stopping at the first failing stage. The device stage is
// skipped when c already holds a device. Resources stay owned by c; the
// caller closes it.
//
// When the platform has no compute device the returned error satisfies
// IsDeviceUnavailable and callers may treat the run as skipped.
func Run(c *Context, job Job) ([]byte, error) {
	if !c.HasDevice() {
		if err := c.InitDevice(); err != nil {
			return nil, &StageError{Stage: StageDevice, Err: err}
		}
	}
	if err := c.CreateComputePipeline(job.Shader); err != nil {
		return nil, &StageError{Stage: StagePipeline, Err: err}
	}
	if err := c.CreateBuffers(job.BufferSize); err != nil {
		return nil, &StageError{Stage: StageBuffers, Err: err}
	}
	for _, slot := range slices.Sorted(maps.Keys(job.Inputs)) {
		if err := c.UploadData(slot, job.Inputs[slot]); err != nil {
			return nil, &StageError{Stage: StageUpload, Err: err}
		}
	}
	if err := c.DispatchCompute(job.WorkItems); err != nil {
		return nil, &StageError{Stage: StageDispatch, Err: err}
	}
	out := make([]byte, job.BufferSize)
	if err := c.DownloadData(job.Output, out); err != nil {
		return nil, &StageError{Stage: StageDownload, Err: err}
	}
	return out, nil
}
