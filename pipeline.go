package dispatch

import (
	"fmt"

	"github.com/gogpu/dispatch/internal/shader"
)

// ShaderTranslator turns a portable shader representation into the
// backend's native shading language. It stands in for an external
// cross-compiler invoked before pipeline creation.
type ShaderTranslator interface {
	Translate(src []byte) ([]byte, error)
}

// TranslatorFunc adapts a function to ShaderTranslator.
type TranslatorFunc func(src []byte) ([]byte, error)

// Translate calls f(src).
func (f TranslatorFunc) Translate(src []byte) ([]byte, error) { return f(src) }

// CreateComputePipeline compiles shader text and builds a pipeline bound to
// the EntryPoint function.
//
// The text must be in the backend's native shading language (WGSL for the
// wgpu and host backends, OpenCL C for the opencl backend), or in the
// language accepted by the installed ShaderTranslator. UTF-8 and UTF-16
// text with a byte order mark is accepted; trailing NUL bytes are ignored.
//
// On success the previous pipeline, if any, is released and replaced. On
// failure the context keeps its previous pipeline. The compiled library
// and the looked-up function are released before returning in every case.
func (c *Context) CreateComputePipeline(code []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.device == nil {
		return ErrDeviceNotInitialized
	}

	src, err := shader.Normalize(code)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSourceEncoding, err)
	}
	if c.opts.translator != nil {
		src, err = c.opts.translator.Translate(src)
		if err != nil {
			return newCompileError(err)
		}
	}

	p, err := c.buildPipelineLocked(src)
	if err != nil {
		c.logger.Debug("dispatch: pipeline build failed", "err", err)
		return err
	}

	if c.pipeline != nil {
		c.pipeline.Release()
	}
	c.pipeline = p
	c.updateStateLocked()
	c.logger.Debug("dispatch: pipeline created",
		"entry", p.EntryPoint(),
		"source_bytes", len(src))
	return nil
}

// buildPipelineLocked runs library compile, function lookup and pipeline
// creation. Library and function never outlive this call.
func (c *Context) buildPipelineLocked(src []byte) (ComputePipeline, error) {
	lib, err := c.device.CompileLibrary(src)
	if err != nil {
		return nil, newCompileError(err)
	}
	defer lib.Release()

	fn, err := lib.Function(EntryPoint)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrEntryPointNotFound, EntryPoint, err)
	}
	if fn == nil {
		return nil, fmt.Errorf("%w: %q", ErrEntryPointNotFound, EntryPoint)
	}
	defer fn.Release()

	p, err := c.device.CreatePipeline(fn, c.opts.bindings)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPipelineBuild, err)
	}
	if p == nil {
		return nil, ErrPipelineBuild
	}
	return p, nil
}

// HasPipeline reports whether a pipeline is currently held.
func (c *Context) HasPipeline() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pipeline != nil
}
