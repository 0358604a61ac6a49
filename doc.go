// Package dispatch runs general-purpose compute kernels on a GPU.
//
// # Overview
//
// dispatch wraps the minimal sequence needed to run one compute kernel:
// acquire a device, compile shader text into a pipeline, allocate a set of
// storage buffers shared between host and device, upload inputs, dispatch
// one work item per element and read the results back.
//
// # Quick Start
//
//	import (
//	    "github.com/gogpu/dispatch"
//	    _ "github.com/gogpu/dispatch/backend/wgpu" // Vulkan via gogpu/wgpu
//	)
//
//	c := dispatch.NewContext()
//	defer c.Close()
//
//	if err := c.InitDevice(); dispatch.IsDeviceUnavailable(err) {
//	    return // no GPU on this machine
//	}
//	_ = c.CreateComputePipeline(shaderText) // WGSL with fn computeMain
//	_ = c.CreateBuffers(64)                 // three 64-byte buffers
//	_ = c.UploadData(0, a)
//	_ = c.UploadData(1, b)
//	_ = c.DispatchCompute(16)
//	_ = c.DownloadData(2, out)
//
// Run performs the whole sequence for a Job and reports the failing stage.
//
// # Backends
//
// A Backend opens ComputeDevice values. Backends register themselves on
// import; the last one imported becomes the default, and WithBackend
// selects one explicitly:
//
//   - backend/wgpu: Vulkan through gogpu/wgpu, WGSL compiled with naga
//   - backend/opencl: OpenCL C through go-opencl (build tag opencl)
//   - backend/host: CPU execution of registered Go kernels, for tests and
//     machines without a GPU
//
// # Buffer Layout
//
// The default layout has three slots: 0 and 1 are inputs, 2 is the
// output. Every buffer of the set has the same size. Shaders bind buffer i
// at @group(0) @binding(i) and must declare @workgroup_size(1); the
// dispatch uses one threadgroup per work item.
//
// # Errors
//
// Every operation returns an error instead of panicking when called out of
// order. Errors wrap the sentinels in this package and can be tested with
// errors.Is. A missing device wraps ErrDeviceUnavailable, which callers
// may treat as a skipped run.
//
// # Thread Safety
//
// A Context serializes its operations with a mutex. DispatchCompute holds
// the context until the device reports completion.
package dispatch
