// Package wgpu runs compute dispatches on a GPU through the gogpu/wgpu
// hardware abstraction layer.
//
// Shaders are WGSL. They are compiled to SPIR-V with naga and loaded on a
// Vulkan device. Each storage buffer of the dispatch context is a device
// buffer; uploads go through the queue and downloads through a mappable
// staging buffer that is filled by a copy and fenced before it is read.
//
// Importing the package registers the backend under the name "wgpu":
//
//	import _ "github.com/gogpu/dispatch/backend/wgpu"
//
// A device owned by another gogpu component can be shared with
// WithDeviceProvider. The provider must expose its HAL device and queue:
//
//	HalDevice() any // hal.Device
//	HalQueue() any  // hal.Queue
//
// Build with the nogpu tag to leave the backend out.
package wgpu
