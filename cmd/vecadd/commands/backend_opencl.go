//go:build opencl

package commands

import (
	_ "embed"

	"github.com/robvanmieghem/go-opencl/cl"

	"github.com/gogpu/dispatch"
	"github.com/gogpu/dispatch/backend/opencl"
)

//go:embed vecadd.cl
var vecaddCL []byte

func init() {
	backendFactories[opencl.BackendName] = backendFactory{
		shader: vecaddCL,
		open: func(cfg *Config) dispatch.Backend {
			return opencl.New(opencl.WithDeviceType(cl.DeviceTypeAll))
		},
	}
}
