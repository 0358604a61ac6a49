// Command vecadd adds two float vectors on a compute device.
//
// Usage:
//
//	vecadd [--backend wgpu|host|opencl] [--count N] [--config file] [-v]
//
// Flags may also be set through VECADD_* environment variables or a YAML
// config file. When the platform has no compute device vecadd prints a
// notice and exits 0.
package main

import (
	"os"

	"github.com/gogpu/dispatch/cmd/vecadd/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
