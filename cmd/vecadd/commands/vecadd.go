package commands

import (
	_ "embed"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gogpu/dispatch"
	"github.com/gogpu/dispatch/backend/host"
)

//go:embed vecadd.wgsl
var vecaddWGSL []byte

// backendFactory builds a backend from the config together with the
// shader text it accepts.
type backendFactory struct {
	shader []byte
	open   func(cfg *Config) dispatch.Backend
}

var backendFactories = map[string]backendFactory{
	host.BackendName: {
		shader: vecaddWGSL,
		open: func(cfg *Config) dispatch.Backend {
			return host.New(
				host.WithWorkers(cfg.Workers),
				host.WithKernel(vecaddWGSL, vectorAdd),
			)
		},
	},
}

func backendNames() string {
	names := make([]string, 0, len(backendFactories))
	for name := range backendFactories {
		names = append(names, name)
	}
	slices.Sort(names)
	return strings.Join(names, ", ")
}

// vectorAdd is the host implementation of vecadd.wgsl.
func vectorAdd(id uint32, buffers [][]byte) {
	host.StoreF32(buffers[2], id, host.LoadF32(buffers[0], id)+host.LoadF32(buffers[1], id))
}

func runVecAdd(cmd *cobra.Command, args []string) error {
	cfg, err := Load(viper.GetViper())
	if err != nil {
		return err
	}
	if cfg.Verbose {
		dispatch.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}
	return run(cmd.OutOrStdout(), cfg)
}

// run executes the vector add described by cfg and prints the result to w.
// A missing compute device prints a notice and is not an error.
func run(w io.Writer, cfg *Config) error {
	f := backendFactories[cfg.Backend]

	c := dispatch.NewContext(dispatch.WithBackend(f.open(cfg)))
	defer c.Close()

	in := make([]float32, cfg.Count)
	for i := range in {
		in[i] = float32(i)
	}
	data := dispatch.Float32Bytes(in)

	out, err := dispatch.Run(c, dispatch.Job{
		Shader:     f.shader,
		BufferSize: uint64(len(data)),
		Inputs:     map[int][]byte{0: data, 1: data},
		WorkItems:  uint32(cfg.Count),
		Output:     2,
	})
	if err != nil {
		if dispatch.IsDeviceUnavailable(err) {
			fmt.Fprintf(w, "no %s compute device available, skipping: %v\n", cfg.Backend, err)
			return nil
		}
		return err
	}

	info := c.DeviceInfo()
	fmt.Fprintf(w, "device: %s (%s, %s)\n", info.Name, info.Type, info.Backend)
	for i, v := range dispatch.BytesFloat32(out) {
		fmt.Fprintf(w, "%d: %g\n", i, v)
	}
	return nil
}
