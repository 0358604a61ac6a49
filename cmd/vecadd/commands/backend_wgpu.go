//go:build !nogpu

package commands

import (
	"github.com/gogpu/dispatch"
	"github.com/gogpu/dispatch/backend/wgpu"
)

func init() {
	backendFactories[wgpu.BackendName] = backendFactory{
		shader: vecaddWGSL,
		open: func(cfg *Config) dispatch.Backend {
			return wgpu.New(
				wgpu.WithFenceTimeout(cfg.FenceTimeout),
				wgpu.WithAdapterPreference(adapterPreference(cfg.Adapter)),
			)
		},
	}
}

func adapterPreference(name string) wgpu.AdapterPreference {
	switch name {
	case "discrete":
		return wgpu.PreferDiscrete
	case "integrated":
		return wgpu.PreferIntegrated
	case "first":
		return wgpu.PreferFirst
	default:
		return wgpu.PreferHardware
	}
}
