package commands

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	defaultCount = 16

	// maxCount keeps a buffer below 1 GiB of float32.
	maxCount = 1 << 28
)

var adapterPreferences = map[string]struct{}{
	"hardware":   {},
	"discrete":   {},
	"integrated": {},
	"first":      {},
}

// Config is the vecadd configuration.
type Config struct {
	Backend      string        `mapstructure:"backend"`
	Count        int           `mapstructure:"count"`
	Verbose      bool          `mapstructure:"verbose"`
	Workers      int           `mapstructure:"workers"`
	FenceTimeout time.Duration `mapstructure:"fence_timeout"`
	Adapter      string        `mapstructure:"adapter"`
}

// defaultBackend prefers a GPU backend when the build has one.
func defaultBackend() string {
	if _, ok := backendFactories["wgpu"]; ok {
		return "wgpu"
	}
	return "host"
}

// DefaultConfig returns configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		Backend: defaultBackend(),
		Count:   defaultCount,
		Adapter: "hardware",
	}
}

// Load builds a Config from v on top of DefaultConfig.
func Load(v *viper.Viper) (*Config, error) {
	cfg := DefaultConfig()
	v.SetDefault("backend", cfg.Backend)
	v.SetDefault("count", cfg.Count)
	v.SetDefault("adapter", cfg.Adapter)

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.Backend = strings.ToLower(strings.TrimSpace(cfg.Backend))
	cfg.Adapter = strings.ToLower(strings.TrimSpace(cfg.Adapter))

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if _, ok := backendFactories[c.Backend]; !ok {
		return fmt.Errorf("unknown backend %q (available: %s)", c.Backend, backendNames())
	}
	if c.Count <= 0 {
		return errors.New("count must be positive")
	}
	if c.Count > maxCount {
		return fmt.Errorf("count must be at most %d", maxCount)
	}
	if c.Workers < 0 {
		return errors.New("workers cannot be negative")
	}
	if c.FenceTimeout < 0 {
		return errors.New("fence_timeout cannot be negative")
	}
	if _, ok := adapterPreferences[c.Adapter]; !ok && c.Adapter != "" {
		return fmt.Errorf("unknown adapter preference %q", c.Adapter)
	}
	return nil
}
