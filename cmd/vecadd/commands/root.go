// Package commands implements the vecadd command line.
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "vecadd",
	Short: "Add two float vectors on a compute device",
	Long: `vecadd fills two input buffers with 0..count-1, dispatches one
kernel invocation per element that writes a[i]+b[i] into the result
buffer and prints the result.

Backends are selected by name. "wgpu" uses a Vulkan adapter, "host" runs
a Go kernel on a worker pool and "opencl" is available in builds with
the opencl tag. When the selected backend finds no compute device the
run is skipped and vecadd exits successfully.`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runVecAdd,
}

// Execute runs the root command. Errors are printed to stderr.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "vecadd:", err)
	}
	return err
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is ./vecadd.yaml)")
	flags.BoolP("verbose", "v", false, "log device and dispatch details to stderr")

	rootCmd.Flags().StringP("backend", "b", defaultBackend(), "compute backend ("+backendNames()+")")
	rootCmd.Flags().IntP("count", "n", defaultCount, "number of elements")
	rootCmd.Flags().Int("workers", 0, "host backend worker goroutines (0 = GOMAXPROCS)")
	rootCmd.Flags().Duration("fence-timeout", 0, "wgpu backend completion timeout (0 = backend default)")
	rootCmd.Flags().String("adapter", "hardware", "wgpu adapter preference (hardware, discrete, integrated, first)")

	_ = viper.BindPFlag("verbose", flags.Lookup("verbose"))
	_ = viper.BindPFlag("backend", rootCmd.Flags().Lookup("backend"))
	_ = viper.BindPFlag("count", rootCmd.Flags().Lookup("count"))
	_ = viper.BindPFlag("workers", rootCmd.Flags().Lookup("workers"))
	_ = viper.BindPFlag("fence_timeout", rootCmd.Flags().Lookup("fence-timeout"))
	_ = viper.BindPFlag("adapter", rootCmd.Flags().Lookup("adapter"))
}

// initConfig reads in config file and ENV variables.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("vecadd")
	}

	viper.SetEnvPrefix("VECADD")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		if viper.GetBool("verbose") {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	} else if cfgFile != "" {
		fmt.Fprintf(os.Stderr, "vecadd: reading %s: %v\n", cfgFile, err)
		os.Exit(1)
	}
}
