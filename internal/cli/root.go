// Package cli implements the fiberdemo command line.
package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/Swind/go-fiber-jobs/config"
	"github.com/Swind/go-fiber-jobs/core"
	"github.com/spf13/cobra"
)

type options struct {
	configPath string
	logLevel   string
	logFormat  string
	debug      bool

	workers     int
	fibers      int
	stackSize   int
	metricsAddr string
}

// NewRootCmd creates the root cobra command for fiberdemo.
func NewRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:          "fiberdemo",
		Short:        "Run a simulation frame loop on the fiber job scheduler",
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to a YAML config file")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "Log format (text, json)")
	root.PersistentFlags().BoolVar(&opts.debug, "debug", false, "Shorthand for --log-level=debug")
	root.PersistentFlags().IntVar(&opts.workers, "workers", 0, "Worker threads (default: one per CPU)")
	root.PersistentFlags().IntVar(&opts.fibers, "fibers", 0, "Fiber pool size")
	root.PersistentFlags().IntVar(&opts.stackSize, "stack-size", 0, "Nominal fiber stack size in bytes")
	root.PersistentFlags().StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve /metrics and /stats on this address")

	root.AddCommand(
		newRunCmd(opts),
		newConfigCmd(opts),
	)
	return root
}

// resolve loads the config file, if any, and applies the flags on top.
func (o *options) resolve() (config.File, error) {
	f := config.DefaultFile()
	if o.configPath != "" {
		loaded, err := config.Load(o.configPath)
		if err != nil {
			return f, err
		}
		f = loaded
	}

	if o.workers > 0 {
		f.Workers = o.workers
		if o.fibers == 0 && f.Fibers <= f.Workers {
			f.Fibers = f.Workers * 4
		}
	}
	if o.fibers > 0 {
		f.Fibers = o.fibers
	}
	if o.stackSize > 0 {
		f.FiberStackSize = o.stackSize
	}
	if o.logLevel != "" {
		f.LogLevel = o.logLevel
	}
	if o.debug {
		f.LogLevel = "debug"
	}
	if o.logFormat != "" {
		f.LogFormat = o.logFormat
	}
	if o.metricsAddr != "" {
		f.MetricsAddr = o.metricsAddr
	}

	if err := f.Validate(); err != nil {
		return f, err
	}
	return f, nil
}

func newLogger(f config.File, w io.Writer) core.Logger {
	if w == nil {
		w = os.Stderr
	}
	return core.NewSlogLogger(core.NewSlog(core.ParseLevel(f.LogLevel), f.LogFormat, w))
}

func newConfigCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := opts.resolve()
			if err != nil {
				return err
			}
			data, err := f.Marshal()
			if err != nil {
				return fmt.Errorf("marshal config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}
