// Package config loads scheduler settings from YAML files.
package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/Swind/go-fiber-jobs/core"
	"gopkg.in/yaml.v3"
)

// File is the on-disk configuration of a scheduler and the process hosting it.
type File struct {
	Workers         int           `yaml:"workers"`
	Fibers          int           `yaml:"fibers"`
	FiberStackSize  int           `yaml:"fiber_stack_size"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	SpinLimit       int           `yaml:"spin_limit"`
	HistoryCapacity int           `yaml:"history_capacity"`

	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	MetricsAddr string `yaml:"metrics_addr"`
}

// DefaultFile returns sensible defaults: one worker per CPU and a fiber pool
// four times that size.
func DefaultFile() File {
	workers := runtime.NumCPU()
	return File{
		Workers:         workers,
		Fibers:          max(128, workers*4),
		FiberStackSize:  64 * 1024,
		IdleTimeout:     time.Millisecond,
		SpinLimit:       64,
		HistoryCapacity: 100,
		LogLevel:        "info",
		LogFormat:       "text",
	}
}

// Load reads path on top of DefaultFile. Keys missing from the file keep
// their default value.
func Load(path string) (File, error) {
	f := DefaultFile()

	data, err := os.ReadFile(path)
	if err != nil {
		return f, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &f); err != nil {
		return f, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := f.Validate(); err != nil {
		return f, fmt.Errorf("config %s: %w", path, err)
	}
	return f, nil
}

// Validate checks the sizing rules of core.SchedulerConfig and the logging
// options.
func (f File) Validate() error {
	var errs []error
	if err := f.schedulerConfig().Validate(); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(f.LogFormat) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log_format %q must be text or json", f.LogFormat))
	}
	switch strings.ToLower(f.LogLevel) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("log_level %q is not a known level", f.LogLevel))
	}
	return errors.Join(errs...)
}

// Marshal renders f as YAML.
func (f File) Marshal() ([]byte, error) {
	return yaml.Marshal(f)
}

// SchedulerConfig converts f into a scheduler config with logger attached.
// The remaining handlers keep their defaults.
func (f File) SchedulerConfig(logger core.Logger) *core.SchedulerConfig {
	cfg := f.schedulerConfig()
	if logger != nil {
		cfg.Logger = logger
	}
	return cfg
}

func (f File) schedulerConfig() *core.SchedulerConfig {
	cfg := core.DefaultSchedulerConfig()
	cfg.WorkerCount = f.Workers
	cfg.FiberCount = f.Fibers
	cfg.FiberStackSize = f.FiberStackSize
	cfg.IdleTimeout = f.IdleTimeout
	cfg.SpinLimit = f.SpinLimit
	cfg.HistoryCapacity = f.HistoryCapacity
	return cfg
}
