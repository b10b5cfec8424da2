package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Swind/go-fiber-jobs/core"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fiberjobs.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultFile_Valid(t *testing.T) {
	f := DefaultFile()
	if err := f.Validate(); err != nil {
		t.Fatalf("DefaultFile().Validate() = %v", err)
	}
	if f.Fibers <= f.Workers {
		t.Errorf("default fibers %d not above workers %d", f.Fibers, f.Workers)
	}
}

// TestLoad_OverridesDefaults verifies that keys in the file replace defaults
// Given: A YAML file setting workers, fibers, idle_timeout and log_format
// When: The file is loaded
// Then: Those fields take the file values and the rest keep their defaults
func TestLoad_OverridesDefaults(t *testing.T) {
	// Arrange
	path := writeConfig(t, `
workers: 2
fibers: 16
idle_timeout: 5ms
log_format: json
`)

	// Act
	f, err := Load(path)

	// Assert
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if f.Workers != 2 || f.Fibers != 16 {
		t.Errorf("sizes = %d/%d, want 2/16", f.Workers, f.Fibers)
	}
	if f.IdleTimeout != 5*time.Millisecond {
		t.Errorf("IdleTimeout = %v, want 5ms", f.IdleTimeout)
	}
	if f.LogFormat != "json" {
		t.Errorf("LogFormat = %q, want json", f.LogFormat)
	}
	if f.FiberStackSize != DefaultFile().FiberStackSize || f.LogLevel != "info" {
		t.Errorf("defaults not kept: %+v", f)
	}
}

func TestLoad_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
		if !errors.Is(err, os.ErrNotExist) {
			t.Errorf("Load() error = %v, want os.ErrNotExist", err)
		}
	})

	t.Run("malformed yaml", func(t *testing.T) {
		_, err := Load(writeConfig(t, "workers: [1, 2"))
		if err == nil || !strings.Contains(err.Error(), "parse config") {
			t.Errorf("Load() error = %v, want parse error", err)
		}
	})

	t.Run("too few fibers", func(t *testing.T) {
		_, err := Load(writeConfig(t, "workers: 4\nfibers: 4\n"))
		if !errors.Is(err, core.ErrInvalidConfig) {
			t.Errorf("Load() error = %v, want core.ErrInvalidConfig", err)
		}
	})
}

func TestValidate_LoggingOptions(t *testing.T) {
	f := DefaultFile()
	f.LogFormat = "xml"
	f.LogLevel = "loud"

	err := f.Validate()
	if err == nil {
		t.Fatal("Validate() = nil, want errors for log options")
	}
	if !strings.Contains(err.Error(), "log_format") || !strings.Contains(err.Error(), "log_level") {
		t.Errorf("Validate() error = %v, want both log options reported", err)
	}
}

func TestMarshal_RoundTripsThroughLoad(t *testing.T) {
	f := DefaultFile()
	f.Workers = 3
	f.Fibers = 24
	f.IdleTimeout = 2 * time.Millisecond

	data, err := f.Marshal()
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if !strings.Contains(string(data), "idle_timeout: 2ms") {
		t.Errorf("marshalled config lacks readable idle_timeout:\n%s", data)
	}

	got, err := Load(writeConfig(t, string(data)))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got != f {
		t.Errorf("Load(Marshal(f)) = %+v, want %+v", got, f)
	}
}

func TestSchedulerConfig(t *testing.T) {
	f := DefaultFile()
	f.Workers = 2
	f.Fibers = 8
	logger := core.NewNoOpLogger()

	cfg := f.SchedulerConfig(logger)

	if cfg.WorkerCount != 2 || cfg.FiberCount != 8 {
		t.Errorf("sizes = %d/%d, want 2/8", cfg.WorkerCount, cfg.FiberCount)
	}
	if cfg.Logger != logger {
		t.Error("SchedulerConfig() did not attach the logger")
	}
	s, err := core.NewScheduler(cfg)
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}
	s.Destroy()
}
