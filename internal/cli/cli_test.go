package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Swind/go-fiber-jobs/core"
)

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestRunCommand_PrintsReport(t *testing.T) {
	out, logs, err := execute(t, "run", "--workers", "2", "--fibers", "16", "--frames", "3", "--entities", "200", "--chunk-size", "50")
	if err != nil {
		t.Fatalf("run error = %v\nlogs:\n%s", err, logs)
	}
	for _, want := range []string{"frames:          3", "entity updates:  600", "2 workers, 16 fibers", "64 KiB"} {
		if !strings.Contains(out, want) {
			t.Errorf("report lacks %q:\n%s", want, out)
		}
	}
	if !strings.Contains(logs, "frame loop finished") {
		t.Errorf("logs lack loop completion:\n%s", logs)
	}
}

func TestRunCommand_ServesMetrics(t *testing.T) {
	out, logs, err := execute(t, "run", "--workers", "1", "--fibers", "8", "--frames", "2", "--entities", "10", "--metrics-addr", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("run error = %v\nlogs:\n%s", err, logs)
	}
	if !strings.Contains(logs, "serving metrics") {
		t.Errorf("logs lack metrics server start:\n%s", logs)
	}
	if !strings.Contains(out, "frames:          2") {
		t.Errorf("unexpected report:\n%s", out)
	}
}

func TestConfigCommand_MergesFileAndFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "demo.yaml")
	if err := os.WriteFile(path, []byte("workers: 3\nfibers: 30\nlog_format: json\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	out, _, err := execute(t, "config", "--config", path, "--fibers", "40")
	if err != nil {
		t.Fatalf("config error = %v", err)
	}
	for _, want := range []string{"workers: 3", "fibers: 40", "log_format: json"} {
		if !strings.Contains(out, want) {
			t.Errorf("config output lacks %q:\n%s", want, out)
		}
	}
}

func TestConfigCommand_InvalidSizes(t *testing.T) {
	_, _, err := execute(t, "config", "--workers", "4", "--fibers", "2")
	if !errors.Is(err, core.ErrInvalidConfig) {
		t.Errorf("config error = %v, want core.ErrInvalidConfig", err)
	}
}

func TestResolve_WorkersRaiseFibers(t *testing.T) {
	opts := &options{workers: 512}

	f, err := opts.resolve()
	if err != nil {
		t.Fatalf("resolve() error = %v", err)
	}
	if f.Fibers <= f.Workers {
		t.Errorf("fibers %d not above workers %d", f.Fibers, f.Workers)
	}
}
