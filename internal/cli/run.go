package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Swind/go-fiber-jobs/config"
	"github.com/Swind/go-fiber-jobs/core"
	"github.com/Swind/go-fiber-jobs/internal/engine"
	"github.com/Swind/go-fiber-jobs/internal/server"
	promexport "github.com/Swind/go-fiber-jobs/observability/prometheus"
	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

type runOptions struct {
	frames    int
	entities  int
	chunkSize int
}

func newRunCmd(opts *options) *cobra.Command {
	ro := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the frame loop",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := opts.resolve()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runDemo(ctx, f, ro, cmd.ErrOrStderr(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().IntVar(&ro.frames, "frames", 120, "Frames to run (0 runs until interrupted)")
	cmd.Flags().IntVar(&ro.entities, "entities", 10000, "Simulated entities")
	cmd.Flags().IntVar(&ro.chunkSize, "chunk-size", 256, "Entities per job")
	return cmd
}

func runDemo(ctx context.Context, f config.File, ro *runOptions, logOut, out io.Writer) error {
	logger := newLogger(f, logOut)

	reg := prometheus.NewRegistry()
	exporter, err := promexport.NewMetricsExporter("fiberjobs", reg, promexport.ExporterOptions{})
	if err != nil {
		return fmt.Errorf("metrics exporter: %w", err)
	}
	poller, err := promexport.NewSnapshotPoller(reg, time.Second)
	if err != nil {
		return fmt.Errorf("snapshot poller: %w", err)
	}

	cfg := f.SchedulerConfig(logger)
	cfg.Metrics = exporter
	s, err := core.NewScheduler(cfg)
	if err != nil {
		return err
	}
	defer s.Destroy()
	poller.AddScheduler("engine", s)

	loop := engine.NewLoop(s, engine.Options{
		Frames:    ro.frames,
		Entities:  ro.entities,
		ChunkSize: ro.chunkSize,
		Logger:    logger,
	})

	g, gctx := errgroup.WithContext(ctx)

	var srv *http.Server
	if f.MetricsAddr != "" {
		ln, err := net.Listen("tcp", f.MetricsAddr)
		if err != nil {
			return fmt.Errorf("listen %s: %w", f.MetricsAddr, err)
		}
		srv = &http.Server{
			Handler:           server.New(s, reg, logger),
			ReadHeaderTimeout: 5 * time.Second,
		}
		logger.Info("serving metrics", core.F("addr", ln.Addr().String()))
		g.Go(func() error {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}

	poller.Start(gctx)

	var report engine.Report
	g.Go(func() error {
		defer poller.Stop()
		if srv != nil {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()
		}

		var err error
		report, err = loop.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	if err := g.Wait(); err != nil {
		return err
	}

	printReport(out, report)
	return nil
}

func printReport(w io.Writer, r engine.Report) {
	fps := 0.0
	if r.Elapsed > 0 {
		fps = float64(r.Frames) / r.Elapsed.Seconds()
	}
	fmt.Fprintf(w, "frames:          %s (%.1f/s)\n", humanize.Comma(int64(r.Frames)), fps)
	fmt.Fprintf(w, "entity updates:  %s\n", humanize.Comma(r.EntityUpdates))
	fmt.Fprintf(w, "draw calls:      %s\n", humanize.Comma(r.DrawCalls))
	fmt.Fprintf(w, "jobs completed:  %s\n", humanize.Comma(r.Stats.CompletedJobs))
	fmt.Fprintf(w, "fiber switches:  %s\n", humanize.Comma(r.Stats.FiberSwitches))
	fmt.Fprintf(w, "fast-path waits: %s\n", humanize.Comma(r.Stats.FastPathWaits))
	fmt.Fprintf(w, "scheduler:       %d workers, %d fibers, %s nominal stacks\n",
		r.Stats.Workers, r.Stats.Fibers, humanize.IBytes(uint64(r.Stats.FiberStackSize)))
	fmt.Fprintf(w, "elapsed:         %s\n", r.Elapsed.Round(time.Millisecond))
}
