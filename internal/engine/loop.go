// Package engine drives a small simulation frame loop on a fiber scheduler.
//
// Every frame the main loop job simulates the world, gathers render data and
// hands it to a Render job that overlaps with the next frame. The loop never
// gets more than one frame ahead of rendering.
package engine

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Swind/go-fiber-jobs/core"
)

// Options configures a Loop.
type Options struct {
	// Frames is the number of frames to run. Zero runs until the context
	// passed to Run is cancelled.
	Frames int

	// Entities is the number of simulated objects.
	Entities int

	// ChunkSize is the number of entities per simulate or gather job.
	ChunkSize int

	// FrameTime is the simulated time step.
	FrameTime time.Duration

	Logger core.Logger
}

// FrameReport describes one rendered frame.
type FrameReport struct {
	Frame     int
	DrawCalls int
	Checksum  float64
}

// Report summarizes a finished run.
type Report struct {
	Frames        int
	EntityUpdates int64
	DrawCalls     int64
	Elapsed       time.Duration
	Stats         core.SchedulerStats
	LastFrames    []FrameReport
}

// Loop is the frame loop. A Loop runs once.
type Loop struct {
	scheduler *core.Scheduler
	opts      Options
	logger    core.Logger

	world  *world
	frames [2]frameData

	stop          atomic.Bool
	entityUpdates atomic.Int64
	drawCalls     atomic.Int64
	framesRun     atomic.Int64

	mu       sync.Mutex
	rendered []FrameReport

	started atomic.Bool
}

// ErrAlreadyStarted is returned by Run on a Loop that already ran.
var ErrAlreadyStarted = errors.New("engine: loop already started")

const keptFrameReports = 8

// NewLoop creates a loop driving s.
func NewLoop(s *core.Scheduler, opts Options) *Loop {
	if opts.Entities <= 0 {
		opts.Entities = 10000
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 256
	}
	if opts.FrameTime <= 0 {
		opts.FrameTime = 16 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = core.NewNoOpLogger()
	}

	l := &Loop{
		scheduler: s,
		opts:      opts,
		logger:    opts.Logger,
		world:     newWorld(opts.Entities),
	}
	for i := range l.frames {
		l.frames[i].visible = make([]bool, opts.Entities)
	}
	return l
}

// Run submits the main loop job and blocks until the scheduler has shut
// down. Cancelling ctx ends the loop after the current frame.
func (l *Loop) Run(ctx context.Context) (Report, error) {
	if !l.started.CompareAndSwap(false, true) {
		return Report{}, ErrAlreadyStarted
	}

	stopWatch := context.AfterFunc(ctx, func() { l.stop.Store(true) })
	defer stopWatch()

	began := time.Now()
	l.scheduler.RunJobs(context.Background(), "Main Scheduler Loop", []core.JobDecl{{
		EntryPoint: func(jobCtx context.Context, _ any) { l.mainLoop(jobCtx) },
	}}, nil)
	l.scheduler.WaitForCompletion()

	report := Report{
		Frames:        int(l.framesRun.Load()),
		EntityUpdates: l.entityUpdates.Load(),
		DrawCalls:     l.drawCalls.Load(),
		Elapsed:       time.Since(began),
		Stats:         l.scheduler.Stats(),
	}
	l.mu.Lock()
	report.LastFrames = append([]FrameReport(nil), l.rendered...)
	l.mu.Unlock()
	return report, ctx.Err()
}

// Stop ends the loop after the current frame.
func (l *Loop) Stop() {
	l.stop.Store(true)
}

func (l *Loop) mainLoop(ctx context.Context) {
	s := l.scheduler
	var renderCounter core.Counter
	current := 0

	for frame := 0; l.opts.Frames == 0 || frame < l.opts.Frames; frame++ {
		if l.stop.Load() {
			break
		}

		var simulateCounter core.Counter
		s.RunJobs(ctx, "Simulate", []core.JobDecl{{EntryPoint: l.simulate}}, &simulateCounter)
		s.WaitForCounter(ctx, &simulateCounter, 0)

		fd := &l.frames[current]
		fd.frame = frame
		var gatherCounter core.Counter
		s.RunJobs(ctx, "GatherData", []core.JobDecl{{EntryPoint: l.gatherData, Data: fd}}, &gatherCounter)
		s.WaitForCounter(ctx, &gatherCounter, 0)

		// Do not get more than one frame ahead of rendering.
		s.WaitForCounter(ctx, &renderCounter, 0)
		s.RunJobs(ctx, "Render World", []core.JobDecl{{EntryPoint: l.render, Data: fd}}, &renderCounter)

		l.framesRun.Add(1)
		current = (current + 1) % len(l.frames)
	}

	s.WaitForCounter(ctx, &renderCounter, 0)
	l.logger.Info("frame loop finished", core.F("frames", l.framesRun.Load()))
	s.Quit()
}

// simulate fans the world update out over entity chunks.
func (l *Loop) simulate(ctx context.Context, _ any) {
	dt := l.opts.FrameTime.Seconds()
	ranges := chunks(len(l.world.entities), l.opts.ChunkSize)
	jobs := make([]core.JobDecl, len(ranges))
	for i, r := range ranges {
		jobs[i] = core.JobDecl{
			EntryPoint: func(context.Context, any) {
				l.world.step(r[0], r[1], dt)
				l.entityUpdates.Add(int64(r[1] - r[0]))
			},
		}
	}
	l.scheduler.RunJobsAndWait(ctx, "Simulate Entities", jobs)
}

// gatherData culls entity chunks in parallel, then builds the draw list.
func (l *Loop) gatherData(ctx context.Context, data any) {
	fd := data.(*frameData)
	ranges := chunks(len(l.world.entities), l.opts.ChunkSize)
	jobs := make([]core.JobDecl, len(ranges))
	for i, r := range ranges {
		jobs[i] = core.JobDecl{
			EntryPoint: func(context.Context, any) { l.world.cull(fd, r[0], r[1]) },
		}
	}

	var counter core.Counter
	l.scheduler.RunJobs(ctx, "Mesh Gather Data", jobs, &counter)
	l.scheduler.WaitForCounter(ctx, &counter, 0)
	l.world.collect(fd)
}

func (l *Loop) render(_ context.Context, data any) {
	fd := data.(*frameData)
	var sum float64
	for _, item := range fd.items {
		sum += math.Hypot(item.x, item.y)
	}
	l.drawCalls.Add(int64(len(fd.items)))

	l.mu.Lock()
	l.rendered = append(l.rendered, FrameReport{Frame: fd.frame, DrawCalls: len(fd.items), Checksum: sum})
	if len(l.rendered) > keptFrameReports {
		l.rendered = l.rendered[len(l.rendered)-keptFrameReports:]
	}
	l.mu.Unlock()

	l.logger.Debug("frame rendered", core.F("frame", fd.frame), core.F("drawCalls", len(fd.items)))
}
