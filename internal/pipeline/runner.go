package pipeline

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"centralrepo/internal/ingest"
	"centralrepo/internal/logger"
)

// Source emits the files of one job. It must stop when emit returns an error.
type Source func(ctx context.Context, emit func(ingest.File) error) error

// Stats summarizes one job run.
type Stats struct {
	Files           int64
	Errors          int64
	StartupFailures int64
	Duration        time.Duration
}

// Runner drives ingest modules the way the host framework does: one module
// per worker, one StartUp, a Process call per file and one ShutDown, which
// also runs when the job is cancelled.
type Runner struct {
	factory *ingest.Factory
	workers int
}

// NewRunner creates a runner with the given worker count.
func NewRunner(factory *ingest.Factory, workers int) *Runner {
	if workers <= 0 {
		workers = 4
	}
	return &Runner{factory: factory, workers: workers}
}

// Run processes every file of source as job jc.
func (r *Runner) Run(ctx context.Context, jc ingest.JobContext, source Source) (Stats, error) {
	start := time.Now()
	logger.Infof("Ingest job %d started with %d workers", jc.JobID, r.workers)

	var files, errs, startupFailures atomic.Int64
	fileCh := make(chan ingest.File, r.workers*4)
	workersDone := make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < r.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m := r.factory.NewModule()
			if err := m.StartUp(ctx, jc); err != nil {
				startupFailures.Add(1)
				return
			}
			defer m.ShutDown(context.WithoutCancel(ctx))

			for f := range fileCh {
				if ctx.Err() != nil {
					continue
				}
				files.Add(1)
				if m.Process(ctx, f) == ingest.Error {
					errs.Add(1)
				}
			}
		}()
	}
	go func() {
		wg.Wait()
		close(workersDone)
	}()

	srcErr := source(ctx, func(f ingest.File) error {
		select {
		case fileCh <- f:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-workersDone:
			return fmt.Errorf("no ingest module running for job %d", jc.JobID)
		}
	})
	close(fileCh)
	<-workersDone

	stats := Stats{
		Files:           files.Load(),
		Errors:          errs.Load(),
		StartupFailures: startupFailures.Load(),
		Duration:        time.Since(start),
	}
	logger.Infof("Ingest job %d finished: files=%d errors=%d startup_failures=%d duration=%s",
		jc.JobID, stats.Files, stats.Errors, stats.StartupFailures, stats.Duration.Round(time.Millisecond))

	if srcErr != nil {
		return stats, srcErr
	}
	if stats.StartupFailures == int64(r.workers) {
		return stats, fmt.Errorf("all ingest modules failed to start for job %d", jc.JobID)
	}
	return stats, ctx.Err()
}
