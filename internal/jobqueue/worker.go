package jobqueue

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/antigravity-dev/boa/internal/store"
)

// Handler executes one job's work. It reports progress via the passed
// reportProgress callback and returns an error to fail the job.
type Handler func(ctx context.Context, job *store.Job, reportProgress func(float64)) error

// Worker polls a Queue at a fixed interval and dispatches claimed jobs to
// the Handler registered for their JobType, bounding in-flight work to
// concurrency goroutines via errgroup. Each tick drains the durable queue
// into a bounded worker pool rather than dispatching a single job.
type Worker struct {
	queue       *Queue
	logger      *slog.Logger
	interval    time.Duration
	concurrency int
	handlers    map[string]Handler
}

func NewWorker(q *Queue, logger *slog.Logger, interval time.Duration, concurrency int) *Worker {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Worker{queue: q, logger: logger, interval: interval, concurrency: concurrency, handlers: map[string]Handler{}}
}

// RegisterHandler associates a Handler with a job type.
func (w *Worker) RegisterHandler(jobType string, h Handler) {
	w.handlers[jobType] = h
}

// Run blocks until ctx is cancelled, ticking at the configured interval and
// draining every pending job on each tick through an errgroup, with at most
// `concurrency` jobs running at once.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("job worker started", "tick_interval", w.interval, "concurrency", w.concurrency)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("job worker stopping")
			return
		case <-ticker.C:
			w.drain(ctx)
		}
	}
}

// Drain runs exactly one dequeue-drain pass, exported for the CLI's -once
// single-batch mode.
func (w *Worker) Drain(ctx context.Context) {
	w.drain(ctx)
}

func (w *Worker) drain(ctx context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.concurrency)

	for {
		job, err := w.queue.Dequeue()
		if err != nil {
			w.logger.Error("dequeue failed", "error", err)
			return
		}
		if job == nil {
			break
		}

		g.Go(func() error {
			w.runJob(gctx, job)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		w.logger.Error("job worker batch error", "error", err)
	}
}

func (w *Worker) runJob(ctx context.Context, job *store.Job) {
	handler, ok := w.handlers[job.JobType]
	if !ok {
		w.logger.Warn("no handler registered for job type", "job_type", job.JobType, "job_id", job.ID)
		if err := w.queue.Fail(job.ID, "no handler registered for job type "+job.JobType); err != nil {
			w.logger.Error("failed to mark job failed", "error", err)
		}
		return
	}

	report := func(p float64) {
		if err := w.queue.UpdateProgress(job.ID, p); err != nil {
			w.logger.Error("failed to update job progress", "job_id", job.ID, "error", err)
		}
	}

	if err := handler(ctx, job, report); err != nil {
		w.logger.Error("job failed", "job_id", job.ID, "job_type", job.JobType, "error", err)
		if ferr := w.queue.Fail(job.ID, err.Error()); ferr != nil {
			w.logger.Error("failed to mark job failed", "error", ferr)
		}
		return
	}
	if err := w.queue.Complete(job.ID); err != nil {
		w.logger.Error("failed to mark job complete", "job_id", job.ID, "error", err)
	}
}
