// Package worker runs the scheduled jobs and the notification consumer.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/robfig/cron/v3"

	"fintrack/internal/core"
)

// JobLocker is the per-day advisory lock behind job idempotency. A run marker
// held for (job, day) means the job already ran today, possibly in another
// process sharing the database.
type JobLocker interface {
	TryAcquireJobRun(ctx context.Context, jobName, day string) (bool, error)
	ReleaseJobRun(ctx context.Context, jobName, day string) error
}

// Job is a named unit of scheduled work. Spec is a standard 5-field cron
// expression.
type Job struct {
	Name string
	Spec string
	Run  func(ctx context.Context, now time.Time) error
}

// Runner triggers registered jobs on their cron schedules. Each trigger takes
// the day lock first: a job that already ran today is skipped, a job that
// fails releases the lock so the next trigger retries it.
type Runner struct {
	cron  *cron.Cron
	locks JobLocker
	jobs  []Job
}

func NewRunner(locks JobLocker) *Runner {
	return &Runner{
		cron:  cron.New(),
		locks: locks,
	}
}

func (r *Runner) Register(job Job) error {
	_, err := r.cron.AddFunc(job.Spec, func() {
		r.execute(context.Background(), job, time.Now())
	})
	if err != nil {
		return fmt.Errorf("register job %s with spec %q: %w", job.Name, job.Spec, err)
	}
	r.jobs = append(r.jobs, job)
	return nil
}

// CatchUp executes the named jobs once, honoring the day locks; with no
// names it runs every registered job. Called at startup so a daily job
// missed during downtime still runs.
func (r *Runner) CatchUp(ctx context.Context, now time.Time, names ...string) {
	for _, job := range r.jobs {
		if len(names) > 0 && !slices.Contains(names, job.Name) {
			continue
		}
		r.execute(ctx, job, now)
	}
}

func (r *Runner) Start() {
	r.cron.Start()
	slog.Info("Job runner started", "jobs", len(r.jobs))
}

// Stop halts scheduling and waits for any running job to finish.
func (r *Runner) Stop() {
	<-r.cron.Stop().Done()
	slog.Info("Job runner stopped")
}

func (r *Runner) execute(ctx context.Context, job Job, now time.Time) {
	day := core.DateOnly(now).Format("2006-01-02")

	acquired, err := r.locks.TryAcquireJobRun(ctx, job.Name, day)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to acquire job lock",
			"job", job.Name,
			"day", day,
			"error", err)
		return
	}
	if !acquired {
		slog.InfoContext(ctx, "Job already ran today, skipping",
			"job", job.Name,
			"day", day)
		return
	}

	defer func() {
		if rec := recover(); rec != nil {
			slog.ErrorContext(ctx, "Job panicked",
				"job", job.Name,
				"day", day,
				"panic", rec)
			r.release(ctx, job.Name, day)
		}
	}()

	started := time.Now()
	if err := job.Run(ctx, now); err != nil {
		slog.ErrorContext(ctx, "Job failed",
			"job", job.Name,
			"day", day,
			"duration", time.Since(started),
			"error", err)
		r.release(ctx, job.Name, day)
		return
	}

	slog.InfoContext(ctx, "Job complete",
		"job", job.Name,
		"day", day,
		"duration", time.Since(started))
}

func (r *Runner) release(ctx context.Context, jobName, day string) {
	if err := r.locks.ReleaseJobRun(ctx, jobName, day); err != nil {
		slog.ErrorContext(ctx, "Failed to release job lock, next run waits for tomorrow",
			"job", jobName,
			"day", day,
			"error", err)
	}
}
