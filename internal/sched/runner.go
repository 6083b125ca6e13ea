package sched

import (
	"context"
	"time"

	"github.com/camkit/camserver/internal/logging"
)

// Job is a periodic task. Interval is re-read after every run so jobs
// whose cadence comes from runtime settings pick up changes without a
// restart.
type Job struct {
	Name     string
	Interval func() time.Duration
	Run      func(now time.Time) error
}

// Runner ticks once a second and fires every job whose interval has
// elapsed. A failing job is logged and stays scheduled.
type Runner struct {
	jobs []Job
	log  logging.Logger
}

// NewRunner builds an empty runner.
func NewRunner() *Runner {
	return &Runner{log: logging.GetLogger("sched")}
}

// Add registers a job. Not safe to call once Run has started.
func (r *Runner) Add(job Job) {
	r.jobs = append(r.jobs, job)
}

// Run drives the jobs until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) {
	next := make([]time.Time, len(r.jobs))
	now := time.Now()
	for i, job := range r.jobs {
		next[i] = now.Add(job.Interval())
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now = <-ticker.C:
			for i, job := range r.jobs {
				if now.Before(next[i]) {
					continue
				}
				if err := job.Run(now); err != nil {
					r.log.Error("scheduled job failed", "job", job.Name, "error", err)
				}
				next[i] = now.Add(job.Interval())
			}
		}
	}
}
