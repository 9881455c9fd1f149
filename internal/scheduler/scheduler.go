// Package scheduler runs the background maintenance jobs: the inactive
// channel scan, the stats sync, and the expired trash cleanup.
//
// Jobs are explicitly constructed and registered; there is no global
// registry. Each job runs on its own ticker until the context is
// canceled, and every run is recorded in a bounded history ring that the
// admin API reads.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrUnknownJob is returned by RunNow for a name no job carries.
var ErrUnknownJob = errors.New("unknown job")

// historySize bounds the per-scheduler run history ring.
const historySize = 50

// Job is one named periodic task. Run returns a result summary for the
// history ring.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) (any, error)
}

// RunRecord is one completed job run.
type RunRecord struct {
	Job         string    `json:"job"`
	StartedAt   time.Time `json:"started_at"`
	Duration    string    `json:"duration"`
	Error       string    `json:"error,omitempty"`
	Result      any       `json:"result,omitempty"`
	TriggeredBy string    `json:"triggered_by"`
}

// JobStatus describes a registered job for the admin endpoint.
type JobStatus struct {
	Name     string     `json:"name"`
	Interval string     `json:"interval"`
	LastRun  *RunRecord `json:"last_run,omitempty"`
}

// Scheduler owns a set of jobs and their run history.
//
// Scheduler is safe for concurrent use: Run, RunNow, Status and History
// may be called from different goroutines.
type Scheduler struct {
	jobs   []Job
	logger *slog.Logger

	mu      sync.Mutex
	history []RunRecord
	lastRun map[string]*RunRecord
}

// New creates a Scheduler with the given jobs.
func New(logger *slog.Logger, jobs ...Job) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	seen := make(map[string]bool, len(jobs))
	for _, job := range jobs {
		if job.Name == "" || job.Run == nil {
			return nil, fmt.Errorf("job needs a name and a run function")
		}
		if job.Interval <= 0 {
			return nil, fmt.Errorf("job %s needs a positive interval", job.Name)
		}
		if seen[job.Name] {
			return nil, fmt.Errorf("duplicate job name %s", job.Name)
		}
		seen[job.Name] = true
	}
	return &Scheduler{
		jobs:    jobs,
		logger:  logger,
		lastRun: make(map[string]*RunRecord),
	}, nil
}

// Run blocks until ctx is canceled, ticking every job at its interval.
// Callers track the goroutine with a WaitGroup.
func (s *Scheduler) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, job := range s.jobs {
		wg.Add(1)
		go func(job Job) {
			defer wg.Done()
			ticker := time.NewTicker(job.Interval)
			defer ticker.Stop()

			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					s.runJob(ctx, job, "schedule")
				}
			}
		}(job)
	}
	wg.Wait()
}

// RunNow triggers a job by name immediately, sharing the history ring
// with scheduled runs.
func (s *Scheduler) RunNow(ctx context.Context, name string) (*RunRecord, error) {
	for _, job := range s.jobs {
		if job.Name == name {
			rec := s.runJob(ctx, job, "manual")
			return rec, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownJob, name)
}

// Status lists the registered jobs and their most recent runs.
func (s *Scheduler) Status() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	statuses := make([]JobStatus, 0, len(s.jobs))
	for _, job := range s.jobs {
		statuses = append(statuses, JobStatus{
			Name:     job.Name,
			Interval: job.Interval.String(),
			LastRun:  s.lastRun[job.Name],
		})
	}
	return statuses
}

// History returns the run history, most recent first.
func (s *Scheduler) History() []RunRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]RunRecord, len(s.history))
	for i, rec := range s.history {
		out[len(s.history)-1-i] = rec
	}
	return out
}

// runJob executes one run and records it.
func (s *Scheduler) runJob(ctx context.Context, job Job, trigger string) *RunRecord {
	start := time.Now()
	result, err := job.Run(ctx)
	elapsed := time.Since(start)

	rec := RunRecord{
		Job:         job.Name,
		StartedAt:   start,
		Duration:    elapsed.String(),
		Result:      result,
		TriggeredBy: trigger,
	}
	if err != nil {
		rec.Error = err.Error()
		s.logger.Warn("job failed", "job", job.Name, "elapsed", elapsed, "error", err)
	} else {
		s.logger.Info("job completed", "job", job.Name, "elapsed", elapsed, "result", result)
	}

	s.mu.Lock()
	s.history = append(s.history, rec)
	if len(s.history) > historySize {
		s.history = s.history[len(s.history)-historySize:]
	}
	s.lastRun[job.Name] = &rec
	s.mu.Unlock()

	return &rec
}
