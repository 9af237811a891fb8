package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Scheduler fires the registered jobs once a day and on demand.
type Scheduler struct {
	dailyAt  time.Duration // offset from midnight, local to location
	location *time.Location
	repo     RunRepository
	logger   *slog.Logger

	mu            sync.RWMutex
	jobs          []Job
	onRunComplete func(run *Run, elapsed time.Duration)

	// now is swappable for tests.
	now func() time.Time
}

// New creates a scheduler. dailyAt is the offset from local midnight at
// which the daily cycle fires (see config.ParseDailyAt).
func New(dailyAt time.Duration, location *time.Location, repo RunRepository, logger *slog.Logger) *Scheduler {
	if location == nil {
		location = time.UTC
	}
	return &Scheduler{
		dailyAt:  dailyAt,
		location: location,
		repo:     repo,
		logger:   logger,
		now:      time.Now,
	}
}

// Register appends a job to the daily cycle. Jobs run sequentially in
// registration order.
func (s *Scheduler) Register(job Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, job)
}

// SetOnRunComplete installs a callback invoked after every run finishes,
// whatever the outcome. Used to mirror run outcomes into external sinks.
func (s *Scheduler) SetOnRunComplete(fn func(run *Run, elapsed time.Duration)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onRunComplete = fn
}

// JobNames returns the registered job names in run order.
func (s *Scheduler) JobNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, len(s.jobs))
	for i, j := range s.jobs {
		names[i] = j.Name
	}
	return names
}

// Start blocks until ctx is cancelled, firing the daily cycle at each
// scheduled time. Call it from a dedicated goroutine.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("scheduler started",
		"daily_at", s.dailyAt.String(),
		"timezone", s.location.String(),
		"jobs", s.JobNames(),
	)

	for {
		next := s.nextRun(s.now())
		timer := time.NewTimer(time.Until(next))

		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info("scheduler stopped")
			return
		case <-timer.C:
			s.runCycle(ctx, TriggerSchedule)
		}
	}
}

// nextRun computes the next daily fire time strictly after now.
func (s *Scheduler) nextRun(now time.Time) time.Time {
	local := now.In(s.location)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.location)

	next := midnight.Add(s.dailyAt)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// runCycle executes every registered job sequentially.
func (s *Scheduler) runCycle(ctx context.Context, trigger Trigger) {
	s.mu.RLock()
	jobs := make([]Job, len(s.jobs))
	copy(jobs, s.jobs)
	s.mu.RUnlock()

	for _, job := range jobs {
		if ctx.Err() != nil {
			return
		}
		if _, err := s.execute(ctx, job, trigger); err != nil {
			s.logger.Error("job failed", "job", job.Name, "error", err)
		}
	}
}

// RunJob triggers one job by name, recording it as a manual run.
func (s *Scheduler) RunJob(ctx context.Context, name string) (*Run, error) {
	s.mu.RLock()
	var job *Job
	for i := range s.jobs {
		if s.jobs[i].Name == name {
			job = &s.jobs[i]
			break
		}
	}
	s.mu.RUnlock()

	if job == nil {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}

	return s.execute(ctx, *job, TriggerManual)
}

// execute runs one job and records the outcome.
func (s *Scheduler) execute(ctx context.Context, job Job, trigger Trigger) (*Run, error) {
	run, err := s.repo.Start(ctx, job.Name, trigger)
	if err != nil {
		return nil, err
	}

	s.logger.Info("job started", "job", job.Name, "trigger", trigger, "run_id", run.ID)
	start := time.Now()

	details, jobErr := job.Run(ctx)
	elapsed := time.Since(start)

	status := StatusCompleted
	errMsg := ""
	if jobErr != nil {
		status = StatusFailed
		errMsg = jobErr.Error()
	}

	if err := s.repo.Finish(ctx, run.ID, status, details, errMsg); err != nil {
		s.logger.Warn("failed to record job finish", "job", job.Name, "error", err)
	}

	run.Status = status
	run.Details = details
	run.Error = errMsg
	completed := time.Now().UTC()
	run.CompletedAt = &completed

	s.logger.Info("job finished",
		"job", job.Name,
		"status", status,
		"duration", elapsed,
	)

	s.mu.RLock()
	hook := s.onRunComplete
	s.mu.RUnlock()
	if hook != nil {
		hook(run, elapsed)
	}

	if jobErr != nil {
		return run, fmt.Errorf("job %s: %w", job.Name, jobErr)
	}
	return run, nil
}
