package scheduler

import (
	"context"
	"errors"
	"time"
)

// Trigger distinguishes scheduled runs from manual ones.
type Trigger string

const (
	TriggerSchedule Trigger = "schedule"
	TriggerManual   Trigger = "manual"
)

// Run statuses.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Job is one schedulable unit of work. Run returns a short human-readable
// details string recorded alongside the run.
type Job struct {
	Name string
	Run  func(ctx context.Context) (details string, err error)
}

// Run is one recorded job execution.
type Run struct {
	ID          string     `json:"id"`
	Job         string     `json:"job"`
	Trigger     Trigger    `json:"trigger_type"`
	Status      string     `json:"status"`
	Error       string     `json:"error,omitempty"`
	Details     string     `json:"details,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Sentinel errors for scheduler operations.
var (
	ErrJobNotFound = errors.New("job not found")
	ErrRunNotFound = errors.New("job run not found")
)
