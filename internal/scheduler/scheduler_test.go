package scheduler

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// testRunDB creates a SQLite store with the job_runs table applied.
func testRunDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", "file:"+t.TempDir()+"/meta.db?_journal_mode=WAL")
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	schema := `
		CREATE TABLE job_runs (
			id TEXT PRIMARY KEY,
			job TEXT NOT NULL,
			trigger_type TEXT NOT NULL CHECK (trigger_type IN ('schedule', 'manual')),
			status TEXT NOT NULL CHECK (status IN ('running', 'completed', 'failed')),
			error TEXT,
			details TEXT,
			started_at TEXT NOT NULL,
			completed_at TEXT
		) STRICT;
	`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("applying job_runs schema: %v", err)
	}

	return db
}

func testScheduler(t *testing.T) (*Scheduler, RunRepository) {
	t.Helper()
	repo := NewRunRepository(testRunDB(t))
	s := New(18*time.Hour+30*time.Minute, time.UTC, repo, slog.Default())
	return s, repo
}

func TestRunRepository(t *testing.T) {
	repo := NewRunRepository(testRunDB(t))
	ctx := context.Background()

	run, err := repo.Start(ctx, "refresh", TriggerManual)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if run.ID == "" || run.Status != StatusRunning {
		t.Fatalf("Start() = %+v, want running run with ID", run)
	}

	if err := repo.Finish(ctx, run.ID, StatusCompleted, "3 tables", ""); err != nil {
		t.Fatalf("Finish() error = %v", err)
	}

	got, err := repo.GetByID(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Status != StatusCompleted {
		t.Errorf("Status = %q, want completed", got.Status)
	}
	if got.Details != "3 tables" {
		t.Errorf("Details = %q, want %q", got.Details, "3 tables")
	}
	if got.CompletedAt == nil {
		t.Error("CompletedAt should be set")
	}

	if err := repo.Finish(ctx, "run-missing", StatusCompleted, "", ""); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("Finish(missing) error = %v, want ErrRunNotFound", err)
	}
	if _, err := repo.GetByID(ctx, "run-missing"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("GetByID(missing) error = %v, want ErrRunNotFound", err)
	}
}

func TestScheduler_RunJob(t *testing.T) {
	s, repo := testScheduler(t)
	ctx := context.Background()

	var calls int
	s.Register(Job{
		Name: "refresh",
		Run: func(context.Context) (string, error) {
			calls++
			return "ok", nil
		},
	})

	run, err := s.RunJob(ctx, "refresh")
	if err != nil {
		t.Fatalf("RunJob() error = %v", err)
	}
	if calls != 1 {
		t.Errorf("job ran %d times, want 1", calls)
	}
	if run.Status != StatusCompleted || run.Details != "ok" {
		t.Errorf("run = %+v, want completed with details ok", run)
	}

	recorded, err := repo.ListRecent(ctx, 10)
	if err != nil {
		t.Fatalf("ListRecent() error = %v", err)
	}
	if len(recorded) != 1 || recorded[0].Trigger != TriggerManual {
		t.Errorf("recorded = %+v, want one manual run", recorded)
	}
}

func TestScheduler_RunJob_Failure(t *testing.T) {
	s, repo := testScheduler(t)
	ctx := context.Background()

	s.Register(Job{
		Name: "flaky",
		Run: func(context.Context) (string, error) {
			return "", fmt.Errorf("disk full")
		},
	})

	run, err := s.RunJob(ctx, "flaky")
	if err == nil {
		t.Fatal("RunJob() should propagate the job error")
	}
	if run == nil || run.Status != StatusFailed {
		t.Fatalf("run = %+v, want failed run", run)
	}

	recorded, err := repo.ListRecent(ctx, 10)
	if err != nil {
		t.Fatalf("ListRecent() error = %v", err)
	}
	if len(recorded) != 1 || recorded[0].Error != "disk full" {
		t.Errorf("recorded = %+v, want one failed run with error", recorded)
	}
}

func TestScheduler_RunJob_Unknown(t *testing.T) {
	s, _ := testScheduler(t)

	if _, err := s.RunJob(context.Background(), "nope"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("error = %v, want ErrJobNotFound", err)
	}
}

func TestScheduler_NextRun(t *testing.T) {
	s, _ := testScheduler(t) // fires at 18:30 UTC

	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{
			name: "before the daily time",
			now:  time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
			want: time.Date(2026, 3, 2, 18, 30, 0, 0, time.UTC),
		},
		{
			name: "after the daily time rolls to tomorrow",
			now:  time.Date(2026, 3, 2, 19, 0, 0, 0, time.UTC),
			want: time.Date(2026, 3, 3, 18, 30, 0, 0, time.UTC),
		},
		{
			name: "exactly at the daily time rolls to tomorrow",
			now:  time.Date(2026, 3, 2, 18, 30, 0, 0, time.UTC),
			want: time.Date(2026, 3, 3, 18, 30, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.nextRun(tt.now)
			if !got.Equal(tt.want) {
				t.Errorf("nextRun(%v) = %v, want %v", tt.now, got, tt.want)
			}
		})
	}
}

func TestScheduler_RunCycle_Order(t *testing.T) {
	s, _ := testScheduler(t)
	ctx := context.Background()

	var order []string
	for _, name := range []string{"first", "second", "third"} {
		s.Register(Job{
			Name: name,
			Run: func(context.Context) (string, error) {
				order = append(order, name)
				return "", nil
			},
		})
	}

	s.runCycle(ctx, TriggerSchedule)

	if len(order) != 3 || order[0] != "first" || order[1] != "second" || order[2] != "third" {
		t.Errorf("order = %v, want [first second third]", order)
	}
}

func TestScheduler_OnRunComplete(t *testing.T) {
	s, _ := testScheduler(t)
	ctx := context.Background()

	type outcome struct {
		job    string
		status string
	}
	var seen []outcome
	s.SetOnRunComplete(func(run *Run, elapsed time.Duration) {
		if elapsed < 0 {
			t.Errorf("elapsed = %v, want non-negative", elapsed)
		}
		seen = append(seen, outcome{job: run.Job, status: run.Status})
	})

	s.Register(Job{Name: "refresh", Run: func(context.Context) (string, error) {
		return "ok", nil
	}})
	s.Register(Job{Name: "flaky", Run: func(context.Context) (string, error) {
		return "", fmt.Errorf("boom")
	}})

	if _, err := s.RunJob(ctx, "refresh"); err != nil {
		t.Fatalf("RunJob(refresh) error = %v", err)
	}
	if _, err := s.RunJob(ctx, "flaky"); err == nil {
		t.Fatal("RunJob(flaky) should propagate the job error")
	}

	want := []outcome{
		{job: "refresh", status: StatusCompleted},
		{job: "flaky", status: StatusFailed},
	}
	if len(seen) != len(want) {
		t.Fatalf("callback fired %d times, want %d", len(seen), len(want))
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("outcome[%d] = %+v, want %+v", i, seen[i], want[i])
		}
	}
}

func TestScheduler_RunCycle_ContinuesAfterFailure(t *testing.T) {
	s, repo := testScheduler(t)
	ctx := context.Background()

	s.Register(Job{Name: "bad", Run: func(context.Context) (string, error) {
		return "", fmt.Errorf("boom")
	}})

	var ran bool
	s.Register(Job{Name: "good", Run: func(context.Context) (string, error) {
		ran = true
		return "", nil
	}})

	s.runCycle(ctx, TriggerSchedule)

	if !ran {
		t.Error("cycle should continue after a job failure")
	}

	recorded, err := repo.ListRecent(ctx, 10)
	if err != nil {
		t.Fatalf("ListRecent() error = %v", err)
	}
	if len(recorded) != 2 {
		t.Errorf("recorded %d runs, want 2", len(recorded))
	}
}
