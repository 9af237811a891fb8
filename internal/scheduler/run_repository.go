package scheduler

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RunRepository defines the interface for job run persistence.
type RunRepository interface {
	Start(ctx context.Context, job string, trigger Trigger) (*Run, error)
	Finish(ctx context.Context, id, status, details, errMsg string) error
	ListRecent(ctx context.Context, limit int) ([]Run, error)
	GetByID(ctx context.Context, id string) (*Run, error)
}

// SQLiteRunRepository implements RunRepository on the metadata store.
type SQLiteRunRepository struct {
	db *sql.DB
}

// NewRunRepository creates a new SQLite-backed run repository.
func NewRunRepository(db *sql.DB) *SQLiteRunRepository {
	return &SQLiteRunRepository{db: db}
}

const runColumns = "id, job, trigger_type, status, error, details, started_at, completed_at"

// Start records a new running job execution.
func (r *SQLiteRunRepository) Start(ctx context.Context, job string, trigger Trigger) (*Run, error) {
	run := &Run{
		ID:      "run-" + uuid.NewString()[:8],
		Job:     job,
		Trigger: trigger,
		Status:  StatusRunning,
	}

	now := time.Now().UTC().Format(time.RFC3339)
	run.StartedAt, _ = time.Parse(time.RFC3339, now) //nolint:errcheck // format is controlled

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO job_runs (id, job, trigger_type, status, started_at)
		 VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.Job, string(run.Trigger), run.Status, now,
	)
	if err != nil {
		return nil, fmt.Errorf("recording job start: %w", err)
	}

	return run, nil
}

// Finish completes a run record with its final status.
func (r *SQLiteRunRepository) Finish(ctx context.Context, id, status, details, errMsg string) error {
	now := time.Now().UTC().Format(time.RFC3339)

	result, err := r.db.ExecContext(ctx,
		`UPDATE job_runs SET status = ?, details = ?, error = ?, completed_at = ? WHERE id = ?`,
		status, nullIfEmpty(details), nullIfEmpty(errMsg), now, id,
	)
	if err != nil {
		return fmt.Errorf("recording job finish: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrRunNotFound
	}
	return nil
}

// GetByID retrieves one run record.
func (r *SQLiteRunRepository) GetByID(ctx context.Context, id string) (*Run, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+runColumns+" FROM job_runs WHERE id = ?", id)

	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("getting job run: %w", err)
	}
	return run, nil
}

// ListRecent returns the most recent runs, newest first.
func (r *SQLiteRunRepository) ListRecent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT "+runColumns+" FROM job_runs ORDER BY started_at DESC, id DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("listing job runs: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only result set

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning job run: %w", err)
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating job runs: %w", err)
	}

	return runs, nil
}

// scanRun scans one run from sql.Row or sql.Rows.
func scanRun(s interface{ Scan(dest ...any) error }) (*Run, error) {
	var run Run
	var errMsg, details, completedAt sql.NullString
	var trigger, startedAt string

	err := s.Scan(&run.ID, &run.Job, &trigger, &run.Status,
		&errMsg, &details, &startedAt, &completedAt)
	if err != nil {
		return nil, err
	}

	run.Trigger = Trigger(trigger)
	if errMsg.Valid {
		run.Error = errMsg.String
	}
	if details.Valid {
		run.Details = details.String
	}
	run.StartedAt, _ = time.Parse(time.RFC3339, startedAt) //nolint:errcheck // format is controlled
	if completedAt.Valid {
		t, _ := time.Parse(time.RFC3339, completedAt.String) //nolint:errcheck // format is controlled
		run.CompletedAt = &t
	}

	return &run, nil
}

func nullIfEmpty(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
