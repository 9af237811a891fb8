package query

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// LogEntry is one recorded query execution.
type LogEntry struct {
	ID         int64     `json:"id"`
	UserID     string    `json:"user_id,omitempty"`
	SQLText    string    `json:"sql"`
	DurationMS int64     `json:"duration_ms"`
	RowCount   int       `json:"row_count"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// LogRepository defines the interface for query log persistence.
type LogRepository interface {
	Insert(ctx context.Context, entry *LogEntry) error
	ListRecent(ctx context.Context, limit int) ([]LogEntry, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// SQLiteLogRepository implements LogRepository on the metadata store.
type SQLiteLogRepository struct {
	db *sql.DB
}

// NewLogRepository creates a new SQLite-backed query log repository.
func NewLogRepository(db *sql.DB) *SQLiteLogRepository {
	return &SQLiteLogRepository{db: db}
}

// Insert appends one log entry. The ID and timestamp are assigned here.
func (r *SQLiteLogRepository) Insert(ctx context.Context, entry *LogEntry) error {
	now := time.Now().UTC().Format(time.RFC3339)
	entry.CreatedAt, _ = time.Parse(time.RFC3339, now) //nolint:errcheck // format is controlled

	result, err := r.db.ExecContext(ctx,
		`INSERT INTO query_log (user_id, sql_text, duration_ms, row_count, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		nullIfEmpty(entry.UserID), entry.SQLText, entry.DurationMS,
		entry.RowCount, nullIfEmpty(entry.Error), now,
	)
	if err != nil {
		return fmt.Errorf("inserting query log entry: %w", err)
	}

	entry.ID, _ = result.LastInsertId() //nolint:errcheck // always succeeds on SQLite
	return nil
}

// ListRecent returns the most recent entries, newest first.
func (r *SQLiteLogRepository) ListRecent(ctx context.Context, limit int) ([]LogEntry, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, sql_text, duration_ms, row_count, error, created_at
		 FROM query_log ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing query log: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only result set

	entries := []LogEntry{}
	for rows.Next() {
		var e LogEntry
		var userID, execErr sql.NullString
		var createdAt string

		if err := rows.Scan(&e.ID, &userID, &e.SQLText, &e.DurationMS,
			&e.RowCount, &execErr, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning query log entry: %w", err)
		}

		if userID.Valid {
			e.UserID = userID.String
		}
		if execErr.Valid {
			e.Error = execErr.String
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled

		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating query log: %w", err)
	}

	return entries, nil
}

// DeleteBefore removes entries created before the cutoff.
func (r *SQLiteLogRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM query_log WHERE created_at < ?",
		cutoff.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("pruning query log: %w", err)
	}

	count, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	return count, nil
}

func nullIfEmpty(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
