package query

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SavedQuery is a named, reusable statement.
type SavedQuery struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	SQLText     string    `json:"sql"`
	CreatedBy   string    `json:"created_by,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// SavedQueryRepository defines the interface for saved query persistence.
type SavedQueryRepository interface {
	Create(ctx context.Context, q *SavedQuery) error
	GetByID(ctx context.Context, id string) (*SavedQuery, error)
	List(ctx context.Context) ([]SavedQuery, error)
	Update(ctx context.Context, q *SavedQuery) error
	Delete(ctx context.Context, id string) error
}

// SQLiteSavedQueryRepository implements SavedQueryRepository on the
// metadata store.
type SQLiteSavedQueryRepository struct {
	db *sql.DB
}

// NewSavedQueryRepository creates a new SQLite-backed saved query repository.
func NewSavedQueryRepository(db *sql.DB) *SQLiteSavedQueryRepository {
	return &SQLiteSavedQueryRepository{db: db}
}

const savedQueryColumns = "id, name, description, sql_text, created_by, created_at, updated_at"

// Create stores a new saved query. The statement must pass the read-only
// guard; saving a write statement is rejected outright.
func (r *SQLiteSavedQueryRepository) Create(ctx context.Context, q *SavedQuery) error {
	if _, err := Guard(q.SQLText); err != nil {
		return err
	}

	if q.ID == "" {
		q.ID = "qry-" + uuid.NewString()[:8]
	}

	now := time.Now().UTC().Format(time.RFC3339)
	q.CreatedAt, _ = time.Parse(time.RFC3339, now) //nolint:errcheck // format is controlled
	q.UpdatedAt = q.CreatedAt

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO saved_queries (`+savedQueryColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		q.ID, q.Name, nullIfEmpty(q.Description), q.SQLText,
		nullIfEmpty(q.CreatedBy), now, now,
	)
	if err != nil {
		return fmt.Errorf("creating saved query: %w", err)
	}

	return nil
}

// GetByID retrieves one saved query.
func (r *SQLiteSavedQueryRepository) GetByID(ctx context.Context, id string) (*SavedQuery, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+savedQueryColumns+" FROM saved_queries WHERE id = ?", id)

	q, err := scanSavedQuery(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrQueryNotFound
		}
		return nil, fmt.Errorf("getting saved query: %w", err)
	}
	return q, nil
}

// List returns all saved queries ordered by name.
func (r *SQLiteSavedQueryRepository) List(ctx context.Context) ([]SavedQuery, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+savedQueryColumns+" FROM saved_queries ORDER BY name ASC")
	if err != nil {
		return nil, fmt.Errorf("listing saved queries: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only result set

	queries := []SavedQuery{}
	for rows.Next() {
		q, err := scanSavedQuery(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning saved query: %w", err)
		}
		queries = append(queries, *q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating saved queries: %w", err)
	}

	return queries, nil
}

// Update modifies a saved query's name, description and statement.
func (r *SQLiteSavedQueryRepository) Update(ctx context.Context, q *SavedQuery) error {
	if _, err := Guard(q.SQLText); err != nil {
		return err
	}

	now := time.Now().UTC().Format(time.RFC3339)
	q.UpdatedAt, _ = time.Parse(time.RFC3339, now) //nolint:errcheck // format is controlled

	result, err := r.db.ExecContext(ctx,
		`UPDATE saved_queries SET name = ?, description = ?, sql_text = ?, updated_at = ? WHERE id = ?`,
		q.Name, nullIfEmpty(q.Description), q.SQLText, now, q.ID,
	)
	if err != nil {
		return fmt.Errorf("updating saved query: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrQueryNotFound
	}
	return nil
}

// Delete removes a saved query by ID.
func (r *SQLiteSavedQueryRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM saved_queries WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting saved query: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrQueryNotFound
	}
	return nil
}

// scanSavedQuery scans one saved query from sql.Row or sql.Rows.
func scanSavedQuery(s interface{ Scan(dest ...any) error }) (*SavedQuery, error) {
	var q SavedQuery
	var description, createdBy sql.NullString
	var createdAt, updatedAt string

	err := s.Scan(&q.ID, &q.Name, &description, &q.SQLText,
		&createdBy, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	if description.Valid {
		q.Description = description.String
	}
	if createdBy.Valid {
		q.CreatedBy = createdBy.String
	}
	q.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
	q.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // format is controlled

	return &q, nil
}
