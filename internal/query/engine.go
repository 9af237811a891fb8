package query

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/qodeinvest/qode-engine/internal/infrastructure/duckdb"
)

// defaultMaxRows caps result sets when the engine is built without a limit.
const defaultMaxRows = 10000

// Result is one executed query's output.
type Result struct {
	Columns    []string `json:"columns"`
	Rows       [][]any  `json:"rows"`
	RowCount   int      `json:"row_count"`
	Truncated  bool     `json:"truncated"`
	DurationMS int64    `json:"duration_ms"`
}

// Engine runs guarded read-only SQL against the market store and records
// every execution in the query log.
type Engine struct {
	db      *duckdb.DB
	logRepo LogRepository
	logger  *slog.Logger
	maxRows int
}

// NewEngine creates a query engine. logRepo may be nil to disable the
// query log. maxRows caps result sets; zero selects the default.
func NewEngine(db *duckdb.DB, logRepo LogRepository, maxRows int, logger *slog.Logger) *Engine {
	if maxRows <= 0 {
		maxRows = defaultMaxRows
	}
	return &Engine{db: db, logRepo: logRepo, logger: logger, maxRows: maxRows}
}

// Execute guards, runs and logs one statement on behalf of a user.
// The userID is recorded in the query log only.
func (e *Engine) Execute(ctx context.Context, sqlText, userID string) (*Result, error) {
	stripped, err := Guard(sqlText)
	if err != nil {
		e.record(ctx, userID, sqlText, 0, 0, err)
		return nil, err
	}

	start := time.Now()
	result, err := e.run(ctx, stripped)
	elapsed := time.Since(start)

	if err != nil {
		e.record(ctx, userID, sqlText, elapsed, 0, err)
		return nil, err
	}

	result.DurationMS = elapsed.Milliseconds()
	e.record(ctx, userID, sqlText, elapsed, result.RowCount, nil)

	return result, nil
}

// run executes the statement and collects rows up to the cap.
func (e *Engine) run(ctx context.Context, sqlText string) (*Result, error) {
	rows, err := e.db.QueryContext(ctx, sqlText)
	if err != nil {
		return nil, fmt.Errorf("executing query: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only result set

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("reading columns: %w", err)
	}

	result := &Result{Columns: cols, Rows: [][]any{}}

	for rows.Next() {
		if result.RowCount >= e.maxRows {
			result.Truncated = true
			break
		}

		values := make([]any, len(cols))
		dest := make([]any, len(cols))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}

		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}

		result.Rows = append(result.Rows, values)
		result.RowCount++
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}

	return result, nil
}

// record writes one query log entry. Logging failures are reported but
// never fail the query itself.
func (e *Engine) record(ctx context.Context, userID, sqlText string, elapsed time.Duration, rowCount int, execErr error) {
	if e.logRepo == nil {
		return
	}

	entry := &LogEntry{
		UserID:     userID,
		SQLText:    sqlText,
		DurationMS: elapsed.Milliseconds(),
		RowCount:   rowCount,
	}
	if execErr != nil {
		entry.Error = execErr.Error()
	}

	if err := e.logRepo.Insert(ctx, entry); err != nil {
		e.logger.Warn("query log write failed", "error", err)
	}
}
