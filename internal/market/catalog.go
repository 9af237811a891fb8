package market

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/qodeinvest/qode-engine/internal/infrastructure/duckdb"
)

// defaultMaxRows caps bar scans when the caller does not set a limit.
const defaultMaxRows = 10000

// intervalSampleRows is how many leading rows feed the bar interval estimate.
const intervalSampleRows = 1000

// Store is the domain gateway to the DuckDB market-data schema.
type Store struct {
	db      *duckdb.DB
	logger  *slog.Logger
	maxRows int
}

// NewStore creates a market store over an open DuckDB handle.
// maxRows caps unbounded bar scans; zero selects the default.
func NewStore(db *duckdb.DB, maxRows int, logger *slog.Logger) *Store {
	if maxRows <= 0 {
		maxRows = defaultMaxRows
	}
	return &Store{db: db, logger: logger, maxRows: maxRows}
}

// DatabaseSize returns the database file size in bytes, zero for
// in-memory databases.
func (s *Store) DatabaseSize() int64 {
	return s.db.FileSize()
}

// EnsureSchema creates the market_data schema if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if s.db.ReadOnly() {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, "CREATE SCHEMA IF NOT EXISTS "+Schema); err != nil {
		return fmt.Errorf("creating schema %s: %w", Schema, err)
	}
	return nil
}

// ListTables returns every table in the market_data schema, ordered by name.
func (s *Store) ListTables(ctx context.Context) ([]TableInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT schema_name, table_name, estimated_size, column_count
		 FROM duckdb_tables()
		 WHERE schema_name = ?
		 ORDER BY table_name`, Schema)
	if err != nil {
		return nil, fmt.Errorf("listing tables: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only result set

	tables := []TableInfo{}
	for rows.Next() {
		var t TableInfo
		if err := rows.Scan(&t.Schema, &t.Name, &t.EstimatedSize, &t.ColumnCount); err != nil {
			return nil, fmt.Errorf("scanning table info: %w", err)
		}
		tables = append(tables, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating tables: %w", err)
	}

	return tables, nil
}

// TableExists reports whether a table exists in the market_data schema.
func (s *Store) TableExists(ctx context.Context, table string) (bool, error) {
	if !IsValidTableName(table) {
		return false, ErrInvalidTable
	}

	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM duckdb_tables()
		 WHERE schema_name = ? AND table_name = ?`, Schema, table).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking table %s: %w", table, err)
	}
	return count > 0, nil
}

// TableStats returns row count, column layout and the timestamp span for
// one table. The bar interval is estimated from the leading rows.
func (s *Store) TableStats(ctx context.Context, table string) (*TableStats, error) {
	exists, err := s.TableExists(ctx, table)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrTableNotFound, table)
	}

	stats := &TableStats{Name: table}

	qualified := Schema + "." + table
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM "+qualified).Scan(&stats.RowCount); err != nil {
		return nil, fmt.Errorf("counting rows in %s: %w", table, err)
	}

	stats.Columns, err = s.describeColumns(ctx, table)
	if err != nil {
		return nil, err
	}

	// Raw tables carry "timestamp", standardised companions "datetime".
	timeCol := ""
	for _, c := range stats.Columns {
		if c.Name == "timestamp" || c.Name == "datetime" {
			stats.HasTimestamp = true
			timeCol = c.Name
			break
		}
	}

	if stats.HasTimestamp && stats.RowCount > 0 {
		if err := s.fillTimestampStats(ctx, qualified, timeCol, stats); err != nil {
			return nil, err
		}
	}

	return stats, nil
}

// describeColumns returns the column layout of a table.
func (s *Store) describeColumns(ctx context.Context, table string) ([]ColumnInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT column_name, data_type, is_nullable
		 FROM information_schema.columns
		 WHERE table_schema = ? AND table_name = ?
		 ORDER BY ordinal_position`, Schema, table)
	if err != nil {
		return nil, fmt.Errorf("describing %s: %w", table, err)
	}
	defer rows.Close() //nolint:errcheck // read-only result set

	var cols []ColumnInfo
	for rows.Next() {
		var c ColumnInfo
		var nullable string
		if err := rows.Scan(&c.Name, &c.Type, &nullable); err != nil {
			return nil, fmt.Errorf("scanning column info: %w", err)
		}
		c.Nullable = nullable == "YES"
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating columns: %w", err)
	}

	return cols, nil
}

// fillTimestampStats populates first/last bar and the estimated interval.
// timeCol is the table's time column ("timestamp" or "datetime").
func (s *Store) fillTimestampStats(ctx context.Context, qualified, timeCol string, stats *TableStats) error {
	var first, last sql.NullTime
	if err := s.db.QueryRowContext(ctx, fmt.Sprintf(
		"SELECT MIN(%s), MAX(%s) FROM %s", timeCol, timeCol, qualified),
	).Scan(&first, &last); err != nil {
		return fmt.Errorf("timestamp span for %s: %w", stats.Name, err)
	}
	if first.Valid {
		t := first.Time
		stats.FirstBar = &t
	}
	if last.Valid {
		t := last.Time
		stats.LastBar = &t
	}

	var avgSeconds sql.NullFloat64
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT AVG(delta) FROM (
			SELECT epoch(%[1]s - lag(%[1]s) OVER (ORDER BY %[1]s)) AS delta
			FROM (SELECT %[1]s FROM %[2]s ORDER BY %[1]s LIMIT %[3]d)
		 ) WHERE delta IS NOT NULL AND delta > 0`, timeCol, qualified, intervalSampleRows),
	).Scan(&avgSeconds)
	if err != nil {
		return fmt.Errorf("bar interval for %s: %w", stats.Name, err)
	}
	if avgSeconds.Valid && avgSeconds.Float64 > 0 {
		stats.BarInterval = formatInterval(avgSeconds.Float64)
	}

	return nil
}

// formatInterval renders an average bar gap in seconds as a friendly label.
func formatInterval(seconds float64) string {
	d := time.Duration(seconds * float64(time.Second))
	switch {
	case d >= 20*time.Hour:
		return "1d"
	case d >= time.Hour:
		return fmt.Sprintf("%dh", int(d.Round(time.Hour).Hours()))
	case d >= time.Minute:
		return fmt.Sprintf("%dm", int(d.Round(time.Minute).Minutes()))
	default:
		return fmt.Sprintf("%ds", int(d.Round(time.Second).Seconds()))
	}
}

// Summarize builds catalogue-level counts across the market_data schema.
func (s *Store) Summarize(ctx context.Context) (*Summary, error) {
	tables, err := s.ListTables(ctx)
	if err != nil {
		return nil, err
	}

	summary := &Summary{
		TableCount: len(tables),
		ByExchange: map[string]int{},
	}

	underlyings := map[string]struct{}{}
	for _, t := range tables {
		switch {
		case IsStdTable(t.Name):
			summary.StdTables++
		case IsMasterTable(t.Name):
			summary.Masters++
		}

		if leg, ok := ParseOptionLeg(t.Name); ok {
			summary.OptionLegs++
			underlyings[leg.Underlying] = struct{}{}
		}

		if ex := ExchangeOf(t.Name); ex != "" && !IsMasterTable(t.Name) {
			summary.ByExchange[ex]++
		}
	}

	summary.Underlyings = make([]string, 0, len(underlyings))
	for u := range underlyings {
		summary.Underlyings = append(summary.Underlyings, u)
	}
	sort.Strings(summary.Underlyings)

	return summary, nil
}
