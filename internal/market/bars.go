package market

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// GetBars scans a table's bars ordered by timestamp, bounded by the query
// range and capped at the store's row limit.
func (s *Store) GetBars(ctx context.Context, table string, q BarQuery) ([]Bar, error) {
	exists, err := s.TableExists(ctx, table)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrTableNotFound, table)
	}

	hasOI, err := s.tableHasColumn(ctx, table, "oi")
	if err != nil {
		return nil, err
	}

	cols := "timestamp, o, h, l, c, v"
	if hasOI {
		cols += ", oi"
	}

	var sb strings.Builder
	var args []any
	fmt.Fprintf(&sb, "SELECT %s FROM %s.%s", cols, Schema, table)

	var conds []string
	if !q.Start.IsZero() {
		conds = append(conds, "timestamp >= ?")
		args = append(args, q.Start)
	}
	if !q.End.IsZero() {
		conds = append(conds, "timestamp <= ?")
		args = append(args, q.End)
	}
	if len(conds) > 0 {
		sb.WriteString(" WHERE " + strings.Join(conds, " AND "))
	}

	limit := q.Limit
	if limit <= 0 || limit > s.maxRows {
		limit = s.maxRows
	}
	fmt.Fprintf(&sb, " ORDER BY timestamp LIMIT %d", limit)

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("querying bars from %s: %w", table, err)
	}
	defer rows.Close() //nolint:errcheck // read-only result set

	bars := []Bar{}
	for rows.Next() {
		var b Bar
		var oi sql.NullInt64

		dest := []any{&b.Timestamp, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume}
		if hasOI {
			dest = append(dest, &oi)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scanning bar: %w", err)
		}
		if oi.Valid {
			v := oi.Int64
			b.OpenInterest = &v
		}
		bars = append(bars, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating bars: %w", err)
	}

	return bars, nil
}

// GetBar fetches the single bar at an exact timestamp. Returns
// ErrTableNotFound for unknown tables and sql.ErrNoRows when the
// timestamp has no bar.
func (s *Store) GetBar(ctx context.Context, table string, ts time.Time) (*Bar, error) {
	bars, err := s.GetBars(ctx, table, BarQuery{Start: ts, End: ts, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, sql.ErrNoRows
	}
	return &bars[0], nil
}

// tableHasColumn reports whether a table carries the named column.
func (s *Store) tableHasColumn(ctx context.Context, table, column string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM information_schema.columns
		 WHERE table_schema = ? AND table_name = ? AND column_name = ?`,
		Schema, table, column).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking column %s.%s: %w", table, column, err)
	}
	return count > 0, nil
}
