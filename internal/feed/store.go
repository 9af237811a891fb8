package feed

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/qodeinvest/qode-engine/internal/infrastructure/duckdb"
	"github.com/qodeinvest/qode-engine/internal/market"
)

// DefaultLiveTable is the table receiving live ticks when none is configured.
const DefaultLiveTable = "live_ticks"

// LiveStore persists ticks into a DuckDB table under the market_data schema.
//
// The live table is append-only during the session; the scheduler prunes
// rows older than the retention window overnight.
type LiveStore struct {
	db    *duckdb.DB
	table string
}

// NewLiveStore creates a store writing to the given table. An empty table
// name falls back to DefaultLiveTable. Returns ErrInvalidTable for names
// that cannot be safely interpolated into SQL.
func NewLiveStore(db *duckdb.DB, table string) (*LiveStore, error) {
	if table == "" {
		table = DefaultLiveTable
	}
	if !market.IsValidTableName(table) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTable, table)
	}
	return &LiveStore{db: db, table: table}, nil
}

// Table returns the unqualified live table name.
func (s *LiveStore) Table() string {
	return s.table
}

// EnsureTable creates the live table if it does not exist.
func (s *LiveStore) EnsureTable(ctx context.Context) error {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
		symbol VARCHAR NOT NULL,
		timestamp TIMESTAMP NOT NULL,
		ltp DOUBLE NOT NULL,
		volume BIGINT,
		open_interest BIGINT
	)`, market.Schema, s.table)

	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("creating live table: %w", err)
	}
	return nil
}

// OnTick appends a tick to the live table. Implements Sink.
func (s *LiveStore) OnTick(ctx context.Context, tick Tick) error {
	query := fmt.Sprintf(
		"INSERT INTO %s.%s (symbol, timestamp, ltp, volume, open_interest) VALUES (?, ?, ?, ?, ?)",
		market.Schema, s.table,
	)

	var volume, oi any
	if tick.Volume != nil {
		volume = *tick.Volume
	}
	if tick.OpenInterest != nil {
		oi = *tick.OpenInterest
	}

	if _, err := s.db.ExecContext(ctx, query, tick.Symbol, tick.Timestamp, tick.LTP, volume, oi); err != nil {
		return fmt.Errorf("inserting tick for %s: %w", tick.Symbol, err)
	}
	return nil
}

// Recent returns the newest ticks for a symbol, most recent first.
func (s *LiveStore) Recent(ctx context.Context, symbol string, limit int) ([]Tick, error) {
	if limit <= 0 {
		limit = 100
	}

	query := fmt.Sprintf(
		"SELECT symbol, timestamp, ltp, volume, open_interest FROM %s.%s WHERE symbol = ? ORDER BY timestamp DESC LIMIT %d",
		market.Schema, s.table, limit,
	)

	rows, err := s.db.QueryContext(ctx, query, symbol)
	if err != nil {
		return nil, fmt.Errorf("querying recent ticks: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only cleanup

	ticks := []Tick{}
	for rows.Next() {
		var (
			tick   Tick
			volume sql.NullInt64
			oi     sql.NullInt64
		)
		if err := rows.Scan(&tick.Symbol, &tick.Timestamp, &tick.LTP, &volume, &oi); err != nil {
			return nil, fmt.Errorf("scanning tick: %w", err)
		}
		if volume.Valid {
			tick.Volume = &volume.Int64
		}
		if oi.Valid {
			tick.OpenInterest = &oi.Int64
		}
		ticks = append(ticks, tick)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating ticks: %w", err)
	}
	return ticks, nil
}

// Prune deletes ticks older than the cutoff and returns the count removed.
// Wired as a scheduled maintenance job.
func (s *LiveStore) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	query := fmt.Sprintf("DELETE FROM %s.%s WHERE timestamp < ?", market.Schema, s.table)

	res, err := s.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("pruning live table: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("pruning live table: %w", err)
	}
	return n, nil
}
