package market

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strconv"
	"time"
)

// MasterReport summarises one options master rebuild.
type MasterReport struct {
	Masters     []string      `json:"masters"`
	LegsScanned int           `json:"legs_scanned"`
	RowsLoaded  int64         `json:"rows_loaded"`
	Duration    time.Duration `json:"-"`
	DurationMS  int64         `json:"duration_ms"`
}

// RebuildMasters drops and rebuilds options_master_<underlying> for every
// underlying that has at least one leg table. Each master consolidates the
// close and open interest of all legs along with the contract metadata
// parsed from the leg table names.
func (s *Store) RebuildMasters(ctx context.Context) (*MasterReport, error) {
	if s.db.ReadOnly() {
		return nil, ErrReadOnly
	}

	start := time.Now()

	tables, err := s.ListTables(ctx)
	if err != nil {
		return nil, err
	}

	legsByUnderlying := map[string][]OptionLeg{}
	for _, t := range tables {
		if IsStdTable(t.Name) {
			continue
		}
		if leg, ok := ParseOptionLeg(t.Name); ok {
			legsByUnderlying[leg.Underlying] = append(legsByUnderlying[leg.Underlying], leg)
		}
	}

	report := &MasterReport{Masters: []string{}}

	underlyings := make([]string, 0, len(legsByUnderlying))
	for u := range legsByUnderlying {
		underlyings = append(underlyings, u)
	}
	sort.Strings(underlyings)

	for _, underlying := range underlyings {
		legs := legsByUnderlying[underlying]
		master := MasterPrefix + underlying

		rows, err := s.buildMaster(ctx, master, legs)
		if err != nil {
			return nil, fmt.Errorf("building %s: %w", master, err)
		}

		report.Masters = append(report.Masters, master)
		report.LegsScanned += len(legs)
		report.RowsLoaded += rows

		s.logger.Info("options master rebuilt",
			"master", master,
			"legs", len(legs),
			"rows", rows,
		)
	}

	report.Duration = time.Since(start)
	report.DurationMS = report.Duration.Milliseconds()

	return report, nil
}

// buildMaster recreates one master table and loads every leg into it.
func (s *Store) buildMaster(ctx context.Context, master string, legs []OptionLeg) (int64, error) {
	if !IsValidTableName(master) {
		return 0, fmt.Errorf("%w: %s", ErrInvalidTable, master)
	}

	qualified := Schema + "." + master

	if _, err := s.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+qualified); err != nil {
		return 0, fmt.Errorf("dropping stale master: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(
		`CREATE TABLE %s (
			timestamp TIMESTAMP NOT NULL,
			c DOUBLE,
			oi BIGINT,
			strike DOUBLE NOT NULL,
			expiry DATE NOT NULL,
			option_type VARCHAR NOT NULL,
			underlying VARCHAR NOT NULL
		)`, qualified)); err != nil {
		return 0, fmt.Errorf("creating master: %w", err)
	}

	var total int64
	for _, leg := range legs {
		result, err := s.db.ExecContext(ctx, fmt.Sprintf(
			`INSERT INTO %s (timestamp, c, oi, strike, expiry, option_type, underlying)
			 SELECT timestamp, c, oi, %s, DATE '%s', '%s', '%s'
			 FROM %s.%s`,
			qualified,
			strconv.FormatFloat(leg.Strike, 'f', -1, 64),
			leg.Expiry.Format("2006-01-02"),
			leg.Type,
			leg.Underlying,
			Schema, leg.Table,
		))
		if err != nil {
			return 0, fmt.Errorf("loading leg %s: %w", leg.Table, err)
		}

		rows, _ := result.RowsAffected() //nolint:errcheck // driver reports inserts
		total += rows
	}

	return total, nil
}

// ListMasters returns the options master tables present in the schema.
func (s *Store) ListMasters(ctx context.Context) ([]string, error) {
	tables, err := s.ListTables(ctx)
	if err != nil {
		return nil, err
	}

	masters := []string{}
	for _, t := range tables {
		if IsMasterTable(t.Name) {
			masters = append(masters, t.Name)
		}
	}
	return masters, nil
}

// MasterRow is one consolidated options master record.
type MasterRow struct {
	Timestamp    time.Time  `json:"timestamp"`
	Close        *float64   `json:"close,omitempty"`
	OpenInterest *int64     `json:"open_interest,omitempty"`
	Strike       float64    `json:"strike"`
	Expiry       time.Time  `json:"expiry"`
	Type         OptionType `json:"type"`
	Underlying   string     `json:"underlying"`
}

// MasterQuery filters a master scan.
type MasterQuery struct {
	Start  time.Time
	End    time.Time
	Expiry time.Time
	Strike float64
	Type   OptionType
	Limit  int
}

// GetMasterRows scans an options master with optional contract filters.
func (s *Store) GetMasterRows(ctx context.Context, underlying string, q MasterQuery) ([]MasterRow, error) {
	master := MasterPrefix + underlying
	exists, err := s.TableExists(ctx, master)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrTableNotFound, master)
	}

	query := fmt.Sprintf(
		`SELECT timestamp, c, oi, strike, expiry, option_type, underlying
		 FROM %s.%s WHERE 1=1`, Schema, master)
	var args []any

	if !q.Start.IsZero() {
		query += " AND timestamp >= ?"
		args = append(args, q.Start)
	}
	if !q.End.IsZero() {
		query += " AND timestamp <= ?"
		args = append(args, q.End)
	}
	if !q.Expiry.IsZero() {
		query += " AND expiry = ?"
		args = append(args, q.Expiry.Format("2006-01-02"))
	}
	if q.Strike > 0 {
		query += " AND strike = ?"
		args = append(args, q.Strike)
	}
	if q.Type != "" {
		query += " AND option_type = ?"
		args = append(args, string(q.Type))
	}

	limit := q.Limit
	if limit <= 0 || limit > s.maxRows {
		limit = s.maxRows
	}
	query += fmt.Sprintf(" ORDER BY timestamp LIMIT %d", limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying master %s: %w", master, err)
	}
	defer rows.Close() //nolint:errcheck // read-only result set

	out := []MasterRow{}
	for rows.Next() {
		var r MasterRow
		var c sql.NullFloat64
		var oi sql.NullInt64
		var typ string

		if err := rows.Scan(&r.Timestamp, &c, &oi, &r.Strike, &r.Expiry, &typ, &r.Underlying); err != nil {
			return nil, fmt.Errorf("scanning master row: %w", err)
		}
		r.Type = OptionType(typ)
		if c.Valid {
			v := c.Float64
			r.Close = &v
		}
		if oi.Valid {
			v := oi.Int64
			r.OpenInterest = &v
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating master rows: %w", err)
	}

	return out, nil
}
