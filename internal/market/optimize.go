package market

import (
	"context"
	"fmt"
	"time"
)

// OptimizeReport summarises one optimisation pass.
type OptimizeReport struct {
	StdTablesDropped int           `json:"std_tables_dropped"`
	IndexesCreated   int           `json:"indexes_created"`
	Vacuumed         bool          `json:"vacuumed"`
	Duration         time.Duration `json:"-"`
	DurationMS       int64         `json:"duration_ms"`
}

// Optimize reclaims space and speeds up timestamp scans: standardised
// companion tables are dropped (they are derivable from their sources),
// every remaining table with a timestamp column gets an index on it, and
// the database is vacuumed.
func (s *Store) Optimize(ctx context.Context) (*OptimizeReport, error) {
	if s.db.ReadOnly() {
		return nil, ErrReadOnly
	}

	start := time.Now()
	report := &OptimizeReport{}

	tables, err := s.ListTables(ctx)
	if err != nil {
		return nil, err
	}

	for _, t := range tables {
		if !IsStdTable(t.Name) {
			continue
		}
		if _, err := s.db.ExecContext(ctx,
			fmt.Sprintf("DROP TABLE IF EXISTS %s.%s", Schema, t.Name)); err != nil {
			return nil, fmt.Errorf("dropping %s: %w", t.Name, err)
		}
		report.StdTablesDropped++
	}

	// Re-list after the drops so indexes only cover surviving tables.
	tables, err = s.ListTables(ctx)
	if err != nil {
		return nil, err
	}

	for _, t := range tables {
		hasTS, err := s.tableHasColumn(ctx, t.Name, "timestamp")
		if err != nil {
			return nil, err
		}
		if !hasTS {
			continue
		}

		if _, err := s.db.ExecContext(ctx, fmt.Sprintf(
			"CREATE INDEX IF NOT EXISTS idx_%s_timestamp ON %s.%s (timestamp)",
			t.Name, Schema, t.Name)); err != nil {
			return nil, fmt.Errorf("indexing %s: %w", t.Name, err)
		}
		report.IndexesCreated++
	}

	if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
		return nil, fmt.Errorf("vacuuming: %w", err)
	}
	report.Vacuumed = true

	report.Duration = time.Since(start)
	report.DurationMS = report.Duration.Milliseconds()

	s.logger.Info("market store optimised",
		"std_dropped", report.StdTablesDropped,
		"indexes", report.IndexesCreated,
		"duration", report.Duration,
	)

	return report, nil
}
