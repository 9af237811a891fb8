package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/qodeinvest/qode-engine/internal/infrastructure/duckdb"
	"github.com/qodeinvest/qode-engine/internal/market"
)

// Options configures an ingestion run.
type Options struct {
	// DataDir is the cold-storage root to scan.
	DataDir string

	// Materialize creates tables instead of views.
	Materialize bool

	// ExcludeExchanges lists exchange directories skipped when
	// materialising. View mode loads every exchange.
	ExcludeExchanges []string
}

// Ingester loads scanned sources into the market_data schema.
type Ingester struct {
	db     *duckdb.DB
	opts   Options
	logger *slog.Logger
}

// NewIngester creates an ingester over an open DuckDB handle.
func NewIngester(db *duckdb.DB, opts Options, logger *slog.Logger) *Ingester {
	return &Ingester{db: db, opts: opts, logger: logger}
}

// Run scans the data directory and loads every source. Parquet snapshots
// replace their tables; daily CSV exports append to existing ones.
func (ing *Ingester) Run(ctx context.Context) (*Report, error) {
	start := time.Now()

	sources, err := Scan(ing.opts.DataDir)
	if err != nil {
		return nil, err
	}

	report := &Report{SourcesFound: len(sources)}

	excluded := map[string]bool{}
	for _, ex := range ing.opts.ExcludeExchanges {
		excluded[ex] = true
	}

	if _, err := ing.db.ExecContext(ctx,
		"CREATE SCHEMA IF NOT EXISTS "+market.Schema); err != nil {
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	for _, src := range sources {
		if !market.IsValidTableName(src.Table) {
			ing.logger.Warn("skipping source with unusable table name",
				"table", src.Table, "path", src.Path)
			report.Skipped++
			continue
		}

		if ing.opts.Materialize && excluded[src.Exchange] {
			report.Skipped++
			continue
		}

		if err := ing.load(ctx, src, report); err != nil {
			return nil, fmt.Errorf("loading %s: %w", src.Table, err)
		}
	}

	report.Duration = time.Since(start)
	report.DurationMS = report.Duration.Milliseconds()

	ing.logger.Info("ingestion complete",
		"sources", report.SourcesFound,
		"tables", report.TablesCreated,
		"appended", report.TablesAppended,
		"views", report.ViewsCreated,
		"std", report.StdCreated,
		"skipped", report.Skipped,
		"duration", report.Duration,
	)

	return report, nil
}

// load creates the primary relation and its _std companion for one source.
//
// Parquet sources are full snapshots and replace the table. CSV sources
// are daily deltas: when the table already exists the rows are appended,
// otherwise the first load creates it.
func (ing *Ingester) load(ctx context.Context, src Source, report *Report) error {
	relation, err := readRelation(src.Path)
	if err != nil {
		return err
	}

	qualified := market.Schema + "." + src.Table

	switch {
	case !ing.opts.Materialize:
		if _, err := ing.db.ExecContext(ctx, fmt.Sprintf(
			"CREATE OR REPLACE VIEW %s AS SELECT * FROM %s", qualified, relation)); err != nil {
			return fmt.Errorf("creating view: %w", err)
		}
		report.ViewsCreated++

	case isDelta(src.Path):
		exists, err := ing.tableExists(ctx, src.Table)
		if err != nil {
			return err
		}
		if exists {
			if _, err := ing.db.ExecContext(ctx, fmt.Sprintf(
				"INSERT INTO %s SELECT * FROM %s", qualified, relation)); err != nil {
				return fmt.Errorf("appending to table: %w", err)
			}
			report.TablesAppended++
		} else {
			if _, err := ing.db.ExecContext(ctx, fmt.Sprintf(
				"CREATE TABLE %s AS SELECT * FROM %s", qualified, relation)); err != nil {
				return fmt.Errorf("creating table: %w", err)
			}
			report.TablesCreated++
		}

	default:
		if _, err := ing.db.ExecContext(ctx,
			"DROP TABLE IF EXISTS "+qualified); err != nil {
			return fmt.Errorf("dropping stale table: %w", err)
		}
		if _, err := ing.db.ExecContext(ctx, fmt.Sprintf(
			"CREATE TABLE %s AS SELECT * FROM %s", qualified, relation)); err != nil {
			return fmt.Errorf("creating table: %w", err)
		}
		report.TablesCreated++
	}

	// The companion derives from the primary relation so appended
	// CSV rows are reflected after a rebuild.
	return ing.loadStd(ctx, src, qualified, report)
}

// tableExists reports whether a base table with the given name exists in
// the market_data schema. Views do not count.
func (ing *Ingester) tableExists(ctx context.Context, table string) (bool, error) {
	var n int
	err := ing.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM duckdb_tables()
		 WHERE schema_name = ? AND table_name = ?`, market.Schema, table).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking table %s: %w", table, err)
	}
	return n > 0, nil
}

// isDelta reports whether the source file is an incremental daily export.
func isDelta(path string) bool {
	return strings.HasSuffix(path, ".csv")
}

// loadStd rebuilds the standardised companion with long-form column names
// from the primary table or view. Index sources have no volume or open
// interest columns.
func (ing *Ingester) loadStd(ctx context.Context, src Source, relation string, report *Report) error {
	cols := `timestamp AS datetime,
		o AS open,
		h AS high,
		l AS low,
		c AS close`
	if src.Kind != KindIndex {
		cols += `,
		v AS volume,
		oi AS open_interest`
	}

	qualified := market.Schema + "." + src.Table + market.StdSuffix

	if ing.opts.Materialize {
		if _, err := ing.db.ExecContext(ctx,
			"DROP TABLE IF EXISTS "+qualified); err != nil {
			return fmt.Errorf("dropping stale std table: %w", err)
		}
		if _, err := ing.db.ExecContext(ctx, fmt.Sprintf(
			"CREATE TABLE %s AS SELECT %s FROM %s", qualified, cols, relation)); err != nil {
			return fmt.Errorf("creating std table: %w", err)
		}
	} else {
		if _, err := ing.db.ExecContext(ctx, fmt.Sprintf(
			"CREATE OR REPLACE VIEW %s AS SELECT %s FROM %s", qualified, cols, relation)); err != nil {
			return fmt.Errorf("creating std view: %w", err)
		}
	}

	report.StdCreated++
	return nil
}

// readRelation builds the read_parquet/read_csv_auto source expression.
// Paths are interpolated into SQL string literals, so quotes are rejected.
func readRelation(path string) (string, error) {
	if strings.ContainsAny(path, "'\"") {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, path)
	}

	if strings.HasSuffix(path, ".csv") {
		return fmt.Sprintf("read_csv_auto('%s')", path), nil
	}
	return fmt.Sprintf("read_parquet('%s')", path), nil
}
