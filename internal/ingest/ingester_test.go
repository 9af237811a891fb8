package ingest

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/qodeinvest/qode-engine/internal/infrastructure/duckdb"
	"github.com/qodeinvest/qode-engine/internal/market"
)

const indexCSV = `timestamp,o,h,l,c
2024-06-03 09:15:00,100,101,99,100.5
2024-06-03 09:16:00,100.5,102,100,101
`

const optionCSV = `timestamp,o,h,l,c,v,oi
2024-06-03 09:15:00,12.5,13,12,12.75,1000,500
2024-06-03 09:16:00,12.75,13.5,12.5,13,1100,520
`

// writeCSVStorage lays out a cold-storage tree with real CSV payloads so
// ingestion runs end to end against DuckDB's read_csv_auto.
func writeCSVStorage(t *testing.T) string {
	t.Helper()
	root := t.TempDir()

	files := map[string]string{
		"NSE/Index/NIFTY/NIFTY_1min.csv":                               indexCSV,
		"NSE/Options/NIFTY/20240627/22500/NIFTY_20240627_22500_CE.csv": optionCSV,
		"NSE/Futures/NIFTY/NIFTY_fut.csv":                              optionCSV,
		"BSE/Index/SENSEX/SENSEX_1min.csv":                             indexCSV,
	}
	for f, content := range files {
		path := filepath.Join(root, f)
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	return root
}

func testIngestDB(t *testing.T) *duckdb.DB {
	t.Helper()
	db, err := duckdb.Open(duckdb.Config{Path: duckdb.InMemory})
	if err != nil {
		t.Fatalf("opening duckdb: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func countRows(t *testing.T, db *duckdb.DB, table string) int {
	t.Helper()
	var n int
	err := db.QueryRowContext(t.Context(),
		fmt.Sprintf("SELECT COUNT(*) FROM %s.%s", market.Schema, table)).Scan(&n)
	if err != nil {
		t.Fatalf("counting %s: %v", table, err)
	}
	return n
}

func TestIngester_Materialize(t *testing.T) {
	root := writeCSVStorage(t)
	db := testIngestDB(t)

	ing := NewIngester(db, Options{
		DataDir:          root,
		Materialize:      true,
		ExcludeExchanges: []string{"BSE"},
	}, slog.Default())

	report, err := ing.Run(t.Context())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if report.SourcesFound != 4 {
		t.Errorf("SourcesFound = %d, want 4", report.SourcesFound)
	}
	if report.TablesCreated != 3 {
		t.Errorf("TablesCreated = %d, want 3", report.TablesCreated)
	}
	if report.StdCreated != 3 {
		t.Errorf("StdCreated = %d, want 3", report.StdCreated)
	}
	if report.Skipped != 1 {
		t.Errorf("Skipped = %d, want 1 (BSE excluded)", report.Skipped)
	}

	if got := countRows(t, db, "NSE_Index_NIFTY"); got != 2 {
		t.Errorf("NSE_Index_NIFTY rows = %d, want 2", got)
	}
	if got := countRows(t, db, "NSE_Options_NIFTY_20240627_22500_call"); got != 2 {
		t.Errorf("option leg rows = %d, want 2", got)
	}

	// Std companion renames the column set
	var open float64
	err = db.QueryRowContext(t.Context(), fmt.Sprintf(
		"SELECT open FROM %s.NSE_Index_NIFTY_std ORDER BY datetime LIMIT 1",
		market.Schema)).Scan(&open)
	if err != nil {
		t.Fatalf("querying std companion: %v", err)
	}
	if open != 100 {
		t.Errorf("std open = %v, want 100", open)
	}

	// Options std carries volume and open_interest
	var oi int64
	err = db.QueryRowContext(t.Context(), fmt.Sprintf(
		"SELECT open_interest FROM %s.NSE_Options_NIFTY_20240627_22500_call_std ORDER BY datetime LIMIT 1",
		market.Schema)).Scan(&oi)
	if err != nil {
		t.Fatalf("querying option std: %v", err)
	}
	if oi != 500 {
		t.Errorf("std open_interest = %d, want 500", oi)
	}

	// Excluded exchange must not be materialised
	var count int
	err = db.QueryRowContext(t.Context(),
		`SELECT COUNT(*) FROM duckdb_tables()
		 WHERE schema_name = ? AND table_name LIKE 'BSE%'`, market.Schema).Scan(&count)
	if err != nil {
		t.Fatalf("checking BSE tables: %v", err)
	}
	if count != 0 {
		t.Errorf("BSE tables = %d, want 0", count)
	}
}

func TestIngester_Views(t *testing.T) {
	root := writeCSVStorage(t)
	db := testIngestDB(t)

	ing := NewIngester(db, Options{
		DataDir:          root,
		Materialize:      false,
		ExcludeExchanges: []string{"BSE"}, // exclusion only applies to tables
	}, slog.Default())

	report, err := ing.Run(t.Context())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if report.ViewsCreated != 4 {
		t.Errorf("ViewsCreated = %d, want 4", report.ViewsCreated)
	}
	if report.TablesCreated != 0 {
		t.Errorf("TablesCreated = %d, want 0", report.TablesCreated)
	}

	// View mode still loads BSE
	if got := countRows(t, db, "BSE_Index_SENSEX"); got != 2 {
		t.Errorf("BSE_Index_SENSEX rows = %d, want 2", got)
	}
}

const indexCSVNextDay = `timestamp,o,h,l,c
2024-06-04 09:15:00,101,103,100.5,102
2024-06-04 09:16:00,102,104,101.5,103
`

func TestIngester_CSVAppendsOnRerun(t *testing.T) {
	root := writeCSVStorage(t)
	db := testIngestDB(t)

	ing := NewIngester(db, Options{DataDir: root, Materialize: true}, slog.Default())

	report, err := ing.Run(t.Context())
	if err != nil {
		t.Fatalf("first Run() error = %v", err)
	}
	if report.TablesAppended != 0 {
		t.Errorf("first run TablesAppended = %d, want 0", report.TablesAppended)
	}

	// The next trading day replaces yesterday's export with fresh rows.
	niftyPath := filepath.Join(root, "NSE/Index/NIFTY/NIFTY_1min.csv")
	if err := os.WriteFile(niftyPath, []byte(indexCSVNextDay), 0o600); err != nil {
		t.Fatalf("rewriting daily export: %v", err)
	}

	report, err = ing.Run(t.Context())
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	if report.TablesAppended != 4 {
		t.Errorf("second run TablesAppended = %d, want 4", report.TablesAppended)
	}
	if report.TablesCreated != 0 {
		t.Errorf("second run TablesCreated = %d, want 0", report.TablesCreated)
	}

	if got := countRows(t, db, "NSE_Index_NIFTY"); got != 4 {
		t.Errorf("rows after second day = %d, want 4 (appended)", got)
	}

	// The std companion is rebuilt from the table and sees both days.
	if got := countRows(t, db, "NSE_Index_NIFTY_std"); got != 4 {
		t.Errorf("std rows after second day = %d, want 4", got)
	}
	var last float64
	err = db.QueryRowContext(t.Context(), fmt.Sprintf(
		"SELECT close FROM %s.NSE_Index_NIFTY_std ORDER BY datetime DESC LIMIT 1",
		market.Schema)).Scan(&last)
	if err != nil {
		t.Fatalf("querying std companion: %v", err)
	}
	if last != 103 {
		t.Errorf("latest std close = %v, want 103", last)
	}
}

func TestIngester_ParquetReplacesOnRerun(t *testing.T) {
	root := t.TempDir()
	db := testIngestDB(t)

	path := filepath.Join(root, "NSE/Index/NIFTY/NIFTY_1min.parquet")
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	_, err := db.ExecContext(t.Context(), fmt.Sprintf(
		`COPY (SELECT TIMESTAMP '2024-06-03 09:15:00' + INTERVAL (r) MINUTE AS timestamp,
		        100.0 AS o, 101.0 AS h, 99.0 AS l, 100.5 AS c
		 FROM range(2) t(r)) TO '%s' (FORMAT PARQUET)`, path))
	if err != nil {
		t.Fatalf("writing parquet fixture: %v", err)
	}

	ing := NewIngester(db, Options{DataDir: root, Materialize: true}, slog.Default())

	if _, err := ing.Run(t.Context()); err != nil {
		t.Fatalf("first Run() error = %v", err)
	}
	report, err := ing.Run(t.Context())
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}

	if report.TablesAppended != 0 {
		t.Errorf("TablesAppended = %d, want 0 (snapshots replace)", report.TablesAppended)
	}
	if got := countRows(t, db, "NSE_Index_NIFTY"); got != 2 {
		t.Errorf("rows after rerun = %d, want 2 (table recreated)", got)
	}
}
