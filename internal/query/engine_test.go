package query

import (
	"database/sql"
	"errors"
	"log/slog"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/qodeinvest/qode-engine/internal/infrastructure/duckdb"
)

// testMetaDB creates a SQLite metadata store with the query tables applied.
func testMetaDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", "file:"+t.TempDir()+"/meta.db?_journal_mode=WAL")
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	schema := `
		CREATE TABLE saved_queries (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT,
			sql_text TEXT NOT NULL,
			created_by TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		) STRICT;

		CREATE TABLE query_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT,
			sql_text TEXT NOT NULL,
			duration_ms INTEGER NOT NULL DEFAULT 0,
			row_count INTEGER NOT NULL DEFAULT 0,
			error TEXT,
			created_at TEXT NOT NULL
		) STRICT;
	`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("applying query schema: %v", err)
	}

	return db
}

// testEngine builds an engine over an in-memory DuckDB with a small table.
func testEngine(t *testing.T, logRepo LogRepository, maxRows int) *Engine {
	t.Helper()

	db, err := duckdb.Open(duckdb.Config{Path: duckdb.InMemory})
	if err != nil {
		t.Fatalf("opening duckdb: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	setup := `
		CREATE SCHEMA market_data;
		CREATE TABLE market_data.nums (n BIGINT, label VARCHAR);
		INSERT INTO market_data.nums
		SELECT range, 'row-' || range FROM range(50);
	`
	if _, err := db.ExecContext(t.Context(), setup); err != nil {
		t.Fatalf("seeding duckdb: %v", err)
	}

	return NewEngine(db, logRepo, maxRows, slog.Default())
}

func TestEngine_Execute(t *testing.T) {
	e := testEngine(t, nil, 0)

	result, err := e.Execute(t.Context(),
		"SELECT n, label FROM market_data.nums ORDER BY n LIMIT 5", "usr-1")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if result.RowCount != 5 {
		t.Errorf("RowCount = %d, want 5", result.RowCount)
	}
	if len(result.Columns) != 2 || result.Columns[0] != "n" {
		t.Errorf("Columns = %v, want [n label]", result.Columns)
	}
	if result.Truncated {
		t.Error("result should not be truncated")
	}
	if result.Rows[0][1] != "row-0" {
		t.Errorf("first label = %v, want row-0", result.Rows[0][1])
	}
}

func TestEngine_Execute_Truncation(t *testing.T) {
	e := testEngine(t, nil, 10)

	result, err := e.Execute(t.Context(), "SELECT n FROM market_data.nums", "usr-1")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if result.RowCount != 10 {
		t.Errorf("RowCount = %d, want 10", result.RowCount)
	}
	if !result.Truncated {
		t.Error("result should be truncated at the row cap")
	}
}

func TestEngine_Execute_RejectsWrites(t *testing.T) {
	e := testEngine(t, nil, 0)

	_, err := e.Execute(t.Context(), "DROP TABLE market_data.nums", "usr-1")
	if !errors.Is(err, ErrNotReadOnly) {
		t.Fatalf("error = %v, want ErrNotReadOnly", err)
	}

	// The table must still exist
	result, err := e.Execute(t.Context(), "SELECT COUNT(*) FROM market_data.nums", "usr-1")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result.RowCount != 1 {
		t.Errorf("RowCount = %d, want 1", result.RowCount)
	}
}

func TestEngine_Execute_LogsQueries(t *testing.T) {
	meta := testMetaDB(t)
	logRepo := NewLogRepository(meta)
	e := testEngine(t, logRepo, 0)
	ctx := t.Context()

	if _, err := e.Execute(ctx, "SELECT 1", "usr-log"); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	// Failed statements are logged too
	if _, err := e.Execute(ctx, "DELETE FROM market_data.nums", "usr-log"); err == nil {
		t.Fatal("expected guard rejection")
	}

	entries, err := logRepo.ListRecent(ctx, 10)
	if err != nil {
		t.Fatalf("ListRecent() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d log entries, want 2", len(entries))
	}

	// Newest first
	if entries[0].Error == "" {
		t.Error("rejected statement should carry an error")
	}
	if entries[1].UserID != "usr-log" {
		t.Errorf("UserID = %q, want usr-log", entries[1].UserID)
	}
	if entries[1].RowCount != 1 {
		t.Errorf("RowCount = %d, want 1", entries[1].RowCount)
	}
}
