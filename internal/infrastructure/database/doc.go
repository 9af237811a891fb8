// Package database provides the SQLite metadata store for Qode Engine.
//
// This package manages:
//   - Database connection with WAL mode for concurrent access
//   - Schema migrations embedded into the binary
//   - Connection pooling and lifecycle management
//
// The metadata store holds the engine's bookkeeping: user accounts, refresh
// tokens, saved queries, the query execution log and job run records. Market
// data itself lives in DuckDB (see internal/infrastructure/duckdb).
//
// Security Considerations:
//   - All queries use parameterised statements (no SQL injection)
//   - Database file permissions are set to 0600 (owner read/write only)
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Metadata.Path})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Migration files live in the migrations/ package and follow the format
// YYYYMMDD_HHMMSS_description.up.sql with a matching .down.sql.
package database
