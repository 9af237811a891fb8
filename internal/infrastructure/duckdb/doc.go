// Package duckdb provides DuckDB connectivity for the market-data store.
//
// This package manages:
//   - Opening the database file (or an in-memory instance for tests)
//   - Read-only mode for serving deployments that never ingest
//   - Memory and thread limits via DSN options
//   - Lifecycle management and health checks
//
// The market-data store holds intraday bars under the market_data schema;
// the catalog, bar queries and ingestion live in internal/market and
// internal/ingest. The engine's own bookkeeping lives in SQLite
// (internal/infrastructure/database).
//
// Usage:
//
//	db, err := duckdb.Open(duckdb.Config{Path: cfg.MarketData.Path})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
package duckdb
