// Package ingest loads cold-storage market data into the DuckDB store.
//
// The data directory is laid out as
// <dir>/<Exchange>/<Instrument>/... with three instrument shapes:
//
//	Index/<name>/<file>
//	Options/<underlying>/<expiry>/<strike>/<file>
//	Futures/<underlying>/<file>
//
// Each parquet or CSV file becomes one table (or view) in the market_data
// schema, named by joining the path segments with underscores. Every
// source also gets a _std companion that renames the terse column set
// to the long form. Option files carry the option type as the last
// underscore-separated token of the filename; CE and PE map to call
// and put.
package ingest
