// Package query executes analyst SQL against the market-data store.
//
// Every statement passes a read-only guard before execution: comments are
// stripped and any write or DDL keyword rejects the statement outright.
// Executions are timed, row-capped and recorded in the metadata store's
// query log. Analysts can persist frequently used statements as saved
// queries, and a small built-in sample catalogue helps new users find
// their way around the schema.
package query
