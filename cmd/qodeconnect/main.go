// qodeconnect is a minimal smoke test for the market-data store.
//
// It opens (creating if absent) my_duck_database.db in the working
// directory, verifies the connection, and exits. Useful for checking that
// the DuckDB driver links and the database file is readable before
// deploying the full engine on a host.
package main

import (
	"fmt"
	"os"

	"github.com/qodeinvest/qode-engine/internal/infrastructure/duckdb"
)

const databasePath = "my_duck_database.db"

func main() {
	db, err := duckdb.Open(duckdb.Config{Path: databasePath})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Exception: %v\n", err)
		os.Exit(1)
	}

	if err := db.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Exception: %v\n", err)
		os.Exit(1)
	}
}
