// Package influxdb provides InfluxDB connectivity for the Qode engine.
//
// It wraps the official influxdb-client-go v2 library with the engine's
// patterns for connection management, tick mirroring, and health monitoring.
//
// # Purpose
//
// DuckDB is the analytical system of record. This package maintains a
// rolling time-series mirror of the live feed so intraday dashboards can
// chart activity without querying the analytical store:
//   - Live tick mirroring (ltp, volume, open interest per symbol)
//   - Scheduled job run metrics
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteTick("NSE_Index_NIFTY", 22450.75, -1, -1, tickTime)
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Write operations are non-blocking and batch errors are delivered via the
// SetOnError callback. Connection and health check errors are returned
// directly.
package influxdb
