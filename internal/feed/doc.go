// Package feed streams live market ticks from an upstream websocket
// provider into the engine.
//
// The client authenticates, subscribes to the configured symbols, and fans
// each tick out to pluggable sinks:
//   - feed.LiveStore appends ticks to a DuckDB live table
//   - the API layer broadcasts ticks to websocket subscribers
//   - optional MQTT and InfluxDB sinks mirror ticks for external consumers
//
// Connection loss triggers reconnection with exponential backoff; rejected
// credentials are terminal. The feed is optional and disabled by default,
// the rest of the engine works purely from ingested historical data.
package feed
