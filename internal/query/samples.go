package query

// Sample is one built-in example statement for the query console.
type Sample struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	SQLText     string `json:"sql"`
}

// Samples returns the built-in sample catalogue. The slice is a copy;
// callers may reorder it freely.
func Samples() []Sample {
	out := make([]Sample, len(samples))
	copy(out, samples)
	return out
}

var samples = []Sample{
	{
		Name:        "List all tables",
		Description: "Every table in the market_data schema with its size estimate.",
		SQLText: `SELECT table_name, estimated_size, column_count
FROM duckdb_tables()
WHERE schema_name = 'market_data'
ORDER BY table_name`,
	},
	{
		Name:        "Recent NIFTY bars",
		Description: "The last trading day of NIFTY index bars.",
		SQLText: `SELECT timestamp, o, h, l, c
FROM market_data.NSE_Index_NIFTY
ORDER BY timestamp DESC
LIMIT 375`,
	},
	{
		Name:        "Daily NIFTY candles",
		Description: "Minute bars rolled up into daily OHLC.",
		SQLText: `SELECT date_trunc('day', timestamp) AS day,
       first(o ORDER BY timestamp)  AS open,
       max(h)                       AS high,
       min(l)                       AS low,
       last(c ORDER BY timestamp)   AS close
FROM market_data.NSE_Index_NIFTY
GROUP BY day
ORDER BY day`,
	},
	{
		Name:        "Option chain snapshot",
		Description: "Latest close and open interest per strike from the NIFTY options master.",
		SQLText: `SELECT strike, option_type, expiry,
       last(c ORDER BY timestamp)  AS close,
       last(oi ORDER BY timestamp) AS open_interest
FROM market_data.options_master_NIFTY
GROUP BY strike, option_type, expiry
ORDER BY expiry, strike`,
	},
	{
		Name:        "Highest open interest",
		Description: "The ten option contracts with the largest open interest.",
		SQLText: `SELECT underlying, strike, option_type, expiry, max(oi) AS peak_oi
FROM market_data.options_master_NIFTY
GROUP BY underlying, strike, option_type, expiry
ORDER BY peak_oi DESC
LIMIT 10`,
	},
}
