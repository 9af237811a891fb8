package market

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Schema is the DuckDB schema holding all market-data tables.
const Schema = "market_data"

// StdSuffix marks standardised companion tables with long-form column names.
const StdSuffix = "_std"

// MasterPrefix is the table name prefix for per-underlying options masters.
const MasterPrefix = "options_master_"

// tableNamePattern restricts identifiers interpolated into SQL.
// DuckDB identifiers cannot be bound as parameters, so every table name
// must pass this check before it reaches a query string.
var tableNamePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_.]{0,254}$`)

// optionLegPattern captures the leg grammar:
// <Exchange>_Options_<Underlying>_<YYYYMMDD>_<Strike>_<call|put>
var optionLegPattern = regexp.MustCompile(`^([A-Za-z0-9]+)_Options_([A-Za-z0-9]+)_(\d{8})_(\d+(?:\.\d+)?)_(call|put)$`)

// expiryLayout is the date layout embedded in option leg table names.
const expiryLayout = "20060102"

// OptionType distinguishes calls from puts.
type OptionType string

const (
	OptionCall OptionType = "call"
	OptionPut  OptionType = "put"
)

// IsValidTableName reports whether a name is safe to interpolate as a
// SQL identifier.
func IsValidTableName(name string) bool {
	return tableNamePattern.MatchString(name)
}

// IsStdTable reports whether a table is a standardised companion.
func IsStdTable(name string) bool {
	return strings.HasSuffix(name, StdSuffix)
}

// IsMasterTable reports whether a table is an options master.
func IsMasterTable(name string) bool {
	return strings.HasPrefix(name, MasterPrefix)
}

// ExchangeOf extracts the exchange prefix from a table name
// (the segment before the first underscore). Returns "" when the
// name has no underscore.
func ExchangeOf(table string) string {
	idx := strings.Index(table, "_")
	if idx <= 0 {
		return ""
	}
	return table[:idx]
}

// OptionLeg is a parsed options leg table name.
type OptionLeg struct {
	Table      string     `json:"table"`
	Exchange   string     `json:"exchange"`
	Underlying string     `json:"underlying"`
	Expiry     time.Time  `json:"expiry"`
	Strike     float64    `json:"strike"`
	Type       OptionType `json:"type"`
}

// ParseOptionLeg parses an options leg table name. The returned bool is
// false when the name does not follow the leg grammar.
func ParseOptionLeg(table string) (OptionLeg, bool) {
	m := optionLegPattern.FindStringSubmatch(table)
	if m == nil {
		return OptionLeg{}, false
	}

	expiry, err := time.Parse(expiryLayout, m[3])
	if err != nil {
		return OptionLeg{}, false
	}

	strike, err := strconv.ParseFloat(m[4], 64)
	if err != nil {
		return OptionLeg{}, false
	}

	return OptionLeg{
		Table:      table,
		Exchange:   m[1],
		Underlying: m[2],
		Expiry:     expiry,
		Strike:     strike,
		Type:       OptionType(m[5]),
	}, true
}

// LegTableName builds the leg table name for the given components.
// This is the inverse of ParseOptionLeg for integer strikes.
func LegTableName(exchange, underlying string, expiry time.Time, strike float64, typ OptionType) string {
	strikeStr := strconv.FormatFloat(strike, 'f', -1, 64)
	return fmt.Sprintf("%s_Options_%s_%s_%s_%s",
		exchange, underlying, expiry.Format(expiryLayout), strikeStr, typ)
}

// TableInfo describes one catalogued table.
type TableInfo struct {
	Schema        string `json:"schema"`
	Name          string `json:"name"`
	EstimatedSize int64  `json:"estimated_size"`
	ColumnCount   int    `json:"column_count"`
}

// ColumnInfo describes one column of a table.
type ColumnInfo struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
}

// TableStats holds detailed statistics for one table.
type TableStats struct {
	Name         string       `json:"name"`
	RowCount     int64        `json:"row_count"`
	Columns      []ColumnInfo `json:"columns"`
	FirstBar     *time.Time   `json:"first_bar,omitempty"`
	LastBar      *time.Time   `json:"last_bar,omitempty"`
	BarInterval  string       `json:"bar_interval,omitempty"`
	HasTimestamp bool         `json:"has_timestamp"`
}

// Summary aggregates catalogue-level counts.
type Summary struct {
	TableCount  int            `json:"table_count"`
	StdTables   int            `json:"std_tables"`
	OptionLegs  int            `json:"option_legs"`
	Masters     int            `json:"masters"`
	ByExchange  map[string]int `json:"by_exchange"`
	Underlyings []string       `json:"underlyings"`
}

// Bar is one OHLCV row from a market-data table.
type Bar struct {
	Timestamp    time.Time `json:"timestamp"`
	Open         float64   `json:"open"`
	High         float64   `json:"high"`
	Low          float64   `json:"low"`
	Close        float64   `json:"close"`
	Volume       int64     `json:"volume"`
	OpenInterest *int64    `json:"open_interest,omitempty"`
}

// BarQuery controls a bar range scan.
type BarQuery struct {
	// Start and End bound the timestamp range (inclusive). Zero values
	// leave that side unbounded.
	Start time.Time
	End   time.Time

	// Limit caps the number of returned rows. Zero means the store's
	// configured maximum.
	Limit int
}
