// Package market provides the domain layer over the DuckDB market-data
// store: the table naming grammar, catalogue introspection, bar retrieval,
// options master construction and database optimisation.
//
// All market data lives in the market_data schema. Table names follow the
// grammar <Exchange>_<Instrument>_<qualifiers...>; options legs use
// <Exchange>_Options_<Underlying>_<YYYYMMDD>_<Strike>_<call|put>.
// Standardised companions carry an _std suffix and rename the terse
// column set (timestamp, o, h, l, c, v, oi) to the long form.
package market
