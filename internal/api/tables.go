package api

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/qodeinvest/qode-engine/internal/market"
)

// handleListTables returns every table and view in the market_data schema.
func (s *Server) handleListTables(w http.ResponseWriter, r *http.Request) {
	tables, err := s.market.ListTables(r.Context())
	if err != nil {
		s.logger.Error("list tables failed", "error", err)
		writeInternalError(w, "failed to list tables")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"tables": tables,
		"count":  len(tables),
	})
}

// handleSummary returns catalog-wide statistics.
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.market.Summarize(r.Context())
	if err != nil {
		s.logger.Error("summary failed", "error", err)
		writeInternalError(w, "failed to summarise catalog")
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// handleTableStats returns per-table statistics (rows, columns, time range).
func (s *Server) handleTableStats(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	stats, err := s.market.TableStats(r.Context(), name)
	if err != nil {
		switch {
		case errors.Is(err, market.ErrInvalidTable):
			writeBadRequest(w, "invalid table name")
		case errors.Is(err, market.ErrTableNotFound):
			writeNotFound(w, "table not found")
		default:
			s.logger.Error("table stats failed", "table", name, "error", err)
			writeInternalError(w, "failed to get table stats")
		}
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// handleGetBars returns OHLCV bars for a table.
//
// Query parameters:
//   - start, end: RFC 3339 timestamps bounding the range (inclusive)
//   - limit: maximum rows (capped at the store's configured maximum)
func (s *Server) handleGetBars(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	q := market.BarQuery{}
	var err error
	if q.Start, err = parseTimeParam(r, "start"); err != nil {
		writeBadRequest(w, "start must be an RFC 3339 timestamp")
		return
	}
	if q.End, err = parseTimeParam(r, "end"); err != nil {
		writeBadRequest(w, "end must be an RFC 3339 timestamp")
		return
	}
	if q.Limit, err = parseIntParam(r, "limit"); err != nil {
		writeBadRequest(w, "limit must be an integer")
		return
	}

	bars, err := s.market.GetBars(r.Context(), name, q)
	if err != nil {
		switch {
		case errors.Is(err, market.ErrInvalidTable):
			writeBadRequest(w, "invalid table name")
		case errors.Is(err, market.ErrTableNotFound):
			writeNotFound(w, "table not found")
		default:
			s.logger.Error("get bars failed", "table", name, "error", err)
			writeInternalError(w, "failed to get bars")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"table": name,
		"bars":  bars,
		"count": len(bars),
	})
}

// handleGetBarAt returns the single bar at an exact timestamp.
//
// Query parameters:
//   - ts: RFC 3339 timestamp (required)
func (s *Server) handleGetBarAt(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	raw := r.URL.Query().Get("ts")
	if raw == "" {
		writeBadRequest(w, "ts query parameter is required")
		return
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		writeBadRequest(w, "ts must be an RFC 3339 timestamp")
		return
	}

	bar, err := s.market.GetBar(r.Context(), name, ts)
	if err != nil {
		switch {
		case errors.Is(err, market.ErrInvalidTable):
			writeBadRequest(w, "invalid table name")
		case errors.Is(err, market.ErrTableNotFound):
			writeNotFound(w, "table not found")
		case errors.Is(err, sql.ErrNoRows):
			writeNotFound(w, "no bar at the given timestamp")
		default:
			s.logger.Error("get bar failed", "table", name, "error", err)
			writeInternalError(w, "failed to get bar")
		}
		return
	}

	writeJSON(w, http.StatusOK, bar)
}

// handleListMasters returns the available options master tables.
func (s *Server) handleListMasters(w http.ResponseWriter, r *http.Request) {
	masters, err := s.market.ListMasters(r.Context())
	if err != nil {
		s.logger.Error("list masters failed", "error", err)
		writeInternalError(w, "failed to list masters")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"masters": masters,
		"count":   len(masters),
	})
}

// handleMasterRows returns rows from an options master with optional filters.
//
// Query parameters:
//   - start, end: RFC 3339 timestamps bounding the range (inclusive)
//   - expiry: contract expiry date (YYYY-MM-DD)
//   - strike: exact strike filter
//   - type: "call" or "put"
//   - limit: maximum rows
func (s *Server) handleMasterRows(w http.ResponseWriter, r *http.Request) {
	underlying := chi.URLParam(r, "underlying")

	q := market.MasterQuery{}
	var err error
	if q.Start, err = parseTimeParam(r, "start"); err != nil {
		writeBadRequest(w, "start must be an RFC 3339 timestamp")
		return
	}
	if q.End, err = parseTimeParam(r, "end"); err != nil {
		writeBadRequest(w, "end must be an RFC 3339 timestamp")
		return
	}
	if raw := r.URL.Query().Get("expiry"); raw != "" {
		q.Expiry, err = time.Parse("2006-01-02", raw)
		if err != nil {
			writeBadRequest(w, "expiry must be a YYYY-MM-DD date")
			return
		}
	}
	if raw := r.URL.Query().Get("strike"); raw != "" {
		q.Strike, err = strconv.ParseFloat(raw, 64)
		if err != nil {
			writeBadRequest(w, "strike must be a number")
			return
		}
	}
	if raw := r.URL.Query().Get("type"); raw != "" {
		typ := market.OptionType(raw)
		if typ != market.OptionCall && typ != market.OptionPut {
			writeBadRequest(w, "type must be call or put")
			return
		}
		q.Type = typ
	}
	if q.Limit, err = parseIntParam(r, "limit"); err != nil {
		writeBadRequest(w, "limit must be an integer")
		return
	}

	rows, err := s.market.GetMasterRows(r.Context(), underlying, q)
	if err != nil {
		switch {
		case errors.Is(err, market.ErrInvalidTable):
			writeBadRequest(w, "invalid underlying name")
		case errors.Is(err, market.ErrTableNotFound):
			writeNotFound(w, "no master for underlying")
		default:
			s.logger.Error("master rows failed", "underlying", underlying, "error", err)
			writeInternalError(w, "failed to get master rows")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"underlying": underlying,
		"rows":       rows,
		"count":      len(rows),
	})
}

// handleRebuildMasters drops and rebuilds every options master table.
func (s *Server) handleRebuildMasters(w http.ResponseWriter, r *http.Request) {
	report, err := s.market.RebuildMasters(r.Context())
	if err != nil {
		if errors.Is(err, market.ErrReadOnly) {
			writeError(w, http.StatusConflict, ErrCodeReadOnly, "market data store is read-only")
			return
		}
		s.logger.Error("rebuild masters failed", "error", err)
		writeInternalError(w, "failed to rebuild masters")
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// handleRunOptimize drops companion tables and rebuilds indexes.
func (s *Server) handleRunOptimize(w http.ResponseWriter, r *http.Request) {
	report, err := s.market.Optimize(r.Context())
	if err != nil {
		if errors.Is(err, market.ErrReadOnly) {
			writeError(w, http.StatusConflict, ErrCodeReadOnly, "market data store is read-only")
			return
		}
		s.logger.Error("optimize failed", "error", err)
		writeInternalError(w, "failed to optimize store")
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// handleRunIngest triggers a cold-storage scan and load.
func (s *Server) handleRunIngest(w http.ResponseWriter, r *http.Request) {
	if s.ingester == nil {
		writeNotFound(w, "ingestion is not configured")
		return
	}

	report, err := s.ingester.Run(r.Context())
	if err != nil {
		s.logger.Error("ingest failed", "error", err)
		writeInternalError(w, "ingestion failed")
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// parseTimeParam parses an RFC 3339 query parameter, zero when absent.
func parseTimeParam(r *http.Request, key string) (time.Time, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, raw)
}

// parseIntParam parses an integer query parameter, zero when absent.
func parseIntParam(r *http.Request, key string) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}
