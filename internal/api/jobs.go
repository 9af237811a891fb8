package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/qodeinvest/qode-engine/internal/scheduler"
)

// handleListJobs returns the registered job names.
func (s *Server) handleListJobs(w http.ResponseWriter, _ *http.Request) {
	if s.scheduler == nil {
		writeNotFound(w, "scheduler is not configured")
		return
	}

	names := s.scheduler.JobNames()
	writeJSON(w, http.StatusOK, map[string]any{
		"jobs":  names,
		"count": len(names),
	})
}

// handleTriggerJob runs a registered job immediately.
//
// The run is recorded like a scheduled one but marked as manually triggered.
// A failing job returns 200 with the run record; the failure is in the
// record, not in the transport.
func (s *Server) handleTriggerJob(w http.ResponseWriter, r *http.Request) {
	if s.scheduler == nil {
		writeNotFound(w, "scheduler is not configured")
		return
	}

	name := chi.URLParam(r, "name")
	claims := claimsFromContext(r.Context())

	run, err := s.scheduler.RunJob(r.Context(), name)
	if err != nil && errors.Is(err, scheduler.ErrJobNotFound) {
		writeNotFound(w, "unknown job")
		return
	}
	if run == nil {
		s.logger.Error("trigger job failed", "job", name, "error", err)
		writeInternalError(w, "failed to run job")
		return
	}

	s.logger.Info("job triggered",
		"job", name,
		"run_id", run.ID,
		"status", run.Status,
		"triggered_by", claims.Subject,
	)
	writeJSON(w, http.StatusOK, run)
}

// handleListRuns returns recent job runs, newest first.
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeNotFound(w, "scheduler is not configured")
		return
	}

	limit, err := parseIntParam(r, "limit")
	if err != nil {
		writeBadRequest(w, "limit must be an integer")
		return
	}

	runs, err := s.runs.ListRecent(r.Context(), limit)
	if err != nil {
		s.logger.Error("list runs failed", "error", err)
		writeInternalError(w, "failed to list runs")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"runs":  runs,
		"count": len(runs),
	})
}

// handleGetRun returns a single job run record.
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeNotFound(w, "scheduler is not configured")
		return
	}

	id := chi.URLParam(r, "id")
	run, err := s.runs.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, scheduler.ErrRunNotFound) {
			writeNotFound(w, "run not found")
			return
		}
		s.logger.Error("get run failed", "error", err)
		writeInternalError(w, "failed to get run")
		return
	}

	writeJSON(w, http.StatusOK, run)
}

// handleFeedStatus returns the live feed connection state.
func (s *Server) handleFeedStatus(w http.ResponseWriter, _ *http.Request) {
	if s.feed == nil {
		writeNotFound(w, "live feed is not configured")
		return
	}

	writeJSON(w, http.StatusOK, s.feed.Status())
}

// handleRecentTicks returns the newest live ticks for a symbol.
func (s *Server) handleRecentTicks(w http.ResponseWriter, r *http.Request) {
	if s.liveStore == nil {
		writeNotFound(w, "live feed is not configured")
		return
	}

	symbol := chi.URLParam(r, "symbol")
	limit, err := parseIntParam(r, "limit")
	if err != nil {
		writeBadRequest(w, "limit must be an integer")
		return
	}

	ticks, err := s.liveStore.Recent(r.Context(), symbol, limit)
	if err != nil {
		s.logger.Error("recent ticks failed", "symbol", symbol, "error", err)
		writeInternalError(w, "failed to get ticks")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"symbol": symbol,
		"ticks":  ticks,
		"count":  len(ticks),
	})
}
