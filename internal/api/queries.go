package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/qodeinvest/qode-engine/internal/query"
)

type executeQueryRequest struct {
	SQL string `json:"sql"`
}

type savedQueryRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	SQL         string `json:"sql"`
}

// handleExecuteQuery runs a read-only SQL statement against the market store.
func (s *Server) handleExecuteQuery(w http.ResponseWriter, r *http.Request) {
	var req executeQueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	claims := claimsFromContext(r.Context())

	result, err := s.queryEngine.Execute(r.Context(), req.SQL, claims.Subject)
	if err != nil {
		switch {
		case errors.Is(err, query.ErrEmptyQuery):
			writeBadRequest(w, "sql is required")
		case errors.Is(err, query.ErrNotReadOnly):
			writeForbidden(w, "only read-only statements are allowed")
		default:
			// Invalid SQL is a client problem; surface the engine message.
			writeError(w, http.StatusUnprocessableEntity, ErrCodeValidation, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleQuerySamples returns the built-in example statements.
func (s *Server) handleQuerySamples(w http.ResponseWriter, _ *http.Request) {
	samples := query.Samples()
	writeJSON(w, http.StatusOK, map[string]any{
		"samples": samples,
		"count":   len(samples),
	})
}

// handleQueryLog returns recent query executions, newest first.
func (s *Server) handleQueryLog(w http.ResponseWriter, r *http.Request) {
	if s.queryLog == nil {
		writeNotFound(w, "query logging is not configured")
		return
	}

	limit, err := parseIntParam(r, "limit")
	if err != nil {
		writeBadRequest(w, "limit must be an integer")
		return
	}
	if limit <= 0 {
		limit = 100
	}

	entries, err := s.queryLog.ListRecent(r.Context(), limit)
	if err != nil {
		s.logger.Error("query log failed", "error", err)
		writeInternalError(w, "failed to list query log")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}

// handleListSavedQueries returns all saved queries.
func (s *Server) handleListSavedQueries(w http.ResponseWriter, r *http.Request) {
	if s.savedQueries == nil {
		writeNotFound(w, "saved queries are not configured")
		return
	}

	queries, err := s.savedQueries.List(r.Context())
	if err != nil {
		s.logger.Error("list saved queries failed", "error", err)
		writeInternalError(w, "failed to list saved queries")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"queries": queries,
		"count":   len(queries),
	})
}

// handleCreateSavedQuery stores a named query. The statement must pass the
// same read-only guard as ad-hoc execution.
func (s *Server) handleCreateSavedQuery(w http.ResponseWriter, r *http.Request) {
	if s.savedQueries == nil {
		writeNotFound(w, "saved queries are not configured")
		return
	}

	var req savedQueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Name == "" || req.SQL == "" {
		writeBadRequest(w, "name and sql are required")
		return
	}

	claims := claimsFromContext(r.Context())

	saved := &query.SavedQuery{
		Name:        req.Name,
		Description: req.Description,
		SQLText:     req.SQL,
		CreatedBy:   claims.Subject,
	}
	if err := s.savedQueries.Create(r.Context(), saved); err != nil {
		if errors.Is(err, query.ErrNotReadOnly) || errors.Is(err, query.ErrEmptyQuery) {
			writeBadRequest(w, "sql must be a read-only statement")
			return
		}
		s.logger.Error("create saved query failed", "error", err)
		writeInternalError(w, "failed to create saved query")
		return
	}

	s.logger.Info("saved query created", "query_id", saved.ID, "created_by", claims.Subject)
	writeJSON(w, http.StatusCreated, saved)
}

// handleGetSavedQuery returns a saved query by ID.
func (s *Server) handleGetSavedQuery(w http.ResponseWriter, r *http.Request) {
	if s.savedQueries == nil {
		writeNotFound(w, "saved queries are not configured")
		return
	}

	id := chi.URLParam(r, "id")
	saved, err := s.savedQueries.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, query.ErrQueryNotFound) {
			writeNotFound(w, "saved query not found")
			return
		}
		s.logger.Error("get saved query failed", "error", err)
		writeInternalError(w, "failed to get saved query")
		return
	}

	writeJSON(w, http.StatusOK, saved)
}

// handleUpdateSavedQuery modifies a saved query's fields.
func (s *Server) handleUpdateSavedQuery(w http.ResponseWriter, r *http.Request) {
	if s.savedQueries == nil {
		writeNotFound(w, "saved queries are not configured")
		return
	}

	id := chi.URLParam(r, "id")
	saved, err := s.savedQueries.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, query.ErrQueryNotFound) {
			writeNotFound(w, "saved query not found")
			return
		}
		s.logger.Error("get saved query for update failed", "error", err)
		writeInternalError(w, "failed to update saved query")
		return
	}

	var req savedQueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if req.Name != "" {
		saved.Name = req.Name
	}
	if req.Description != "" {
		saved.Description = req.Description
	}
	if req.SQL != "" {
		saved.SQLText = req.SQL
	}

	if err := s.savedQueries.Update(r.Context(), saved); err != nil {
		if errors.Is(err, query.ErrNotReadOnly) || errors.Is(err, query.ErrEmptyQuery) {
			writeBadRequest(w, "sql must be a read-only statement")
			return
		}
		s.logger.Error("update saved query failed", "error", err)
		writeInternalError(w, "failed to update saved query")
		return
	}

	writeJSON(w, http.StatusOK, saved)
}

// handleDeleteSavedQuery removes a saved query.
func (s *Server) handleDeleteSavedQuery(w http.ResponseWriter, r *http.Request) {
	if s.savedQueries == nil {
		writeNotFound(w, "saved queries are not configured")
		return
	}

	id := chi.URLParam(r, "id")
	if err := s.savedQueries.Delete(r.Context(), id); err != nil {
		if errors.Is(err, query.ErrQueryNotFound) {
			writeNotFound(w, "saved query not found")
			return
		}
		s.logger.Error("delete saved query failed", "error", err)
		writeInternalError(w, "failed to delete saved query")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
