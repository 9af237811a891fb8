package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/qodeinvest/qode-engine/internal/auth"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// Auth endpoints (no auth required)
		r.Post("/auth/login", s.handleLogin)
		r.Post("/auth/refresh", s.handleRefresh)

		// WebSocket clients cannot send an Authorization header; the
		// single-use ticket (issued by POST /auth/ws-ticket, validated in
		// the handler) is the authentication for this route.
		r.Get("/ws", s.handleWebSocket)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Get("/info", s.handleInfo)

			r.Post("/auth/logout", s.handleLogout)
			r.Get("/auth/me", s.handleMe)
			r.Post("/auth/change-password", s.handleChangePassword)
			r.Post("/auth/ws-ticket", s.handleWSTicket)

			// User administration
			r.Route("/users", func(r chi.Router) {
				r.Use(s.requirePermission(auth.PermUserManage))
				r.Get("/", s.handleListUsers)
				r.Post("/", s.handleCreateUser)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetUser)
					r.Patch("/", s.handleUpdateUser)
					r.Delete("/", s.handleDeleteUser)
					r.Get("/sessions", s.handleListUserSessions)
					r.Post("/sessions/revoke", s.handleRevokeUserSessions)
				})
			})

			// Catalog and bars
			r.Route("/tables", func(r chi.Router) {
				r.With(s.requirePermission(auth.PermCatalogRead)).Get("/", s.handleListTables)
				r.With(s.requirePermission(auth.PermCatalogRead)).Get("/summary", s.handleSummary)
				r.With(s.requirePermission(auth.PermCatalogRead)).Get("/{name}", s.handleTableStats)
				r.With(s.requirePermission(auth.PermBarsRead)).Get("/{name}/bars", s.handleGetBars)
				r.With(s.requirePermission(auth.PermBarsRead)).Get("/{name}/bars/at", s.handleGetBarAt)
			})

			// Options masters
			r.Route("/masters", func(r chi.Router) {
				r.With(s.requirePermission(auth.PermMasterRead)).Get("/", s.handleListMasters)
				r.With(s.requirePermission(auth.PermMasterRead)).Get("/{underlying}/rows", s.handleMasterRows)
				r.With(s.requirePermission(auth.PermMasterBuild)).Post("/rebuild", s.handleRebuildMasters)
			})

			// Ad-hoc queries
			r.Route("/query", func(r chi.Router) {
				r.With(s.requirePermission(auth.PermQueryExecute)).Post("/execute", s.handleExecuteQuery)
				r.With(s.requirePermission(auth.PermQueryExecute)).Get("/samples", s.handleQuerySamples)
				r.With(s.requirePermission(auth.PermQueryManage)).Get("/log", s.handleQueryLog)

				r.Route("/saved", func(r chi.Router) {
					r.With(s.requirePermission(auth.PermQueryExecute)).Get("/", s.handleListSavedQueries)
					r.With(s.requirePermission(auth.PermQueryManage)).Post("/", s.handleCreateSavedQuery)
					r.With(s.requirePermission(auth.PermQueryExecute)).Get("/{id}", s.handleGetSavedQuery)
					r.With(s.requirePermission(auth.PermQueryManage)).Patch("/{id}", s.handleUpdateSavedQuery)
					r.With(s.requirePermission(auth.PermQueryManage)).Delete("/{id}", s.handleDeleteSavedQuery)
				})
			})

			// Black-Scholes analytics
			r.Route("/greeks", func(r chi.Router) {
				r.Use(s.requirePermission(auth.PermGreeksRead))
				r.Post("/compute", s.handleComputeGreeks)
				r.Post("/implied-vol", s.handleImpliedVol)
			})

			// Maintenance operations
			r.With(s.requirePermission(auth.PermIngestRun)).Post("/ingest/run", s.handleRunIngest)
			r.With(s.requirePermission(auth.PermOptimizeRun)).Post("/optimize/run", s.handleRunOptimize)

			// Scheduled jobs
			r.Route("/jobs", func(r chi.Router) {
				r.Use(s.requirePermission(auth.PermJobManage))
				r.Get("/", s.handleListJobs)
				r.Post("/{name}/run", s.handleTriggerJob)
				r.Get("/runs", s.handleListRuns)
				r.Get("/runs/{id}", s.handleGetRun)
			})

			// Live feed
			r.Route("/feed", func(r chi.Router) {
				r.Use(s.requirePermission(auth.PermFeedRead))
				r.Get("/status", s.handleFeedStatus)
				r.Get("/ticks/{symbol}", s.handleRecentTicks)
			})
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}

// handleInfo returns engine build, store and capability information.
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	info := map[string]any{
		"version":       s.version,
		"database_size": s.market.DatabaseSize(),
		"feed_enabled":  s.feed != nil,
		"jobs_enabled":  s.scheduler != nil,
		"role":          claims.Role,
		"permissions":   auth.PermissionsForRole(claims.Role),
	}

	// Catalog counts are informational; a failed summary degrades rather
	// than failing the whole endpoint.
	if summary, err := s.market.Summarize(r.Context()); err == nil {
		info["catalog"] = summary
	} else {
		s.logger.Warn("summary for /info failed", "error", err)
	}

	writeJSON(w, http.StatusOK, info)
}
