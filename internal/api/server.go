// Package api provides the HTTP REST API and WebSocket server for the
// Qode engine.
//
// It exposes the market-data catalog, bar retrieval, options masters,
// ad-hoc queries, Black-Scholes analytics, job management, and live tick
// streaming to clients (research notebooks, dashboards, trading tools).
//
// The server follows the same lifecycle pattern as other infrastructure
// components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/qodeinvest/qode-engine/internal/auth"
	"github.com/qodeinvest/qode-engine/internal/feed"
	"github.com/qodeinvest/qode-engine/internal/infrastructure/config"
	"github.com/qodeinvest/qode-engine/internal/infrastructure/logging"
	"github.com/qodeinvest/qode-engine/internal/ingest"
	"github.com/qodeinvest/qode-engine/internal/market"
	"github.com/qodeinvest/qode-engine/internal/query"
	"github.com/qodeinvest/qode-engine/internal/scheduler"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the API server.
//
// Market, Query, Users, and Tokens are required. The remaining fields are
// optional; routes backed by an absent dependency return 404.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Security config.SecurityConfig
	Logger   *logging.Logger

	Market       *market.Store
	Query        *query.Engine
	SavedQueries query.SavedQueryRepository
	QueryLog     query.LogRepository

	Users  auth.UserRepository
	Tokens auth.TokenRepository

	Ingester  *ingest.Ingester
	Scheduler *scheduler.Scheduler
	Runs      scheduler.RunRepository
	Feed      *feed.Client
	LiveStore *feed.LiveStore

	Version string
}

// Server is the HTTP API server for the Qode engine.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg    config.APIConfig
	wsCfg  config.WebSocketConfig
	secCfg config.SecurityConfig
	logger *logging.Logger

	market       *market.Store
	queryEngine  *query.Engine
	savedQueries query.SavedQueryRepository
	queryLog     query.LogRepository
	userRepo     auth.UserRepository
	tokenRepo    auth.TokenRepository
	ingester     *ingest.Ingester
	scheduler    *scheduler.Scheduler
	runs         scheduler.RunRepository
	feed         *feed.Client
	liveStore    *feed.LiveStore

	version   string
	server    *http.Server
	hub       *Hub
	wsTickets ticketStore
	cancel    context.CancelFunc
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Market == nil {
		return nil, fmt.Errorf("market store is required")
	}
	if deps.Query == nil {
		return nil, fmt.Errorf("query engine is required")
	}
	if deps.Users == nil || deps.Tokens == nil {
		return nil, fmt.Errorf("user and token repositories are required")
	}
	if deps.Security.JWT.Secret == "" {
		return nil, fmt.Errorf("JWT secret is required")
	}

	return &Server{
		cfg:          deps.Config,
		wsCfg:        deps.WS,
		secCfg:       deps.Security,
		logger:       deps.Logger,
		market:       deps.Market,
		queryEngine:  deps.Query,
		savedQueries: deps.SavedQueries,
		queryLog:     deps.QueryLog,
		userRepo:     deps.Users,
		tokenRepo:    deps.Tokens,
		ingester:     deps.Ingester,
		scheduler:    deps.Scheduler,
		runs:         deps.Runs,
		feed:         deps.Feed,
		liveStore:    deps.LiveStore,
		version:      deps.Version,
		wsTickets:    ticketStore{tickets: make(map[string]ticketEntry)},
	}, nil
}

// Hub returns the server's WebSocket hub. Available after Start().
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start begins listening for HTTP connections.
//
// It sets up the router, starts the WebSocket hub and ticket cleanup, and
// launches the HTTP listener in a background goroutine. The server is
// stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	// Internal context so Close() can stop background goroutines
	// independently of the parent context.
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
	}
	go s.hub.Run(srvCtx)
	go s.cleanTicketsLoop(srvCtx)

	router := s.buildRouter()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to gracefulShutdownTimeout for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}
