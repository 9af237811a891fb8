// Qode Engine - Market Data Service
//
// This is the main entry point for the Qode Engine daemon. The engine
// manages a DuckDB market-data store built from parquet cold storage and
// exposes it over a REST API, a WebSocket tick stream, and an optional
// MQTT/InfluxDB mirror:
//   - Parquet/CSV ingestion into the market_data schema
//   - Read-only ad-hoc SQL with a query log
//   - Options master tables and Black-Scholes greeks
//   - Live tick feed with fan-out to DuckDB, WebSocket, MQTT and InfluxDB
//   - Daily maintenance cycle (ingest refresh, master rebuild, optimize)
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/qodeinvest/qode-engine/migrations"

	"github.com/qodeinvest/qode-engine/internal/api"
	"github.com/qodeinvest/qode-engine/internal/auth"
	"github.com/qodeinvest/qode-engine/internal/feed"
	"github.com/qodeinvest/qode-engine/internal/infrastructure/config"
	"github.com/qodeinvest/qode-engine/internal/infrastructure/database"
	"github.com/qodeinvest/qode-engine/internal/infrastructure/duckdb"
	"github.com/qodeinvest/qode-engine/internal/infrastructure/influxdb"
	"github.com/qodeinvest/qode-engine/internal/infrastructure/logging"
	"github.com/qodeinvest/qode-engine/internal/infrastructure/mqtt"
	"github.com/qodeinvest/qode-engine/internal/ingest"
	"github.com/qodeinvest/qode-engine/internal/market"
	"github.com/qodeinvest/qode-engine/internal/query"
	"github.com/qodeinvest/qode-engine/internal/scheduler"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// Retention windows for the maintenance jobs.
const (
	queryLogRetention = 90 * 24 * time.Hour
	liveTickRetention = 7 * 24 * time.Hour
)

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Qode Engine",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open the SQLite metadata store (users, tokens, query log, job runs)
	metaDB, err := database.Open(database.Config{
		Path:        cfg.Metadata.Path,
		WALMode:     cfg.Metadata.WALMode,
		BusyTimeout: cfg.Metadata.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening metadata store: %w", err)
	}
	defer func() {
		log.Info("closing metadata store")
		if closeErr := metaDB.Close(); closeErr != nil {
			log.Error("error closing metadata store", "error", closeErr)
		}
	}()
	log.Info("metadata store connected", "path", cfg.Metadata.Path)

	// Run migrations
	if migrateErr := metaDB.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("metadata migrations complete")

	// Repositories backed by the metadata store
	userRepo := auth.NewUserRepository(metaDB.DB)
	tokenRepo := auth.NewTokenRepository(metaDB.DB)
	savedQueries := query.NewSavedQueryRepository(metaDB.DB)
	queryLog := query.NewLogRepository(metaDB.DB)
	runRepo := scheduler.NewRunRepository(metaDB.DB)

	// Seed the initial admin account on first boot. The generated password
	// is logged once and must be changed immediately.
	if _, seedErr := auth.SeedAdmin(ctx, userRepo, log.Logger); seedErr != nil {
		return fmt.Errorf("seeding admin account: %w", seedErr)
	}

	// Open the DuckDB market-data store
	duckDB, err := duckdb.Open(duckdb.Config{
		Path:        cfg.MarketData.Path,
		ReadOnly:    cfg.MarketData.ReadOnly,
		MemoryLimit: cfg.MarketData.MemoryLimit,
		Threads:     cfg.MarketData.Threads,
	})
	if err != nil {
		return fmt.Errorf("opening market-data store: %w", err)
	}
	defer func() {
		log.Info("closing market-data store")
		if closeErr := duckDB.Close(); closeErr != nil {
			log.Error("error closing market-data store", "error", closeErr)
		}
	}()
	log.Info("market-data store connected",
		"path", cfg.MarketData.Path,
		"read_only", cfg.MarketData.ReadOnly,
	)

	marketStore := market.NewStore(duckDB, cfg.MarketData.MaxQueryRows, log.Logger)
	if !cfg.MarketData.ReadOnly {
		if schemaErr := marketStore.EnsureSchema(ctx); schemaErr != nil {
			return fmt.Errorf("ensuring market_data schema: %w", schemaErr)
		}
	}

	ingester := ingest.NewIngester(duckDB, ingest.Options{
		DataDir:          cfg.MarketData.DataDir,
		Materialize:      cfg.MarketData.Materialize,
		ExcludeExchanges: cfg.MarketData.ExcludeExchanges,
	}, log.Logger)

	queryEngine := query.NewEngine(duckDB, queryLog, cfg.MarketData.MaxQueryRows, log.Logger)

	// Connect to the MQTT broker (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT, log.Logger)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
	} else {
		log.Info("MQTT disabled")
	}

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	} else {
		log.Info("InfluxDB disabled")
	}

	// Live tick store (feed ticks land in DuckDB alongside the bar tables)
	var liveStore *feed.LiveStore
	if !cfg.MarketData.ReadOnly {
		liveStore, err = feed.NewLiveStore(duckDB, cfg.MarketData.LiveTable)
		if err != nil {
			return fmt.Errorf("creating live store: %w", err)
		}
		if tableErr := liveStore.EnsureTable(ctx); tableErr != nil {
			return fmt.Errorf("ensuring live tick table: %w", tableErr)
		}
	}

	// Scheduler with the daily maintenance cycle
	var sched *scheduler.Scheduler
	if cfg.Jobs.Enabled {
		sched, err = buildScheduler(cfg, runRepo, ingester, marketStore, tokenRepo, queryLog, liveStore, log)
		if err != nil {
			return fmt.Errorf("building scheduler: %w", err)
		}
		if influxClient != nil {
			sched.SetOnRunComplete(func(run *scheduler.Run, elapsed time.Duration) {
				influxClient.WriteJobRun(run.Job, run.Status, elapsed.Milliseconds())
			})
		}
		go sched.Start(ctx)
	} else {
		log.Info("scheduled jobs disabled")
	}

	// Feed client is created before the API server so the server can report
	// its status. The WebSocket hub sink only exists after Start(), so it is
	// added late via AddSink.
	var feedClient *feed.Client
	if cfg.Feed.Enabled {
		var sinks []feed.Sink
		if liveStore != nil {
			sinks = append(sinks, liveStore)
		}
		if mqttClient != nil {
			sinks = append(sinks, mqttTickSink(mqttClient, log))
		}
		if influxClient != nil {
			sinks = append(sinks, influxTickSink(influxClient))
		}
		feedClient = feed.New(cfg.Feed, log.Logger, sinks...)
	}

	// API server
	srv, err := api.New(api.Deps{
		Config:       cfg.API,
		WS:           cfg.WebSocket,
		Security:     cfg.Security,
		Logger:       log,
		Market:       marketStore,
		Query:        queryEngine,
		SavedQueries: savedQueries,
		QueryLog:     queryLog,
		Users:        userRepo,
		Tokens:       tokenRepo,
		Ingester:     ingester,
		Scheduler:    sched,
		Runs:         runRepo,
		Feed:         feedClient,
		LiveStore:    liveStore,
		Version:      version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	if startErr := srv.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := srv.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	log.Info("API server started",
		"host", cfg.API.Host,
		"port", cfg.API.Port,
		"tls", cfg.API.TLS.Enabled,
	)

	// Start the live feed (optional). The WebSocket hub sink is only
	// available once the server is running.
	if feedClient != nil {
		feedClient.AddSink(srv.Hub().TickSink())
		go func() {
			if runErr := feedClient.Run(ctx); runErr != nil {
				log.Error("feed stopped", "error", runErr)
			}
		}()
		log.Info("feed client started",
			"url", cfg.Feed.URL,
			"symbols", cfg.Feed.Symbols,
		)
	} else {
		log.Info("feed disabled")
	}

	// Verify all connections are healthy
	if err := healthCheck(ctx, metaDB, duckDB, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. API server (drains connections, closes WebSocket clients)
	// 2. InfluxDB (if enabled, flushes pending writes)
	// 3. MQTT (if enabled, publishes offline status)
	// 4. Market-data store
	// 5. Metadata store

	log.Info("Qode Engine stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses QODE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("QODE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// buildScheduler registers the daily maintenance jobs in run order.
// Ingest runs first so master rebuild and optimize see fresh tables.
func buildScheduler(
	cfg *config.Config,
	runRepo scheduler.RunRepository,
	ingester *ingest.Ingester,
	marketStore *market.Store,
	tokenRepo auth.TokenRepository,
	queryLog query.LogRepository,
	liveStore *feed.LiveStore,
	log *logging.Logger,
) (*scheduler.Scheduler, error) {
	dailyAt, err := config.ParseDailyAt(cfg.Jobs.DailyAt)
	if err != nil {
		return nil, fmt.Errorf("parsing jobs.daily_at: %w", err)
	}

	location, err := time.LoadLocation(cfg.Engine.Timezone)
	if err != nil {
		return nil, fmt.Errorf("loading engine timezone: %w", err)
	}

	sched := scheduler.New(dailyAt, location, runRepo, log.Logger)

	if !cfg.MarketData.ReadOnly {
		sched.Register(scheduler.Job{
			Name: "daily_ingest",
			Run: func(ctx context.Context) (string, error) {
				report, err := ingester.Run(ctx)
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("%d sources, %d created, %d appended, %d views",
					report.SourcesFound, report.TablesCreated,
					report.TablesAppended, report.ViewsCreated), nil
			},
		})
		sched.Register(scheduler.Job{
			Name: "master_rebuild",
			Run: func(ctx context.Context) (string, error) {
				report, err := marketStore.RebuildMasters(ctx)
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("%d masters, %d rows",
					len(report.Masters), report.RowsLoaded), nil
			},
		})
		sched.Register(scheduler.Job{
			Name: "optimize",
			Run: func(ctx context.Context) (string, error) {
				report, err := marketStore.Optimize(ctx)
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("%d std tables dropped, %d indexes",
					report.StdTablesDropped, report.IndexesCreated), nil
			},
		})
	}

	sched.Register(scheduler.Job{
		Name: "token_cleanup",
		Run: func(ctx context.Context) (string, error) {
			n, err := tokenRepo.DeleteExpired(ctx)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("%d expired tokens removed", n), nil
		},
	})

	sched.Register(scheduler.Job{
		Name: "query_log_prune",
		Run: func(ctx context.Context) (string, error) {
			n, err := queryLog.DeleteBefore(ctx, time.Now().UTC().Add(-queryLogRetention))
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("%d log entries removed", n), nil
		},
	})

	if liveStore != nil {
		sched.Register(scheduler.Job{
			Name: "live_tick_prune",
			Run: func(ctx context.Context) (string, error) {
				n, err := liveStore.Prune(ctx, time.Now().UTC().Add(-liveTickRetention))
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("%d ticks removed", n), nil
			},
		})
	}

	return sched, nil
}

// mqttTickSink publishes each tick as JSON on qode/ticks/<symbol>.
// Publish failures are logged, not propagated; a flaky broker must not
// stall the other sinks.
func mqttTickSink(client *mqtt.Client, log *logging.Logger) feed.Sink {
	return feed.SinkFunc(func(_ context.Context, tick feed.Tick) error {
		payload, err := json.Marshal(tick)
		if err != nil {
			return fmt.Errorf("encoding tick: %w", err)
		}
		if err := client.PublishTick(tick.Symbol, payload); err != nil {
			log.Warn("MQTT tick publish failed", "symbol", tick.Symbol, "error", err)
		}
		return nil
	})
}

// influxTickSink mirrors ticks into InfluxDB. Writes are batched and
// asynchronous; errors surface through the client's error callback.
func influxTickSink(client *influxdb.Client) feed.Sink {
	return feed.SinkFunc(func(_ context.Context, tick feed.Tick) error {
		volume := int64(-1)
		if tick.Volume != nil {
			volume = *tick.Volume
		}
		openInterest := int64(-1)
		if tick.OpenInterest != nil {
			openInterest = *tick.OpenInterest
		}
		client.WriteTick(tick.Symbol, tick.LTP, volume, openInterest, tick.Timestamp)
		return nil
	})
}

// healthCheck verifies all infrastructure connections are healthy.
// Optional clients may be nil when their subsystem is disabled.
func healthCheck(ctx context.Context, metaDB *database.DB, duckDB *duckdb.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := metaDB.HealthCheck(ctx); err != nil {
		return fmt.Errorf("metadata store: %w", err)
	}

	if err := duckDB.HealthCheck(ctx); err != nil {
		return fmt.Errorf("market-data store: %w", err)
	}

	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
