package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Qode Engine.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Engine     EngineConfig     `yaml:"engine"`
	Metadata   MetadataConfig   `yaml:"metadata"`
	MarketData MarketDataConfig `yaml:"market_data"`
	API        APIConfig        `yaml:"api"`
	WebSocket  WebSocketConfig  `yaml:"websocket"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	InfluxDB   InfluxDBConfig   `yaml:"influxdb"`
	Feed       FeedConfig       `yaml:"feed"`
	Jobs       JobsConfig       `yaml:"jobs"`
	Logging    LoggingConfig    `yaml:"logging"`
	Security   SecurityConfig   `yaml:"security"`
}

// EngineConfig contains instance-level identity settings.
type EngineConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Timezone string `yaml:"timezone"`
}

// MetadataConfig contains settings for the SQLite metadata store
// (users, tokens, saved queries, query log, job runs).
type MetadataConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MarketDataConfig contains settings for the DuckDB market-data store.
type MarketDataConfig struct {
	// Path is the filesystem path to the DuckDB database file.
	Path string `yaml:"path"`

	// DataDir is the parquet cold-storage root scanned during ingestion.
	// Layout: <DataDir>/<Exchange>/<Instrument>/... (see internal/ingest).
	DataDir string `yaml:"data_dir"`

	// ReadOnly opens the database in read-only mode. Ingestion, master
	// rebuild and optimize are rejected while read-only.
	ReadOnly bool `yaml:"read_only"`

	// MemoryLimit is passed to DuckDB (e.g. "4GB"). Empty uses the engine default.
	MemoryLimit string `yaml:"memory_limit"`

	// Threads limits DuckDB's worker threads. 0 uses the engine default.
	Threads int `yaml:"threads"`

	// Materialize controls whether ingestion creates tables (true) or
	// views over the parquet files (false).
	Materialize bool `yaml:"materialize"`

	// ExcludeExchanges lists exchange directories skipped when materializing
	// tables. Views are always built for every exchange.
	ExcludeExchanges []string `yaml:"exclude_exchanges"`

	// MaxQueryRows caps the number of rows returned by ad-hoc queries.
	MaxQueryRows int `yaml:"max_query_rows"`

	// LiveTable is the table (under the market_data schema) that receives
	// live feed ticks.
	LiveTable string `yaml:"live_table"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings (seconds).
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
// The broker is optional; when disabled, tick publishing is skipped.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings (seconds/attempts).
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// InfluxDBConfig contains InfluxDB connection settings for tick mirroring.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// FeedConfig contains live tick feed settings.
type FeedConfig struct {
	Enabled  bool     `yaml:"enabled"`
	URL      string   `yaml:"url"`
	LoginID  string   `yaml:"login_id"`
	Password string   `yaml:"password"`
	Symbols  []string `yaml:"symbols"`

	// ReconnectDelay is the initial reconnect backoff in seconds.
	ReconnectDelay int `yaml:"reconnect_delay"`

	// MaxReconnectDelay caps the reconnect backoff in seconds.
	MaxReconnectDelay int `yaml:"max_reconnect_delay"`
}

// JobsConfig contains scheduled maintenance settings.
type JobsConfig struct {
	Enabled bool `yaml:"enabled"`

	// DailyAt is the local wall-clock time ("HH:MM") at which the daily
	// maintenance cycle (ingest refresh, master rebuild, optimize) runs.
	DailyAt string `yaml:"daily_at"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig contains JWT token settings. TTLs are in minutes.
type JWTConfig struct {
	Secret          string `yaml:"secret"`
	AccessTokenTTL  int    `yaml:"access_token_ttl"`
	RefreshTokenTTL int    `yaml:"refresh_token_ttl"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: QODE_SECTION_KEY
// For example: QODE_MARKETDATA_PATH, QODE_JWT_SECRET
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			ID:       "qode-001",
			Name:     "Qode Engine",
			Timezone: "Asia/Kolkata",
		},
		Metadata: MetadataConfig{
			Path:        "./data/qode_meta.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MarketData: MarketDataConfig{
			Path:             "./data/qode_engine_data.db",
			DataDir:          "./cold_storage",
			Materialize:      true,
			ExcludeExchanges: []string{"BSE"},
			MaxQueryRows:     10000,
			LiveTable:        "live_ticks",
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 60,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "qode-engine",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		Feed: FeedConfig{
			ReconnectDelay:    1,
			MaxReconnectDelay: 60,
		},
		Jobs: JobsConfig{
			Enabled: true,
			DailyAt: "18:30",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				AccessTokenTTL:  15,
				RefreshTokenTTL: 1440,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: QODE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Stores
	if v := os.Getenv("QODE_METADATA_PATH"); v != "" {
		cfg.Metadata.Path = v
	}
	if v := os.Getenv("QODE_MARKETDATA_PATH"); v != "" {
		cfg.MarketData.Path = v
	}
	if v := os.Getenv("QODE_MARKETDATA_DATA_DIR"); v != "" {
		cfg.MarketData.DataDir = v
	}

	// API
	if v := os.Getenv("QODE_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("QODE_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	// Feed credentials
	if v := os.Getenv("QODE_FEED_LOGIN_ID"); v != "" {
		cfg.Feed.LoginID = v
	}
	if v := os.Getenv("QODE_FEED_PASSWORD"); v != "" {
		cfg.Feed.Password = v
	}

	// MQTT
	if v := os.Getenv("QODE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("QODE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("QODE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("QODE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Security - JWT secret (IMPORTANT: always override in production)
	if v := os.Getenv("QODE_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}
}

// Validate checks the configuration for errors and security issues.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Engine.ID == "" {
		errs = append(errs, "engine.id is required")
	}

	if c.Metadata.Path == "" {
		errs = append(errs, "metadata.path is required")
	}
	if c.MarketData.Path == "" {
		errs = append(errs, "market_data.path is required")
	}
	if c.MarketData.MaxQueryRows < 1 {
		errs = append(errs, "market_data.max_query_rows must be positive")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.Feed.Enabled {
		if c.Feed.URL == "" {
			errs = append(errs, "feed.url is required when the feed is enabled")
		}
		if c.Feed.LoginID == "" || c.Feed.Password == "" {
			errs = append(errs, "feed credentials are required when the feed is enabled (set QODE_FEED_LOGIN_ID / QODE_FEED_PASSWORD)")
		}
	}

	if c.Jobs.Enabled {
		if _, err := ParseDailyAt(c.Jobs.DailyAt); err != nil {
			errs = append(errs, fmt.Sprintf("jobs.daily_at: %v", err))
		}
	}

	// JWT secret is REQUIRED. A forgeable token grants access to the query
	// engine and, through it, the entire market-data store.
	const minJWTSecretLength = 32
	if c.Security.JWT.Secret == "" {
		errs = append(errs, "security.jwt.secret is required (set QODE_JWT_SECRET environment variable)")
	} else if len(c.Security.JWT.Secret) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// ParseDailyAt parses a "HH:MM" wall-clock time into an offset from midnight.
func ParseDailyAt(s string) (time.Duration, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("expected HH:MM, got %q", s)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	return time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute, nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
