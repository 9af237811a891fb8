package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// testSecret satisfies the 32-character minimum JWT secret length.
const testSecret = "0123456789abcdef0123456789abcdef"

// writeConfig writes a config file into a temp dir and returns its path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	t.Run("applies defaults for missing fields", func(t *testing.T) {
		path := writeConfig(t, `
security:
  jwt:
    secret: "`+testSecret+`"
`)
		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}

		if cfg.API.Port != 8080 {
			t.Errorf("API.Port = %d, want 8080", cfg.API.Port)
		}
		if cfg.MarketData.MaxQueryRows != 10000 {
			t.Errorf("MaxQueryRows = %d, want 10000", cfg.MarketData.MaxQueryRows)
		}
		if !cfg.MarketData.Materialize {
			t.Error("Materialize should default to true")
		}
		if len(cfg.MarketData.ExcludeExchanges) != 1 || cfg.MarketData.ExcludeExchanges[0] != "BSE" {
			t.Errorf("ExcludeExchanges = %v, want [BSE]", cfg.MarketData.ExcludeExchanges)
		}
	})

	t.Run("file values override defaults", func(t *testing.T) {
		path := writeConfig(t, `
market_data:
  path: "/srv/qode/market.db"
  max_query_rows: 500
api:
  port: 9090
security:
  jwt:
    secret: "`+testSecret+`"
`)
		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if cfg.MarketData.Path != "/srv/qode/market.db" {
			t.Errorf("MarketData.Path = %q", cfg.MarketData.Path)
		}
		if cfg.API.Port != 9090 {
			t.Errorf("API.Port = %d, want 9090", cfg.API.Port)
		}
		if cfg.MarketData.MaxQueryRows != 500 {
			t.Errorf("MaxQueryRows = %d, want 500", cfg.MarketData.MaxQueryRows)
		}
	})

	t.Run("environment overrides file values", func(t *testing.T) {
		t.Setenv("QODE_MARKETDATA_PATH", "/env/market.db")
		t.Setenv("QODE_JWT_SECRET", testSecret)

		path := writeConfig(t, `
market_data:
  path: "/file/market.db"
`)
		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if cfg.MarketData.Path != "/env/market.db" {
			t.Errorf("MarketData.Path = %q, want env override", cfg.MarketData.Path)
		}
	})

	t.Run("missing file returns error", func(t *testing.T) {
		if _, err := Load("/nonexistent/config.yaml"); err == nil {
			t.Error("expected error for missing file")
		}
	})

	t.Run("invalid yaml returns error", func(t *testing.T) {
		path := writeConfig(t, "market_data: [not a mapping")
		if _, err := Load(path); err == nil {
			t.Error("expected error for invalid YAML")
		}
	})
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := defaultConfig()
		cfg.Security.JWT.Secret = testSecret
		return cfg
	}

	t.Run("valid config passes", func(t *testing.T) {
		if err := valid().Validate(); err != nil {
			t.Errorf("Validate() error = %v", err)
		}
	})

	t.Run("missing jwt secret fails", func(t *testing.T) {
		cfg := valid()
		cfg.Security.JWT.Secret = ""
		if err := cfg.Validate(); err == nil {
			t.Error("expected error for missing JWT secret")
		}
	})

	t.Run("short jwt secret fails", func(t *testing.T) {
		cfg := valid()
		cfg.Security.JWT.Secret = "too-short"
		if err := cfg.Validate(); err == nil {
			t.Error("expected error for short JWT secret")
		}
	})

	t.Run("invalid port fails", func(t *testing.T) {
		cfg := valid()
		cfg.API.Port = 0
		if err := cfg.Validate(); err == nil {
			t.Error("expected error for port 0")
		}
	})

	t.Run("feed enabled without credentials fails", func(t *testing.T) {
		cfg := valid()
		cfg.Feed.Enabled = true
		cfg.Feed.URL = "wss://feed.example.com/stream"
		err := cfg.Validate()
		if err == nil {
			t.Fatal("expected error for missing feed credentials")
		}
		if !strings.Contains(err.Error(), "feed credentials") {
			t.Errorf("error = %v, want feed credentials message", err)
		}
	})

	t.Run("bad daily_at fails", func(t *testing.T) {
		cfg := valid()
		cfg.Jobs.DailyAt = "25:99"
		if err := cfg.Validate(); err == nil {
			t.Error("expected error for invalid daily_at")
		}
	})
}

func TestParseDailyAt(t *testing.T) {
	tests := []struct {
		input   string
		want    time.Duration
		wantErr bool
	}{
		{"18:30", 18*time.Hour + 30*time.Minute, false},
		{"00:00", 0, false},
		{"23:59", 23*time.Hour + 59*time.Minute, false},
		{"24:00", 0, true},
		{"12:60", 0, true},
		{"noon", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDailyAt(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseDailyAt(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseDailyAt(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}
