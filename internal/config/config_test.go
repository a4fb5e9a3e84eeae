package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAndValidate(t *testing.T) {
	path := writeConfig(t, `
server:
  listen_addr: ":9090"
auth:
  jwt_secret: "unit-test-secret"
pricing:
  spread_buffer_bps: 12
market_data:
  tick_interval: 500ms
  instruments:
    - symbol: BTC-USD
      default_mid: 52000
    - symbol: ADA-USD
      default_mid: 0.64
`)

	cfg, err := LoadAndValidate(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Server.ListenAddr != ":9090" {
		t.Errorf("listen_addr = %q", cfg.Server.ListenAddr)
	}
	if !cfg.Pricing.SpreadBufferBps.Equal(dec("12")) {
		t.Errorf("spread_buffer_bps = %s", cfg.Pricing.SpreadBufferBps)
	}
	if cfg.MarketData.TickInterval != 500*time.Millisecond {
		t.Errorf("tick_interval = %s", cfg.MarketData.TickInterval)
	}
	if len(cfg.MarketData.Instruments) != 2 {
		t.Fatalf("instruments = %d", len(cfg.MarketData.Instruments))
	}
	if !cfg.MarketData.Instruments[1].DefaultMid.Equal(dec("0.64")) {
		t.Errorf("ADA default_mid = %s", cfg.MarketData.Instruments[1].DefaultMid)
	}

	// Omitted fields pick up defaults.
	if cfg.Pricing.MinExpirySeconds != DefaultMinExpirySeconds {
		t.Errorf("min_expiry_seconds = %d", cfg.Pricing.MinExpirySeconds)
	}
	if cfg.Pricing.MaxExpirySeconds != DefaultMaxExpirySeconds {
		t.Errorf("max_expiry_seconds = %d", cfg.Pricing.MaxExpirySeconds)
	}
	if cfg.Redis.CacheTTL != DefaultCacheTTL {
		t.Errorf("cache_ttl = %s", cfg.Redis.CacheTTL)
	}
}

func TestLoadExpandsEnvironment(t *testing.T) {
	t.Setenv("DESK_TEST_SECRET", "from-env")
	path := writeConfig(t, `
auth:
  jwt_secret: "${DESK_TEST_SECRET}"
`)

	cfg, err := LoadAndValidate(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Auth.JWTSecret != "from-env" {
		t.Errorf("jwt_secret = %q", cfg.Auth.JWTSecret)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"missing secret", `server: {listen_addr: ":8080"}`},
		{"bad symbol", `
auth: {jwt_secret: s}
market_data:
  instruments:
    - {symbol: BTCUSD, default_mid: 100}
`},
		{"zero mid", `
auth: {jwt_secret: s}
market_data:
  instruments:
    - {symbol: BTC-USD, default_mid: 0}
`},
		{"inverted expiry", `
auth: {jwt_secret: s}
pricing: {min_expiry_seconds: 30, max_expiry_seconds: 20}
`},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			path := writeConfig(t, c.yaml)
			if _, err := LoadAndValidate(path); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Server.ListenAddr != DefaultListenAddr {
		t.Errorf("listen_addr = %q", cfg.Server.ListenAddr)
	}
	if len(cfg.MarketData.Instruments) != 4 {
		t.Errorf("instruments = %d", len(cfg.MarketData.Instruments))
	}
	if !cfg.Pricing.SpreadBufferBps.Equal(DefaultSpreadBufferBps) {
		t.Errorf("spread_buffer_bps = %s", cfg.Pricing.SpreadBufferBps)
	}
}
