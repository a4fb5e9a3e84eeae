// Package config loads the desk engine configuration from YAML with
// environment variable expansion, defaults, and validation.
package config

import (
	"time"

	"github.com/shopspring/decimal"
)

// Config is the root configuration for a desk engine instance.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Auth       AuthConfig       `yaml:"auth"`
	Pricing    PricingConfig    `yaml:"pricing"`
	MarketData MarketDataConfig `yaml:"market_data"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	ListenAddr      string        `yaml:"listen_addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds the PostgreSQL connection. An empty URL selects the
// in-memory store (development and tests).
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// RedisConfig holds the optional read-through cache. An empty URL disables
// caching.
type RedisConfig struct {
	URL      string        `yaml:"url"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// AuthConfig holds the shared secret for WebSocket token verification.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// PricingConfig holds quote construction parameters.
type PricingConfig struct {
	SpreadBufferBps  decimal.Decimal `yaml:"spread_buffer_bps"`
	MinExpirySeconds int             `yaml:"min_expiry_seconds"`
	MaxExpirySeconds int             `yaml:"max_expiry_seconds"`
}

// MarketDataConfig holds the simulated tick generator settings.
type MarketDataConfig struct {
	TickInterval time.Duration      `yaml:"tick_interval"`
	Instruments  []InstrumentConfig `yaml:"instruments"`
}

// InstrumentConfig names one tradeable pair and its starting mid, used
// until the first tick is generated.
type InstrumentConfig struct {
	Symbol     string          `yaml:"symbol"`
	DefaultMid decimal.Decimal `yaml:"default_mid"`
}
