package config

import (
	"time"

	"github.com/shopspring/decimal"
)

// Default values for optional configuration fields.
const (
	DefaultListenAddr       = ":8080"
	DefaultShutdownTimeout  = 10 * time.Second
	DefaultCacheTTL         = 5 * time.Second
	DefaultMinExpirySeconds = 10
	DefaultMaxExpirySeconds = 60
	DefaultTickInterval     = 1500 * time.Millisecond
)

// DefaultSpreadBufferBps is the desk-wide spread buffer applied to every
// quote on top of client markup and inventory skew.
var DefaultSpreadBufferBps = decimal.NewFromInt(10)

func defaultInstruments() []InstrumentConfig {
	return []InstrumentConfig{
		{Symbol: "BTC-USD", DefaultMid: decimal.NewFromInt(52000)},
		{Symbol: "ETH-USD", DefaultMid: decimal.NewFromInt(2800)},
		{Symbol: "SOL-USD", DefaultMid: decimal.NewFromInt(115)},
		{Symbol: "ADA-USD", DefaultMid: decimal.RequireFromString("0.64")},
	}
}

func (c *Config) applyDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = DefaultListenAddr
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = DefaultShutdownTimeout
	}

	if c.Redis.CacheTTL == 0 {
		c.Redis.CacheTTL = DefaultCacheTTL
	}

	if c.Pricing.SpreadBufferBps.IsZero() {
		c.Pricing.SpreadBufferBps = DefaultSpreadBufferBps
	}
	if c.Pricing.MinExpirySeconds == 0 {
		c.Pricing.MinExpirySeconds = DefaultMinExpirySeconds
	}
	if c.Pricing.MaxExpirySeconds == 0 {
		c.Pricing.MaxExpirySeconds = DefaultMaxExpirySeconds
	}

	if c.MarketData.TickInterval == 0 {
		c.MarketData.TickInterval = DefaultTickInterval
	}
	if len(c.MarketData.Instruments) == 0 {
		c.MarketData.Instruments = defaultInstruments()
	}
}
