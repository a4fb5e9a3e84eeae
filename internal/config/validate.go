package config

import (
	"errors"
	"fmt"

	"github.com/otcdesk/desk-engine/internal/model"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required")
	}

	if c.Pricing.SpreadBufferBps.IsNegative() {
		return errors.New("pricing.spread_buffer_bps must be >= 0")
	}
	if c.Pricing.MinExpirySeconds < 1 {
		return errors.New("pricing.min_expiry_seconds must be >= 1")
	}
	if c.Pricing.MaxExpirySeconds < c.Pricing.MinExpirySeconds {
		return fmt.Errorf("pricing.max_expiry_seconds (%d) cannot be below min_expiry_seconds (%d)",
			c.Pricing.MaxExpirySeconds, c.Pricing.MinExpirySeconds)
	}

	if c.MarketData.TickInterval <= 0 {
		return errors.New("market_data.tick_interval must be positive")
	}
	for _, ins := range c.MarketData.Instruments {
		if _, _, err := model.ParseSymbol(ins.Symbol); err != nil {
			return fmt.Errorf("market_data.instruments: %w", err)
		}
		if !ins.DefaultMid.IsPositive() {
			return fmt.Errorf("market_data.instruments: %s default_mid must be positive", ins.Symbol)
		}
	}

	if c.Redis.CacheTTL < 0 {
		return errors.New("redis.cache_ttl must be >= 0")
	}

	return nil
}
