// internal/workers/recommendation/aggregate-preferences/config.go
package aggregatepreferences

import (
	"time"

	"venueflow/internal/common/config"
)

type Config struct {
	Timeout             time.Duration
	DefaultBudgetTier   int
	DefaultRadiusMeters int
	CacheTTL            time.Duration
}

func LoadConfig() *Config {
	return &Config{
		Timeout:             10 * time.Second,
		DefaultBudgetTier:   2,
		DefaultRadiusMeters: 1000,
		CacheTTL:            15 * time.Minute,
	}
}

// FromPipelineConfig derives the worker config from the service-level
// pipeline section.
func FromPipelineConfig(cfg config.PipelineConfig) *Config {
	c := LoadConfig()
	if cfg.DefaultBudgetTier > 0 {
		c.DefaultBudgetTier = cfg.DefaultBudgetTier
	}
	if cfg.DefaultRadiusMeters > 0 {
		c.DefaultRadiusMeters = cfg.DefaultRadiusMeters
	}
	if cfg.AggregateTTLSeconds > 0 {
		c.CacheTTL = time.Duration(cfg.AggregateTTLSeconds) * time.Second
	}
	return c
}
