// internal/workers/recommendation/score-venues/config.go
package scorevenues

import "venueflow/internal/common/config"

type Config struct {
	MinScoreThreshold    float64
	TopN                 int
	EstimatedCostPerTier int
}

func LoadConfig() *Config {
	return &Config{
		MinScoreThreshold:    0.35,
		TopN:                 5,
		EstimatedCostPerTier: 250,
	}
}

func FromPipelineConfig(cfg config.PipelineConfig) *Config {
	c := LoadConfig()
	if cfg.MinScoreThreshold > 0 {
		c.MinScoreThreshold = cfg.MinScoreThreshold
	}
	if cfg.TopN > 0 {
		c.TopN = cfg.TopN
	}
	if cfg.EstimatedCostPerTier > 0 {
		c.EstimatedCostPerTier = cfg.EstimatedCostPerTier
	}
	return c
}
