// internal/workers/recommendation/ai-rerank/config.go
package airerank

import "venueflow/internal/common/config"

type Config struct {
	TopN    int
	Enabled bool
}

func LoadConfig() *Config {
	return &Config{
		TopN:    5,
		Enabled: true,
	}
}

func FromConfig(pipeline config.PipelineConfig, gemini config.GeminiConfig) *Config {
	c := LoadConfig()
	if pipeline.TopN > 0 {
		c.TopN = pipeline.TopN
	}
	c.Enabled = gemini.Enabled
	return c
}
