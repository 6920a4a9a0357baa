// internal/workers/recommendation/source-venues/config.go
package sourcevenues

import (
	"time"

	"venueflow/internal/common/config"
)

type Config struct {
	// ExternalTimeout bounds only the TrackAsia call. The internal catalog
	// query runs under the run's own context.
	ExternalTimeout  time.Duration
	DedupeToleranceM float64
	MaxCandidates    int
}

func LoadConfig() *Config {
	return &Config{
		ExternalTimeout:  4 * time.Second,
		DedupeToleranceM: 50,
		MaxCandidates:    50,
	}
}

func FromPipelineConfig(cfg config.PipelineConfig, trackAsia config.TrackAsiaConfig) *Config {
	c := LoadConfig()
	if trackAsia.TimeoutMS > 0 {
		c.ExternalTimeout = time.Duration(trackAsia.TimeoutMS) * time.Millisecond
	}
	if cfg.DedupeToleranceM > 0 {
		c.DedupeToleranceM = cfg.DedupeToleranceM
	}
	if cfg.MaxCandidatesPerRun > 0 {
		c.MaxCandidates = cfg.MaxCandidatesPerRun
	}
	return c
}
