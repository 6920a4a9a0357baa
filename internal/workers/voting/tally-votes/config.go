// internal/workers/voting/tally-votes/config.go
package tallyvotes

import "venueflow/internal/common/config"

type Config struct {
	// RejectionRatioThreshold disqualifies a venue when the share of reject
	// votes among its votes exceeds it.
	RejectionRatioThreshold float64
	// QuorumRatio is the minimum share of accepted participants that must
	// have voted for a deadline tally to count as consensus.
	QuorumRatio float64
}

func LoadConfig() *Config {
	return &Config{
		RejectionRatioThreshold: 0.5,
		QuorumRatio:             0.6,
	}
}

func FromVotingConfig(cfg config.VotingConfig) *Config {
	c := LoadConfig()
	if cfg.RejectionRatioThreshold > 0 {
		c.RejectionRatioThreshold = cfg.RejectionRatioThreshold
	}
	if cfg.QuorumRatio > 0 {
		c.QuorumRatio = cfg.QuorumRatio
	}
	return c
}
