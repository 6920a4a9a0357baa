// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

func Load() (*Config, error) {
	loadEnvFile()

	// Base config
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("../../configs")
	viper.AddConfigPath(".")

	// Enable ENV override like GEMINI_API_KEY
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	// Environment overlay, ignored if not present
	envConfigFile := fmt.Sprintf("config.%s", env)
	viper.SetConfigName(envConfigFile)
	_ = viper.MergeInConfig()

	expandEnvVars(viper.GetViper())

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
	}

	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

// Find project root by looking for go.mod
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		val := v.Get(key)

		if strVal, ok := val.(string); ok {
			if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
				expanded := os.ExpandEnv(strVal)
				if expanded != strVal && expanded != "" {
					v.Set(key, expanded)
				}
			}
		}
	}
}

func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "venueflow"
	}
	if cfg.App.HTTPPort == 0 {
		cfg.App.HTTPPort = 8080
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Database.Elasticsearch.PlaceIndex == "" {
		cfg.Database.Elasticsearch.PlaceIndex = "places"
	}

	if cfg.TrackAsia.BaseURL == "" {
		cfg.TrackAsia.BaseURL = "https://maps.track-asia.com/api/v2"
	}
	if cfg.TrackAsia.TimeoutMS == 0 {
		cfg.TrackAsia.TimeoutMS = 5000
	}

	if cfg.Gemini.Model == "" {
		cfg.Gemini.Model = "gemini-2.0-flash"
	}
	if cfg.Gemini.TimeoutMS == 0 {
		cfg.Gemini.TimeoutMS = 15000
	}

	if cfg.Pipeline.DefaultBudgetTier == 0 {
		cfg.Pipeline.DefaultBudgetTier = 2
	}
	if cfg.Pipeline.DefaultRadiusMeters == 0 {
		cfg.Pipeline.DefaultRadiusMeters = 5000
	}
	if cfg.Pipeline.TopN == 0 {
		cfg.Pipeline.TopN = 5
	}
	if cfg.Pipeline.DedupeToleranceM == 0 {
		cfg.Pipeline.DedupeToleranceM = 50
	}
	if cfg.Pipeline.ProgressTTLSeconds == 0 {
		cfg.Pipeline.ProgressTTLSeconds = 3600
	}
	if cfg.Pipeline.AggregateTTLSeconds == 0 {
		cfg.Pipeline.AggregateTTLSeconds = 1800
	}
	if cfg.Pipeline.MaxCandidatesPerRun == 0 {
		cfg.Pipeline.MaxCandidatesPerRun = 50
	}
	if cfg.Pipeline.EstimatedCostPerTier == 0 {
		cfg.Pipeline.EstimatedCostPerTier = 15
	}

	if cfg.Lifecycle.MinAcceptanceRatio == 0 {
		cfg.Lifecycle.MinAcceptanceRatio = 0.5
	}
	if cfg.Voting.RejectionRatioThreshold == 0 {
		cfg.Voting.RejectionRatioThreshold = 0.5
	}
	if cfg.Voting.QuorumRatio == 0 {
		cfg.Voting.QuorumRatio = 0.5
	}
}

// Direct override if config values are still empty after expansion
func overrideEmptyConfig(cfg *Config) {
	if cfg.Gemini.APIKey == "" {
		if val := os.Getenv("GEMINI_API_KEY"); val != "" {
			cfg.Gemini.APIKey = val
		}
	}
	if cfg.TrackAsia.APIKey == "" {
		if val := os.Getenv("TRACKASIA_API_KEY"); val != "" {
			cfg.TrackAsia.APIKey = val
		}
	}

	if cfg.Database.Postgres.User == "" {
		if val := os.Getenv("DB_USER"); val != "" {
			cfg.Database.Postgres.User = val
		}
	}
	if cfg.Database.Postgres.Password == "" {
		if val := os.Getenv("DB_PASSWORD"); val != "" {
			cfg.Database.Postgres.Password = val
		}
	}
}

// validateConfig rejects broken threshold configuration at startup. A missing
// or out-of-range threshold is fatal here, never discovered mid-run.
func validateConfig(cfg *Config) error {
	if cfg.Pipeline.DefaultBudgetTier < 1 || cfg.Pipeline.DefaultBudgetTier > 4 {
		return fmt.Errorf("pipeline.default_budget_tier must be within 1..4, got %d", cfg.Pipeline.DefaultBudgetTier)
	}
	if cfg.Pipeline.DefaultRadiusMeters <= 0 {
		return fmt.Errorf("pipeline.default_radius_meters must be positive, got %d", cfg.Pipeline.DefaultRadiusMeters)
	}
	if cfg.Pipeline.MinScoreThreshold < 0 {
		return fmt.Errorf("pipeline.min_score_threshold must not be negative, got %f", cfg.Pipeline.MinScoreThreshold)
	}
	if cfg.Pipeline.TopN < 1 {
		return fmt.Errorf("pipeline.top_n must be at least 1, got %d", cfg.Pipeline.TopN)
	}
	if cfg.Lifecycle.MinAcceptanceRatio <= 0 || cfg.Lifecycle.MinAcceptanceRatio > 1 {
		return fmt.Errorf("lifecycle.min_acceptance_ratio must be within (0,1], got %f", cfg.Lifecycle.MinAcceptanceRatio)
	}
	if cfg.Voting.RejectionRatioThreshold <= 0 || cfg.Voting.RejectionRatioThreshold > 1 {
		return fmt.Errorf("voting.rejection_ratio_threshold must be within (0,1], got %f", cfg.Voting.RejectionRatioThreshold)
	}
	if cfg.Voting.QuorumRatio <= 0 || cfg.Voting.QuorumRatio > 1 {
		return fmt.Errorf("voting.quorum_ratio must be within (0,1], got %f", cfg.Voting.QuorumRatio)
	}
	if cfg.Gemini.Enabled && cfg.Gemini.APIKey == "" {
		return fmt.Errorf("gemini.api_key is required when gemini.enabled is true")
	}
	return nil
}
