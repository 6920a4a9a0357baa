// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App           AppConfig          `mapstructure:"app"`
	Database      DatabaseConfig     `mapstructure:"database"`
	TrackAsia     TrackAsiaConfig    `mapstructure:"trackasia"`
	Gemini        GeminiConfig       `mapstructure:"gemini"`
	Pipeline      PipelineConfig     `mapstructure:"pipeline"`
	Lifecycle     LifecycleConfig    `mapstructure:"lifecycle"`
	Voting        VotingConfig       `mapstructure:"voting"`
	Notifications NotificationConfig `mapstructure:"notifications"`
	Logging       LoggingConfig      `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	HTTPPort    int    `mapstructure:"http_port"`
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Addresses  []string `mapstructure:"addresses"`
	Username   string   `mapstructure:"username"`
	Password   string   `mapstructure:"password"`
	PlaceIndex string   `mapstructure:"place_index"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// --- External Providers ---

// TrackAsiaConfig holds settings for the external place-search provider.
type TrackAsiaConfig struct {
	BaseURL   string `mapstructure:"base_url"`
	APIKey    string `mapstructure:"api_key"`
	TimeoutMS int    `mapstructure:"timeout_ms"`
}

// GeminiConfig holds settings for the AI reasoning service.
type GeminiConfig struct {
	APIKey      string  `mapstructure:"api_key"`
	Model       string  `mapstructure:"model"`
	TimeoutMS   int     `mapstructure:"timeout_ms"`
	Temperature float64 `mapstructure:"temperature"`
	Enabled     bool    `mapstructure:"enabled"`
}

// --- Recommendation Pipeline ---

// PipelineConfig holds the knobs of the venue recommendation pipeline.
// Missing thresholds are a fatal configuration error at startup, never per run.
type PipelineConfig struct {
	DefaultBudgetTier    int     `mapstructure:"default_budget_tier"`   // 1..4, used when no participant supplied a budget
	DefaultRadiusMeters  int     `mapstructure:"default_radius_meters"` // used when no participant supplied a radius
	MinScoreThreshold    float64 `mapstructure:"min_score_threshold"`   // candidates below are tagged, not dropped
	TopN                 int     `mapstructure:"top_n"`                 // shortlist size handed to AI re-ranking
	DedupeToleranceM     float64 `mapstructure:"dedupe_tolerance_m"`    // same-venue name+proximity tolerance
	ProgressTTLSeconds   int     `mapstructure:"progress_ttl_seconds"`
	AggregateTTLSeconds  int     `mapstructure:"aggregate_ttl_seconds"`
	MaxCandidatesPerRun  int     `mapstructure:"max_candidates_per_run"`
	EstimatedCostPerTier int     `mapstructure:"estimated_cost_per_tier"`
}

// LifecycleConfig governs state machine guards.
type LifecycleConfig struct {
	MinAcceptanceRatio float64 `mapstructure:"min_acceptance_ratio"` // Inviting -> GatheringPreferences
}

// VotingConfig governs vote consensus.
type VotingConfig struct {
	RejectionRatioThreshold float64 `mapstructure:"rejection_ratio_threshold"` // venue disqualified above this
	QuorumRatio             float64 `mapstructure:"quorum_ratio"`              // deadline consensus needs at least this
}

type NotificationConfig struct {
	EmailEnabled bool   `mapstructure:"email_enabled"`
	SMSEnabled   bool   `mapstructure:"sms_enabled"`
	AWSRegion    string `mapstructure:"aws_region"`
	SenderEmail  string `mapstructure:"sender_email"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}
