// internal/models/venue.go
package models

// Candidate sources.
const (
	SourceDatabase  = "database"
	SourceTrackAsia = "trackasia"
)

// VenueCandidate is a place eligible for scoring, from the internal catalog
// or the external geo provider.
type VenueCandidate struct {
	ID         string   `json:"id"`
	ExternalID string   `json:"externalId,omitempty"`
	Name       string   `json:"name"`
	Lat        float64  `json:"lat"`
	Lng        float64  `json:"lng"`
	Category   string   `json:"category"`
	Tags       []string `json:"tags,omitempty"`
	Rating     *float64 `json:"rating,omitempty"`
	PriceLevel *int     `json:"priceLevel,omitempty"` // tier 1..4
	Address    string   `json:"address,omitempty"`
	Source     string   `json:"source"`
}

// SubScores are the normalized (0..1) components of a venue's final score.
type SubScores struct {
	PreferenceMatch float64 `json:"preferenceMatch"`
	BudgetFit       float64 `json:"budgetFit"`
	DistanceFit     float64 `json:"distanceFit"`
	Quality         float64 `json:"quality"`
}

// VenueRecommendation is the scoring engine's output for one candidate.
// Created fresh on every run and never mutated after publication; a later run
// supersedes, not updates.
type VenueRecommendation struct {
	VenueID                string    `json:"venueId"`
	Name                   string    `json:"name"`
	Score                  float64   `json:"score"`
	Rank                   int       `json:"rank"`
	SubScores              SubScores `json:"subScores"`
	Reasoning              string    `json:"reasoning"`
	Pros                   []string  `json:"pros,omitempty"`
	Cons                   []string  `json:"cons,omitempty"`
	EstimatedCostPerPerson *int      `json:"estimatedCostPerPerson,omitempty"`
	MaxParticipantDistance float64   `json:"maxParticipantDistance"`
	BelowThreshold         bool      `json:"belowThreshold"`
	AiAdjusted             bool      `json:"aiAdjusted"`
	SuggestedCategory      string    `json:"suggestedCategory,omitempty"`
	SuggestedTags          []string  `json:"suggestedTags,omitempty"`
}
