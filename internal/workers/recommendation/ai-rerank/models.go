// internal/workers/recommendation/ai-rerank/models.go
package airerank

import (
	"time"

	"venueflow/internal/models"
)

type Input struct {
	EventID              string                       `json:"eventId"`
	RunID                string                       `json:"runId"`
	EventTitle           string                       `json:"eventTitle"`
	ScheduledAt          time.Time                    `json:"scheduledAt"`
	Headcount            int                          `json:"headcount"`
	ParticipantLocations []models.Location            `json:"participantLocations"`
	Aggregated           models.AggregatedPreferences `json:"aggregated"`
	Recommendations      []models.VenueRecommendation `json:"recommendations"`
}

type Output struct {
	Recommendations        []models.VenueRecommendation `json:"recommendations"`
	Shortlist              []models.VenueRecommendation `json:"shortlist"`
	AiApplied              bool                         `json:"aiApplied"`
	GeminiTimeout          bool                         `json:"geminiTimeout"`
	OverallInsight         string                       `json:"overallInsight,omitempty"`
	SuggestedEventCategory string                       `json:"suggestedEventCategory,omitempty"`
	SuggestedEventTags     []string                     `json:"suggestedEventTags,omitempty"`
}
