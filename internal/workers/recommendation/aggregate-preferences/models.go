// internal/workers/recommendation/aggregate-preferences/models.go
package aggregatepreferences

import "venueflow/internal/models"

type Input struct {
	EventID           string                    `json:"eventId"`
	RunID             string                    `json:"runId"`
	TotalParticipants int                       `json:"totalParticipants"`
	Records           []models.PreferenceRecord `json:"records"`
}

type Output struct {
	Aggregated models.AggregatedPreferences `json:"aggregated"`
	Collected  int                          `json:"collected"`
}
