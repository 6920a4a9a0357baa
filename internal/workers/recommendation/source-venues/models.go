// internal/workers/recommendation/source-venues/models.go
package sourcevenues

import "venueflow/internal/models"

type Input struct {
	EventID    string                       `json:"eventId"`
	RunID      string                       `json:"runId"`
	Center     models.Location              `json:"center"`
	Aggregated models.AggregatedPreferences `json:"aggregated"`
}

type Output struct {
	Candidates        []models.VenueCandidate `json:"candidates"`
	FromDatabase      int                     `json:"fromDatabase"`
	FromTrackAsia     int                     `json:"fromTrackAsia"`
	ExternalDegraded  bool                    `json:"externalDegraded"`
	CatalogDegraded   bool                    `json:"catalogDegraded"`
	DuplicatesRemoved int                     `json:"duplicatesRemoved"`
}
