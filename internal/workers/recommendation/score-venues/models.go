// internal/workers/recommendation/score-venues/models.go
package scorevenues

import "venueflow/internal/models"

type Input struct {
	EventID              string                       `json:"eventId"`
	RunID                string                       `json:"runId"`
	Center               models.Location              `json:"center"`
	ParticipantLocations []models.Location            `json:"participantLocations"`
	Aggregated           models.AggregatedPreferences `json:"aggregated"`
	Candidates           []models.VenueCandidate      `json:"candidates"`
}

type Output struct {
	Recommendations []models.VenueRecommendation `json:"recommendations"`
	Scored          int                          `json:"scored"`
	PassedThreshold int                          `json:"passedThreshold"`
}
