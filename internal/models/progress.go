// internal/models/progress.go
package models

import "time"

// Pipeline steps, advanced strictly forward within one run.
const (
	StepGatheringPreferences = 1
	StepAnalyzingPreferences = 2
	StepSearchingVenues      = 3
	StepEvaluatingVenues     = 4
	StepAiAnalysis           = 5
	StepFinalRecommendations = 6
)

// StepName returns a human-readable label for a pipeline step.
func StepName(step int) string {
	switch step {
	case StepGatheringPreferences:
		return "gathering preferences"
	case StepAnalyzingPreferences:
		return "analyzing preferences"
	case StepSearchingVenues:
		return "searching venues"
	case StepEvaluatingVenues:
		return "evaluating venues"
	case StepAiAnalysis:
		return "AI analysis"
	case StepFinalRecommendations:
		return "final recommendations"
	default:
		return "unknown"
	}
}

// AiAnalysisProgress is the single mutable record of an in-flight pipeline
// run. It is written exclusively by the run's orchestrator; external pollers
// see read-only snapshots. CurrentStep and ProgressPercentage never decrease
// within one run.
type AiAnalysisProgress struct {
	EventID            string    `json:"eventId"`
	RunID              string    `json:"runId"`
	CurrentStep        int       `json:"currentStep"`
	StepName           string    `json:"stepName"`
	ProgressPercentage int       `json:"progressPercentage"`
	LastUpdated        time.Time `json:"lastUpdated"`

	PreferencesCollected  int  `json:"preferencesCollected"`
	TotalParticipants     int  `json:"totalParticipants"`
	VenuesFromDatabase    int  `json:"venuesFromDatabase"`
	VenuesFromTrackAsia   int  `json:"venuesFromTrackAsia"`
	VenuesScored          int  `json:"venuesScored"`
	VenuesPassedThreshold int  `json:"venuesPassedThreshold"`
	GeminiTimeout         bool `json:"geminiTimeout"`
	SourceDegraded        bool `json:"sourceDegraded"`

	Message string `json:"message,omitempty"`
	Failed  bool   `json:"failed"`
}
