// internal/models/preferences.go
package models

// PreferenceRecord is one participant's raw submission. Optional fields are
// pointers; defaults are resolved during aggregation, never at intake.
type PreferenceRecord struct {
	ParticipantID string         `json:"participantId"`
	Cuisines      []string       `json:"cuisines,omitempty"`
	Budget        *int           `json:"budget,omitempty"`       // tier 1..4
	RadiusMeters  *int           `json:"radiusMeters,omitempty"` // max travel distance
	Dietary       []string       `json:"dietary,omitempty"`
	WeightHints   map[string]int `json:"weightHints,omitempty"` // category -> raw emphasis count
	Lat           *float64       `json:"lat,omitempty"`
	Lng           *float64       `json:"lng,omitempty"`
}

// Recognized preference categories; weight map keys are a subset of these.
const (
	CategoryPreferenceMatch = "preference_match"
	CategoryBudgetFit       = "budget_fit"
	CategoryDistanceFit     = "distance_fit"
	CategoryQuality         = "quality"
)

// RecognizedCategories lists every valid weight-map key.
var RecognizedCategories = []string{
	CategoryPreferenceMatch,
	CategoryBudgetFit,
	CategoryDistanceFit,
	CategoryQuality,
}

// AggregatedPreferences is the immutable synthesized profile of all
// participants of one event. AverageBudget and RadiusMeters are never zero:
// configured defaults fill in when no participant supplied a value.
type AggregatedPreferences struct {
	Cuisines       []string       `json:"cuisines"` // deduplicated, frequency-ranked
	AverageBudget  int            `json:"averageBudget"`
	RadiusMeters   int            `json:"radiusMeters"`
	Dietary        []string       `json:"dietary"`
	Weights        map[string]int `json:"weights"`
	ParticipantIDs []string       `json:"participantIds"`
}

// WeightFor returns the scoring multiplier for a category, defaulting to 1.
func (a AggregatedPreferences) WeightFor(category string) int {
	if w, ok := a.Weights[category]; ok && w > 0 {
		return w
	}
	return 1
}
