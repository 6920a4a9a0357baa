// internal/workers/recommendation/score-venues/handler.go
package scorevenues

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	apperrors "venueflow/internal/common/errors"
	"venueflow/internal/common/geo"
	"venueflow/internal/common/logger"
	"venueflow/internal/models"
)

const (
	TaskType = "score-venues"
)

// Handler is the deterministic scoring engine. Identical inputs always
// produce the identical ranking; no randomness, no AI. Candidates below the
// score threshold are tagged, never dropped, so the AI stage and the
// organizer still see the full picture.
type Handler struct {
	config *Config
	matrix geo.VenueSource
	logger logger.Logger
}

// NewHandler builds the scoring stage. matrix may be nil; when present the
// top-ranked venues get their participant distances refined with real travel
// distances, best effort.
func NewHandler(config *Config, matrix geo.VenueSource, log logger.Logger) *Handler {
	return &Handler{
		config: config,
		matrix: matrix,
		logger: log.WithFields(map[string]interface{}{
			"taskType": TaskType,
		}),
	}
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if len(input.Candidates) == 0 {
		return nil, apperrors.NewNoCandidatesError(input.EventID)
	}

	origins := input.ParticipantLocations
	if len(origins) == 0 {
		origins = []models.Location{input.Center}
	}

	recs := make([]models.VenueRecommendation, 0, len(input.Candidates))
	passed := 0
	for _, cand := range input.Candidates {
		rec := h.score(cand, input.Aggregated, origins)
		if !rec.BelowThreshold {
			passed++
		}
		recs = append(recs, rec)
	}

	// Deterministic order: score desc, then rating desc, then closest first.
	ratingOf := func(id string) float64 {
		for _, cand := range input.Candidates {
			if cand.ID == id && cand.Rating != nil {
				return *cand.Rating
			}
		}
		return 0
	}
	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].Score != recs[j].Score {
			return recs[i].Score > recs[j].Score
		}
		ri, rj := ratingOf(recs[i].VenueID), ratingOf(recs[j].VenueID)
		if ri != rj {
			return ri > rj
		}
		return recs[i].MaxParticipantDistance < recs[j].MaxParticipantDistance
	})
	for i := range recs {
		recs[i].Rank = i + 1
	}

	h.refineTopDistances(ctx, recs, input)

	h.logger.Info("venues scored", map[string]interface{}{
		"eventId":         input.EventID,
		"scored":          len(recs),
		"passedThreshold": passed,
	})

	return &Output{
		Recommendations: recs,
		Scored:          len(recs),
		PassedThreshold: passed,
	}, nil
}

func (h *Handler) score(cand models.VenueCandidate, agg models.AggregatedPreferences, origins []models.Location) models.VenueRecommendation {
	sub := models.SubScores{
		PreferenceMatch: preferenceMatch(cand, agg),
		BudgetFit:       budgetFit(cand, agg.AverageBudget),
		Quality:         quality(cand),
	}

	maxDist := 0.0
	for _, o := range origins {
		if d := haversineMeters(o.Lat, o.Lng, cand.Lat, cand.Lng); d > maxDist {
			maxDist = d
		}
	}
	sub.DistanceFit = distanceFit(maxDist, agg.RadiusMeters)

	weightSum := float64(agg.WeightFor(models.CategoryPreferenceMatch) +
		agg.WeightFor(models.CategoryBudgetFit) +
		agg.WeightFor(models.CategoryDistanceFit) +
		agg.WeightFor(models.CategoryQuality))
	score := (sub.PreferenceMatch*float64(agg.WeightFor(models.CategoryPreferenceMatch)) +
		sub.BudgetFit*float64(agg.WeightFor(models.CategoryBudgetFit)) +
		sub.DistanceFit*float64(agg.WeightFor(models.CategoryDistanceFit)) +
		sub.Quality*float64(agg.WeightFor(models.CategoryQuality))) / weightSum
	score = math.Round(score*1000) / 1000

	rec := models.VenueRecommendation{
		VenueID:                cand.ID,
		Name:                   cand.Name,
		Score:                  score,
		SubScores:              sub,
		Reasoning:              buildReasoning(cand, sub),
		MaxParticipantDistance: math.Round(maxDist),
		BelowThreshold:         score < h.config.MinScoreThreshold,
	}
	if cand.PriceLevel != nil {
		cost := *cand.PriceLevel * h.config.EstimatedCostPerTier
		rec.EstimatedCostPerPerson = &cost
	}
	return rec
}

// preferenceMatch measures how well the venue covers the group's cuisines and
// dietary needs. With no expressed cuisines the component is neutral.
func preferenceMatch(cand models.VenueCandidate, agg models.AggregatedPreferences) float64 {
	cuisineScore := 0.5
	if len(agg.Cuisines) > 0 {
		matched := 0
		for _, cuisine := range agg.Cuisines {
			if venueMatches(cand, cuisine) {
				matched++
			}
		}
		cuisineScore = float64(matched) / float64(len(agg.Cuisines))
	}

	if len(agg.Dietary) == 0 {
		return cuisineScore
	}

	covered := 0
	for _, d := range agg.Dietary {
		if venueMatches(cand, d) {
			covered++
		}
	}
	dietaryScore := float64(covered) / float64(len(agg.Dietary))
	return 0.7*cuisineScore + 0.3*dietaryScore
}

func venueMatches(cand models.VenueCandidate, term string) bool {
	term = strings.ToLower(term)
	if strings.Contains(strings.ToLower(cand.Category), term) ||
		strings.Contains(strings.ToLower(cand.Name), term) {
		return true
	}
	for _, tag := range cand.Tags {
		if strings.Contains(strings.ToLower(tag), term) {
			return true
		}
	}
	return false
}

// budgetFit is 1 at an exact tier match and falls off linearly; the farthest
// possible tier distance is 3. An unknown price level is neutral.
func budgetFit(cand models.VenueCandidate, averageBudget int) float64 {
	if cand.PriceLevel == nil {
		return 0.5
	}
	diff := math.Abs(float64(*cand.PriceLevel - averageBudget))
	return 1 - diff/3
}

// distanceFit is 1 at the center and 0 at or beyond the group radius.
func distanceFit(maxDistanceM float64, radiusMeters int) float64 {
	if radiusMeters <= 0 {
		return 0.5
	}
	fit := 1 - maxDistanceM/float64(radiusMeters)
	if fit < 0 {
		return 0
	}
	return fit
}

func quality(cand models.VenueCandidate) float64 {
	if cand.Rating == nil {
		return 0.5
	}
	q := *cand.Rating / 5
	if q > 1 {
		return 1
	}
	return q
}

// buildReasoning names the dominant components so organizers can see why a
// venue ranked where it did.
func buildReasoning(cand models.VenueCandidate, sub models.SubScores) string {
	type component struct {
		label string
		value float64
	}
	components := []component{
		{"strong preference match", sub.PreferenceMatch},
		{"fits the group budget", sub.BudgetFit},
		{"convenient for everyone", sub.DistanceFit},
		{"highly rated", sub.Quality},
	}
	sort.SliceStable(components, func(i, j int) bool { return components[i].value > components[j].value })

	strengths := make([]string, 0, 2)
	for _, c := range components {
		if c.value >= 0.6 && len(strengths) < 2 {
			strengths = append(strengths, c.label)
		}
	}
	if len(strengths) == 0 {
		return fmt.Sprintf("%s is a workable option for the group", cand.Name)
	}
	return fmt.Sprintf("%s: %s", cand.Name, strings.Join(strengths, ", "))
}

// refineTopDistances replaces straight-line distances with travel distances
// for the top-ranked venues. Provider trouble here never affects the ranking.
func (h *Handler) refineTopDistances(ctx context.Context, recs []models.VenueRecommendation, input *Input) {
	if h.matrix == nil || len(input.ParticipantLocations) == 0 {
		return
	}

	limit := h.config.TopN
	if limit > len(recs) {
		limit = len(recs)
	}
	for i := 0; i < limit; i++ {
		dest, ok := candidateLocation(input.Candidates, recs[i].VenueID)
		if !ok {
			continue
		}
		entries, err := h.matrix.DistanceMatrix(ctx, input.ParticipantLocations, dest)
		if err != nil {
			h.logger.Warn("distance matrix refinement failed", map[string]interface{}{
				"venueId": recs[i].VenueID,
				"error":   err.Error(),
			})
			return
		}
		maxDist := 0.0
		for _, e := range entries {
			if e.DistanceMeters > maxDist {
				maxDist = e.DistanceMeters
			}
		}
		if maxDist > 0 {
			recs[i].MaxParticipantDistance = maxDist
		}
	}
}

func candidateLocation(candidates []models.VenueCandidate, id string) (models.Location, bool) {
	for _, c := range candidates {
		if c.ID == id {
			return models.Location{Lat: c.Lat, Lng: c.Lng}, true
		}
	}
	return models.Location{}, false
}

const earthRadiusM = 6371000

func haversineMeters(lat1, lng1, lat2, lng2 float64) float64 {
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }

	dLat := toRad(lat2 - lat1)
	dLng := toRad(lng2 - lng1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return earthRadiusM * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}
