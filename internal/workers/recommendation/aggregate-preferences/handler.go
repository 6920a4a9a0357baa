// internal/workers/recommendation/aggregate-preferences/handler.go
package aggregatepreferences

import (
	"context"
	"encoding/json"
	"math"
	"sort"
	"strings"
	"time"

	apperrors "venueflow/internal/common/errors"
	"venueflow/internal/common/logger"
	"venueflow/internal/common/validation"
	"venueflow/internal/models"
)

const (
	TaskType = "aggregate-preferences"

	cacheKeyPrefix = "aggregate:"
)

// Cache is the redis-shaped store for aggregated profiles.
type Cache interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string) (string, error)
}

// Handler synthesizes one immutable AggregatedPreferences profile from all
// submitted records. Aggregation is deterministic: the same records always
// produce the same profile.
type Handler struct {
	config *Config
	cache  Cache
	logger logger.Logger
}

func NewHandler(config *Config, cache Cache, log logger.Logger) *Handler {
	return &Handler{
		config: config,
		cache:  cache,
		logger: log.WithFields(map[string]interface{}{
			"taskType": TaskType,
		}),
	}
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if len(input.Records) == 0 {
		return nil, apperrors.NewNoPreferencesError(input.EventID)
	}

	// Malformed records are rejected at this boundary, never coerced.
	for _, rec := range input.Records {
		if err := validation.ValidatePreferenceRecord(rec); err != nil {
			return nil, err
		}
	}

	aggregated := models.AggregatedPreferences{
		Cuisines:       rankCuisines(input.Records),
		AverageBudget:  h.averageBudget(input.Records),
		RadiusMeters:   h.minRadius(input.Records),
		Dietary:        unionDietary(input.Records),
		Weights:        sumWeights(input.Records),
		ParticipantIDs: participantIDs(input.Records),
	}

	h.cacheAggregate(ctx, input.EventID, aggregated)

	h.logger.Info("preferences aggregated", map[string]interface{}{
		"eventId":   input.EventID,
		"collected": len(input.Records),
		"cuisines":  len(aggregated.Cuisines),
		"budget":    aggregated.AverageBudget,
		"radius":    aggregated.RadiusMeters,
	})

	return &Output{Aggregated: aggregated, Collected: len(input.Records)}, nil
}

// rankCuisines deduplicates cuisines case-insensitively and orders them by
// frequency, most requested first. Ties break lexicographically so the result
// is stable across runs.
func rankCuisines(records []models.PreferenceRecord) []string {
	counts := make(map[string]int)
	for _, rec := range records {
		seen := make(map[string]bool)
		for _, c := range rec.Cuisines {
			normalized := strings.ToLower(strings.TrimSpace(c))
			if normalized == "" || seen[normalized] {
				continue
			}
			seen[normalized] = true
			counts[normalized]++
		}
	}

	out := make([]string, 0, len(counts))
	for c := range counts {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if counts[out[i]] != counts[out[j]] {
			return counts[out[i]] > counts[out[j]]
		}
		return out[i] < out[j]
	})
	return out
}

// averageBudget is the rounded mean of submitted tiers, or the configured
// default when nobody submitted one.
func (h *Handler) averageBudget(records []models.PreferenceRecord) int {
	sum, n := 0, 0
	for _, rec := range records {
		if rec.Budget != nil {
			sum += *rec.Budget
			n++
		}
	}
	if n == 0 {
		return h.config.DefaultBudgetTier
	}
	return int(math.Round(float64(sum) / float64(n)))
}

// minRadius takes the tightest travel constraint any participant expressed.
func (h *Handler) minRadius(records []models.PreferenceRecord) int {
	min := 0
	for _, rec := range records {
		if rec.RadiusMeters == nil {
			continue
		}
		if min == 0 || *rec.RadiusMeters < min {
			min = *rec.RadiusMeters
		}
	}
	if min == 0 {
		return h.config.DefaultRadiusMeters
	}
	return min
}

// unionDietary collects every dietary restriction anyone declared. One
// participant's restriction binds the whole group.
func unionDietary(records []models.PreferenceRecord) []string {
	set := make(map[string]bool)
	for _, rec := range records {
		for _, d := range rec.Dietary {
			normalized := strings.ToLower(strings.TrimSpace(d))
			if normalized != "" {
				set[normalized] = true
			}
		}
	}
	out := make([]string, 0, len(set))
	for d := range set {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// sumWeights totals the per-category hints across participants, then rescales
// the totals so the largest stays a small integer. Ratios between categories
// are preserved and every hinted category keeps at least weight 1, so a large
// group (or inflated hint values) cannot drown out the unhinted categories.
func sumWeights(records []models.PreferenceRecord) map[string]int {
	weights := make(map[string]int)
	for _, rec := range records {
		for category, w := range rec.WeightHints {
			weights[category] += w
		}
	}

	const maxWeight = 10
	largest := 0
	for _, w := range weights {
		if w > largest {
			largest = w
		}
	}
	if largest <= maxWeight {
		return weights
	}
	for category, w := range weights {
		scaled := int(math.Round(float64(w) * maxWeight / float64(largest)))
		if scaled < 1 {
			scaled = 1
		}
		weights[category] = scaled
	}
	return weights
}

func participantIDs(records []models.PreferenceRecord) []string {
	out := make([]string, 0, len(records))
	for _, rec := range records {
		out = append(out, rec.ParticipantID)
	}
	sort.Strings(out)
	return out
}

func (h *Handler) cacheAggregate(ctx context.Context, eventID string, aggregated models.AggregatedPreferences) {
	if h.cache == nil {
		return
	}
	payload, err := json.Marshal(aggregated)
	if err != nil {
		return
	}
	if err := h.cache.Set(ctx, cacheKeyPrefix+eventID, payload, h.config.CacheTTL); err != nil {
		h.logger.Warn("failed to cache aggregated preferences", map[string]interface{}{
			"eventId": eventID,
			"error":   err.Error(),
		})
	}
}
