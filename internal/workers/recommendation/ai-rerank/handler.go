// internal/workers/recommendation/ai-rerank/handler.go
package airerank

import (
	"context"
	"sort"

	"venueflow/internal/common/ai"
	apperrors "venueflow/internal/common/errors"
	"venueflow/internal/common/logger"
	"venueflow/internal/common/metrics"
	"venueflow/internal/models"
)

const (
	TaskType = "ai-rerank"
)

// Handler applies AI re-ranking to the top of the deterministic list. The
// deterministic ranking is the source of truth: the AI may adjust scores and
// attach reasoning for venues it was shown, but it cannot add venues, and any
// failure or timeout publishes the deterministic list unchanged.
type Handler struct {
	config   *Config
	analyzer ai.Analyzer
	logger   logger.Logger
}

func NewHandler(config *Config, analyzer ai.Analyzer, log logger.Logger) *Handler {
	return &Handler{
		config:   config,
		analyzer: analyzer,
		logger: log.WithFields(map[string]interface{}{
			"taskType": TaskType,
		}),
	}
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if !h.config.Enabled || h.analyzer == nil || len(input.Recommendations) == 0 {
		return &Output{
			Recommendations: input.Recommendations,
			Shortlist:       h.shortlist(input.Recommendations),
		}, nil
	}

	topN := h.config.TopN
	if topN > len(input.Recommendations) {
		topN = len(input.Recommendations)
	}

	result, err := h.analyzer.Analyze(ctx, &ai.AnalysisRequest{
		EventTitle:           input.EventTitle,
		ScheduledAt:          input.ScheduledAt,
		Headcount:            input.Headcount,
		Preferences:          input.Aggregated,
		Candidates:           input.Recommendations[:topN],
		ParticipantLocations: input.ParticipantLocations,
	})
	if err != nil {
		timedOut := apperrors.CodeOf(err) == apperrors.ErrCodeGeminiTimeout
		if timedOut {
			metrics.GeminiTimeouts.Inc()
		}
		h.logger.Warn("AI re-ranking unavailable, keeping deterministic ranking", map[string]interface{}{
			"eventId":  input.EventID,
			"timedOut": timedOut,
			"error":    err.Error(),
		})
		return &Output{
			Recommendations: input.Recommendations,
			Shortlist:       h.shortlist(input.Recommendations),
			GeminiTimeout:   timedOut,
		}, nil
	}

	recs := h.applyInsights(input.Recommendations, result, topN)

	h.logger.Info("AI re-ranking applied", map[string]interface{}{
		"eventId":  input.EventID,
		"adjusted": countAdjusted(recs),
	})

	return &Output{
		Recommendations:        recs,
		Shortlist:              h.shortlist(recs),
		AiApplied:              true,
		OverallInsight:         result.OverallInsight,
		SuggestedEventCategory: result.SuggestedEventCategory,
		SuggestedEventTags:     result.SuggestedEventTags,
	}, nil
}

// applyInsights merges per-venue insights into the top-N by venue ID and
// re-sorts that window by adjusted score. Insights for venues the AI was not
// shown, or invented venue IDs, are discarded. Adjusted scores are clamped to
// the score of the first venue beyond the window so the full ordering stays
// monotonic; ranks below the window are untouched.
func (h *Handler) applyInsights(recs []models.VenueRecommendation, result *ai.AnalysisResult, topN int) []models.VenueRecommendation {
	out := make([]models.VenueRecommendation, len(recs))
	copy(out, recs)

	byID := make(map[string]ai.VenueInsight, len(result.PerVenue))
	for _, insight := range result.PerVenue {
		byID[insight.VenueID] = insight
	}

	floor := 0.0
	if topN < len(out) {
		floor = out[topN].Score
	}

	for i := 0; i < topN; i++ {
		insight, ok := byID[out[i].VenueID]
		if !ok {
			continue
		}
		if insight.AdjustedScore > 0 && insight.AdjustedScore <= 1 {
			out[i].Score = insight.AdjustedScore
			if out[i].Score < floor {
				out[i].Score = floor
			}
		}
		if insight.Reasoning != "" {
			out[i].Reasoning = insight.Reasoning
		}
		out[i].Pros = insight.Pros
		out[i].Cons = insight.Cons
		out[i].SuggestedCategory = insight.SuggestedCategory
		out[i].SuggestedTags = insight.SuggestedTags
		out[i].AiAdjusted = true
	}

	window := out[:topN]
	sort.SliceStable(window, func(i, j int) bool { return window[i].Score > window[j].Score })
	for i := range out {
		out[i].Rank = i + 1
	}

	return out
}

// shortlist carves the votable list out of the full tagged ranking: the first
// TopN venues that cleared the score threshold, re-ranked from 1. The full
// list stays on the output for progress reporting and the organizer view.
func (h *Handler) shortlist(recs []models.VenueRecommendation) []models.VenueRecommendation {
	out := make([]models.VenueRecommendation, 0, h.config.TopN)
	for _, r := range recs {
		if r.BelowThreshold {
			continue
		}
		r.Rank = len(out) + 1
		out = append(out, r)
		if len(out) == h.config.TopN {
			break
		}
	}
	return out
}

func countAdjusted(recs []models.VenueRecommendation) int {
	n := 0
	for _, r := range recs {
		if r.AiAdjusted {
			n++
		}
	}
	return n
}
