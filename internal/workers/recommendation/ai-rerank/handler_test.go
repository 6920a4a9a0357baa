// internal/workers/recommendation/ai-rerank/handler_test.go
package airerank

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"venueflow/internal/common/ai"
	apperrors "venueflow/internal/common/errors"
	"venueflow/internal/common/logger"
	"venueflow/internal/models"
)

// ==========================
// Test Helper Functions
// ==========================

type fakeAnalyzer struct {
	result *ai.AnalysisResult
	err    error
	calls  int
	lastN  int
}

func (f *fakeAnalyzer) Analyze(_ context.Context, req *ai.AnalysisRequest) (*ai.AnalysisResult, error) {
	f.calls++
	f.lastN = len(req.Candidates)
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func createTestConfig() *Config {
	return &Config{TopN: 2, Enabled: true}
}

func rec(id string, score float64, rank int) models.VenueRecommendation {
	return models.VenueRecommendation{
		VenueID:   id,
		Name:      id,
		Score:     score,
		Rank:      rank,
		Reasoning: "deterministic reasoning",
	}
}

func testInput() *Input {
	return &Input{
		EventID:    "evt-1",
		RunID:      "run-1",
		EventTitle: "Team dinner",
		Headcount:  6,
		Recommendations: []models.VenueRecommendation{
			rec("v-1", 0.82, 1),
			rec("v-2", 0.74, 2),
			rec("v-3", 0.61, 3),
		},
	}
}

// ==========================
// Tests
// ==========================

func TestHandler_Execute_AppliesInsights(t *testing.T) {
	analyzer := &fakeAnalyzer{result: &ai.AnalysisResult{
		PerVenue: []ai.VenueInsight{
			{VenueID: "v-2", AdjustedScore: 0.9, Reasoning: "best fit for the dietary mix", Pros: []string{"quiet room"}},
			{VenueID: "v-1", AdjustedScore: 0.8, Cons: []string{"tight seating"}},
		},
		OverallInsight:         "Both top venues handle large groups well",
		SuggestedEventCategory: "dinner",
	}}

	handler := NewHandler(createTestConfig(), analyzer, logger.NewTestLogger(t))
	output, err := handler.Execute(context.Background(), testInput())
	require.NoError(t, err)

	assert.True(t, output.AiApplied)
	assert.False(t, output.GeminiTimeout)
	assert.Equal(t, 2, analyzer.lastN)

	// v-2 overtook v-1 inside the AI window.
	assert.Equal(t, "v-2", output.Recommendations[0].VenueID)
	assert.Equal(t, 1, output.Recommendations[0].Rank)
	assert.InDelta(t, 0.9, output.Recommendations[0].Score, 0.001)
	assert.Equal(t, "best fit for the dietary mix", output.Recommendations[0].Reasoning)
	assert.True(t, output.Recommendations[0].AiAdjusted)

	// The tail below the window is untouched apart from rank continuity.
	assert.Equal(t, "v-3", output.Recommendations[2].VenueID)
	assert.Equal(t, 3, output.Recommendations[2].Rank)
	assert.False(t, output.Recommendations[2].AiAdjusted)

	assert.Equal(t, "dinner", output.SuggestedEventCategory)
}

func TestHandler_Execute_TimeoutFallsBack(t *testing.T) {
	analyzer := &fakeAnalyzer{err: apperrors.NewGeminiTimeoutError("deadline exceeded")}

	handler := NewHandler(createTestConfig(), analyzer, logger.NewTestLogger(t))
	input := testInput()
	output, err := handler.Execute(context.Background(), input)
	require.NoError(t, err)

	assert.True(t, output.GeminiTimeout)
	assert.False(t, output.AiApplied)
	// Deterministic list survives byte for byte, and the shortlist is still
	// carved out of it.
	assert.Equal(t, input.Recommendations, output.Recommendations)
	require.Len(t, output.Shortlist, 2)
	assert.Equal(t, "v-1", output.Shortlist[0].VenueID)
}

func TestHandler_Execute_FailureFallsBack(t *testing.T) {
	analyzer := &fakeAnalyzer{err: apperrors.NewGeminiFailedError("malformed json")}

	handler := NewHandler(createTestConfig(), analyzer, logger.NewTestLogger(t))
	input := testInput()
	output, err := handler.Execute(context.Background(), input)
	require.NoError(t, err)

	assert.False(t, output.GeminiTimeout)
	assert.False(t, output.AiApplied)
	assert.Equal(t, input.Recommendations, output.Recommendations)
}

func TestHandler_Execute_IgnoresInventedVenues(t *testing.T) {
	analyzer := &fakeAnalyzer{result: &ai.AnalysisResult{
		PerVenue: []ai.VenueInsight{
			{VenueID: "v-1", AdjustedScore: 0.85},
			{VenueID: "v-made-up", AdjustedScore: 0.99, Reasoning: "hallucinated"},
		},
	}}

	handler := NewHandler(createTestConfig(), analyzer, logger.NewTestLogger(t))
	output, err := handler.Execute(context.Background(), testInput())
	require.NoError(t, err)

	for _, r := range output.Recommendations {
		assert.NotEqual(t, "v-made-up", r.VenueID)
	}
	assert.Len(t, output.Recommendations, 3)
}

func TestHandler_Execute_IgnoresOutOfRangeScores(t *testing.T) {
	analyzer := &fakeAnalyzer{result: &ai.AnalysisResult{
		PerVenue: []ai.VenueInsight{
			{VenueID: "v-1", AdjustedScore: 7.5, Reasoning: "overscaled"},
		},
	}}

	handler := NewHandler(createTestConfig(), analyzer, logger.NewTestLogger(t))
	output, err := handler.Execute(context.Background(), testInput())
	require.NoError(t, err)

	// Score keeps its deterministic value, the reasoning still lands.
	assert.InDelta(t, 0.82, output.Recommendations[0].Score, 0.001)
	assert.Equal(t, "overscaled", output.Recommendations[0].Reasoning)
	assert.True(t, output.Recommendations[0].AiAdjusted)
}

func TestHandler_Execute_Disabled(t *testing.T) {
	cfg := createTestConfig()
	cfg.Enabled = false
	analyzer := &fakeAnalyzer{}

	handler := NewHandler(cfg, analyzer, logger.NewTestLogger(t))
	input := testInput()
	output, err := handler.Execute(context.Background(), input)
	require.NoError(t, err)

	assert.Zero(t, analyzer.calls)
	assert.Equal(t, input.Recommendations, output.Recommendations)
	assert.Len(t, output.Shortlist, 2)
}

func TestHandler_Execute_ShortlistSkipsBelowThreshold(t *testing.T) {
	analyzer := &fakeAnalyzer{err: apperrors.NewGeminiFailedError("skip")}

	handler := NewHandler(createTestConfig(), analyzer, logger.NewTestLogger(t))
	input := testInput()
	input.Recommendations[1].BelowThreshold = true

	output, err := handler.Execute(context.Background(), input)
	require.NoError(t, err)

	// The full tagged list survives for reporting; the votable shortlist
	// skips the tagged venue and closes the rank gap.
	assert.Len(t, output.Recommendations, 3)
	require.Len(t, output.Shortlist, 2)
	assert.Equal(t, "v-1", output.Shortlist[0].VenueID)
	assert.Equal(t, 1, output.Shortlist[0].Rank)
	assert.Equal(t, "v-3", output.Shortlist[1].VenueID)
	assert.Equal(t, 2, output.Shortlist[1].Rank)
}

func TestHandler_Execute_AdjustedScoreCannotDropBelowTail(t *testing.T) {
	analyzer := &fakeAnalyzer{result: &ai.AnalysisResult{
		PerVenue: []ai.VenueInsight{
			{VenueID: "v-2", AdjustedScore: 0.1, Reasoning: "poor fit for the occasion"},
		},
	}}

	handler := NewHandler(createTestConfig(), analyzer, logger.NewTestLogger(t))
	output, err := handler.Execute(context.Background(), testInput())
	require.NoError(t, err)

	// v-2 is demoted only as far as the first venue beyond the AI window,
	// keeping the published ordering monotonic.
	assert.Equal(t, "v-2", output.Recommendations[1].VenueID)
	assert.InDelta(t, 0.61, output.Recommendations[1].Score, 0.001)
	for i := 1; i < len(output.Recommendations); i++ {
		assert.GreaterOrEqual(t, output.Recommendations[i-1].Score, output.Recommendations[i].Score)
	}
}
