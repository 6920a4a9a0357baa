// internal/pipeline/orchestrator_test.go
package pipeline

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"venueflow/internal/common/ai"
	"venueflow/internal/common/config"
	apperrors "venueflow/internal/common/errors"
	"venueflow/internal/common/geo"
	"venueflow/internal/common/logger"
	"venueflow/internal/lifecycle"
	"venueflow/internal/models"
	airerank "venueflow/internal/workers/recommendation/ai-rerank"
	aggregatepreferences "venueflow/internal/workers/recommendation/aggregate-preferences"
	scorevenues "venueflow/internal/workers/recommendation/score-venues"
	sourcevenues "venueflow/internal/workers/recommendation/source-venues"
)

// ==========================
// Test Helper Functions
// ==========================

// memoryStore backs both the state machine and the orchestrator in tests.
type memoryStore struct {
	mu     sync.Mutex
	events map[string]*models.Event
	prefs  map[string][]models.PreferenceRecord
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		events: make(map[string]*models.Event),
		prefs:  make(map[string][]models.PreferenceRecord),
	}
}

func (s *memoryStore) GetEvent(_ context.Context, id string) (*models.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok {
		return nil, apperrors.NewEventNotFoundError(id)
	}
	copied := *e
	return &copied, nil
}

func (s *memoryStore) UpdateCAS(_ context.Context, eventID string, from, to models.EventState, mutate func(*models.Event)) (*models.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[eventID]
	if !ok {
		return nil, apperrors.NewEventNotFoundError(eventID)
	}
	if e.State != from {
		return nil, apperrors.NewStateConflictError(eventID, string(from))
	}
	if mutate != nil {
		mutate(e)
	}
	e.State = to
	e.Version++
	copied := *e
	return &copied, nil
}

func (s *memoryStore) ListPreferences(_ context.Context, eventID string) ([]models.PreferenceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prefs[eventID], nil
}

// memorySnapshots is an in-process progress.SnapshotStore.
type memorySnapshots struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemorySnapshots() *memorySnapshots {
	return &memorySnapshots{data: make(map[string]string)}
}

func (m *memorySnapshots) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = string(value.([]byte))
	return nil
}

func (m *memorySnapshots) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return "", assert.AnError
	}
	return v, nil
}

func (m *memorySnapshots) snapshot(t *testing.T, eventID string) models.AiAnalysisProgress {
	t.Helper()
	raw, err := m.Get(context.Background(), "progress:"+eventID)
	require.NoError(t, err)
	var p models.AiAnalysisProgress
	require.NoError(t, json.Unmarshal([]byte(raw), &p))
	return p
}

type fakeCatalog struct {
	candidates []models.VenueCandidate
}

func (f *fakeCatalog) SearchNearby(_ context.Context, _ models.Location, _ int, _ []string) ([]models.VenueCandidate, error) {
	return f.candidates, nil
}

type fakeExternal struct {
	candidates []models.VenueCandidate
	block      bool
}

func (f *fakeExternal) SearchNearby(ctx context.Context, _, _ float64, _ int, _ string) ([]models.VenueCandidate, error) {
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.candidates, nil
}

func (f *fakeExternal) DistanceMatrix(_ context.Context, origins []models.Location, _ models.Location) ([]geo.DistanceEntry, error) {
	return make([]geo.DistanceEntry, len(origins)), nil
}

type fakeAnalyzer struct {
	result *ai.AnalysisResult
	err    error
}

func (f *fakeAnalyzer) Analyze(_ context.Context, _ *ai.AnalysisRequest) (*ai.AnalysisResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type harness struct {
	store     *memoryStore
	snapshots *memorySnapshots
	sm        *lifecycle.StateMachine
	orch      *Orchestrator
}

func newHarness(t *testing.T, external *fakeExternal, analyzer *fakeAnalyzer, catalogCandidates []models.VenueCandidate) *harness {
	t.Helper()
	log := logger.NewTestLogger(t)
	store := newMemoryStore()
	snapshots := newMemorySnapshots()
	sm := lifecycle.New(store, config.LifecycleConfig{MinAcceptanceRatio: 0.5}, log)

	aggregate := aggregatepreferences.NewHandler(
		&aggregatepreferences.Config{DefaultBudgetTier: 2, DefaultRadiusMeters: 1000},
		nil, log)
	source := sourcevenues.NewHandler(
		&sourcevenues.Config{ExternalTimeout: 30 * time.Millisecond, DedupeToleranceM: 50, MaxCandidates: 50},
		&fakeCatalog{candidates: catalogCandidates}, external, log)
	score := scorevenues.NewHandler(
		&scorevenues.Config{MinScoreThreshold: 0.2, TopN: 5, EstimatedCostPerTier: 250},
		nil, log)
	rerank := airerank.NewHandler(&airerank.Config{TopN: 5, Enabled: true}, analyzer, log)

	orch := NewOrchestrator(store, sm, snapshots, time.Minute, aggregate, source, score, rerank, log)
	return &harness{store: store, snapshots: snapshots, sm: sm, orch: orch}
}

func floatPtr(v float64) *float64 { return &v }
func intPtr(v int) *int           { return &v }

func seedEvent(store *memoryStore, state models.EventState) *models.Event {
	lat, lng := 13.7563, 100.5018
	e := &models.Event{
		ID:          "evt-1",
		OrganizerID: "org-1",
		Title:       "Team dinner",
		State:       state,
		Participants: []models.Participant{
			{ID: "p-1", Accepted: true, Lat: floatPtr(lat), Lng: floatPtr(lng)},
			{ID: "p-2", Accepted: true, Lat: floatPtr(lat + 0.01), Lng: floatPtr(lng + 0.01)},
		},
		ScheduledAt:          time.Now().Add(72 * time.Hour),
		PreferencesSubmitted: 2,
		Version:              1,
	}
	store.events[e.ID] = e
	store.prefs[e.ID] = []models.PreferenceRecord{
		{ParticipantID: "p-1", Cuisines: []string{"thai"}, Budget: intPtr(2)},
		{ParticipantID: "p-2", Cuisines: []string{"thai"}, Budget: intPtr(2)},
	}
	return e
}

func catalogVenues(n int) []models.VenueCandidate {
	names := []string{"Blue Ginger", "Som Tam House", "River Cafe", "Night Market Grill"}
	out := make([]models.VenueCandidate, 0, n)
	for i := 0; i < n; i++ {
		rating := 4.0 + float64(i)*0.1
		price := 2
		out = append(out, models.VenueCandidate{
			ID: "v-" + names[i%len(names)], Name: names[i%len(names)],
			Lat: 13.7563 + float64(i)*0.001, Lng: 100.5018,
			Category: "thai", Rating: &rating, PriceLevel: &price,
			Source: models.SourceDatabase,
		})
	}
	return out
}

// ==========================
// Tests
// ==========================

func TestOrchestrator_Run_PublishesShortlist(t *testing.T) {
	h := newHarness(t, &fakeExternal{}, &fakeAnalyzer{result: &ai.AnalysisResult{
		PerVenue: []ai.VenueInsight{{VenueID: "v-Blue Ginger", AdjustedScore: 0.95, Reasoning: "great for groups"}},
	}}, catalogVenues(3))
	seedEvent(h.store, models.StateAiRecommending)

	h.orch.Run(context.Background(), "evt-1")

	event, err := h.store.GetEvent(context.Background(), "evt-1")
	require.NoError(t, err)
	assert.Equal(t, models.StateVoting, event.State)
	require.NotEmpty(t, event.Shortlist)
	assert.Equal(t, 1, event.Shortlist[0].Rank)
	assert.Empty(t, event.LastError)

	snap := h.snapshots.snapshot(t, "evt-1")
	assert.Equal(t, models.StepFinalRecommendations, snap.CurrentStep)
	assert.Equal(t, 100, snap.ProgressPercentage)
	assert.Equal(t, 2, snap.PreferencesCollected)
	assert.False(t, snap.Failed)
}

func TestOrchestrator_Run_ShortlistExcludesBelowThresholdVenues(t *testing.T) {
	// A venue that misses on cuisine, budget, distance and rating scores far
	// below the threshold; it gets tagged, never published for voting.
	lowRating, highPrice := 0.5, 5
	venues := append(catalogVenues(4), models.VenueCandidate{
		ID: "v-offbeat", Name: "Offbeat Karaoke Hall",
		Lat: 13.8563, Lng: 100.5018,
		Category: "karaoke", Rating: &lowRating, PriceLevel: &highPrice,
		Source: models.SourceDatabase,
	})
	h := newHarness(t, &fakeExternal{}, &fakeAnalyzer{err: apperrors.NewGeminiFailedError("skip")}, venues)
	seedEvent(h.store, models.StateAiRecommending)

	h.orch.Run(context.Background(), "evt-1")

	event, err := h.store.GetEvent(context.Background(), "evt-1")
	require.NoError(t, err)
	assert.Equal(t, models.StateVoting, event.State)

	require.Len(t, event.Shortlist, 4)
	for i, rec := range event.Shortlist {
		assert.NotEqual(t, "v-offbeat", rec.VenueID)
		assert.False(t, rec.BelowThreshold)
		assert.Equal(t, i+1, rec.Rank)
	}

	snap := h.snapshots.snapshot(t, "evt-1")
	assert.Equal(t, 5, snap.VenuesScored)
	assert.Equal(t, 4, snap.VenuesPassedThreshold)
}

func TestOrchestrator_Run_GeoTimeoutDegradesGracefully(t *testing.T) {
	h := newHarness(t, &fakeExternal{block: true}, &fakeAnalyzer{err: apperrors.NewGeminiFailedError("skip")}, catalogVenues(4))
	seedEvent(h.store, models.StateAiRecommending)

	h.orch.Run(context.Background(), "evt-1")

	event, err := h.store.GetEvent(context.Background(), "evt-1")
	require.NoError(t, err)
	assert.Equal(t, models.StateVoting, event.State)

	snap := h.snapshots.snapshot(t, "evt-1")
	assert.Equal(t, 4, snap.VenuesFromDatabase)
	assert.Equal(t, 0, snap.VenuesFromTrackAsia)
	assert.True(t, snap.SourceDegraded)
	assert.False(t, snap.Failed)
}

func TestOrchestrator_Run_AiTimeoutKeepsDeterministicRanking(t *testing.T) {
	h := newHarness(t, &fakeExternal{}, &fakeAnalyzer{err: apperrors.NewGeminiTimeoutError("deadline")}, catalogVenues(3))
	seedEvent(h.store, models.StateAiRecommending)

	h.orch.Run(context.Background(), "evt-1")

	event, err := h.store.GetEvent(context.Background(), "evt-1")
	require.NoError(t, err)
	assert.Equal(t, models.StateVoting, event.State)
	require.Len(t, event.Shortlist, 3)
	for _, rec := range event.Shortlist {
		assert.False(t, rec.AiAdjusted)
	}

	snap := h.snapshots.snapshot(t, "evt-1")
	assert.True(t, snap.GeminiTimeout)
	assert.False(t, snap.Failed)
}

func TestOrchestrator_Run_NoPreferencesFailsRun(t *testing.T) {
	h := newHarness(t, &fakeExternal{}, &fakeAnalyzer{}, catalogVenues(3))
	seedEvent(h.store, models.StateAiRecommending)
	h.store.prefs["evt-1"] = nil

	h.orch.Run(context.Background(), "evt-1")

	event, err := h.store.GetEvent(context.Background(), "evt-1")
	require.NoError(t, err)
	assert.Equal(t, models.StateGatheringPreferences, event.State)
	assert.Empty(t, event.Shortlist)
	assert.NotEmpty(t, event.LastError)

	snap := h.snapshots.snapshot(t, "evt-1")
	assert.True(t, snap.Failed)
	assert.Equal(t, "Could not generate recommendations, please retry", snap.Message)
}

func TestOrchestrator_Run_NoCandidatesFailsRun(t *testing.T) {
	h := newHarness(t, &fakeExternal{}, &fakeAnalyzer{}, nil)
	seedEvent(h.store, models.StateAiRecommending)

	h.orch.Run(context.Background(), "evt-1")

	event, err := h.store.GetEvent(context.Background(), "evt-1")
	require.NoError(t, err)
	assert.Equal(t, models.StateGatheringPreferences, event.State)

	snap := h.snapshots.snapshot(t, "evt-1")
	assert.True(t, snap.Failed)
}

func TestOrchestrator_Run_DiscardsResultWhenCancelledMidRun(t *testing.T) {
	h := newHarness(t, &fakeExternal{}, &fakeAnalyzer{err: apperrors.NewGeminiFailedError("skip")}, catalogVenues(3))
	seedEvent(h.store, models.StateAiRecommending)

	// The organizer cancels while the run is computing.
	h.store.mu.Lock()
	h.store.events["evt-1"].State = models.StateCancelled
	h.store.mu.Unlock()

	h.orch.Run(context.Background(), "evt-1")

	event, err := h.store.GetEvent(context.Background(), "evt-1")
	require.NoError(t, err)
	assert.Equal(t, models.StateCancelled, event.State)
	assert.Empty(t, event.Shortlist)
}

func TestAdmission_SecondConcurrentRunRejected(t *testing.T) {
	h := newHarness(t, &fakeExternal{}, &fakeAnalyzer{err: apperrors.NewGeminiFailedError("skip")}, catalogVenues(3))
	seedEvent(h.store, models.StateGatheringPreferences)

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.sm.Fire(context.Background(), "evt-1", lifecycle.TriggerPreferencesComplete, nil)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var admitted, rejected int
	for err := range results {
		if err == nil {
			admitted++
			continue
		}
		rejected++
		code := apperrors.CodeOf(err)
		assert.Contains(t, []apperrors.ErrorCode{
			apperrors.ErrCodeRunAlreadyActive,
			apperrors.ErrCodeInvalidTransition,
		}, code)
	}
	assert.Equal(t, 1, admitted)
	assert.Equal(t, 1, rejected)

	event, err := h.store.GetEvent(context.Background(), "evt-1")
	require.NoError(t, err)
	assert.Equal(t, models.StateAiRecommending, event.State)
}

func TestOrchestrator_OnTransition_StartsRunOnAdmission(t *testing.T) {
	h := newHarness(t, &fakeExternal{}, &fakeAnalyzer{err: apperrors.NewGeminiFailedError("skip")}, catalogVenues(3))
	seedEvent(h.store, models.StateGatheringPreferences)
	h.sm.Subscribe(h.orch)

	_, err := h.sm.Fire(context.Background(), "evt-1", lifecycle.TriggerPreferencesComplete, nil)
	require.NoError(t, err)

	event, err := h.store.GetEvent(context.Background(), "evt-1")
	require.NoError(t, err)
	assert.Equal(t, models.StateVoting, event.State)
	assert.NotEmpty(t, event.Shortlist)
}
