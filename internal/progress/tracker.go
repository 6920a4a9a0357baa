// internal/progress/tracker.go

// Package progress tracks an in-flight recommendation run. One Tracker is
// owned by exactly one run; snapshots published to redis are what pollers
// read, the run never hands out its mutable record.
package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"venueflow/internal/common/logger"
	"venueflow/internal/models"
)

const keyPrefix = "progress:"

// percentForStep maps a pipeline step to its reported completion percentage.
var percentForStep = map[int]int{
	models.StepGatheringPreferences: 5,
	models.StepAnalyzingPreferences: 20,
	models.StepSearchingVenues:      40,
	models.StepEvaluatingVenues:     60,
	models.StepAiAnalysis:           80,
	models.StepFinalRecommendations: 100,
}

// SnapshotStore is the redis-shaped persistence for progress snapshots.
type SnapshotStore interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string) (string, error)
}

// Tracker is the run-owned writer of one AiAnalysisProgress record. Advance
// enforces the forward-only invariant: a call that would move CurrentStep or
// ProgressPercentage backwards is ignored.
type Tracker struct {
	mu     sync.Mutex
	record models.AiAnalysisProgress
	store  SnapshotStore
	ttl    time.Duration
	logger logger.Logger
	now    func() time.Time
}

func NewTracker(eventID, runID string, totalParticipants int, store SnapshotStore, ttl time.Duration, log logger.Logger) *Tracker {
	return &Tracker{
		record: models.AiAnalysisProgress{
			EventID:           eventID,
			RunID:             runID,
			CurrentStep:       models.StepGatheringPreferences,
			StepName:          models.StepName(models.StepGatheringPreferences),
			TotalParticipants: totalParticipants,
		},
		store:  store,
		ttl:    ttl,
		logger: log.WithFields(map[string]interface{}{"component": "progress", "runId": runID}),
		now:    time.Now,
	}
}

// WithClock overrides the time source for tests.
func (t *Tracker) WithClock(now func() time.Time) *Tracker {
	t.now = now
	return t
}

// Advance moves the run to step, applies mutate to the record, and publishes
// a snapshot. Steps never go backwards; a stale Advance still applies its
// counter mutation but leaves CurrentStep and ProgressPercentage untouched.
// Every call refreshes LastUpdated so pollers can distinguish a slow run from
// a dead one.
func (t *Tracker) Advance(ctx context.Context, step int, mutate func(*models.AiAnalysisProgress)) {
	t.mu.Lock()

	if step > t.record.CurrentStep {
		t.record.CurrentStep = step
		t.record.StepName = models.StepName(step)
		if pct, ok := percentForStep[step]; ok && pct > t.record.ProgressPercentage {
			t.record.ProgressPercentage = pct
		}
	}
	if mutate != nil {
		mutate(&t.record)
	}
	t.record.LastUpdated = t.now().UTC()

	snapshot := t.record
	t.mu.Unlock()

	t.publish(ctx, snapshot)
}

// Fail marks the run failed with a participant-facing message and publishes a
// final snapshot. The step is left where the run died.
func (t *Tracker) Fail(ctx context.Context, message string) {
	t.mu.Lock()
	t.record.Failed = true
	t.record.Message = message
	t.record.LastUpdated = t.now().UTC()
	snapshot := t.record
	t.mu.Unlock()

	t.publish(ctx, snapshot)
}

// Snapshot returns a copy of the current record.
func (t *Tracker) Snapshot() models.AiAnalysisProgress {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.record
}

func (t *Tracker) publish(ctx context.Context, snapshot models.AiAnalysisProgress) {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		t.logger.Error("failed to marshal progress snapshot", map[string]interface{}{"error": err.Error()})
		return
	}
	// Snapshot publication is best-effort; a redis hiccup must not fail the run.
	if err := t.store.Set(ctx, keyPrefix+snapshot.EventID, payload, t.ttl); err != nil {
		t.logger.Warn("failed to publish progress snapshot", map[string]interface{}{
			"eventId": snapshot.EventID,
			"error":   err.Error(),
		})
	}
}

// Load reads the latest published snapshot for an event. A missing key means
// no run has reported yet (or the snapshot expired).
func Load(ctx context.Context, store SnapshotStore, eventID string) (*models.AiAnalysisProgress, error) {
	raw, err := store.Get(ctx, keyPrefix+eventID)
	if err != nil {
		return nil, err
	}
	var p models.AiAnalysisProgress
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, fmt.Errorf("decode progress snapshot: %w", err)
	}
	return &p, nil
}
