// internal/pipeline/orchestrator.go

// Package pipeline runs the venue recommendation pipeline for one event:
// aggregate preferences, source candidates, score deterministically, AI
// re-rank, publish. One run owns its progress record; publication happens
// atomically through the lifecycle state machine.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"

	apperrors "venueflow/internal/common/errors"
	"venueflow/internal/common/logger"
	"venueflow/internal/common/metrics"
	"venueflow/internal/lifecycle"
	"venueflow/internal/models"
	"venueflow/internal/progress"
	airerank "venueflow/internal/workers/recommendation/ai-rerank"
	aggregatepreferences "venueflow/internal/workers/recommendation/aggregate-preferences"
	scorevenues "venueflow/internal/workers/recommendation/score-venues"
	sourcevenues "venueflow/internal/workers/recommendation/source-venues"
)

// Stage contracts, one per worker, so runs can be assembled from fakes in
// tests and from the real handlers in main.
type (
	Aggregator interface {
		Execute(ctx context.Context, input *aggregatepreferences.Input) (*aggregatepreferences.Output, error)
	}
	Sourcer interface {
		Execute(ctx context.Context, input *sourcevenues.Input) (*sourcevenues.Output, error)
	}
	Scorer interface {
		Execute(ctx context.Context, input *scorevenues.Input) (*scorevenues.Output, error)
	}
	Reranker interface {
		Execute(ctx context.Context, input *airerank.Input) (*airerank.Output, error)
	}
)

// EventSource is what the orchestrator needs from persistence beyond the
// state machine itself.
type EventSource interface {
	GetEvent(ctx context.Context, id string) (*models.Event, error)
	ListPreferences(ctx context.Context, eventID string) ([]models.PreferenceRecord, error)
}

type Orchestrator struct {
	events      EventSource
	sm          *lifecycle.StateMachine
	snapshots   progress.SnapshotStore
	progressTTL time.Duration

	aggregate Aggregator
	source    Sourcer
	score     Scorer
	rerank    Reranker

	logger logger.Logger
}

func NewOrchestrator(
	events EventSource,
	sm *lifecycle.StateMachine,
	snapshots progress.SnapshotStore,
	progressTTL time.Duration,
	aggregate Aggregator,
	source Sourcer,
	score Scorer,
	rerank Reranker,
	log logger.Logger,
) *Orchestrator {
	return &Orchestrator{
		events:      events,
		sm:          sm,
		snapshots:   snapshots,
		progressTTL: progressTTL,
		aggregate:   aggregate,
		source:      source,
		score:       score,
		rerank:      rerank,
		logger:      log.WithFields(map[string]interface{}{"component": "pipeline"}),
	}
}

// OnTransition starts a run whenever an event enters AiRecommending. The
// state machine's check-and-set admission guarantees at most one concurrent
// run per event, so starting from here cannot double-run.
func (o *Orchestrator) OnTransition(ctx context.Context, e *models.Event, _ lifecycle.Trigger, _, to models.EventState) {
	if to != models.StateAiRecommending {
		return
	}
	o.Run(ctx, e.ID)
}

// Run executes the full pipeline for an event already admitted to
// AiRecommending. Terminal errors fail the run and hand the event back to
// GatheringPreferences; transient provider trouble is absorbed inside the
// stages.
func (o *Orchestrator) Run(ctx context.Context, eventID string) {
	runID := uuid.New().String()
	log := o.logger.WithFields(map[string]interface{}{"eventId": eventID, "runId": runID})

	event, err := o.events.GetEvent(ctx, eventID)
	if err != nil {
		log.Error("run aborted, event not loadable", map[string]interface{}{"error": err.Error()})
		return
	}

	accepted := event.AcceptedParticipants()
	tracker := progress.NewTracker(eventID, runID, len(accepted), o.snapshots, o.progressTTL, log)
	metrics.PipelineRunsStarted.WithLabelValues("admitted").Inc()

	recs, aiOut, err := o.runStages(ctx, event, runID, tracker, log)
	if err != nil {
		o.failRun(ctx, eventID, tracker, err, log)
		return
	}

	// Only the shortlist is votable. The full tagged ranking stays on the run
	// output; below-threshold venues and the long tail never reach the ballot.
	shortlist := aiOut.Shortlist
	if len(shortlist) == 0 {
		o.failRun(ctx, eventID, tracker, apperrors.NewNoCandidatesError(eventID), log)
		return
	}

	tracker.Advance(ctx, models.StepFinalRecommendations, func(p *models.AiAnalysisProgress) {
		p.Message = "recommendations ready"
	})

	_, err = o.sm.Fire(ctx, eventID, lifecycle.TriggerPipelineSucceeded, func(e *models.Event) {
		e.Shortlist = shortlist
		e.LastError = ""
		e.Votes = nil
	})
	if err != nil {
		// Cancelled (or otherwise moved on) while we were computing: the
		// run's output is discarded, nothing to publish.
		log.Warn("run result discarded, event no longer accepts publication", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	log.Info("run published", map[string]interface{}{
		"shortlist":  len(shortlist),
		"scored":     len(recs),
		"aiApplied":  aiOut.AiApplied,
		"aiTimedOut": aiOut.GeminiTimeout,
	})
}

func (o *Orchestrator) runStages(ctx context.Context, event *models.Event, runID string, tracker *progress.Tracker, log logger.Logger) ([]models.VenueRecommendation, *airerank.Output, error) {
	eventID := event.ID

	// Stage 1: aggregate preferences.
	tracker.Advance(ctx, models.StepAnalyzingPreferences, nil)
	records, err := o.events.ListPreferences(ctx, eventID)
	if err != nil {
		return nil, nil, err
	}

	start := time.Now()
	aggregated, err := o.aggregate.Execute(ctx, &aggregatepreferences.Input{
		EventID:           eventID,
		RunID:             runID,
		TotalParticipants: tracker.Snapshot().TotalParticipants,
		Records:           records,
	})
	observeStage(aggregatepreferences.TaskType, start)
	if err != nil {
		return nil, nil, err
	}
	tracker.Advance(ctx, models.StepAnalyzingPreferences, func(p *models.AiAnalysisProgress) {
		p.PreferencesCollected = aggregated.Collected
	})

	center, ok := groupCenter(event, records)
	if !ok {
		return nil, nil, apperrors.NewNoCandidatesError(eventID)
	}

	// Stage 2: source candidates from both channels.
	tracker.Advance(ctx, models.StepSearchingVenues, nil)
	start = time.Now()
	sourced, err := o.source.Execute(ctx, &sourcevenues.Input{
		EventID:    eventID,
		RunID:      runID,
		Center:     center,
		Aggregated: aggregated.Aggregated,
	})
	observeStage(sourcevenues.TaskType, start)
	if err != nil {
		return nil, nil, err
	}
	tracker.Advance(ctx, models.StepSearchingVenues, func(p *models.AiAnalysisProgress) {
		p.VenuesFromDatabase = sourced.FromDatabase
		p.VenuesFromTrackAsia = sourced.FromTrackAsia
		p.SourceDegraded = sourced.ExternalDegraded || sourced.CatalogDegraded
	})

	// Stage 3: deterministic scoring.
	tracker.Advance(ctx, models.StepEvaluatingVenues, nil)
	start = time.Now()
	scored, err := o.score.Execute(ctx, &scorevenues.Input{
		EventID:              eventID,
		RunID:                runID,
		Center:               center,
		ParticipantLocations: event.ParticipantLocations(),
		Aggregated:           aggregated.Aggregated,
		Candidates:           sourced.Candidates,
	})
	observeStage(scorevenues.TaskType, start)
	if err != nil {
		return nil, nil, err
	}
	tracker.Advance(ctx, models.StepEvaluatingVenues, func(p *models.AiAnalysisProgress) {
		p.VenuesScored = scored.Scored
		p.VenuesPassedThreshold = scored.PassedThreshold
	})

	// Stage 4: AI re-rank with deterministic fallback.
	tracker.Advance(ctx, models.StepAiAnalysis, nil)
	start = time.Now()
	aiOut, err := o.rerank.Execute(ctx, &airerank.Input{
		EventID:              eventID,
		RunID:                runID,
		EventTitle:           event.Title,
		ScheduledAt:          event.ScheduledAt,
		Headcount:            len(event.AcceptedParticipants()),
		ParticipantLocations: event.ParticipantLocations(),
		Aggregated:           aggregated.Aggregated,
		Recommendations:      scored.Recommendations,
	})
	observeStage(airerank.TaskType, start)
	if err != nil {
		return nil, nil, err
	}
	tracker.Advance(ctx, models.StepAiAnalysis, func(p *models.AiAnalysisProgress) {
		p.GeminiTimeout = aiOut.GeminiTimeout
	})

	return aiOut.Recommendations, aiOut, nil
}

func observeStage(taskType string, start time.Time) {
	metrics.StageDuration.WithLabelValues(taskType).Observe(time.Since(start).Seconds())
}

func (o *Orchestrator) failRun(ctx context.Context, eventID string, tracker *progress.Tracker, runErr error, log logger.Logger) {
	code := string(apperrors.CodeOf(runErr))
	metrics.PipelineRunsFailed.WithLabelValues(code).Inc()

	message := "Could not generate recommendations, please retry"
	tracker.Fail(ctx, message)

	log.Error("run failed", map[string]interface{}{
		"errorCode": code,
		"error":     runErr.Error(),
	})

	_, err := o.sm.Fire(ctx, eventID, lifecycle.TriggerPipelineFailed, func(e *models.Event) {
		e.LastError = runErr.Error()
	})
	if err != nil {
		log.Warn("could not hand event back after failed run", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

// groupCenter is the centroid of known participant locations, falling back to
// coordinates supplied with preference records.
func groupCenter(event *models.Event, records []models.PreferenceRecord) (models.Location, bool) {
	locations := event.ParticipantLocations()
	if len(locations) == 0 {
		for _, rec := range records {
			if rec.Lat != nil && rec.Lng != nil {
				locations = append(locations, models.Location{Lat: *rec.Lat, Lng: *rec.Lng})
			}
		}
	}
	if len(locations) == 0 {
		return models.Location{}, false
	}

	var lat, lng float64
	for _, l := range locations {
		lat += l.Lat
		lng += l.Lng
	}
	n := float64(len(locations))
	return models.Location{Lat: lat / n, Lng: lng / n}, true
}
