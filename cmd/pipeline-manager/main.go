// cmd/pipeline-manager/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"venueflow/internal/common/ai"
	"venueflow/internal/common/config"
	"venueflow/internal/common/database"
	apperrors "venueflow/internal/common/errors"
	"venueflow/internal/common/geo"
	"venueflow/internal/common/logger"
	"venueflow/internal/common/observability"
	"venueflow/internal/common/validation"
	"venueflow/internal/lifecycle"
	"venueflow/internal/models"
	"venueflow/internal/pipeline"
	"venueflow/internal/progress"
	"venueflow/internal/store"

	np "venueflow/internal/workers/communication/notify-participants"
	ar "venueflow/internal/workers/recommendation/ai-rerank"
	ap "venueflow/internal/workers/recommendation/aggregate-preferences"
	scv "venueflow/internal/workers/recommendation/score-venues"
	sv "venueflow/internal/workers/recommendation/source-venues"
	tv "venueflow/internal/workers/voting/tally-votes"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2 // Exponential backoff
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()

	// Wrap zap logger with our logger interface
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting pipeline manager...")

	obs := observability.New("pipeline-manager")
	defer obs.Shutdown()

	ctx := context.Background()

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")

	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Elasticsearch with retry ---
	var esClient *database.ElasticsearchClient
	err = retryWithBackoff(func() error {
		var err error
		esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
		if err != nil {
			return err
		}
		return esClient.Ping()
	}, 15, 2*time.Second, zapLog, "Elasticsearch connection")

	if err != nil {
		zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
	}
	zapLog.Info("Elasticsearch connected successfully")

	// --- Init Redis with retry ---
	var redisClient *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		redisClient, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return redisClient.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")

	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer redisClient.Close()
	zapLog.Info("Redis connected successfully")

	// --- Init External Service Clients ---
	geoClient := geo.NewClient(
		cfg.TrackAsia.BaseURL,
		cfg.TrackAsia.APIKey,
		time.Duration(cfg.TrackAsia.TimeoutMS)*time.Millisecond,
		log,
	)

	var analyzer ai.Analyzer
	if cfg.Gemini.Enabled {
		gemini, err := ai.NewGeminiClient(cfg.Gemini, log)
		if err != nil {
			zapLog.Fatal("gemini client failed", zap.Error(err))
		}
		analyzer = gemini
		zapLog.Info("Gemini client initialized")
	} else {
		zapLog.Info("Gemini disabled, runs will use the deterministic ranking")
	}

	// --- Persistence & State Machine ---
	eventStore := store.NewEventStore(pg.DB, log)
	sm := lifecycle.New(eventStore, cfg.Lifecycle, log)

	// --- Pipeline Stage Handlers ---
	aggregateHandler := ap.NewHandler(ap.FromPipelineConfig(cfg.Pipeline), redisClient, log)

	esCatalog := sv.NewESCatalog(esClient.Client, cfg.Database.Elasticsearch.PlaceIndex)
	catalog := sv.NewFallbackCatalog(esCatalog, eventStore, log)
	sourceHandler := sv.NewHandler(sv.FromPipelineConfig(cfg.Pipeline, cfg.TrackAsia), catalog, geoClient, log)

	scoreHandler := scv.NewHandler(scv.FromPipelineConfig(cfg.Pipeline), geoClient, log)
	rerankHandler := ar.NewHandler(ar.FromConfig(cfg.Pipeline, cfg.Gemini), analyzer, log)

	tallyHandler := tv.NewHandler(tv.FromVotingConfig(cfg.Voting), log)

	notifyHandler, err := np.NewHandler(np.FromNotificationConfig(cfg.Notifications), log)
	if err != nil {
		zapLog.Fatal("failed to create notify-participants handler", zap.Error(err))
	}

	progressTTL := time.Duration(cfg.Pipeline.ProgressTTLSeconds) * time.Second
	orchestrator := pipeline.NewOrchestrator(
		eventStore, sm, redisClient, progressTTL,
		aggregateHandler, sourceHandler, scoreHandler, rerankHandler,
		log,
	)

	sm.Subscribe(orchestrator)
	sm.Subscribe(np.NewNotifier(notifyHandler, log))
	zapLog.Info("All pipeline stages wired")

	// --- HTTP API, Health & Metrics Server ---
	api := &apiServer{
		store:  eventStore,
		sm:     sm,
		tally:  tallyHandler,
		redis:  redisClient,
		logger: log,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if err := pg.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not-ready", "error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "ready",
			"time":   time.Now().Format(time.RFC3339),
		})
	})
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("GET /events/{id}/progress", api.handleProgress)
	mux.HandleFunc("POST /events/{id}/advance", api.handleAdvance)
	mux.HandleFunc("POST /events/{id}/preferences", api.handlePreference)
	mux.HandleFunc("POST /events/{id}/votes", api.handleVote)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.App.HTTPPort),
		Handler: mux,
	}

	go func() {
		zapLog.Info("HTTP server listening", zap.Int("port", cfg.App.HTTPPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLog.Error("HTTP server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error shutting down HTTP server", zap.Error(err))
	}

	zapLog.Info("Pipeline manager stopped gracefully")
}

type apiServer struct {
	store  *store.EventStore
	sm     *lifecycle.StateMachine
	tally  *tv.Handler
	redis  *database.RedisClient
	logger logger.Logger
}

// handleProgress serves the latest run snapshot for an event.
func (s *apiServer) handleProgress(w http.ResponseWriter, r *http.Request) {
	eventID := r.PathValue("id")

	record, err := progress.Load(r.Context(), s.redis, eventID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no active or recent run for event"})
		return
	}
	writeJSON(w, http.StatusOK, record)
}

type advanceRequest struct {
	Trigger string `json:"trigger"`
}

// handleAdvance fires one lifecycle trigger. A concurrent admission race is a
// no-op success, the caller's intent is already satisfied by the winning run.
func (s *apiServer) handleAdvance(w http.ResponseWriter, r *http.Request) {
	eventID := r.PathValue("id")

	var req advanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Trigger == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "body must carry a trigger"})
		return
	}

	updated, err := s.sm.Fire(r.Context(), eventID, lifecycle.Trigger(req.Trigger), nil)
	if err != nil {
		if apperrors.CodeOf(err) == apperrors.ErrCodeRunAlreadyActive {
			writeJSON(w, http.StatusOK, map[string]string{"status": "already-running"})
			return
		}
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"eventId": updated.ID,
		"state":   updated.State,
		"version": updated.Version,
	})
}

// handlePreference validates and stores one participant's preference payload,
// then tries to admit the event to a run if that was the last one missing.
func (s *apiServer) handlePreference(w http.ResponseWriter, r *http.Request) {
	eventID := r.PathValue("id")

	var doc map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	if err := validation.ValidatePreferencePayload(doc); err != nil {
		writeError(w, err)
		return
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		writeError(w, err)
		return
	}
	var record models.PreferenceRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid preference payload"})
		return
	}

	if err := s.store.SavePreference(r.Context(), eventID, record); err != nil {
		writeError(w, err)
		return
	}

	// Last submission in admits the event to a run. A rejected guard just
	// means others are still missing.
	if _, err := s.sm.Fire(r.Context(), eventID, lifecycle.TriggerPreferencesComplete, nil); err != nil {
		code := apperrors.CodeOf(err)
		if code != apperrors.ErrCodeGuardRejected && code != apperrors.ErrCodeInvalidTransition {
			s.logger.Warn("could not admit event after preference submission", map[string]interface{}{
				"eventId": eventID,
				"error":   err.Error(),
			})
		}
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "recorded"})
}

// handleVote records one vote, re-tallies, and confirms the winner once
// consensus is reached.
func (s *apiServer) handleVote(w http.ResponseWriter, r *http.Request) {
	eventID := r.PathValue("id")

	var vote models.Vote
	if err := json.NewDecoder(r.Body).Decode(&vote); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	if vote.ParticipantID == "" || vote.VenueID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "participantId and venueId are required"})
		return
	}
	if !vote.Reject && (vote.Value < 1 || vote.Value > 5) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "value must be within 1..5"})
		return
	}
	if vote.CastAt.IsZero() {
		vote.CastAt = time.Now().UTC()
	}

	event, err := s.store.RecordVote(r.Context(), eventID, vote)
	if err != nil {
		writeError(w, err)
		return
	}

	tallied, err := s.tally.Execute(r.Context(), &tv.Input{
		EventID:        eventID,
		Shortlist:      event.Shortlist,
		Votes:          event.Votes,
		AcceptedCount:  len(event.AcceptedParticipants()),
		VotingDeadline: event.VotingDeadline,
		Now:            time.Now().UTC(),
	})
	if err != nil {
		writeError(w, err)
		return
	}

	if tallied.ConsensusReached && tallied.WinnerVenueID != "" {
		if _, err := s.sm.Fire(r.Context(), eventID, lifecycle.TriggerConsensusReached, func(e *models.Event) {
			e.ConfirmedVenueID = tallied.WinnerVenueID
		}); err != nil {
			// Another vote may have confirmed first; the tally result still
			// answers this request.
			s.logger.Warn("consensus confirmation lost a race", map[string]interface{}{
				"eventId": eventID,
				"error":   err.Error(),
			})
		}
	}

	writeJSON(w, http.StatusOK, tallied)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch apperrors.CodeOf(err) {
	case apperrors.ErrCodeEventNotFound:
		status = http.StatusNotFound
	case apperrors.ErrCodeStateConflict, apperrors.ErrCodeInvalidTransition, apperrors.ErrCodeGuardRejected:
		status = http.StatusConflict
	case apperrors.ErrCodeInvalidPreferencePayload, apperrors.ErrCodeNegativeRadius:
		status = http.StatusBadRequest
	}

	writeJSON(w, status, map[string]string{
		"error": err.Error(),
		"code":  string(apperrors.CodeOf(err)),
	})
}
