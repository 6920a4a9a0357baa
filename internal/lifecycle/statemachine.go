// internal/lifecycle/statemachine.go

// Package lifecycle implements the event state machine as an explicit
// transition table: (state, trigger) -> (next state, guard). Guards are pure
// predicates over event data so every transition is unit-testable without
// standing up the whole service.
package lifecycle

import (
	"context"
	"time"

	"venueflow/internal/common/config"
	apperrors "venueflow/internal/common/errors"
	"venueflow/internal/common/logger"
	"venueflow/internal/common/metrics"
	"venueflow/internal/models"
)

// Trigger is a user or system action that may move an event between states.
type Trigger string

const (
	TriggerStartPlanning       Trigger = "start-planning"
	TriggerInviteSent          Trigger = "invite-sent"
	TriggerAcceptanceMet       Trigger = "acceptance-met"
	TriggerOrganizerOverride   Trigger = "organizer-override"
	TriggerPreferencesComplete Trigger = "preferences-complete"
	TriggerPreferenceDeadline  Trigger = "preference-deadline"
	TriggerPipelineSucceeded   Trigger = "pipeline-succeeded"
	TriggerPipelineFailed      Trigger = "pipeline-failed"
	TriggerConsensusReached    Trigger = "consensus-reached"
	TriggerOrganizerForce      Trigger = "organizer-force"
	TriggerEventTimeElapsed    Trigger = "event-time-elapsed"
	TriggerCancel              Trigger = "cancel"
)

// Guard is a pure predicate over event data. A nil return admits the
// transition; an error names the rejection reason.
type Guard func(e *models.Event, cfg config.LifecycleConfig, now time.Time) error

type transitionKey struct {
	from    models.EventState
	trigger Trigger
}

type transition struct {
	to    models.EventState
	guard Guard
}

func guardHasInvitees(e *models.Event, _ config.LifecycleConfig, _ time.Time) error {
	if len(e.Participants) == 0 {
		return apperrors.NewGuardRejectedError(string(e.State), string(TriggerInviteSent), "at least one participant must be invited")
	}
	return nil
}

func guardAcceptanceThreshold(e *models.Event, cfg config.LifecycleConfig, _ time.Time) error {
	if len(e.Participants) == 0 {
		return apperrors.NewGuardRejectedError(string(e.State), string(TriggerAcceptanceMet), "no participants invited")
	}
	accepted := len(e.AcceptedParticipants())
	ratio := float64(accepted) / float64(len(e.Participants))
	if ratio < cfg.MinAcceptanceRatio {
		return apperrors.NewGuardRejectedError(string(e.State), string(TriggerAcceptanceMet), "acceptance below configured threshold")
	}
	return nil
}

func guardAllPreferencesIn(e *models.Event, _ config.LifecycleConfig, _ time.Time) error {
	accepted := len(e.AcceptedParticipants())
	if accepted == 0 {
		return apperrors.NewGuardRejectedError(string(e.State), string(TriggerPreferencesComplete), "no accepted participants")
	}
	if e.PreferencesSubmitted < accepted {
		return apperrors.NewGuardRejectedError(string(e.State), string(TriggerPreferencesComplete), "not all participants have submitted preferences")
	}
	return nil
}

func guardPreferenceDeadline(e *models.Event, _ config.LifecycleConfig, now time.Time) error {
	if e.PreferenceDeadline.IsZero() || now.Before(e.PreferenceDeadline) {
		return apperrors.NewGuardRejectedError(string(e.State), string(TriggerPreferenceDeadline), "preference deadline has not elapsed")
	}
	return nil
}

func guardNonEmptyShortlist(e *models.Event, _ config.LifecycleConfig, _ time.Time) error {
	if len(e.Shortlist) == 0 {
		return apperrors.NewGuardRejectedError(string(e.State), string(TriggerPipelineSucceeded), "pipeline produced an empty shortlist")
	}
	return nil
}

func guardWinnerChosen(e *models.Event, _ config.LifecycleConfig, _ time.Time) error {
	if e.ConfirmedVenueID == "" {
		return apperrors.NewGuardRejectedError(string(e.State), string(TriggerConsensusReached), "no winning venue selected")
	}
	return nil
}

func guardEventTimeElapsed(e *models.Event, _ config.LifecycleConfig, now time.Time) error {
	if now.Before(e.ScheduledAt) {
		return apperrors.NewGuardRejectedError(string(e.State), string(TriggerEventTimeElapsed), "scheduled time has not elapsed")
	}
	return nil
}

func noGuard(_ *models.Event, _ config.LifecycleConfig, _ time.Time) error { return nil }

// transitionTable is the full lifecycle. Cancellation is handled generically
// in resolve: every non-terminal state accepts TriggerCancel.
var transitionTable = map[transitionKey]transition{
	{models.StateDraft, TriggerStartPlanning}:                        {models.StatePlanning, noGuard},
	{models.StatePlanning, TriggerInviteSent}:                        {models.StateInviting, guardHasInvitees},
	{models.StateInviting, TriggerAcceptanceMet}:                     {models.StateGatheringPreferences, guardAcceptanceThreshold},
	{models.StateInviting, TriggerOrganizerOverride}:                 {models.StateGatheringPreferences, noGuard},
	{models.StateGatheringPreferences, TriggerPreferencesComplete}:   {models.StateAiRecommending, guardAllPreferencesIn},
	{models.StateGatheringPreferences, TriggerPreferenceDeadline}:    {models.StateAiRecommending, guardPreferenceDeadline},
	{models.StateAiRecommending, TriggerPipelineSucceeded}:           {models.StateVoting, guardNonEmptyShortlist},
	{models.StateAiRecommending, TriggerPipelineFailed}:              {models.StateGatheringPreferences, noGuard},
	{models.StateVoting, TriggerConsensusReached}:                    {models.StateConfirmed, guardWinnerChosen},
	{models.StateVoting, TriggerOrganizerForce}:                      {models.StateConfirmed, guardWinnerChosen},
	{models.StateConfirmed, TriggerEventTimeElapsed}:                 {models.StateCompleted, guardEventTimeElapsed},
}

// Store is the persistence collaborator the state machine drives. UpdateCAS
// must apply the state change and mutation atomically, verifying the current
// state matches from, so concurrent transitions cannot race.
type Store interface {
	GetEvent(ctx context.Context, id string) (*models.Event, error)
	UpdateCAS(ctx context.Context, eventID string, from, to models.EventState, mutate func(*models.Event)) (*models.Event, error)
}

// Listener observes applied transitions. Side effects (starting a pipeline
// run, notifying participants) hang off this, never off guards.
type Listener interface {
	OnTransition(ctx context.Context, e *models.Event, trigger Trigger, from, to models.EventState)
}

type StateMachine struct {
	store     Store
	cfg       config.LifecycleConfig
	logger    logger.Logger
	listeners []Listener
	now       func() time.Time
}

func New(store Store, cfg config.LifecycleConfig, log logger.Logger) *StateMachine {
	return &StateMachine{
		store:  store,
		cfg:    cfg,
		logger: log.WithFields(map[string]interface{}{"component": "lifecycle"}),
		now:    time.Now,
	}
}

// Subscribe registers a transition listener. Not safe to call after Fire is
// in use from multiple goroutines.
func (m *StateMachine) Subscribe(l Listener) {
	m.listeners = append(m.listeners, l)
}

// WithClock overrides the time source, for deadline guards under test.
func (m *StateMachine) WithClock(now func() time.Time) *StateMachine {
	m.now = now
	return m
}

func (m *StateMachine) resolve(from models.EventState, trigger Trigger) (transition, error) {
	if trigger == TriggerCancel {
		if from.IsTerminal() || from == models.StateConfirmed {
			return transition{}, apperrors.NewInvalidTransitionError(string(from), string(trigger))
		}
		return transition{models.StateCancelled, noGuard}, nil
	}

	t, ok := transitionTable[transitionKey{from, trigger}]
	if !ok {
		return transition{}, apperrors.NewInvalidTransitionError(string(from), string(trigger))
	}
	return t, nil
}

// Fire applies one trigger to the event. The optional mutate runs inside the
// same atomic update as the state change; it is how the pipeline publishes a
// shortlist and the tally sets the winning venue. On a lost check-and-set
// race into AiRecommending the call is an idempotent no-op reported as
// ErrCodeRunAlreadyActive.
func (m *StateMachine) Fire(ctx context.Context, eventID string, trigger Trigger, mutate func(*models.Event)) (*models.Event, error) {
	event, err := m.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}

	from := event.State
	t, err := m.resolve(from, trigger)
	if err != nil {
		return nil, err
	}

	// Guards judge the prospective event: the trigger's payload (shortlist,
	// winning venue) is applied to the loaded copy before the check.
	if mutate != nil {
		mutate(event)
	}
	if err := t.guard(event, m.cfg, m.now()); err != nil {
		return nil, err
	}

	updated, err := m.store.UpdateCAS(ctx, eventID, from, t.to, func(e *models.Event) {
		if mutate != nil {
			mutate(e)
		}
		if e.StateTimestamps == nil {
			e.StateTimestamps = make(map[models.EventState]time.Time)
		}
		e.StateTimestamps[t.to] = m.now().UTC()
	})
	if err != nil {
		if apperrors.CodeOf(err) == apperrors.ErrCodeStateConflict {
			current, getErr := m.store.GetEvent(ctx, eventID)
			if getErr == nil && t.to == models.StateAiRecommending && current.State == models.StateAiRecommending {
				return nil, apperrors.NewRunAlreadyActiveError(eventID)
			}
		}
		return nil, err
	}

	metrics.EventsByTransition.WithLabelValues(string(trigger), string(t.to)).Inc()
	m.logger.Info("transition applied", map[string]interface{}{
		"eventId": eventID,
		"trigger": trigger,
		"from":    from,
		"to":      t.to,
	})

	for _, l := range m.listeners {
		l.OnTransition(ctx, updated, trigger, from, t.to)
	}

	return updated, nil
}

// CanFire reports whether the trigger would currently be admitted, without
// applying it.
func (m *StateMachine) CanFire(e *models.Event, trigger Trigger) bool {
	t, err := m.resolve(e.State, trigger)
	if err != nil {
		return false
	}
	return t.guard(e, m.cfg, m.now()) == nil
}
