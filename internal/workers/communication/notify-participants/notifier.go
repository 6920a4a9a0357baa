// internal/workers/communication/notify-participants/notifier.go
package notifyparticipants

import (
	"context"

	"venueflow/internal/common/logger"
	"venueflow/internal/lifecycle"
	"venueflow/internal/models"
)

// Notifier subscribes to lifecycle transitions and fans the ones participants
// care about out through the notification handler. Delivery is best effort;
// a failed notification never blocks the transition that caused it.
type Notifier struct {
	handler *Handler
	logger  logger.Logger
}

func NewNotifier(handler *Handler, log logger.Logger) *Notifier {
	return &Notifier{
		handler: handler,
		logger:  log.WithFields(map[string]interface{}{"component": "notifier"}),
	}
}

// OnTransition implements lifecycle.Listener.
func (n *Notifier) OnTransition(ctx context.Context, e *models.Event, _ lifecycle.Trigger, from, to models.EventState) {
	input := n.inputFor(e, from, to)
	if input == nil {
		return
	}

	if n.handler.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.handler.config.Timeout)
		defer cancel()
	}

	if _, err := n.handler.Execute(ctx, input); err != nil {
		n.logger.Error("notification failed", map[string]interface{}{
			"eventId": e.ID,
			"kind":    input.Kind,
			"error":   err.Error(),
		})
	}
}

func (n *Notifier) inputFor(e *models.Event, from, to models.EventState) *Input {
	input := &Input{
		EventID:    e.ID,
		EventTitle: e.Title,
		Recipients: e.AcceptedParticipants(),
	}

	switch {
	case to == models.StateVoting:
		input.Kind = KindVotingOpened
	case to == models.StateConfirmed:
		input.Kind = KindVenueConfirmed
		input.VenueName = confirmedVenueName(e)
	case from == models.StateAiRecommending && to == models.StateGatheringPreferences:
		input.Kind = KindRunFailed
	case to == models.StateCancelled:
		input.Kind = KindEventCancelled
	default:
		return nil
	}
	return input
}

func confirmedVenueName(e *models.Event) string {
	for _, rec := range e.Shortlist {
		if rec.VenueID == e.ConfirmedVenueID {
			return rec.Name
		}
	}
	return e.ConfirmedVenueID
}
