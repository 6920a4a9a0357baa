// internal/workers/communication/notify-participants/models.go
package notifyparticipants

import "venueflow/internal/models"

// Notification kinds, one per lifecycle moment participants care about.
const (
	KindVotingOpened   = "voting-opened"
	KindVenueConfirmed = "venue-confirmed"
	KindRunFailed      = "run-failed"
	KindEventCancelled = "event-cancelled"
)

const (
	StatusSent     = "sent"
	StatusPartial  = "partial"
	StatusFailed   = "failed"
	StatusDisabled = "disabled"
)

type Input struct {
	EventID    string               `json:"eventId"`
	EventTitle string               `json:"eventTitle"`
	Kind       string               `json:"kind"`
	Recipients []models.Participant `json:"recipients"`
	VenueName  string               `json:"venueName,omitempty"`
	Message    string               `json:"message,omitempty"`
}

type Output struct {
	NotificationID string `json:"notificationId"`
	Status         string `json:"status"`
	EmailsSent     int    `json:"emailsSent"`
	SMSSent        int    `json:"smsSent"`
	Failures       int    `json:"failures"`
	SentAt         string `json:"sentAt"`
}
