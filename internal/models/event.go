// internal/models/event.go
package models

import "time"

// EventState is the lifecycle state of a planned event.
type EventState string

const (
	StateDraft                EventState = "Draft"
	StatePlanning             EventState = "Planning"
	StateInviting             EventState = "Inviting"
	StateGatheringPreferences EventState = "GatheringPreferences"
	StateAiRecommending       EventState = "AiRecommending"
	StateVoting               EventState = "Voting"
	StateConfirmed            EventState = "Confirmed"
	StateCompleted            EventState = "Completed"
	StateCancelled            EventState = "Cancelled"
)

// IsTerminal reports whether no further transitions are possible.
func (s EventState) IsTerminal() bool {
	return s == StateCompleted || s == StateCancelled
}

// Participant is an invited member of the event.
type Participant struct {
	ID       string   `json:"id"`
	Email    string   `json:"email,omitempty"`
	Phone    string   `json:"phone,omitempty"`
	Accepted bool     `json:"accepted"`
	Lat      *float64 `json:"lat,omitempty"`
	Lng      *float64 `json:"lng,omitempty"`
}

// Vote is one participant's score for one shortlisted venue. Reject is an
// explicit sentinel distinct from the lowest positive score.
type Vote struct {
	ParticipantID string    `json:"participantId"`
	VenueID       string    `json:"venueId"`
	Value         int       `json:"value"` // 1..5, ignored when Reject
	Reject        bool      `json:"reject"`
	CastAt        time.Time `json:"castAt"`
}

// Event is the aggregate root the pipeline and vote tally operate on.
// Persistence is handled by the event store; Version is its check-and-set token.
type Event struct {
	ID                   string                   `json:"id"`
	OrganizerID          string                   `json:"organizerId"`
	Title                string                   `json:"title"`
	State                EventState               `json:"state"`
	Participants         []Participant            `json:"participants"`
	ScheduledAt          time.Time                `json:"scheduledAt"`
	PreferenceDeadline   time.Time                `json:"preferenceDeadline"`
	VotingDeadline       time.Time                `json:"votingDeadline"`
	PreferencesSubmitted int                      `json:"preferencesSubmitted"`
	Shortlist            []VenueRecommendation    `json:"shortlist,omitempty"`
	ConfirmedVenueID     string                   `json:"confirmedVenueId,omitempty"`
	Votes                []Vote                   `json:"votes,omitempty"`
	LastError            string                   `json:"lastError,omitempty"`
	StateTimestamps      map[EventState]time.Time `json:"stateTimestamps,omitempty"`
	Version              int64                    `json:"version"`
}

// AcceptedParticipants returns the participants who accepted the invite.
func (e *Event) AcceptedParticipants() []Participant {
	out := make([]Participant, 0, len(e.Participants))
	for _, p := range e.Participants {
		if p.Accepted {
			out = append(out, p)
		}
	}
	return out
}

// ParticipantLocations returns the locations of accepted participants that
// shared one.
func (e *Event) ParticipantLocations() []Location {
	out := make([]Location, 0, len(e.Participants))
	for _, p := range e.Participants {
		if p.Accepted && p.Lat != nil && p.Lng != nil {
			out = append(out, Location{Lat: *p.Lat, Lng: *p.Lng})
		}
	}
	return out
}

// Location is a WGS84 coordinate pair.
type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}
