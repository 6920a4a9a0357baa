// internal/workers/voting/tally-votes/models.go
package tallyvotes

import (
	"time"

	"venueflow/internal/models"
)

type Input struct {
	EventID        string                       `json:"eventId"`
	Shortlist      []models.VenueRecommendation `json:"shortlist"`
	Votes          []models.Vote                `json:"votes"`
	AcceptedCount  int                          `json:"acceptedCount"`
	VotingDeadline time.Time                    `json:"votingDeadline"`
	Now            time.Time                    `json:"now"`
}

// VenueTally is the per-venue aggregation of all counted votes.
type VenueTally struct {
	VenueID      string `json:"venueId"`
	TotalPoints  int    `json:"totalPoints"`
	VoteCount    int    `json:"voteCount"`
	Rejections   int    `json:"rejections"`
	Disqualified bool   `json:"disqualified"`
	OriginalRank int    `json:"originalRank"`
}

type Output struct {
	ConsensusReached  bool         `json:"consensusReached"`
	WinnerVenueID     string       `json:"winnerVenueId,omitempty"`
	Tallies           []VenueTally `json:"tallies"`
	ParticipantsVoted int          `json:"participantsVoted"`
	QuorumMet         bool         `json:"quorumMet"`
}
