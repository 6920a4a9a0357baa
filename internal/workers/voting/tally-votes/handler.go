// internal/workers/voting/tally-votes/handler.go
package tallyvotes

import (
	"context"
	"sort"

	"venueflow/internal/common/logger"
	"venueflow/internal/models"
)

const (
	TaskType = "tally-votes"
)

// Handler tallies participant votes over the published shortlist. A reject is
// an explicit sentinel, never conflated with the lowest score: it contributes
// no points and counts toward the venue's rejection ratio. Consensus holds
// when every accepted participant has voted, or the voting deadline has
// passed with quorum.
type Handler struct {
	config *Config
	logger logger.Logger
}

func NewHandler(config *Config, log logger.Logger) *Handler {
	return &Handler{
		config: config,
		logger: log.WithFields(map[string]interface{}{
			"taskType": TaskType,
		}),
	}
}

func (h *Handler) Execute(_ context.Context, input *Input) (*Output, error) {
	counted := latestVotes(input.Votes, input.Shortlist)

	rankOf := make(map[string]int, len(input.Shortlist))
	for _, rec := range input.Shortlist {
		rankOf[rec.VenueID] = rec.Rank
	}

	tallies := make(map[string]*VenueTally, len(input.Shortlist))
	for _, rec := range input.Shortlist {
		tallies[rec.VenueID] = &VenueTally{VenueID: rec.VenueID, OriginalRank: rec.Rank}
	}

	voters := make(map[string]bool)
	for _, v := range counted {
		voters[v.ParticipantID] = true
		tally := tallies[v.VenueID]
		tally.VoteCount++
		if v.Reject {
			tally.Rejections++
		} else {
			tally.TotalPoints += v.Value
		}
	}

	out := &Output{ParticipantsVoted: len(voters)}
	for _, tally := range tallies {
		if tally.VoteCount > 0 &&
			float64(tally.Rejections)/float64(tally.VoteCount) > h.config.RejectionRatioThreshold {
			tally.Disqualified = true
		}
		out.Tallies = append(out.Tallies, *tally)
	}
	sort.Slice(out.Tallies, func(i, j int) bool {
		return out.Tallies[i].OriginalRank < out.Tallies[j].OriginalRank
	})

	if input.AcceptedCount > 0 {
		out.QuorumMet = float64(len(voters))/float64(input.AcceptedCount) >= h.config.QuorumRatio
	}

	allVoted := input.AcceptedCount > 0 && len(voters) >= input.AcceptedCount
	deadlineConsensus := !input.VotingDeadline.IsZero() &&
		!input.Now.Before(input.VotingDeadline) && out.QuorumMet

	winner := h.pickWinner(out.Tallies)
	if winner != "" && (allVoted || deadlineConsensus) {
		out.ConsensusReached = true
		out.WinnerVenueID = winner
	}

	h.logger.Info("votes tallied", map[string]interface{}{
		"eventId":           input.EventID,
		"participantsVoted": out.ParticipantsVoted,
		"quorumMet":         out.QuorumMet,
		"consensus":         out.ConsensusReached,
		"winner":            out.WinnerVenueID,
	})

	return out, nil
}

// latestVotes keeps one vote per participant per venue, the most recent cast
// wins. Votes naming venues outside the shortlist are dropped.
func latestVotes(votes []models.Vote, shortlist []models.VenueRecommendation) []models.Vote {
	onShortlist := make(map[string]bool, len(shortlist))
	for _, rec := range shortlist {
		onShortlist[rec.VenueID] = true
	}

	type key struct{ participant, venue string }
	latest := make(map[key]models.Vote)
	order := make([]key, 0, len(votes))
	for _, v := range votes {
		if !onShortlist[v.VenueID] {
			continue
		}
		k := key{v.ParticipantID, v.VenueID}
		existing, seen := latest[k]
		if !seen {
			order = append(order, k)
			latest[k] = v
			continue
		}
		if v.CastAt.After(existing.CastAt) {
			latest[k] = v
		}
	}

	out := make([]models.Vote, 0, len(latest))
	for _, k := range order {
		out = append(out, latest[k])
	}
	return out
}

// pickWinner takes the highest point total among qualified venues; ties go to
// the venue the deterministic pipeline ranked higher.
func (h *Handler) pickWinner(tallies []VenueTally) string {
	best := ""
	bestPoints := -1
	bestRank := 0
	for _, tally := range tallies {
		if tally.Disqualified || tally.VoteCount == 0 {
			continue
		}
		if tally.TotalPoints > bestPoints ||
			(tally.TotalPoints == bestPoints && tally.OriginalRank < bestRank) {
			best = tally.VenueID
			bestPoints = tally.TotalPoints
			bestRank = tally.OriginalRank
		}
	}
	return best
}
