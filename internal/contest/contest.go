// Package contest holds the pure rules for contests: which status moves are
// legal and how participants are ranked.
package contest

import (
	"cmp"
	"slices"

	"github.com/pauljmillar/survey-sub001/internal/model"
)

var transitions = map[model.ContestStatus]model.ContestStatus{
	model.ContestDraft:  model.ContestActive,
	model.ContestActive: model.ContestEnded,
}

// CanTransition reports whether a contest may move from one status to another.
// Contests only move forward: draft, active, ended.
func CanTransition(from, to model.ContestStatus) bool {
	next, ok := transitions[from]
	return ok && next == to
}

// Rank orders participants by points earned, highest first. Equal scores go
// to whoever joined earlier, and equal join times fall back to participant id
// so the order never depends on the input order. Ranks are assigned 1..N with
// no shared positions.
func Rank(participants []model.ContestParticipant) []model.ContestParticipant {
	ranked := make([]model.ContestParticipant, len(participants))
	copy(ranked, participants)

	slices.SortStableFunc(ranked, func(a, b model.ContestParticipant) int {
		return cmp.Or(
			cmp.Compare(b.PointsEarned, a.PointsEarned),
			a.JoinedAt.Compare(b.JoinedAt),
			cmp.Compare(a.ID, b.ID),
		)
	})

	for i := range ranked {
		r := i + 1
		ranked[i].Rank = &r
	}
	return ranked
}

// SortByStoredRank orders participants by their saved rank. Participants that
// were never ranked go last in their existing order.
func SortByStoredRank(participants []model.ContestParticipant) {
	slices.SortStableFunc(participants, func(a, b model.ContestParticipant) int {
		switch {
		case a.Rank == nil && b.Rank == nil:
			return 0
		case a.Rank == nil:
			return 1
		case b.Rank == nil:
			return -1
		}
		return cmp.Compare(*a.Rank, *b.Rank)
	})
}

// Leaderboard converts ranked participants into leaderboard rows, keeping at
// most limit rows when limit is positive.
func Leaderboard(ranked []model.ContestParticipant, limit int) []model.LeaderboardEntry {
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	entries := make([]model.LeaderboardEntry, 0, len(ranked))
	for _, p := range ranked {
		entries = append(entries, model.LeaderboardEntry{
			Rank:         p.Rank,
			PointsEarned: p.PointsEarned,
			JoinedAt:     p.JoinedAt,
			PanelistID:   p.PanelistID,
			DisplayName:  p.DisplayName,
			PrizeAwarded: p.PrizeAwarded,
		})
	}
	return entries
}
