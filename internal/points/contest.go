package points

import (
	"context"
	"time"

	"github.com/pauljmillar/survey-sub001/internal/apperr"
	"github.com/pauljmillar/survey-sub001/internal/contest"
	"github.com/pauljmillar/survey-sub001/internal/model"
	"github.com/pauljmillar/survey-sub001/internal/websocket"
)

func (s *Service) requireContest(ctx context.Context, id int64) (*model.Contest, error) {
	c, err := s.contests.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.Internal("failed to load contest", err)
	}
	if c == nil {
		return nil, apperr.NotFound("contest_not_found", "contest not found")
	}
	return c, nil
}

// JoinContest enrols a panelist in an active contest and re-ranks it.
func (s *Service) JoinContest(ctx context.Context, contestID, panelistID int64) (*model.ContestParticipant, error) {
	if _, err := s.requirePanelist(ctx, panelistID); err != nil {
		return nil, err
	}
	if _, err := s.requireContest(ctx, contestID); err != nil {
		return nil, err
	}

	if _, err := s.contests.Join(ctx, contestID, panelistID); err != nil {
		return nil, err
	}
	s.logger.Info("contest joined", "contest_id", contestID, "panelist_id", panelistID)

	if _, err := s.RecalcLeaderboard(ctx, contestID); err != nil {
		s.logger.Error("recalc leaderboard", "contest_id", contestID, "error", err)
	}
	participant, err := s.contests.GetParticipant(ctx, contestID, panelistID)
	if err != nil {
		return nil, apperr.Internal("failed to load participant", err)
	}
	return participant, nil
}

// TransitionContest moves a contest forward. Ending a contest freezes its
// final ranking.
func (s *Service) TransitionContest(ctx context.Context, contestID int64, to model.ContestStatus) (*model.Contest, error) {
	c, err := s.contests.Transition(ctx, contestID, to)
	if err != nil {
		return nil, err
	}
	s.logger.Info("contest status changed", "contest_id", contestID, "status", c.Status)

	if c.Status == model.ContestEnded {
		if _, err := s.RecalcLeaderboard(ctx, contestID); err != nil {
			s.logger.Error("final leaderboard", "contest_id", contestID, "error", err)
		}
	}
	return c, nil
}

// AwardPrize pays the contest's prize to one participant. The flag check, the
// flag set and the ledger entry commit together.
func (s *Service) AwardPrize(ctx context.Context, contestID, panelistID int64, actor string) (*model.IssueResult, error) {
	var awardedBy *string
	if actor != "" {
		awardedBy = &actor
	}

	c, err := s.requireContest(ctx, contestID)
	if err != nil {
		return nil, err
	}
	prize := c.PrizePoints

	res, err := s.contests.AwardPrize(ctx, contestID, panelistID, awardedBy)
	if err != nil {
		s.metrics.Transaction(string(model.TxContestPrize), apperr.CodeOf(err), 0)
		return nil, err
	}

	s.metrics.Transaction(string(model.TxContestPrize), "ok", prize)
	s.metrics.PrizeAwarded()
	s.logger.Info("contest prize awarded",
		"contest_id", contestID, "panelist_id", panelistID,
		"entry_id", res.EntryID, "points", prize, "awarded_by", actor)

	s.notifyEntry(model.Transaction{PanelistID: panelistID, Points: prize, Type: model.TxContestPrize}, res)
	s.notifier.Broadcast(websocket.NewMessage("contest_prize", "awarded", contestID, map[string]any{
		"panelist_id": panelistID,
		"points":      prize,
	}))

	if _, err := s.RecalcLeaderboard(ctx, contestID); err != nil {
		s.logger.Error("recalc leaderboard", "contest_id", contestID, "error", err)
	}
	return res, nil
}

// RecalcLeaderboard ranks every participant of a contest from their stored
// point totals, persists the ranks and announces the new standings.
func (s *Service) RecalcLeaderboard(ctx context.Context, contestID int64) ([]model.LeaderboardEntry, error) {
	ranked, err := s.recalc(ctx, contestID)
	if err != nil {
		return nil, err
	}
	s.notifier.Broadcast(websocket.NewMessage("contest_leaderboard", "updated", contestID, map[string]any{
		"participants": len(ranked),
	}))
	return contest.Leaderboard(ranked, 0), nil
}

func (s *Service) recalc(ctx context.Context, contestID int64) ([]model.ContestParticipant, error) {
	start := time.Now()

	participants, err := s.contests.ListParticipants(ctx, contestID)
	if err != nil {
		return nil, apperr.Internal("failed to load participants", err)
	}
	ranked := contest.Rank(participants)
	if err := s.contests.SaveRanks(ctx, ranked); err != nil {
		return nil, apperr.Internal("failed to save ranks", err)
	}

	s.metrics.LeaderboardRecalc(time.Since(start))
	s.logger.Debug("leaderboard recalculated", "contest_id", contestID, "participants", len(ranked))
	return ranked, nil
}

// Leaderboard returns up to limit ranked rows. Active contests are re-ranked
// on read; other contests return their stored ranks, unranked rows last.
func (s *Service) Leaderboard(ctx context.Context, contestID int64, limit int) ([]model.LeaderboardEntry, error) {
	c, err := s.requireContest(ctx, contestID)
	if err != nil {
		return nil, err
	}

	if c.Status == model.ContestActive {
		ranked, err := s.recalc(ctx, contestID)
		if err != nil {
			return nil, err
		}
		return contest.Leaderboard(ranked, limit), nil
	}

	participants, err := s.contests.ListParticipants(ctx, contestID)
	if err != nil {
		return nil, apperr.Internal("failed to load participants", err)
	}
	contest.SortByStoredRank(participants)
	return contest.Leaderboard(participants, limit), nil
}
