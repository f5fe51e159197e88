package points

import (
	"context"
	"encoding/json"

	"github.com/pauljmillar/survey-sub001/internal/apperr"
	"github.com/pauljmillar/survey-sub001/internal/model"
	"github.com/pauljmillar/survey-sub001/internal/websocket"
)

// CompleteSurvey records a survey completion and awards its reward. The
// completion row is written first; its uniqueness constraint is what makes a
// second completion of the same survey a conflict. If the award then fails,
// the completion is deleted again so the panelist can retry.
func (s *Service) CompleteSurvey(ctx context.Context, panelistID, surveyID int64, responses json.RawMessage) (*model.CompletionResult, error) {
	p, err := s.requirePanelist(ctx, panelistID)
	if err != nil {
		return nil, err
	}

	survey, err := s.surveys.GetByID(ctx, surveyID)
	if err != nil {
		return nil, apperr.Internal("failed to load survey", err)
	}
	if survey == nil {
		return nil, apperr.NotFound("survey_not_found", "survey not found")
	}
	if survey.Status != model.SurveyActive {
		return nil, apperr.State("survey_inactive", "survey is not active")
	}

	ok, err := s.qualifier.Qualifies(ctx, p, survey)
	if err != nil {
		return nil, apperr.Internal("failed to evaluate qualification", err)
	}
	if !ok {
		return nil, apperr.Permission("not_qualified", "panelist does not qualify for this survey")
	}

	completion, err := s.surveys.CreateCompletion(ctx, panelistID, surveyID, survey.PointsReward, responses)
	if apperr.Is(err, apperr.KindConflict) {
		s.metrics.SurveyConflict()
		return nil, err
	}
	if err != nil {
		return nil, apperr.Internal("failed to record completion", err)
	}

	res, err := s.issue(ctx, model.Transaction{
		PanelistID: panelistID,
		Points:     survey.PointsReward,
		Type:       model.TxSurveyCompletion,
		Title:      "Survey completed: " + survey.Title,
		Metadata:   model.Metadata{"survey_id": surveyID, "completion_id": completion.ID},
		UniqueBy:   "completion_id",
	})
	if apperr.CodeOf(err) == "already_issued" {
		// A reconcile repair paid this completion first; the award stands.
		s.logger.Info("completion already awarded", "panelist_id", panelistID, "completion_id", completion.ID)
		if res, err = s.currentTotals(ctx, panelistID); err != nil {
			return nil, apperr.Internal("failed to load balance", err)
		}
	}
	if err != nil {
		s.metrics.Compensation("survey_completion")
		if derr := s.surveys.DeleteCompletion(context.WithoutCancel(ctx), completion.ID); derr != nil {
			s.logger.Error("compensating delete failed; completion has no award",
				"panelist_id", panelistID, "survey_id", surveyID,
				"completion_id", completion.ID, "error", derr)
		}
		s.logger.Error("survey award failed", "panelist_id", panelistID, "survey_id", surveyID, "error", err)
		return nil, apperr.Internal("failed to award survey points", err)
	}

	s.metrics.SurveyCompleted()
	s.logger.Info("survey completed",
		"panelist_id", panelistID, "survey_id", surveyID,
		"completion_id", completion.ID, "points", survey.PointsReward, "balance", res.NewBalance)
	s.notifier.Notify(panelistID, websocket.NewMessage("survey", "completed", surveyID, map[string]any{
		"completion_id": completion.ID,
		"points":        survey.PointsReward,
	}))

	s.creditContests(ctx, panelistID, survey.PointsReward)

	return &model.CompletionResult{
		CompletionID: completion.ID,
		PointsEarned: survey.PointsReward,
		NewBalance:   res.NewBalance,
		TotalEarned:  res.TotalEarned,
	}, nil
}

func (s *Service) currentTotals(ctx context.Context, panelistID int64) (*model.IssueResult, error) {
	p, err := s.panelists.GetByID(ctx, panelistID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, apperr.NotFound("panelist_not_found", "panelist not found")
	}
	return &model.IssueResult{
		NewBalance:    p.PointsBalance,
		TotalEarned:   p.TotalPointsEarned,
		TotalRedeemed: p.TotalPointsRedeemed,
	}, nil
}

// creditContests adds earned points to the panelist's standing in every active
// contest and refreshes those leaderboards. The ledger is already committed,
// so failures here are only logged.
func (s *Service) creditContests(ctx context.Context, panelistID, points int64) {
	ids, err := s.contests.AddPoints(ctx, panelistID, points)
	if err != nil {
		s.logger.Error("credit contest points", "panelist_id", panelistID, "points", points, "error", err)
		return
	}
	for _, id := range ids {
		if _, err := s.RecalcLeaderboard(ctx, id); err != nil {
			s.logger.Error("recalc leaderboard", "contest_id", id, "error", err)
		}
	}
}
