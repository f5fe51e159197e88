package points

import (
	"context"
	"fmt"
	"time"

	"github.com/pauljmillar/survey-sub001/internal/apperr"
	"github.com/pauljmillar/survey-sub001/internal/model"
)

// ReconcileReport lists state left behind by flows that died between steps.
type ReconcileReport struct {
	Repair               bool                     `json:"repair"`
	UnawardedCompletions []model.SurveyCompletion `json:"unawarded_completions"`
	RepairedCompletions  int                      `json:"repaired_completions"`
	AlreadyAwarded       int                      `json:"already_awarded"`
	StaleRedemptions     []model.Redemption       `json:"stale_redemptions"`
	CompletedRedemptions int                      `json:"completed_redemptions"`
	FailedRedemptions    int                      `json:"failed_redemptions"`
	Drift                []model.BalanceDrift     `json:"drift"`
}

// Clean reports whether nothing is left needing attention. A repair run is
// clean when every finding was settled; drift always needs an operator.
func (r *ReconcileReport) Clean() bool {
	if len(r.Drift) > 0 {
		return false
	}
	if !r.Repair {
		return len(r.UnawardedCompletions) == 0 && len(r.StaleRedemptions) == 0
	}
	return r.RepairedCompletions+r.AlreadyAwarded == len(r.UnawardedCompletions) &&
		r.CompletedRedemptions+r.FailedRedemptions == len(r.StaleRedemptions)
}

// Reconcile finds survey completions without an award and redemptions stuck in
// pending, both older than staleAfter, and balance projections that disagree
// with the ledger. Younger rows may belong to a request still in flight. With
// repair set, missing awards are issued and stuck redemptions are settled
// according to whether their debit exists. Drift is only reported.
func (s *Service) Reconcile(ctx context.Context, repair bool, staleAfter time.Duration) (*ReconcileReport, error) {
	report := &ReconcileReport{Repair: repair}
	cutoff := time.Now().Add(-staleAfter)

	unawarded, err := s.surveys.ListUnawarded(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list unawarded completions: %w", err)
	}
	report.UnawardedCompletions = unawarded
	if repair {
		for _, c := range unawarded {
			err := s.repairCompletion(ctx, c)
			if apperr.CodeOf(err) == "already_issued" {
				s.logger.Info("completion awarded meanwhile", "completion_id", c.ID, "panelist_id", c.PanelistID)
				report.AlreadyAwarded++
				continue
			}
			if err != nil {
				s.logger.Error("repair completion", "completion_id", c.ID, "panelist_id", c.PanelistID, "error", err)
				continue
			}
			report.RepairedCompletions++
		}
	}

	stale, err := s.redemptions.ListPending(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list stale redemptions: %w", err)
	}
	report.StaleRedemptions = stale
	if repair {
		for _, r := range stale {
			completed, err := s.settleStale(ctx, r)
			if err != nil {
				s.logger.Error("settle stale redemption", "redemption_id", r.ID, "error", err)
				continue
			}
			if completed {
				report.CompletedRedemptions++
			} else {
				report.FailedRedemptions++
			}
		}
	}

	drift, err := s.ledger.Drift(ctx)
	if err != nil {
		return nil, fmt.Errorf("check drift: %w", err)
	}
	report.Drift = drift
	s.metrics.Drift(len(drift))
	for _, d := range drift {
		s.logger.Warn("balance drift",
			"panelist_id", d.PanelistID,
			"balance", d.PointsBalance, "ledger_balance", d.LastBalanceAfter,
			"earned", d.TotalPointsEarned, "ledger_earned", d.LedgerEarned,
			"redeemed", d.TotalPointsRedeemed, "ledger_redeemed", d.LedgerRedeemed)
	}

	s.logger.Info("reconcile finished",
		"repair", repair,
		"unawarded", len(report.UnawardedCompletions), "repaired", report.RepairedCompletions,
		"already_awarded", report.AlreadyAwarded,
		"stale_redemptions", len(report.StaleRedemptions), "drift", len(report.Drift))
	return report, nil
}

func (s *Service) repairCompletion(ctx context.Context, c model.SurveyCompletion) error {
	title := fmt.Sprintf("Survey completed: #%d", c.SurveyID)
	survey, err := s.surveys.GetByID(ctx, c.SurveyID)
	if err != nil {
		return err
	}
	if survey != nil {
		title = "Survey completed: " + survey.Title
	}

	_, err = s.issue(ctx, model.Transaction{
		PanelistID: c.PanelistID,
		Points:     c.PointsAwarded,
		Type:       model.TxSurveyCompletion,
		Title:      title,
		Metadata:   model.Metadata{"survey_id": c.SurveyID, "completion_id": c.ID, "repaired": true},
		UniqueBy:   "completion_id",
	})
	return err
}

// settleStale completes a pending redemption whose debit made it into the
// ledger and fails one whose debit never happened.
func (s *Service) settleStale(ctx context.Context, r model.Redemption) (bool, error) {
	entry, err := s.ledger.FindByMetadata(ctx, r.PanelistID, model.TxRedemption, "redemption_id", r.ID)
	if err != nil {
		return false, err
	}
	if entry != nil {
		if err := s.redemptions.MarkCompleted(ctx, r.ID); err != nil {
			return false, err
		}
		s.metrics.Redemption(string(model.RedemptionCompleted))
		return true, nil
	}
	if err := s.redemptions.MarkFailed(ctx, r.ID); err != nil {
		return false, err
	}
	s.metrics.Redemption(string(model.RedemptionFailed))
	return false, nil
}
