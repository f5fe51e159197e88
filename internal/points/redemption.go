package points

import (
	"context"

	"github.com/pauljmillar/survey-sub001/internal/apperr"
	"github.com/pauljmillar/survey-sub001/internal/model"
	"github.com/pauljmillar/survey-sub001/internal/websocket"
)

// Redeem spends points on an offer. A pending redemption is recorded, the
// debit is issued, and the redemption is settled. When the debit is rejected
// the pending row is deleted and the issuer's error is returned as is.
//
// Two concurrent redemptions can both pass the balance pre-check; the issuer's
// guarded update is what stops the second one.
func (s *Service) Redeem(ctx context.Context, panelistID, offerID int64) (*model.RedemptionResult, error) {
	p, err := s.requirePanelist(ctx, panelistID)
	if err != nil {
		return nil, err
	}

	offer, err := s.offers.GetByID(ctx, offerID)
	if err != nil {
		return nil, apperr.Internal("failed to load offer", err)
	}
	if offer == nil {
		return nil, apperr.NotFound("offer_not_found", "offer not found")
	}
	if !offer.Active {
		return nil, apperr.State("offer_inactive", "offer is not active")
	}
	if p.PointsBalance < offer.PointsCost {
		s.metrics.Transaction(string(model.TxRedemption), "insufficient_points", -offer.PointsCost)
		return nil, apperr.InsufficientBalance(offer.PointsCost, p.PointsBalance)
	}

	redemption, err := s.redemptions.CreatePending(ctx, panelistID, offerID, offer.PointsCost)
	if err != nil {
		return nil, apperr.Internal("failed to record redemption", err)
	}

	res, err := s.issue(ctx, model.Transaction{
		PanelistID: panelistID,
		Points:     -offer.PointsCost,
		Type:       model.TxRedemption,
		Title:      "Redeemed: " + offer.Title,
		Metadata:   model.Metadata{"offer_id": offerID, "redemption_id": redemption.ID},
	})
	if err != nil {
		s.metrics.Compensation("redemption")
		s.metrics.Redemption("rejected")
		if derr := s.redemptions.DeletePending(context.WithoutCancel(ctx), redemption.ID); derr != nil {
			s.logger.Error("compensating delete failed; redemption left pending",
				"panelist_id", panelistID, "redemption_id", redemption.ID, "error", derr)
		}
		s.logger.Warn("redemption rejected",
			"panelist_id", panelistID, "offer_id", offerID, "code", apperr.CodeOf(err))
		return nil, err
	}

	if err := s.redemptions.MarkCompleted(ctx, redemption.ID); err != nil {
		// The debit is committed; reconcile settles the row later.
		s.logger.Error("settle redemption", "redemption_id", redemption.ID, "error", err)
	}
	s.metrics.Redemption(string(model.RedemptionCompleted))
	s.logger.Info("offer redeemed",
		"panelist_id", panelistID, "offer_id", offerID,
		"redemption_id", redemption.ID, "points", offer.PointsCost, "balance", res.NewBalance)
	s.notifier.Notify(panelistID, websocket.NewMessage("redemption", "completed", redemption.ID, map[string]any{
		"offer_id":     offerID,
		"points_spent": offer.PointsCost,
	}))

	return &model.RedemptionResult{
		RedemptionID:  redemption.ID,
		PointsSpent:   offer.PointsCost,
		NewBalance:    res.NewBalance,
		TotalRedeemed: res.TotalRedeemed,
	}, nil
}
