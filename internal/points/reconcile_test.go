package points

import (
	"context"
	"testing"
	"time"

	"github.com/pauljmillar/survey-sub001/internal/model"
)

func TestReconcileRepairsUnawardedCompletion(t *testing.T) {
	s, db, _ := setupService(t)
	ctx := context.Background()
	p := mustPanelist(t, s, "user-1")
	sv := mustSurvey(t, s, "Crashed", 45)

	// A completion whose award never ran.
	c, err := s.surveys.CreateCompletion(ctx, p.ID, sv.ID, sv.PointsReward, nil)
	if err != nil {
		t.Fatalf("create completion: %v", err)
	}

	// Too young to tell apart from a request still running.
	report, err := s.Reconcile(ctx, true, time.Hour)
	if err != nil {
		t.Fatalf("reconcile fresh: %v", err)
	}
	if len(report.UnawardedCompletions) != 0 || report.RepairedCompletions != 0 {
		t.Errorf("fresh completion reported: %+v", report)
	}
	if b := balanceOf(t, s, p.ID); b.Balance != 0 {
		t.Errorf("balance after fresh reconcile = %d, want 0", b.Balance)
	}

	if _, err := db.Exec(`UPDATE survey_completions SET completed_at = datetime('now', '-2 hours') WHERE id = ?`, c.ID); err != nil {
		t.Fatalf("backdate completion: %v", err)
	}

	report, err = s.Reconcile(ctx, false, time.Hour)
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if len(report.UnawardedCompletions) != 1 || report.UnawardedCompletions[0].ID != c.ID {
		t.Fatalf("unawarded = %+v, want completion %d", report.UnawardedCompletions, c.ID)
	}
	if report.RepairedCompletions != 0 {
		t.Errorf("dry run repaired %d completions", report.RepairedCompletions)
	}
	if report.Clean() {
		t.Error("dry run with an unawarded completion must not be clean")
	}
	if b := balanceOf(t, s, p.ID); b.Balance != 0 {
		t.Errorf("balance after dry run = %d, want 0", b.Balance)
	}

	report, err = s.Reconcile(ctx, true, time.Hour)
	if err != nil {
		t.Fatalf("repair: %v", err)
	}
	if report.RepairedCompletions != 1 {
		t.Errorf("repaired = %d, want 1", report.RepairedCompletions)
	}
	if !report.Clean() {
		t.Errorf("report with every finding repaired = %+v, want clean", report)
	}
	if b := balanceOf(t, s, p.ID); b.Balance != 45 {
		t.Errorf("balance after repair = %d, want 45", b.Balance)
	}

	latest, err := s.ledger.Latest(ctx, p.ID)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest.Metadata["repaired"] != true {
		t.Errorf("metadata = %v, want repaired flag", latest.Metadata)
	}

	report, err = s.Reconcile(ctx, true, time.Hour)
	if err != nil {
		t.Fatalf("second repair: %v", err)
	}
	if len(report.UnawardedCompletions) != 0 || !report.Clean() {
		t.Errorf("report after repair = %+v, want clean", report)
	}
	assertLedgerConsistent(t, s, p.ID)
}

// reconcilingIssuer runs a repairing reconcile between a completion being
// recorded and its award, the window a concurrent reconcile can land in.
type reconcilingIssuer struct {
	svc        *Service
	staleAfter time.Duration
	ran        bool
	report     *ReconcileReport
	err        error
}

func (r *reconcilingIssuer) Issue(ctx context.Context, t model.Transaction) (*model.IssueResult, error) {
	if !r.ran && t.Type == model.TxSurveyCompletion {
		r.ran = true
		r.report, r.err = r.svc.Reconcile(ctx, true, r.staleAfter)
	}
	return r.svc.ledger.Issue(ctx, t)
}

func TestReconcileDuringCompletionAwardsOnce(t *testing.T) {
	tests := []struct {
		name         string
		staleAfter   time.Duration
		wantRepaired int
	}{
		// The completion is inside the window and left to its request.
		{"inside stale window", time.Hour, 0},
		// A zero threshold lists the in-flight completion; the issuer
		// still refuses to pay it twice.
		{"zero threshold", -time.Minute, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ri := &reconcilingIssuer{staleAfter: tt.staleAfter}
			s, db, _ := setupService(t, WithIssuer(ri))
			ri.svc = s
			ctx := context.Background()
			p := mustPanelist(t, s, "user-1")
			sv := mustSurvey(t, s, "Racing", 60)

			res, err := s.CompleteSurvey(ctx, p.ID, sv.ID, nil)
			if err != nil {
				t.Fatalf("complete: %v", err)
			}
			if !ri.ran || ri.err != nil {
				t.Fatalf("reconcile ran=%v err=%v", ri.ran, ri.err)
			}
			if ri.report.RepairedCompletions != tt.wantRepaired {
				t.Errorf("repaired = %d, want %d", ri.report.RepairedCompletions, tt.wantRepaired)
			}
			if res.NewBalance != 60 || res.PointsEarned != 60 {
				t.Errorf("result = %+v, want balance 60", res)
			}
			if b := balanceOf(t, s, p.ID); b.Balance != 60 || b.TotalEarned != 60 {
				t.Errorf("balance = %+v, want 60 earned once", b)
			}

			var awards int
			if err := db.QueryRow(
				`SELECT COUNT(*) FROM ledger_entries WHERE panelist_id = ? AND transaction_type = 'survey_completion'`,
				p.ID,
			).Scan(&awards); err != nil {
				t.Fatalf("count awards: %v", err)
			}
			if awards != 1 {
				t.Errorf("survey awards = %d, want 1", awards)
			}

			c, err := s.surveys.GetCompletion(ctx, p.ID, sv.ID)
			if err != nil {
				t.Fatalf("get completion: %v", err)
			}
			if c == nil || c.ID != res.CompletionID {
				t.Errorf("completion = %+v, want id %d kept", c, res.CompletionID)
			}
			assertLedgerConsistent(t, s, p.ID)
		})
	}
}

func TestReconcileReportClean(t *testing.T) {
	one := []model.SurveyCompletion{{ID: 1}}
	two := []model.Redemption{{ID: 1}, {ID: 2}}
	tests := []struct {
		name   string
		report ReconcileReport
		want   bool
	}{
		{"empty", ReconcileReport{}, true},
		{"dry run with findings", ReconcileReport{UnawardedCompletions: one}, false},
		{"repaired everything", ReconcileReport{Repair: true, UnawardedCompletions: one, RepairedCompletions: 1, StaleRedemptions: two, CompletedRedemptions: 1, FailedRedemptions: 1}, true},
		{"awarded meanwhile", ReconcileReport{Repair: true, UnawardedCompletions: one, AlreadyAwarded: 1}, true},
		{"repair failed", ReconcileReport{Repair: true, UnawardedCompletions: one}, false},
		{"redemption left pending", ReconcileReport{Repair: true, StaleRedemptions: two, CompletedRedemptions: 1}, false},
		{"drift", ReconcileReport{Repair: true, Drift: []model.BalanceDrift{{PanelistID: 1}}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.report.Clean(); got != tt.want {
				t.Errorf("Clean() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestReconcileSettlesStaleRedemptions(t *testing.T) {
	s, _, _ := setupService(t)
	ctx := context.Background()
	p := mustPanelist(t, s, "user-1")
	sv := mustSurvey(t, s, "Survey", 100)
	o := mustOffer(t, s, "Offer", 30)
	if _, err := s.CompleteSurvey(ctx, p.ID, sv.ID, nil); err != nil {
		t.Fatalf("complete: %v", err)
	}

	// One redemption died before its debit, another after it.
	orphan, err := s.redemptions.CreatePending(ctx, p.ID, o.ID, 30)
	if err != nil {
		t.Fatalf("create orphan: %v", err)
	}
	debited, err := s.redemptions.CreatePending(ctx, p.ID, o.ID, 30)
	if err != nil {
		t.Fatalf("create debited: %v", err)
	}
	if _, err := s.ledger.Issue(ctx, model.Transaction{
		PanelistID: p.ID,
		Points:     -30,
		Type:       model.TxRedemption,
		Title:      "Redeemed: Offer",
		Metadata:   model.Metadata{"offer_id": o.ID, "redemption_id": debited.ID},
	}); err != nil {
		t.Fatalf("issue debit: %v", err)
	}

	report, err := s.Reconcile(ctx, true, -time.Minute)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if len(report.StaleRedemptions) != 2 {
		t.Fatalf("stale = %d, want 2", len(report.StaleRedemptions))
	}
	if report.CompletedRedemptions != 1 || report.FailedRedemptions != 1 {
		t.Errorf("completed/failed = %d/%d, want 1/1", report.CompletedRedemptions, report.FailedRedemptions)
	}
	if !report.Clean() {
		t.Errorf("report with every redemption settled = %+v, want clean", report)
	}

	for id, want := range map[int64]model.RedemptionStatus{
		orphan.ID:  model.RedemptionFailed,
		debited.ID: model.RedemptionCompleted,
	} {
		r, err := s.redemptions.GetByID(ctx, id)
		if err != nil {
			t.Fatalf("get redemption: %v", err)
		}
		if r.Status != want {
			t.Errorf("redemption %d status = %s, want %s", id, r.Status, want)
		}
	}
}

func TestReconcileReportsDrift(t *testing.T) {
	s, db, _ := setupService(t)
	ctx := context.Background()
	p := mustPanelist(t, s, "user-1")
	sv := mustSurvey(t, s, "Survey", 20)
	if _, err := s.CompleteSurvey(ctx, p.ID, sv.ID, nil); err != nil {
		t.Fatalf("complete: %v", err)
	}

	if _, err := db.Exec(`UPDATE panelists SET total_points_earned = 999 WHERE id = ?`, p.ID); err != nil {
		t.Fatalf("corrupt totals: %v", err)
	}

	report, err := s.Reconcile(ctx, true, time.Hour)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if len(report.Drift) != 1 || report.Drift[0].LedgerEarned != 20 {
		t.Errorf("drift = %+v, want one row with ledger_earned 20", report.Drift)
	}
	if report.Clean() {
		t.Error("report with drift must not be clean")
	}
}
