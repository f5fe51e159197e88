package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/pauljmillar/survey-sub001/internal/apperr"
	"github.com/pauljmillar/survey-sub001/internal/model"
)

func TestSurveyCRUD(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	ss := NewSurveyStore(db)

	sv, err := ss.Create(ctx, "Breakfast habits", "Ten questions", 100, model.SurveyDraft)
	if err != nil {
		t.Fatalf("create survey: %v", err)
	}
	if sv.PointsReward != 100 {
		t.Errorf("points_reward = %d, want 100", sv.PointsReward)
	}
	if sv.Status != model.SurveyDraft {
		t.Errorf("status = %q, want draft", sv.Status)
	}

	sv, err = ss.SetStatus(ctx, sv.ID, model.SurveyActive)
	if err != nil {
		t.Fatalf("set status: %v", err)
	}
	if sv.Status != model.SurveyActive {
		t.Errorf("status = %q, want active", sv.Status)
	}

	sv, err = ss.Update(ctx, sv.ID, "Lunch habits", "Twelve questions", 120)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if sv.Title != "Lunch habits" || sv.PointsReward != 120 {
		t.Errorf("updated = %q/%d, want %q/120", sv.Title, sv.PointsReward, "Lunch habits")
	}

	active, err := ss.List(ctx, model.SurveyActive)
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(active) != 1 {
		t.Errorf("active surveys = %d, want 1", len(active))
	}

	if err := ss.Delete(ctx, sv.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	got, err := ss.GetByID(ctx, sv.ID)
	if err != nil {
		t.Fatalf("get deleted: %v", err)
	}
	if got != nil {
		t.Error("expected nil after delete")
	}
}

func TestSurveyCompletionIsUnique(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	ss := NewSurveyStore(db)
	p := createPanelist(t, db, "user-1")
	sv, err := ss.Create(ctx, "Survey", "", 50, model.SurveyActive)
	if err != nil {
		t.Fatalf("create survey: %v", err)
	}

	c, err := ss.CreateCompletion(ctx, p.ID, sv.ID, 50, json.RawMessage(`[{"q":1,"a":"yes"}]`))
	if err != nil {
		t.Fatalf("create completion: %v", err)
	}
	if string(c.Responses) != `[{"q":1,"a":"yes"}]` {
		t.Errorf("responses = %s", c.Responses)
	}

	_, err = ss.CreateCompletion(ctx, p.ID, sv.ID, 50, nil)
	if got := apperr.CodeOf(err); got != "already_completed" {
		t.Errorf("second completion code = %q, want already_completed", got)
	}

	if err := ss.Delete(ctx, sv.ID); apperr.CodeOf(err) != "survey_in_use" {
		t.Errorf("delete completed survey err = %v, want survey_in_use", err)
	}

	if err := ss.DeleteCompletion(ctx, c.ID); err != nil {
		t.Fatalf("delete completion: %v", err)
	}
	if _, err := ss.CreateCompletion(ctx, p.ID, sv.ID, 50, nil); err != nil {
		t.Errorf("completion after compensating delete: %v", err)
	}
}

func TestListUnawardedCompletions(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	ss := NewSurveyStore(db)
	ls := NewLedgerStore(db)
	p := createPanelist(t, db, "user-1")
	a, _ := ss.Create(ctx, "A", "", 10, model.SurveyActive)
	b, _ := ss.Create(ctx, "B", "", 20, model.SurveyActive)

	ca, err := ss.CreateCompletion(ctx, p.ID, a.ID, 10, nil)
	if err != nil {
		t.Fatalf("complete a: %v", err)
	}
	cb, err := ss.CreateCompletion(ctx, p.ID, b.ID, 20, nil)
	if err != nil {
		t.Fatalf("complete b: %v", err)
	}

	if _, err := ls.Issue(ctx, model.Transaction{
		PanelistID: p.ID,
		Points:     10,
		Type:       model.TxSurveyCompletion,
		Title:      "Survey completed: A",
		Metadata:   model.Metadata{"survey_id": a.ID, "completion_id": ca.ID},
	}); err != nil {
		t.Fatalf("award a: %v", err)
	}

	missing, err := ss.ListUnawarded(ctx, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("list unawarded: %v", err)
	}
	if len(missing) != 1 || missing[0].ID != cb.ID {
		t.Errorf("unawarded = %+v, want only completion %d", missing, cb.ID)
	}

	recent, err := ss.ListUnawarded(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("list unawarded before cutoff: %v", err)
	}
	if len(recent) != 0 {
		t.Errorf("completions newer than the cutoff listed: %+v", recent)
	}

	list, err := ss.ListCompletionsByPanelist(ctx, p.ID)
	if err != nil {
		t.Fatalf("list by panelist: %v", err)
	}
	if len(list) != 2 {
		t.Errorf("completions = %d, want 2", len(list))
	}
}
