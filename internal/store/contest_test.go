package store

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/pauljmillar/survey-sub001/internal/apperr"
	"github.com/pauljmillar/survey-sub001/internal/contest"
	"github.com/pauljmillar/survey-sub001/internal/model"
)

func activeContest(t *testing.T, cs *ContestStore, prize int64) *model.Contest {
	t.Helper()
	ctx := context.Background()
	c, err := cs.Create(ctx, "Spring sprint", "", prize, nil, nil)
	if err != nil {
		t.Fatalf("create contest: %v", err)
	}
	c, err = cs.Transition(ctx, c.ID, model.ContestActive)
	if err != nil {
		t.Fatalf("activate contest: %v", err)
	}
	return c
}

func TestContestTransitions(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	cs := NewContestStore(db)

	ends := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	c, err := cs.Create(ctx, "Summer", "Most surveys wins", 500, nil, &ends)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if c.Status != model.ContestDraft {
		t.Errorf("status = %q, want draft", c.Status)
	}
	if c.EndsAt == nil || !c.EndsAt.Equal(ends) {
		t.Errorf("ends_at = %v, want %v", c.EndsAt, ends)
	}

	if _, err := cs.Transition(ctx, c.ID, model.ContestEnded); !apperr.Is(err, apperr.KindState) {
		t.Errorf("draft -> ended err = %v, want state error", err)
	}
	if c, err = cs.Transition(ctx, c.ID, model.ContestActive); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if c, err = cs.Transition(ctx, c.ID, model.ContestEnded); err != nil {
		t.Fatalf("end: %v", err)
	}
	if c.Status != model.ContestEnded {
		t.Errorf("status = %q, want ended", c.Status)
	}
	if _, err := cs.Transition(ctx, 404, model.ContestActive); !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("missing contest err = %v, want not found", err)
	}

	ended, err := cs.List(ctx, model.ContestEnded)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(ended) != 1 {
		t.Errorf("ended contests = %d, want 1", len(ended))
	}
}

func TestContestJoin(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	cs := NewContestStore(db)
	p := createPanelist(t, db, "user-1")

	draft, err := cs.Create(ctx, "Draft", "", 0, nil, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := cs.Join(ctx, draft.ID, p.ID); apperr.CodeOf(err) != "contest_not_active" {
		t.Errorf("join draft err = %v, want contest_not_active", err)
	}

	c := activeContest(t, cs, 100)
	part, err := cs.Join(ctx, c.ID, p.ID)
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if part.Rank != nil || part.PointsEarned != 0 || part.PrizeAwarded {
		t.Errorf("new participant = %+v, want unranked with zero points", part)
	}
	if part.DisplayName != "user-1" {
		t.Errorf("display_name = %q, want user-1", part.DisplayName)
	}
	if _, err := cs.Join(ctx, c.ID, p.ID); apperr.CodeOf(err) != "already_joined" {
		t.Errorf("second join err = %v, want already_joined", err)
	}
}

func TestContestAddPointsAndRanks(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	cs := NewContestStore(db)
	clock := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	cs.now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}

	c := activeContest(t, cs, 100)
	p1 := createPanelist(t, db, "p1")
	p2 := createPanelist(t, db, "p2")
	p3 := createPanelist(t, db, "p3")
	for _, p := range []*model.Panelist{p1, p2, p3} {
		if _, err := cs.Join(ctx, c.ID, p.ID); err != nil {
			t.Fatalf("join %d: %v", p.ID, err)
		}
	}

	for _, add := range []struct{ id, pts int64 }{{p1.ID, 30}, {p2.ID, 10}, {p3.ID, 30}} {
		ids, err := cs.AddPoints(ctx, add.id, add.pts)
		if err != nil {
			t.Fatalf("add points: %v", err)
		}
		if len(ids) != 1 || ids[0] != c.ID {
			t.Errorf("touched contests = %v, want [%d]", ids, c.ID)
		}
	}

	participants, err := cs.ListParticipants(ctx, c.ID)
	if err != nil {
		t.Fatalf("list participants: %v", err)
	}
	if err := cs.SaveRanks(ctx, contest.Rank(participants)); err != nil {
		t.Fatalf("save ranks: %v", err)
	}

	want := map[int64]int{p1.ID: 1, p3.ID: 2, p2.ID: 3}
	for id, rank := range want {
		got, err := cs.GetParticipant(ctx, c.ID, id)
		if err != nil {
			t.Fatalf("get participant: %v", err)
		}
		if got.Rank == nil || *got.Rank != rank {
			t.Errorf("panelist %d rank = %v, want %d", id, got.Rank, rank)
		}
	}

	// Ended contests no longer accumulate points.
	if _, err := cs.Transition(ctx, c.ID, model.ContestEnded); err != nil {
		t.Fatalf("end: %v", err)
	}
	ids, err := cs.AddPoints(ctx, p1.ID, 5)
	if err != nil {
		t.Fatalf("add points after end: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("touched contests after end = %v, want none", ids)
	}
}

func TestAwardPrize(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	cs := NewContestStore(db)
	c := activeContest(t, cs, 250)
	winner := createPanelist(t, db, "winner")
	outsider := createPanelist(t, db, "outsider")
	if _, err := cs.Join(ctx, c.ID, winner.ID); err != nil {
		t.Fatalf("join: %v", err)
	}

	if _, err := cs.AwardPrize(ctx, c.ID, winner.ID, nil); apperr.CodeOf(err) != "contest_not_ended" {
		t.Fatalf("award before end err = %v, want contest_not_ended", err)
	}
	if _, err := cs.Transition(ctx, c.ID, model.ContestEnded); err != nil {
		t.Fatalf("end: %v", err)
	}

	if _, err := cs.AwardPrize(ctx, c.ID, outsider.ID, nil); apperr.CodeOf(err) != "participant_not_found" {
		t.Errorf("award outsider err = %v, want participant_not_found", err)
	}

	admin := "admin|1"
	res, err := cs.AwardPrize(ctx, c.ID, winner.ID, &admin)
	if err != nil {
		t.Fatalf("award: %v", err)
	}
	if res.NewBalance != 250 {
		t.Errorf("balance = %d, want 250", res.NewBalance)
	}

	if _, err := cs.AwardPrize(ctx, c.ID, winner.ID, &admin); apperr.CodeOf(err) != "already_awarded" {
		t.Errorf("second award err = %v, want already_awarded", err)
	}

	entry, err := NewLedgerStore(db).GetByID(ctx, res.EntryID)
	if err != nil {
		t.Fatalf("get entry: %v", err)
	}
	if entry.TransactionType != model.TxContestPrize {
		t.Errorf("type = %q, want contest_prize", entry.TransactionType)
	}
	if entry.AwardedBy == nil || *entry.AwardedBy != admin {
		t.Errorf("awarded_by = %v, want %q", entry.AwardedBy, admin)
	}
	if got := entry.Metadata["contest_id"]; got != json.Number(strconv.FormatInt(c.ID, 10)) {
		t.Errorf("metadata contest_id = %v, want %d", got, c.ID)
	}
}

func TestAwardPrizeWithoutPrizePoints(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	cs := NewContestStore(db)
	c := activeContest(t, cs, 0)
	p := createPanelist(t, db, "user-1")
	if _, err := cs.Join(ctx, c.ID, p.ID); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := cs.Transition(ctx, c.ID, model.ContestEnded); err != nil {
		t.Fatalf("end: %v", err)
	}

	if _, err := cs.AwardPrize(ctx, c.ID, p.ID, nil); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("err = %v, want validation", err)
	}
	part, err := cs.GetParticipant(ctx, c.ID, p.ID)
	if err != nil {
		t.Fatalf("get participant: %v", err)
	}
	if part.PrizeAwarded {
		t.Error("prize flag must stay clear when nothing was paid")
	}
}

func TestConcurrentAwardPrizePaysOnce(t *testing.T) {
	db := setupFileDB(t)
	ctx := context.Background()
	cs := NewContestStore(db)
	c := activeContest(t, cs, 500)
	p := createPanelist(t, db, "winner")
	if _, err := cs.Join(ctx, c.ID, p.ID); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := cs.Transition(ctx, c.ID, model.ContestEnded); err != nil {
		t.Fatalf("end: %v", err)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	var paid, conflicts int
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := cs.AwardPrize(ctx, c.ID, p.ID, nil)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				paid++
			case apperr.CodeOf(err) == "already_awarded":
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if paid != 1 || conflicts != 1 {
		t.Errorf("paid/conflicts = %d/%d, want 1/1", paid, conflicts)
	}
	bal, err := NewPanelistStore(db).GetBalance(ctx, p.ID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if bal.Balance != 500 {
		t.Errorf("balance = %d, want 500", bal.Balance)
	}
}
