package store

import (
	"context"
	"testing"
	"time"

	"github.com/pauljmillar/survey-sub001/internal/apperr"
	"github.com/pauljmillar/survey-sub001/internal/model"
)

func TestOfferCRUD(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	offers := NewOfferStore(db)

	o, err := offers.Create(ctx, "Bean Co", "Free latte", "Any size", 80, true)
	if err != nil {
		t.Fatalf("create offer: %v", err)
	}
	if o.MerchantName != "Bean Co" || o.PointsCost != 80 || !o.Active {
		t.Errorf("offer = %+v", o)
	}

	if _, err := offers.Create(ctx, "Book Barn", "10% off", "", 200, false); err != nil {
		t.Fatalf("create inactive offer: %v", err)
	}

	active, err := offers.ListActive(ctx)
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(active) != 1 {
		t.Errorf("active = %d, want 1", len(active))
	}
	all, err := offers.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("all = %d, want 2", len(all))
	}

	o, err = offers.Update(ctx, o.ID, "Bean Co", "Free mocha", "", 90, false)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if o.Title != "Free mocha" || o.Active {
		t.Errorf("updated = %q active=%v", o.Title, o.Active)
	}

	if err := offers.Delete(ctx, o.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	got, err := offers.GetByID(ctx, o.ID)
	if err != nil {
		t.Fatalf("get deleted: %v", err)
	}
	if got != nil {
		t.Error("expected nil after delete")
	}
}

func TestRedemptionLifecycle(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	offers := NewOfferStore(db)
	rs := NewRedemptionStore(db)
	p := createPanelist(t, db, "user-1")
	o, err := offers.Create(ctx, "Bean Co", "Free latte", "", 80, true)
	if err != nil {
		t.Fatalf("create offer: %v", err)
	}

	r, err := rs.CreatePending(ctx, p.ID, o.ID, 80)
	if err != nil {
		t.Fatalf("create pending: %v", err)
	}
	if r.Status != model.RedemptionPending || r.SettledAt != nil {
		t.Errorf("new redemption = %s settled=%v, want pending unsettled", r.Status, r.SettledAt)
	}

	if err := offers.Delete(ctx, o.ID); apperr.CodeOf(err) != "offer_in_use" {
		t.Errorf("delete redeemed offer err = %v, want offer_in_use", err)
	}

	if err := rs.MarkCompleted(ctx, r.ID); err != nil {
		t.Fatalf("mark completed: %v", err)
	}
	r, err = rs.GetByID(ctx, r.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if r.Status != model.RedemptionCompleted || r.SettledAt == nil {
		t.Errorf("settled redemption = %s settled=%v", r.Status, r.SettledAt)
	}

	// Terminal redemptions stay put.
	if err := rs.MarkFailed(ctx, r.ID); !apperr.Is(err, apperr.KindState) {
		t.Errorf("mark failed after completed err = %v, want state error", err)
	}
	if _, err := db.Exec(`UPDATE redemptions SET status = 'pending' WHERE id = ?`, r.ID); err == nil {
		t.Error("expected trigger to reject leaving a terminal status")
	}
	if err := rs.DeletePending(ctx, r.ID); err != nil {
		t.Fatalf("delete pending: %v", err)
	}
	if still, _ := rs.GetByID(ctx, r.ID); still == nil {
		t.Error("completed redemption must survive DeletePending")
	}

	list, err := rs.ListByPanelist(ctx, p.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("redemptions = %d, want 1", len(list))
	}
}

func TestListPendingRedemptions(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	offers := NewOfferStore(db)
	rs := NewRedemptionStore(db)
	p := createPanelist(t, db, "user-1")
	o, _ := offers.Create(ctx, "Bean Co", "Free latte", "", 80, true)

	stuck, err := rs.CreatePending(ctx, p.ID, o.ID, 80)
	if err != nil {
		t.Fatalf("create pending: %v", err)
	}
	done, err := rs.CreatePending(ctx, p.ID, o.ID, 80)
	if err != nil {
		t.Fatalf("create pending: %v", err)
	}
	if err := rs.MarkFailed(ctx, done.ID); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	pending, err := rs.ListPending(ctx, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != stuck.ID {
		t.Errorf("pending = %+v, want only %d", pending, stuck.ID)
	}
}
