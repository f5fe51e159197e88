package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pauljmillar/survey-sub001/internal/apperr"
	"github.com/pauljmillar/survey-sub001/internal/model"
)

type OfferStore struct {
	db *sql.DB
}

func NewOfferStore(db *sql.DB) *OfferStore {
	return &OfferStore{db: db}
}

func scanOffer(s scanner) (*model.Offer, error) {
	var o model.Offer
	var active int
	err := s.Scan(&o.ID, &o.MerchantName, &o.Title, &o.Description, &o.PointsCost, &active, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	o.Active = active != 0
	return &o, nil
}

const offerCols = `id, merchant_name, title, description, points_cost, active, created_at, updated_at`

func (s *OfferStore) Create(ctx context.Context, merchant, title, description string, pointsCost int64, active bool) (*model.Offer, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO offers (merchant_name, title, description, points_cost, active) VALUES (?, ?, ?, ?, ?)`,
		merchant, title, description, pointsCost, boolToInt(active),
	)
	if err != nil {
		return nil, fmt.Errorf("insert offer: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *OfferStore) GetByID(ctx context.Context, id int64) (*model.Offer, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+offerCols+` FROM offers WHERE id = ?`, id)
	o, err := scanOffer(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get offer: %w", err)
	}
	return o, nil
}

func (s *OfferStore) List(ctx context.Context) ([]model.Offer, error) {
	return s.list(ctx, `SELECT `+offerCols+` FROM offers ORDER BY points_cost ASC, title ASC`)
}

func (s *OfferStore) ListActive(ctx context.Context) ([]model.Offer, error) {
	return s.list(ctx, `SELECT `+offerCols+` FROM offers WHERE active = 1 ORDER BY points_cost ASC, title ASC`)
}

func (s *OfferStore) list(ctx context.Context, query string) ([]model.Offer, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list offers: %w", err)
	}
	defer rows.Close()

	var offers []model.Offer
	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan offer: %w", err)
		}
		offers = append(offers, *o)
	}
	return offers, rows.Err()
}

func (s *OfferStore) Update(ctx context.Context, id int64, merchant, title, description string, pointsCost int64, active bool) (*model.Offer, error) {
	_, err := s.db.ExecContext(ctx,
		`UPDATE offers SET merchant_name = ?, title = ?, description = ?, points_cost = ?, active = ? WHERE id = ?`,
		merchant, title, description, pointsCost, boolToInt(active), id,
	)
	if err != nil {
		return nil, fmt.Errorf("update offer: %w", err)
	}
	return s.GetByID(ctx, id)
}

// Delete removes an offer. Offers that have been redeemed are kept for the
// redemption history; deactivate them instead.
func (s *OfferStore) Delete(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM offers WHERE id = ?`, id)
	if isForeignKeyViolation(err) {
		return apperr.Conflict("offer_in_use", "offer has redemptions and cannot be deleted")
	}
	if err != nil {
		return fmt.Errorf("delete offer: %w", err)
	}
	return nil
}

// --- Redemption methods ---

type RedemptionStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewRedemptionStore(db *sql.DB) *RedemptionStore {
	return &RedemptionStore{db: db, now: time.Now}
}

func scanRedemption(s scanner) (*model.Redemption, error) {
	var r model.Redemption
	var settledAt sql.NullTime
	err := s.Scan(&r.ID, &r.PanelistID, &r.OfferID, &r.PointsSpent, &r.Status, &r.CreatedAt, &settledAt)
	if err != nil {
		return nil, err
	}
	if settledAt.Valid {
		r.SettledAt = &settledAt.Time
	}
	return &r, nil
}

const redemptionCols = `id, panelist_id, offer_id, points_spent, status, created_at, settled_at`

// CreatePending records a redemption before its debit is issued.
func (s *RedemptionStore) CreatePending(ctx context.Context, panelistID, offerID, points int64) (*model.Redemption, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO redemptions (panelist_id, offer_id, points_spent, status) VALUES (?, ?, ?, 'pending')`,
		panelistID, offerID, points,
	)
	if err != nil {
		return nil, fmt.Errorf("insert redemption: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *RedemptionStore) GetByID(ctx context.Context, id int64) (*model.Redemption, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+redemptionCols+` FROM redemptions WHERE id = ?`, id)
	r, err := scanRedemption(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get redemption: %w", err)
	}
	return r, nil
}

// MarkCompleted settles a pending redemption. Settled redemptions never move
// again.
func (s *RedemptionStore) MarkCompleted(ctx context.Context, id int64) error {
	return s.settle(ctx, id, model.RedemptionCompleted)
}

func (s *RedemptionStore) MarkFailed(ctx context.Context, id int64) error {
	return s.settle(ctx, id, model.RedemptionFailed)
}

func (s *RedemptionStore) settle(ctx context.Context, id int64, status model.RedemptionStatus) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE redemptions SET status = ?, settled_at = ? WHERE id = ? AND status = 'pending'`,
		string(status), s.now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("settle redemption: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return apperr.State("redemption_not_pending", "redemption is not pending")
	}
	return nil
}

// DeletePending removes a redemption whose debit never happened.
func (s *RedemptionStore) DeletePending(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM redemptions WHERE id = ? AND status = 'pending'`, id)
	if err != nil {
		return fmt.Errorf("delete redemption: %w", err)
	}
	return nil
}

func (s *RedemptionStore) ListByPanelist(ctx context.Context, panelistID int64) ([]model.Redemption, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+redemptionCols+` FROM redemptions WHERE panelist_id = ? ORDER BY created_at DESC, id DESC`,
		panelistID,
	)
	if err != nil {
		return nil, fmt.Errorf("list redemptions by panelist: %w", err)
	}
	defer rows.Close()

	var redemptions []model.Redemption
	for rows.Next() {
		r, err := scanRedemption(rows)
		if err != nil {
			return nil, fmt.Errorf("scan redemption: %w", err)
		}
		redemptions = append(redemptions, *r)
	}
	return redemptions, rows.Err()
}

// ListPending returns redemptions older than the cutoff that were never
// settled.
func (s *RedemptionStore) ListPending(ctx context.Context, before time.Time) ([]model.Redemption, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+redemptionCols+` FROM redemptions WHERE status = 'pending' AND created_at < ? ORDER BY id`,
		before.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("list pending redemptions: %w", err)
	}
	defer rows.Close()

	var redemptions []model.Redemption
	for rows.Next() {
		r, err := scanRedemption(rows)
		if err != nil {
			return nil, fmt.Errorf("scan redemption: %w", err)
		}
		redemptions = append(redemptions, *r)
	}
	return redemptions, rows.Err()
}
