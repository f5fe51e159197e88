package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/pauljmillar/survey-sub001/internal/apperr"
	"github.com/pauljmillar/survey-sub001/internal/model"
)

// LedgerStore is the append-only point journal. Issue is the only way a
// panelist's balance projection changes.
type LedgerStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewLedgerStore(db *sql.DB) *LedgerStore {
	return &LedgerStore{db: db, now: time.Now}
}

func scanEntry(s scanner) (*model.LedgerEntry, error) {
	var e model.LedgerEntry
	var description, awardedBy sql.NullString

	err := s.Scan(
		&e.ID, &e.PanelistID, &e.Points, &e.BalanceAfter, &e.TransactionType,
		&e.Title, &description, &e.Metadata, &awardedBy, &e.CreatedAt, &e.EffectiveDate,
	)
	if err != nil {
		return nil, err
	}
	if description.Valid {
		e.Description = &description.String
	}
	if awardedBy.Valid {
		e.AwardedBy = &awardedBy.String
	}
	return &e, nil
}

const entryCols = `id, panelist_id, points, balance_after, transaction_type, title, description, metadata, awarded_by, created_at, effective_date`

// ValidateTransaction checks the parts of a transaction that do not need the
// database.
func ValidateTransaction(t model.Transaction) error {
	if t.Points == 0 {
		return apperr.Validation("invalid_points", "points must not be zero")
	}
	if !t.Type.Valid() {
		return apperr.Validation("invalid_transaction_type", fmt.Sprintf("unknown transaction type %q", t.Type))
	}
	if strings.TrimSpace(t.Title) == "" {
		return apperr.Validation("title_required", "title is required")
	}
	if t.UniqueBy != "" {
		if _, ok := t.Metadata[t.UniqueBy]; !ok {
			return apperr.Validation("invalid_metadata", fmt.Sprintf("metadata must carry %q", t.UniqueBy))
		}
	}
	switch t.Type {
	case model.TxRedemption:
		if t.Points > 0 {
			return apperr.Validation("invalid_points_sign", "redemptions must debit points")
		}
	case model.TxSystemAdjustment:
	default:
		if t.Points < 0 {
			return apperr.Validation("invalid_points_sign", fmt.Sprintf("%s entries must credit points", t.Type))
		}
	}
	return nil
}

// Issue appends one entry and moves the panelist's balance projection in a
// single write transaction.
func (s *LedgerStore) Issue(ctx context.Context, t model.Transaction) (*model.IssueResult, error) {
	if err := ValidateTransaction(t); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := issueTx(ctx, tx, t, s.now())
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit issue: %w", err)
	}
	return res, nil
}

// issueTx performs the guarded balance update and the entry insert on tx. The
// UPDATE only matches when the resulting balance stays non-negative, so the
// balance read and write cannot be split by a concurrent issuer.
func issueTx(ctx context.Context, tx *sql.Tx, t model.Transaction, now time.Time) (*model.IssueResult, error) {
	if err := ValidateTransaction(t); err != nil {
		return nil, err
	}
	if t.UniqueBy != "" {
		if err := ensureUnissued(ctx, tx, t); err != nil {
			return nil, err
		}
	}

	var earned, redeemed int64
	if t.Points > 0 {
		earned = t.Points
	} else {
		redeemed = -t.Points
	}

	var res model.IssueResult
	err := tx.QueryRowContext(ctx,
		`UPDATE panelists
		    SET points_balance = points_balance + ?,
		        total_points_earned = total_points_earned + ?,
		        total_points_redeemed = total_points_redeemed + ?,
		        updated_at = CURRENT_TIMESTAMP
		  WHERE id = ? AND active = 1 AND points_balance + ? >= 0
		  RETURNING points_balance, total_points_earned, total_points_redeemed`,
		t.Points, earned, redeemed, t.PanelistID, t.Points,
	).Scan(&res.NewBalance, &res.TotalEarned, &res.TotalRedeemed)
	if err == sql.ErrNoRows {
		return nil, rejection(ctx, tx, t)
	}
	if err != nil {
		return nil, fmt.Errorf("update balance: %w", err)
	}

	effective := t.EffectiveDate
	if effective.IsZero() {
		effective = now
	}
	effective = effective.UTC().Truncate(24 * time.Hour)

	result, err := tx.ExecContext(ctx,
		`INSERT INTO ledger_entries
		    (panelist_id, points, balance_after, transaction_type, title, description, metadata, awarded_by, effective_date)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.PanelistID, t.Points, res.NewBalance, string(t.Type), t.Title,
		t.Description, t.Metadata, t.AwardedBy, effective,
	)
	if err != nil {
		return nil, fmt.Errorf("insert ledger entry: %w", err)
	}
	res.EntryID, err = result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return &res, nil
}

// ensureUnissued runs inside the issuing transaction, so a concurrent issuer
// of the same keyed entry sees the first one or waits for its commit.
func ensureUnissued(ctx context.Context, tx *sql.Tx, t model.Transaction) error {
	var exists bool
	err := tx.QueryRowContext(ctx,
		`SELECT EXISTS (
		        SELECT 1 FROM ledger_entries
		         WHERE panelist_id = ? AND transaction_type = ?
		           AND json_extract(metadata, '$.' || ?) = json_extract(?, '$.' || ?))`,
		t.PanelistID, string(t.Type), t.UniqueBy, t.Metadata, t.UniqueBy,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check existing entry: %w", err)
	}
	if exists {
		return apperr.Conflict("already_issued", fmt.Sprintf("%s entry for %s already exists", t.Type, t.UniqueBy))
	}
	return nil
}

// rejection explains why the guarded update matched no row.
func rejection(ctx context.Context, tx *sql.Tx, t model.Transaction) error {
	var balance int64
	var active int
	err := tx.QueryRowContext(ctx,
		`SELECT points_balance, active FROM panelists WHERE id = ?`, t.PanelistID,
	).Scan(&balance, &active)
	if err == sql.ErrNoRows {
		return apperr.NotFound("panelist_not_found", "panelist not found")
	}
	if err != nil {
		return fmt.Errorf("read balance: %w", err)
	}
	if active == 0 {
		return apperr.State("panelist_inactive", "panelist is not active")
	}
	return apperr.InsufficientBalance(-t.Points, balance)
}

func (s *LedgerStore) GetByID(ctx context.Context, id int64) (*model.LedgerEntry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+entryCols+` FROM ledger_entries WHERE id = ?`, id)
	e, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get ledger entry: %w", err)
	}
	return e, nil
}

// ListByPanelist returns a panelist's entries, newest first.
func (s *LedgerStore) ListByPanelist(ctx context.Context, panelistID int64, limit, offset int) ([]model.LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+entryCols+` FROM ledger_entries WHERE panelist_id = ? ORDER BY id DESC LIMIT ? OFFSET ?`,
		panelistID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []model.LedgerEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

// Latest returns the most recently created entry for a panelist.
func (s *LedgerStore) Latest(ctx context.Context, panelistID int64) (*model.LedgerEntry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+entryCols+` FROM ledger_entries WHERE panelist_id = ? ORDER BY id DESC LIMIT 1`,
		panelistID,
	)
	e, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest ledger entry: %w", err)
	}
	return e, nil
}

// Totals sums a panelist's credits and debits straight from the journal.
func (s *LedgerStore) Totals(ctx context.Context, panelistID int64) (earned, redeemed int64, err error) {
	err = s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(CASE WHEN points > 0 THEN points END), 0),
		        COALESCE(SUM(CASE WHEN points < 0 THEN -points END), 0)
		   FROM ledger_entries WHERE panelist_id = ?`,
		panelistID,
	).Scan(&earned, &redeemed)
	if err != nil {
		return 0, 0, fmt.Errorf("sum ledger entries: %w", err)
	}
	return earned, redeemed, nil
}

// Drift lists panelists whose cached balance or totals disagree with the
// journal.
func (s *LedgerStore) Drift(ctx context.Context) ([]model.BalanceDrift, error) {
	rows, err := s.db.QueryContext(ctx, `
		WITH projection AS (
			SELECT p.id,
			       p.points_balance,
			       COALESCE((SELECT e.balance_after FROM ledger_entries e
			                  WHERE e.panelist_id = p.id ORDER BY e.id DESC LIMIT 1), 0) AS last_after,
			       p.total_points_earned,
			       COALESCE((SELECT SUM(e.points) FROM ledger_entries e
			                  WHERE e.panelist_id = p.id AND e.points > 0), 0) AS ledger_earned,
			       p.total_points_redeemed,
			       COALESCE((SELECT -SUM(e.points) FROM ledger_entries e
			                  WHERE e.panelist_id = p.id AND e.points < 0), 0) AS ledger_redeemed
			  FROM panelists p
		)
		SELECT id, points_balance, last_after, total_points_earned, ledger_earned, total_points_redeemed, ledger_redeemed
		  FROM projection
		 WHERE points_balance <> last_after
		    OR total_points_earned <> ledger_earned
		    OR total_points_redeemed <> ledger_redeemed
		 ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query drift: %w", err)
	}
	defer rows.Close()

	var drift []model.BalanceDrift
	for rows.Next() {
		var d model.BalanceDrift
		if err := rows.Scan(
			&d.PanelistID, &d.PointsBalance, &d.LastBalanceAfter,
			&d.TotalPointsEarned, &d.LedgerEarned,
			&d.TotalPointsRedeemed, &d.LedgerRedeemed,
		); err != nil {
			return nil, fmt.Errorf("scan drift: %w", err)
		}
		drift = append(drift, d)
	}
	return drift, rows.Err()
}

// FindByMetadata returns the first entry of the given type for a panelist
// whose metadata carries key = value, or nil if there is none.
func (s *LedgerStore) FindByMetadata(ctx context.Context, panelistID int64, txType model.TransactionType, key string, value int64) (*model.LedgerEntry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+entryCols+` FROM ledger_entries
		  WHERE panelist_id = ? AND transaction_type = ? AND json_extract(metadata, '$.' || ?) = ?
		  ORDER BY id LIMIT 1`,
		panelistID, string(txType), key, value,
	)
	e, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find ledger entry: %w", err)
	}
	return e, nil
}
