package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pauljmillar/survey-sub001/internal/apperr"
	"github.com/pauljmillar/survey-sub001/internal/model"
)

type PanelistStore struct {
	db *sql.DB
}

func NewPanelistStore(db *sql.DB) *PanelistStore {
	return &PanelistStore{db: db}
}

func scanPanelist(s scanner) (*model.Panelist, error) {
	var p model.Panelist
	var active int
	err := s.Scan(
		&p.ID, &p.UserRef, &p.DisplayName,
		&p.PointsBalance, &p.TotalPointsEarned, &p.TotalPointsRedeemed,
		&active, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Active = active != 0
	return &p, nil
}

const panelistCols = `id, user_ref, display_name, points_balance, total_points_earned, total_points_redeemed, active, created_at, updated_at`

// Create registers a panelist for an identity reference. Balances start at zero
// and are only ever changed by the ledger.
func (s *PanelistStore) Create(ctx context.Context, userRef, displayName string) (*model.Panelist, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO panelists (user_ref, display_name) VALUES (?, ?)`,
		userRef, displayName,
	)
	if isUniqueViolation(err) {
		return nil, apperr.Conflict("panelist_exists", "a panelist already exists for this user")
	}
	if err != nil {
		return nil, fmt.Errorf("insert panelist: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *PanelistStore) GetByID(ctx context.Context, id int64) (*model.Panelist, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+panelistCols+` FROM panelists WHERE id = ?`, id)
	p, err := scanPanelist(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get panelist: %w", err)
	}
	return p, nil
}

func (s *PanelistStore) GetByUserRef(ctx context.Context, userRef string) (*model.Panelist, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+panelistCols+` FROM panelists WHERE user_ref = ?`, userRef)
	p, err := scanPanelist(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get panelist by user ref: %w", err)
	}
	return p, nil
}

// GetOrCreate returns the panelist for userRef, creating it on first sight.
func (s *PanelistStore) GetOrCreate(ctx context.Context, userRef, displayName string) (*model.Panelist, error) {
	p, err := s.GetByUserRef(ctx, userRef)
	if err != nil || p != nil {
		return p, err
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO panelists (user_ref, display_name) VALUES (?, ?) ON CONFLICT (user_ref) DO NOTHING`,
		userRef, displayName,
	); err != nil {
		return nil, fmt.Errorf("insert panelist: %w", err)
	}
	return s.GetByUserRef(ctx, userRef)
}

// List returns panelists ordered by id.
func (s *PanelistStore) List(ctx context.Context, limit, offset int) ([]model.Panelist, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+panelistCols+` FROM panelists ORDER BY id ASC LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list panelists: %w", err)
	}
	defer rows.Close()

	var panelists []model.Panelist
	for rows.Next() {
		p, err := scanPanelist(rows)
		if err != nil {
			return nil, fmt.Errorf("scan panelist: %w", err)
		}
		panelists = append(panelists, *p)
	}
	return panelists, rows.Err()
}

// UpdateProfile changes the non-point fields of a panelist.
func (s *PanelistStore) UpdateProfile(ctx context.Context, id int64, displayName string, active bool) (*model.Panelist, error) {
	_, err := s.db.ExecContext(ctx,
		`UPDATE panelists SET display_name = ?, active = ? WHERE id = ?`,
		displayName, boolToInt(active), id,
	)
	if err != nil {
		return nil, fmt.Errorf("update panelist: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *PanelistStore) GetBalance(ctx context.Context, id int64) (*model.PointBalance, error) {
	p, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, nil
	}
	b := p.Balance()
	return &b, nil
}
