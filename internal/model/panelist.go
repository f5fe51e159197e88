package model

import "time"

type Panelist struct {
	ID                  int64     `json:"id"`
	UserRef             string    `json:"user_ref"`
	DisplayName         string    `json:"display_name"`
	PointsBalance       int64     `json:"points_balance"`
	TotalPointsEarned   int64     `json:"total_points_earned"`
	TotalPointsRedeemed int64     `json:"total_points_redeemed"`
	Active              bool      `json:"active"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// PointBalance is the cached balance projection of a panelist's ledger.
type PointBalance struct {
	PanelistID    int64 `json:"panelist_id"`
	Balance       int64 `json:"balance"`
	TotalEarned   int64 `json:"total_earned"`
	TotalRedeemed int64 `json:"total_redeemed"`
}

func (p *Panelist) Balance() PointBalance {
	return PointBalance{
		PanelistID:    p.ID,
		Balance:       p.PointsBalance,
		TotalEarned:   p.TotalPointsEarned,
		TotalRedeemed: p.TotalPointsRedeemed,
	}
}
