package model

import "time"

// Offer is a merchant offer that panelists redeem points for.
type Offer struct {
	ID           int64     `json:"id"`
	MerchantName string    `json:"merchant_name"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	PointsCost   int64     `json:"points_cost"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type RedemptionStatus string

const (
	RedemptionPending   RedemptionStatus = "pending"
	RedemptionCompleted RedemptionStatus = "completed"
	RedemptionFailed    RedemptionStatus = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s RedemptionStatus) Terminal() bool {
	return s == RedemptionCompleted || s == RedemptionFailed
}

type Redemption struct {
	ID          int64            `json:"id"`
	PanelistID  int64            `json:"panelist_id"`
	OfferID     int64            `json:"offer_id"`
	PointsSpent int64            `json:"points_spent"`
	Status      RedemptionStatus `json:"status"`
	CreatedAt   time.Time        `json:"created_at"`
	SettledAt   *time.Time       `json:"settled_at"`
}

type RedemptionResult struct {
	RedemptionID  int64 `json:"redemption_id"`
	PointsSpent   int64 `json:"points_spent"`
	NewBalance    int64 `json:"new_balance"`
	TotalRedeemed int64 `json:"total_redeemed"`
}
