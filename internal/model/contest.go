package model

import "time"

type ContestStatus string

const (
	ContestDraft  ContestStatus = "draft"
	ContestActive ContestStatus = "active"
	ContestEnded  ContestStatus = "ended"
)

type Contest struct {
	ID          int64         `json:"id"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Status      ContestStatus `json:"status"`
	PrizePoints int64         `json:"prize_points"`
	StartsAt    *time.Time    `json:"starts_at"`
	EndsAt      *time.Time    `json:"ends_at"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

type ContestParticipant struct {
	ID           int64     `json:"id"`
	ContestID    int64     `json:"contest_id"`
	PanelistID   int64     `json:"panelist_id"`
	DisplayName  string    `json:"display_name"`
	PointsEarned int64     `json:"points_earned"`
	Rank         *int      `json:"rank"`
	PrizeAwarded bool      `json:"prize_awarded"`
	JoinedAt     time.Time `json:"joined_at"`
}

type LeaderboardEntry struct {
	Rank         *int      `json:"rank"`
	PointsEarned int64     `json:"points_earned"`
	JoinedAt     time.Time `json:"joined_at"`
	PanelistID   int64     `json:"panelist_id"`
	DisplayName  string    `json:"display_name"`
	PrizeAwarded bool      `json:"prize_awarded"`
}
