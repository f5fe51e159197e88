package model

import (
	"encoding/json"
	"time"
)

type SurveyStatus string

const (
	SurveyDraft    SurveyStatus = "draft"
	SurveyActive   SurveyStatus = "active"
	SurveyInactive SurveyStatus = "inactive"
)

func (s SurveyStatus) Valid() bool {
	switch s {
	case SurveyDraft, SurveyActive, SurveyInactive:
		return true
	}
	return false
}

type Survey struct {
	ID           int64        `json:"id"`
	Title        string       `json:"title"`
	Description  string       `json:"description"`
	PointsReward int64        `json:"points_reward"`
	Status       SurveyStatus `json:"status"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

type SurveyCompletion struct {
	ID            int64           `json:"id"`
	PanelistID    int64           `json:"panelist_id"`
	SurveyID      int64           `json:"survey_id"`
	PointsAwarded int64           `json:"points_awarded"`
	Responses     json.RawMessage `json:"responses"`
	CompletedAt   time.Time       `json:"completed_at"`
}

// CompletionResult is returned to the panelist after a survey is completed.
type CompletionResult struct {
	CompletionID int64 `json:"completion_id"`
	PointsEarned int64 `json:"points_earned"`
	NewBalance   int64 `json:"new_balance"`
	TotalEarned  int64 `json:"total_earned"`
}
