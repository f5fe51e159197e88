package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pauljmillar/survey-sub001/internal/apperr"
	"github.com/pauljmillar/survey-sub001/internal/model"
)

type SurveyStore struct {
	db *sql.DB
}

func NewSurveyStore(db *sql.DB) *SurveyStore {
	return &SurveyStore{db: db}
}

// --- Survey methods ---

func scanSurvey(s scanner) (*model.Survey, error) {
	var sv model.Survey
	err := s.Scan(&sv.ID, &sv.Title, &sv.Description, &sv.PointsReward, &sv.Status, &sv.CreatedAt, &sv.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &sv, nil
}

const surveyCols = `id, title, description, points_reward, status, created_at, updated_at`

func (s *SurveyStore) Create(ctx context.Context, title, description string, pointsReward int64, status model.SurveyStatus) (*model.Survey, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO surveys (title, description, points_reward, status) VALUES (?, ?, ?, ?)`,
		title, description, pointsReward, string(status),
	)
	if err != nil {
		return nil, fmt.Errorf("insert survey: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *SurveyStore) GetByID(ctx context.Context, id int64) (*model.Survey, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+surveyCols+` FROM surveys WHERE id = ?`, id)
	sv, err := scanSurvey(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get survey: %w", err)
	}
	return sv, nil
}

// List returns all surveys, or only those with the given status when status is
// non-empty.
func (s *SurveyStore) List(ctx context.Context, status model.SurveyStatus) ([]model.Survey, error) {
	query := `SELECT ` + surveyCols + ` FROM surveys`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list surveys: %w", err)
	}
	defer rows.Close()

	var surveys []model.Survey
	for rows.Next() {
		sv, err := scanSurvey(rows)
		if err != nil {
			return nil, fmt.Errorf("scan survey: %w", err)
		}
		surveys = append(surveys, *sv)
	}
	return surveys, rows.Err()
}

func (s *SurveyStore) Update(ctx context.Context, id int64, title, description string, pointsReward int64) (*model.Survey, error) {
	_, err := s.db.ExecContext(ctx,
		`UPDATE surveys SET title = ?, description = ?, points_reward = ? WHERE id = ?`,
		title, description, pointsReward, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update survey: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *SurveyStore) SetStatus(ctx context.Context, id int64, status model.SurveyStatus) (*model.Survey, error) {
	_, err := s.db.ExecContext(ctx, `UPDATE surveys SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return nil, fmt.Errorf("set survey status: %w", err)
	}
	return s.GetByID(ctx, id)
}

// Delete removes a survey that nobody has completed yet.
func (s *SurveyStore) Delete(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM surveys WHERE id = ?`, id)
	if isForeignKeyViolation(err) {
		return apperr.Conflict("survey_in_use", "survey has completions and cannot be deleted")
	}
	if err != nil {
		return fmt.Errorf("delete survey: %w", err)
	}
	return nil
}

// --- Completion methods ---

func scanCompletion(s scanner) (*model.SurveyCompletion, error) {
	var c model.SurveyCompletion
	var responses string
	err := s.Scan(&c.ID, &c.PanelistID, &c.SurveyID, &c.PointsAwarded, &responses, &c.CompletedAt)
	if err != nil {
		return nil, err
	}
	c.Responses = json.RawMessage(responses)
	return &c, nil
}

const completionCols = `id, panelist_id, survey_id, points_awarded, responses, completed_at`

// CreateCompletion records that a panelist finished a survey. A second
// completion of the same survey is a conflict.
func (s *SurveyStore) CreateCompletion(ctx context.Context, panelistID, surveyID, points int64, responses json.RawMessage) (*model.SurveyCompletion, error) {
	if len(responses) == 0 {
		responses = json.RawMessage("[]")
	}
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO survey_completions (panelist_id, survey_id, points_awarded, responses) VALUES (?, ?, ?, ?)`,
		panelistID, surveyID, points, string(responses),
	)
	if isUniqueViolation(err) {
		return nil, apperr.Conflict("already_completed", "survey already completed")
	}
	if err != nil {
		return nil, fmt.Errorf("insert completion: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+completionCols+` FROM survey_completions WHERE id = ?`, id)
	return scanCompletion(row)
}

func (s *SurveyStore) DeleteCompletion(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM survey_completions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete completion: %w", err)
	}
	return nil
}

func (s *SurveyStore) GetCompletion(ctx context.Context, panelistID, surveyID int64) (*model.SurveyCompletion, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+completionCols+` FROM survey_completions WHERE panelist_id = ? AND survey_id = ?`,
		panelistID, surveyID,
	)
	c, err := scanCompletion(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get completion: %w", err)
	}
	return c, nil
}

func (s *SurveyStore) ListCompletionsByPanelist(ctx context.Context, panelistID int64) ([]model.SurveyCompletion, error) {
	return s.listCompletions(ctx,
		`SELECT `+completionCols+` FROM survey_completions WHERE panelist_id = ? ORDER BY completed_at DESC, id DESC`,
		panelistID,
	)
}

// ListUnawarded returns completions recorded before the cutoff that have no
// matching survey_completion ledger entry. These are left behind when a
// process dies between recording the completion and awarding its points.
// Newer completions may still belong to a request in flight.
func (s *SurveyStore) ListUnawarded(ctx context.Context, before time.Time) ([]model.SurveyCompletion, error) {
	return s.listCompletions(ctx,
		`SELECT `+completionCols+` FROM survey_completions c
		  WHERE c.completed_at < ?
		    AND NOT EXISTS (
		        SELECT 1 FROM ledger_entries e
		         WHERE e.panelist_id = c.panelist_id
		           AND e.transaction_type = 'survey_completion'
		           AND json_extract(e.metadata, '$.completion_id') = c.id)
		  ORDER BY c.id`,
		before.UTC(),
	)
}

func (s *SurveyStore) listCompletions(ctx context.Context, query string, args ...any) ([]model.SurveyCompletion, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list completions: %w", err)
	}
	defer rows.Close()

	var completions []model.SurveyCompletion
	for rows.Next() {
		c, err := scanCompletion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan completion: %w", err)
		}
		completions = append(completions, *c)
	}
	return completions, rows.Err()
}
