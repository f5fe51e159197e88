package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pauljmillar/survey-sub001/internal/apperr"
	"github.com/pauljmillar/survey-sub001/internal/contest"
	"github.com/pauljmillar/survey-sub001/internal/model"
)

type ContestStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewContestStore(db *sql.DB) *ContestStore {
	return &ContestStore{db: db, now: time.Now}
}

// --- Contest methods ---

func scanContest(s scanner) (*model.Contest, error) {
	var c model.Contest
	var startsAt, endsAt sql.NullTime
	err := s.Scan(&c.ID, &c.Title, &c.Description, &c.Status, &c.PrizePoints, &startsAt, &endsAt, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if startsAt.Valid {
		c.StartsAt = &startsAt.Time
	}
	if endsAt.Valid {
		c.EndsAt = &endsAt.Time
	}
	return &c, nil
}

const contestCols = `id, title, description, status, prize_points, starts_at, ends_at, created_at, updated_at`

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

// Create adds a contest in draft status.
func (s *ContestStore) Create(ctx context.Context, title, description string, prizePoints int64, startsAt, endsAt *time.Time) (*model.Contest, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO contests (title, description, prize_points, starts_at, ends_at) VALUES (?, ?, ?, ?, ?)`,
		title, description, prizePoints, nullTime(startsAt), nullTime(endsAt),
	)
	if err != nil {
		return nil, fmt.Errorf("insert contest: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *ContestStore) GetByID(ctx context.Context, id int64) (*model.Contest, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+contestCols+` FROM contests WHERE id = ?`, id)
	c, err := scanContest(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get contest: %w", err)
	}
	return c, nil
}

// List returns contests, newest first, optionally filtered by status.
func (s *ContestStore) List(ctx context.Context, status model.ContestStatus) ([]model.Contest, error) {
	query := `SELECT ` + contestCols + ` FROM contests`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list contests: %w", err)
	}
	defer rows.Close()

	var contests []model.Contest
	for rows.Next() {
		c, err := scanContest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan contest: %w", err)
		}
		contests = append(contests, *c)
	}
	return contests, rows.Err()
}

// Transition moves a contest to the next status. The update is conditional on
// the status read, so two concurrent transitions cannot both succeed.
func (s *ContestStore) Transition(ctx context.Context, id int64, to model.ContestStatus) (*model.Contest, error) {
	c, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, apperr.NotFound("contest_not_found", "contest not found")
	}
	if !contest.CanTransition(c.Status, to) {
		return nil, apperr.State("invalid_transition", fmt.Sprintf("contest cannot move from %s to %s", c.Status, to))
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE contests SET status = ? WHERE id = ? AND status = ?`,
		string(to), id, string(c.Status),
	)
	if err != nil {
		return nil, fmt.Errorf("transition contest: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return nil, apperr.State("invalid_transition", "contest status changed concurrently")
	}
	return s.GetByID(ctx, id)
}

// --- Participant methods ---

func scanParticipant(s scanner) (*model.ContestParticipant, error) {
	var p model.ContestParticipant
	var rank sql.NullInt64
	var awarded int
	err := s.Scan(&p.ID, &p.ContestID, &p.PanelistID, &p.DisplayName, &p.PointsEarned, &rank, &awarded, &p.JoinedAt)
	if err != nil {
		return nil, err
	}
	if rank.Valid {
		r := int(rank.Int64)
		p.Rank = &r
	}
	p.PrizeAwarded = awarded != 0
	return &p, nil
}

const participantCols = `cp.id, cp.contest_id, cp.panelist_id, p.display_name, cp.points_earned, cp.rank, cp.prize_awarded, cp.joined_at`

const participantFrom = ` FROM contest_participants cp JOIN panelists p ON p.id = cp.panelist_id`

// Join enrols a panelist in an active contest.
func (s *ContestStore) Join(ctx context.Context, contestID, panelistID int64) (*model.ContestParticipant, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO contest_participants (contest_id, panelist_id, joined_at)
		 SELECT id, ?, ? FROM contests WHERE id = ? AND status = 'active'`,
		panelistID, s.now().UTC(), contestID,
	)
	if isUniqueViolation(err) {
		return nil, apperr.Conflict("already_joined", "panelist already joined this contest")
	}
	if err != nil {
		return nil, fmt.Errorf("insert participant: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return nil, apperr.State("contest_not_active", "contest is not accepting participants")
	}
	return s.GetParticipant(ctx, contestID, panelistID)
}

func (s *ContestStore) GetParticipant(ctx context.Context, contestID, panelistID int64) (*model.ContestParticipant, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+participantCols+participantFrom+` WHERE cp.contest_id = ? AND cp.panelist_id = ?`,
		contestID, panelistID,
	)
	p, err := scanParticipant(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get participant: %w", err)
	}
	return p, nil
}

// ListParticipants returns every participant of a contest in join order.
func (s *ContestStore) ListParticipants(ctx context.Context, contestID int64) ([]model.ContestParticipant, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+participantCols+participantFrom+` WHERE cp.contest_id = ? ORDER BY cp.joined_at ASC, cp.id ASC`,
		contestID,
	)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()

	var participants []model.ContestParticipant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		participants = append(participants, *p)
	}
	return participants, rows.Err()
}

// AddPoints credits points to the panelist's standing in every active contest
// they have joined and returns the ids of the contests touched.
func (s *ContestStore) AddPoints(ctx context.Context, panelistID, points int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`UPDATE contest_participants
		    SET points_earned = points_earned + ?
		  WHERE panelist_id = ?
		    AND contest_id IN (SELECT id FROM contests WHERE status = 'active')
		  RETURNING contest_id`,
		points, panelistID,
	)
	if err != nil {
		return nil, fmt.Errorf("add contest points: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan contest id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SaveRanks writes the ranks of an already ranked participant list in one
// transaction.
func (s *ContestStore) SaveRanks(ctx context.Context, ranked []model.ContestParticipant) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `UPDATE contest_participants SET rank = ? WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("prepare rank update: %w", err)
	}
	defer stmt.Close()

	for _, p := range ranked {
		var rank sql.NullInt64
		if p.Rank != nil {
			rank = sql.NullInt64{Int64: int64(*p.Rank), Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, rank, p.ID); err != nil {
			return fmt.Errorf("update rank: %w", err)
		}
	}
	return tx.Commit()
}

// AwardPrize pays a contest's prize to one participant. Flagging the
// participant and issuing the ledger entry happen in the same transaction, and
// the flag is only set when it was clear, so a prize is paid at most once.
func (s *ContestStore) AwardPrize(ctx context.Context, contestID, panelistID int64, awardedBy *string) (*model.IssueResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var status model.ContestStatus
	var prize int64
	var title string
	err = tx.QueryRowContext(ctx,
		`SELECT status, prize_points, title FROM contests WHERE id = ?`, contestID,
	).Scan(&status, &prize, &title)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("contest_not_found", "contest not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get contest: %w", err)
	}
	if status != model.ContestEnded {
		return nil, apperr.State("contest_not_ended", "prizes can only be awarded after the contest ends")
	}
	if prize <= 0 {
		return nil, apperr.Validation("no_prize", "contest has no prize points")
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE contest_participants SET prize_awarded = 1
		  WHERE contest_id = ? AND panelist_id = ? AND prize_awarded = 0`,
		contestID, panelistID,
	)
	if err != nil {
		return nil, fmt.Errorf("flag prize: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		var exists int
		err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM contest_participants WHERE contest_id = ? AND panelist_id = ?`,
			contestID, panelistID,
		).Scan(&exists)
		if err != nil {
			return nil, fmt.Errorf("check participant: %w", err)
		}
		if exists == 0 {
			return nil, apperr.NotFound("participant_not_found", "panelist is not a participant of this contest")
		}
		return nil, apperr.Conflict("already_awarded", "prize already awarded")
	}

	res, err := issueTx(ctx, tx, model.Transaction{
		PanelistID: panelistID,
		Points:     prize,
		Type:       model.TxContestPrize,
		Title:      "Contest prize: " + title,
		Metadata:   model.Metadata{"contest_id": contestID},
		AwardedBy:  awardedBy,
	}, s.now())
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit prize: %w", err)
	}
	return res, nil
}
