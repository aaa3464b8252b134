package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dukerupert/hearth/internal/model"
	"github.com/google/uuid"
)

type PollStore struct {
	db DBTX
}

func NewPollStore(db DBTX) *PollStore {
	return &PollStore{db: db}
}

const pollCols = `id, question, options, expires_at, household_id, created_by, created_at`

func scanPoll(sc scanner) (*model.Poll, error) {
	var p model.Poll
	var options string
	var expires sql.NullTime
	if err := sc.Scan(&p.ID, &p.Question, &options, &expires, &p.HouseholdID, &p.CreatedBy, &p.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(options), &p.Options); err != nil {
		return nil, fmt.Errorf("decode poll options: %w", err)
	}
	p.ExpiresAt = timePtr(expires)
	return &p, nil
}

func (s *PollStore) Create(ctx context.Context, p model.Poll) (*model.Poll, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now()
	}
	options, err := json.Marshal(p.Options)
	if err != nil {
		return nil, fmt.Errorf("encode poll options: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO polls (id, question, options, expires_at, household_id, created_by, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Question, string(options), nullTime(p.ExpiresAt), p.HouseholdID, p.CreatedBy, p.CreatedAt.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert poll: %w", err)
	}
	return s.GetByID(ctx, p.ID)
}

func (s *PollStore) GetByID(ctx context.Context, id string) (*model.Poll, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+pollCols+` FROM polls WHERE id = ?`, id)
	p, err := scanPoll(row)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get poll: %w", err)
	}
	return p, nil
}

func (s *PollStore) SetOptions(ctx context.Context, id string, options map[string]int) error {
	encoded, err := json.Marshal(options)
	if err != nil {
		return fmt.Errorf("encode poll options: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE polls SET options = ? WHERE id = ?`, string(encoded), id); err != nil {
		return fmt.Errorf("update poll options: %w", err)
	}
	return nil
}

func (s *PollStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM polls WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete poll: %w", err)
	}
	return nil
}

// PollStatus filters polls by whether voting is still open.
type PollStatus string

const (
	PollsActive  PollStatus = "active"
	PollsExpired PollStatus = "expired"
	PollsAll     PollStatus = "all"
)

// List returns a household's polls newest first, with the total match count.
func (s *PollStore) List(ctx context.Context, householdID string, status PollStatus, at time.Time, limit, offset int) ([]model.Poll, int, error) {
	where := ` WHERE household_id = ?`
	args := []any{householdID}
	switch status {
	case PollsActive:
		where += ` AND (expires_at IS NULL OR expires_at > ?)`
		args = append(args, at.UTC())
	case PollsExpired:
		where += ` AND expires_at IS NOT NULL AND expires_at <= ?`
		args = append(args, at.UTC())
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM polls`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count polls: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+pollCols+` FROM polls`+where+` ORDER BY created_at DESC, rowid DESC`+limitClause(limit, offset),
		args...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list polls: %w", err)
	}
	defer rows.Close()

	var out []model.Poll
	for rows.Next() {
		p, err := scanPoll(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan poll: %w", err)
		}
		out = append(out, *p)
	}
	return out, total, rows.Err()
}

const voteCols = `poll_id, user_id, selected_option, created_at, updated_at`

// GetVote returns nil when the user has not voted on the poll.
func (s *PollStore) GetVote(ctx context.Context, pollID, userID string) (*model.Vote, error) {
	var v model.Vote
	err := s.db.QueryRowContext(ctx,
		`SELECT `+voteCols+` FROM votes WHERE poll_id = ? AND user_id = ?`, pollID, userID,
	).Scan(&v.PollID, &v.UserID, &v.SelectedOption, &v.CreatedAt, &v.UpdatedAt)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get vote: %w", err)
	}
	return &v, nil
}

func (s *PollStore) CreateVote(ctx context.Context, pollID, userID, option string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO votes (poll_id, user_id, selected_option, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		pollID, userID, option, at.UTC(), at.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert vote: %w", err)
	}
	return nil
}

func (s *PollStore) UpdateVote(ctx context.Context, pollID, userID, option string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE votes SET selected_option = ?, updated_at = ? WHERE poll_id = ? AND user_id = ?`,
		option, at.UTC(), pollID, userID,
	)
	if err != nil {
		return fmt.Errorf("update vote: %w", err)
	}
	return nil
}

func (s *PollStore) CountVotes(ctx context.Context, pollID string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM votes WHERE poll_id = ?`, pollID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count votes: %w", err)
	}
	return n, nil
}

func (s *PollStore) CountVotesByUser(ctx context.Context, userID string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM votes WHERE user_id = ?`, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count votes: %w", err)
	}
	return n, nil
}
