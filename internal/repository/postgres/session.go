package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dtroode/identity-server/internal/model"
)

var _ model.SessionStore = (*SessionRepository)(nil)

type SessionRepository struct {
	db *sql.DB
}

func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Create(ctx context.Context, session model.Session) error {
	const query = `
        INSERT INTO sessions (sid, user_id, access_token, csrf_token, start_time, is_active, client_ip)
        VALUES ($1, $2, $3, $4, $5, TRUE, $6)
    `

	_, err := executor(ctx, r.db).ExecContext(ctx, query,
		session.SID, session.UserID, session.AccessToken, session.CSRFToken, session.StartTime, session.ClientIP,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (r *SessionRepository) GetBySID(ctx context.Context, sid uuid.UUID) (model.Session, error) {
	const query = `
        SELECT sid, user_id, access_token, csrf_token, start_time, end_time, is_active, client_ip
        FROM sessions WHERE sid = $1
    `

	var (
		s       model.Session
		endTime sql.NullTime
	)
	err := executor(ctx, r.db).QueryRowContext(ctx, query, sid).Scan(
		&s.SID, &s.UserID, &s.AccessToken, &s.CSRFToken, &s.StartTime, &endTime, &s.Active, &s.ClientIP,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Session{}, model.ErrNotFound
		}
		return model.Session{}, fmt.Errorf("failed to get session: %w", err)
	}
	if endTime.Valid {
		t := endTime.Time
		s.EndTime = &t
	}

	return s, nil
}

func (r *SessionRepository) DeactivateAllByUser(ctx context.Context, userID int64) error {
	const query = `UPDATE sessions SET is_active = FALSE WHERE user_id = $1 AND is_active`

	if _, err := executor(ctx, r.db).ExecContext(ctx, query, userID); err != nil {
		return fmt.Errorf("failed to deactivate sessions by user: %w", err)
	}
	return nil
}

func (r *SessionRepository) End(ctx context.Context, sid uuid.UUID, endedAt time.Time) error {
	const query = `UPDATE sessions SET is_active = FALSE, end_time = $2 WHERE sid = $1`

	res, err := executor(ctx, r.db).ExecContext(ctx, query, sid, endedAt)
	if err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}
	if n == 0 {
		return model.ErrNotFound
	}

	return nil
}
