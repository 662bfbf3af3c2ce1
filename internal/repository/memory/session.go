package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dtroode/identity-server/internal/model"
)

var _ model.SessionStore = (*SessionRepository)(nil)

type SessionRepository struct {
	s *Store
}

func (r *SessionRepository) Create(ctx context.Context, session model.Session) error {
	unlock, err := r.s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	d := r.s.data
	if _, ok := d.users[session.UserID]; !ok {
		return fmt.Errorf("session references unknown user %d", session.UserID)
	}
	if _, ok := d.sessions[session.SID]; ok {
		return model.ErrAlreadyExists
	}
	for _, s := range d.sessions {
		if s.UserID == session.UserID && s.Active {
			return fmt.Errorf("active session for user %d: %w", session.UserID, ErrConstraint)
		}
	}

	session.Active = true
	session.EndTime = nil
	d.sessions[session.SID] = session

	return nil
}

func (r *SessionRepository) GetBySID(ctx context.Context, sid uuid.UUID) (model.Session, error) {
	unlock, err := r.s.lock(ctx)
	if err != nil {
		return model.Session{}, err
	}
	defer unlock()

	s, ok := r.s.data.sessions[sid]
	if !ok {
		return model.Session{}, model.ErrNotFound
	}
	return s, nil
}

func (r *SessionRepository) DeactivateAllByUser(ctx context.Context, userID int64) error {
	unlock, err := r.s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	for k, s := range r.s.data.sessions {
		if s.UserID == userID && s.Active {
			s.Active = false
			r.s.data.sessions[k] = s
		}
	}
	return nil
}

func (r *SessionRepository) End(ctx context.Context, sid uuid.UUID, endedAt time.Time) error {
	unlock, err := r.s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	s, ok := r.s.data.sessions[sid]
	if !ok {
		return model.ErrNotFound
	}
	s.Active = false
	s.EndTime = &endedAt
	r.s.data.sessions[sid] = s

	return nil
}

// ActiveCount returns the number of active sessions of a user.
func (r *SessionRepository) ActiveCount(ctx context.Context, userID int64) (int, error) {
	unlock, err := r.s.lock(ctx)
	if err != nil {
		return 0, err
	}
	defer unlock()

	n := 0
	for _, s := range r.s.data.sessions {
		if s.UserID == userID && s.Active {
			n++
		}
	}
	return n, nil
}
