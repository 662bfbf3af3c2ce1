package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dtroode/identity-server/internal/logger"
	"github.com/dtroode/identity-server/internal/model"
)

const csrfTokenBytes = 32

// errCSRF is the single answer for every CSRF failure.
var errCSRF = model.NewForbidden("invalid csrf token")

// SessionManager creates, ends and validates server-side sessions.
// It never deactivates prior sessions on its own; the token service does.
type SessionManager struct {
	store  model.SessionStore
	users  model.UserStore
	logger *logger.Logger
	now    func() time.Time
}

func NewSessionManager(store model.SessionStore, users model.UserStore, logger *logger.Logger) *SessionManager {
	return &SessionManager{store: store, users: users, logger: logger, now: time.Now}
}

// CreateSession stores a new active session bound to accessToken.
func (m *SessionManager) CreateSession(ctx context.Context, userID int64, accessToken, clientIP string) (model.Session, error) {
	csrf, err := newCSRFToken()
	if err != nil {
		m.logger.Error("Session manager: failed to generate csrf token",
			"user_id", userID,
			"error", err.Error())
		return model.Session{}, model.NewServerError(err)
	}
	return m.newSession(ctx, userID, accessToken, clientIP, csrf)
}

// ContinueSession stores a new active session for the owner of previous that
// keeps its CSRF token, so forms rendered before a rotation still submit.
func (m *SessionManager) ContinueSession(ctx context.Context, previous model.Session, accessToken, clientIP string) (model.Session, error) {
	if previous.CSRFToken == "" {
		return model.Session{}, model.NewServerError(errors.New("previous session has no csrf token"))
	}
	return m.newSession(ctx, previous.UserID, accessToken, clientIP, previous.CSRFToken)
}

func (m *SessionManager) newSession(ctx context.Context, userID int64, accessToken, clientIP, csrf string) (model.Session, error) {
	if userID == 0 || accessToken == "" {
		return model.Session{}, model.NewServerError(errors.New("session requires user id and access token"))
	}

	session := model.Session{
		SID:         uuid.New(),
		UserID:      userID,
		AccessToken: accessToken,
		CSRFToken:   csrf,
		StartTime:   m.now(),
		Active:      true,
		ClientIP:    clientIP,
	}

	if err := m.store.Create(ctx, session); err != nil {
		m.logger.Error("Session manager: failed to create session",
			"user_id", userID,
			"error", err.Error())
		return model.Session{}, model.NewServerError(fmt.Errorf("failed to create session: %w", err))
	}

	return session, nil
}

func (m *SessionManager) GetSession(ctx context.Context, sid uuid.UUID) (model.Session, error) {
	session, err := m.store.GetBySID(ctx, sid)
	if errors.Is(err, model.ErrNotFound) {
		return model.Session{}, model.NewNotFound("session not found")
	}
	if err != nil {
		m.logger.Error("Session manager: failed to get session",
			"sid", sid.String(),
			"error", err.Error())
		return model.Session{}, model.NewServerError(fmt.Errorf("failed to get session: %w", err))
	}

	return session, nil
}

func (m *SessionManager) DeactivateAllSessions(ctx context.Context, userID int64) error {
	if err := m.store.DeactivateAllByUser(ctx, userID); err != nil {
		m.logger.Error("Session manager: failed to deactivate sessions",
			"user_id", userID,
			"error", err.Error())
		return model.NewServerError(fmt.Errorf("failed to deactivate sessions: %w", err))
	}
	return nil
}

func (m *SessionManager) EndSession(ctx context.Context, sid uuid.UUID) error {
	err := m.store.End(ctx, sid, m.now())
	if errors.Is(err, model.ErrNotFound) {
		return model.NewNotFound("session not found")
	}
	if err != nil {
		m.logger.Error("Session manager: failed to end session",
			"sid", sid.String(),
			"error", err.Error())
		return model.NewServerError(fmt.Errorf("failed to end session: %w", err))
	}
	return nil
}

// ValidateCSRF checks supplied against the token of an active session owned
// by the user with UUID owner. Unknown, inactive, foreign and mismatching
// sessions all yield the same Forbidden error.
func (m *SessionManager) ValidateCSRF(ctx context.Context, owner, sid uuid.UUID, supplied string) error {
	if owner == uuid.Nil || sid == uuid.Nil || supplied == "" {
		return errCSRF
	}

	session, err := m.store.GetBySID(ctx, sid)
	if errors.Is(err, model.ErrNotFound) {
		return errCSRF
	}
	if err != nil {
		m.logger.Error("Session manager: failed to load session for csrf check",
			"sid", sid.String(),
			"error", err.Error())
		return model.NewServerError(fmt.Errorf("failed to get session: %w", err))
	}

	match := subtle.ConstantTimeCompare([]byte(session.CSRFToken), []byte(supplied)) == 1
	if !session.Active || !match {
		return errCSRF
	}

	user, err := m.users.GetByID(ctx, session.UserID)
	if errors.Is(err, model.ErrNotFound) {
		return errCSRF
	}
	if err != nil {
		m.logger.Error("Session manager: failed to load session owner for csrf check",
			"sid", sid.String(),
			"user_id", session.UserID,
			"error", err.Error())
		return model.NewServerError(fmt.Errorf("failed to get user: %w", err))
	}
	if user.UUID != owner {
		m.logger.Security("Session manager: csrf check with a session of another user",
			"sid", sid.String(),
			"user_id", session.UserID,
			"caller_uuid", owner.String())
		return errCSRF
	}

	return nil
}

func newCSRFToken() (string, error) {
	b := make([]byte, csrfTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
