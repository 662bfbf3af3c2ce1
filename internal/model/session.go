package model

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// SessionStore persists login sessions.
type SessionStore interface {
	Create(ctx context.Context, session Session) error
	GetBySID(ctx context.Context, sid uuid.UUID) (Session, error)
	DeactivateAllByUser(ctx context.Context, userID int64) error
	End(ctx context.Context, sid uuid.UUID, endedAt time.Time) error
}

// Session binds a user, the access token issued with it and a CSRF token.
type Session struct {
	SID         uuid.UUID
	UserID      int64
	AccessToken string
	CSRFToken   string
	StartTime   time.Time
	EndTime     *time.Time
	Active      bool
	ClientIP    string
}
