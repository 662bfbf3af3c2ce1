package model

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// TokenPurpose tells one-time token kinds apart.
type TokenPurpose string

const (
	PurposePasswordReset TokenPurpose = "password_reset"
	PurposeEmailVerify   TokenPurpose = "email_verify"
)

// OneTimeTokenStore makes reset and verification links single-use.
type OneTimeTokenStore interface {
	Create(ctx context.Context, token OneTimeToken) error
	Consume(ctx context.Context, tokenID uuid.UUID, purpose TokenPurpose) (OneTimeToken, bool, error)
	DeactivateAllByUser(ctx context.Context, userID int64, purpose TokenPurpose) error
}

// OneTimeToken records the jti of a reset or verification JWT.
type OneTimeToken struct {
	TokenID   uuid.UUID
	UserID    int64
	Purpose   TokenPurpose
	Active    bool
	CreatedAt time.Time
}
