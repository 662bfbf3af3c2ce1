package model

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// RefreshTokenStore tracks issued refresh tokens by their jti.
type RefreshTokenStore interface {
	Create(ctx context.Context, token RefreshToken) error
	// FindActive is a read-only lookup for diagnostics and tests. Rotation
	// must use Consume, which checks and deactivates in one statement.
	FindActive(ctx context.Context, tokenID uuid.UUID) (RefreshToken, error)
	// Consume deactivates the token only if it is still active and reports
	// whether a row was changed.
	Consume(ctx context.Context, tokenID uuid.UUID) (bool, error)
	DeactivateAllByUser(ctx context.Context, userID int64) error
}

// RefreshToken is the server-side record of an issued refresh JWT.
type RefreshToken struct {
	TokenID   uuid.UUID
	UserID    int64
	Active    bool
	CreatedAt time.Time
}
