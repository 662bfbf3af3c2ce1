package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/dtroode/identity-server/internal/model"
)

var _ model.RefreshTokenStore = (*RefreshTokenRepository)(nil)

type RefreshTokenRepository struct {
	db *sql.DB
}

func NewRefreshTokenRepository(db *sql.DB) *RefreshTokenRepository {
	return &RefreshTokenRepository{db: db}
}

func (r *RefreshTokenRepository) Create(ctx context.Context, token model.RefreshToken) error {
	const query = `
        INSERT INTO refresh_tokens (token_id, user_id, is_active, created_at)
        VALUES ($1, $2, TRUE, NOW())
    `

	if _, err := executor(ctx, r.db).ExecContext(ctx, query, token.TokenID, token.UserID); err != nil {
		return fmt.Errorf("failed to create refresh token: %w", err)
	}
	return nil
}

func (r *RefreshTokenRepository) FindActive(ctx context.Context, tokenID uuid.UUID) (model.RefreshToken, error) {
	const query = `
        SELECT token_id, user_id, is_active, created_at
        FROM refresh_tokens WHERE token_id = $1 AND is_active
    `

	var rt model.RefreshToken
	err := executor(ctx, r.db).QueryRowContext(ctx, query, tokenID).Scan(
		&rt.TokenID, &rt.UserID, &rt.Active, &rt.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.RefreshToken{}, model.ErrNotFound
		}
		return model.RefreshToken{}, fmt.Errorf("failed to find active refresh token: %w", err)
	}
	return rt, nil
}

// Consume flips the token to inactive if, and only if, it is still active.
// Concurrent callers racing on the same token see exactly one true.
func (r *RefreshTokenRepository) Consume(ctx context.Context, tokenID uuid.UUID) (bool, error) {
	const query = `
        UPDATE refresh_tokens SET is_active = FALSE
        WHERE token_id = $1 AND is_active
    `

	res, err := executor(ctx, r.db).ExecContext(ctx, query, tokenID)
	if err != nil {
		return false, fmt.Errorf("failed to consume refresh token: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to consume refresh token: %w", err)
	}

	return n == 1, nil
}

func (r *RefreshTokenRepository) DeactivateAllByUser(ctx context.Context, userID int64) error {
	const query = `
        UPDATE refresh_tokens SET is_active = FALSE
        WHERE user_id = $1 AND is_active
    `
	if _, err := executor(ctx, r.db).ExecContext(ctx, query, userID); err != nil {
		return fmt.Errorf("failed to deactivate refresh tokens by user: %w", err)
	}
	return nil
}
