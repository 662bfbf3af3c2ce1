package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/dtroode/identity-server/internal/model"
)

var _ model.OneTimeTokenStore = (*OneTimeTokenRepository)(nil)

type OneTimeTokenRepository struct {
	db *sql.DB
}

func NewOneTimeTokenRepository(db *sql.DB) *OneTimeTokenRepository {
	return &OneTimeTokenRepository{db: db}
}

func (r *OneTimeTokenRepository) Create(ctx context.Context, token model.OneTimeToken) error {
	const query = `
        INSERT INTO one_time_tokens (token_id, user_id, purpose, is_active, created_at)
        VALUES ($1, $2, $3, TRUE, NOW())
    `

	_, err := executor(ctx, r.db).ExecContext(ctx, query, token.TokenID, token.UserID, string(token.Purpose))
	if err != nil {
		return fmt.Errorf("failed to create one-time token: %w", err)
	}
	return nil
}

// Consume deactivates an active token of the given purpose and returns it.
// The boolean is false when no active token matched.
func (r *OneTimeTokenRepository) Consume(ctx context.Context, tokenID uuid.UUID, purpose model.TokenPurpose) (model.OneTimeToken, bool, error) {
	const query = `
        UPDATE one_time_tokens SET is_active = FALSE
        WHERE token_id = $1 AND purpose = $2 AND is_active
        RETURNING token_id, user_id, purpose, created_at
    `

	var (
		t model.OneTimeToken
		p string
	)
	err := executor(ctx, r.db).QueryRowContext(ctx, query, tokenID, string(purpose)).Scan(
		&t.TokenID, &t.UserID, &p, &t.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.OneTimeToken{}, false, nil
		}
		return model.OneTimeToken{}, false, fmt.Errorf("failed to consume one-time token: %w", err)
	}
	t.Purpose = model.TokenPurpose(p)

	return t, true, nil
}

func (r *OneTimeTokenRepository) DeactivateAllByUser(ctx context.Context, userID int64, purpose model.TokenPurpose) error {
	const query = `
        UPDATE one_time_tokens SET is_active = FALSE
        WHERE user_id = $1 AND purpose = $2 AND is_active
    `

	if _, err := executor(ctx, r.db).ExecContext(ctx, query, userID, string(purpose)); err != nil {
		return fmt.Errorf("failed to deactivate one-time tokens: %w", err)
	}
	return nil
}
