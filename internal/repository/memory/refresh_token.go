package memory

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/dtroode/identity-server/internal/model"
)

var _ model.RefreshTokenStore = (*RefreshTokenRepository)(nil)

type RefreshTokenRepository struct {
	s *Store
}

func (r *RefreshTokenRepository) Create(ctx context.Context, token model.RefreshToken) error {
	unlock, err := r.s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	d := r.s.data
	if _, ok := d.users[token.UserID]; !ok {
		return fmt.Errorf("refresh token references unknown user %d", token.UserID)
	}
	if _, ok := d.refreshTokens[token.TokenID]; ok {
		return model.ErrAlreadyExists
	}
	for _, t := range d.refreshTokens {
		if t.UserID == token.UserID && t.Active {
			return fmt.Errorf("active refresh token for user %d: %w", token.UserID, ErrConstraint)
		}
	}

	token.Active = true
	token.CreatedAt = r.s.now()
	d.refreshTokens[token.TokenID] = token

	return nil
}

func (r *RefreshTokenRepository) FindActive(ctx context.Context, tokenID uuid.UUID) (model.RefreshToken, error) {
	unlock, err := r.s.lock(ctx)
	if err != nil {
		return model.RefreshToken{}, err
	}
	defer unlock()

	t, ok := r.s.data.refreshTokens[tokenID]
	if !ok || !t.Active {
		return model.RefreshToken{}, model.ErrNotFound
	}
	return t, nil
}

func (r *RefreshTokenRepository) Consume(ctx context.Context, tokenID uuid.UUID) (bool, error) {
	unlock, err := r.s.lock(ctx)
	if err != nil {
		return false, err
	}
	defer unlock()

	t, ok := r.s.data.refreshTokens[tokenID]
	if !ok || !t.Active {
		return false, nil
	}
	t.Active = false
	r.s.data.refreshTokens[tokenID] = t

	return true, nil
}

func (r *RefreshTokenRepository) DeactivateAllByUser(ctx context.Context, userID int64) error {
	unlock, err := r.s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	for k, t := range r.s.data.refreshTokens {
		if t.UserID == userID && t.Active {
			t.Active = false
			r.s.data.refreshTokens[k] = t
		}
	}
	return nil
}

// ActiveCount returns the number of active refresh tokens of a user.
func (r *RefreshTokenRepository) ActiveCount(ctx context.Context, userID int64) (int, error) {
	unlock, err := r.s.lock(ctx)
	if err != nil {
		return 0, err
	}
	defer unlock()

	n := 0
	for _, t := range r.s.data.refreshTokens {
		if t.UserID == userID && t.Active {
			n++
		}
	}
	return n, nil
}
