package memory

import (
	"context"

	"github.com/google/uuid"

	"github.com/dtroode/identity-server/internal/model"
)

var _ model.OneTimeTokenStore = (*OneTimeTokenRepository)(nil)

type OneTimeTokenRepository struct {
	s *Store
}

func (r *OneTimeTokenRepository) Create(ctx context.Context, token model.OneTimeToken) error {
	unlock, err := r.s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	if _, ok := r.s.data.oneTime[token.TokenID]; ok {
		return model.ErrAlreadyExists
	}

	token.Active = true
	token.CreatedAt = r.s.now()
	r.s.data.oneTime[token.TokenID] = token

	return nil
}

func (r *OneTimeTokenRepository) Consume(ctx context.Context, tokenID uuid.UUID, purpose model.TokenPurpose) (model.OneTimeToken, bool, error) {
	unlock, err := r.s.lock(ctx)
	if err != nil {
		return model.OneTimeToken{}, false, err
	}
	defer unlock()

	t, ok := r.s.data.oneTime[tokenID]
	if !ok || !t.Active || t.Purpose != purpose {
		return model.OneTimeToken{}, false, nil
	}
	t.Active = false
	r.s.data.oneTime[tokenID] = t

	return t, true, nil
}

func (r *OneTimeTokenRepository) DeactivateAllByUser(ctx context.Context, userID int64, purpose model.TokenPurpose) error {
	unlock, err := r.s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	for k, t := range r.s.data.oneTime {
		if t.UserID == userID && t.Purpose == purpose && t.Active {
			t.Active = false
			r.s.data.oneTime[k] = t
		}
	}
	return nil
}
