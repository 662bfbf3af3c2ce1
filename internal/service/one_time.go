package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/dtroode/identity-server/internal/model"
	"github.com/dtroode/identity-server/internal/token"
)

// oneTimeTokens issues and redeems single-use reset and verification links.
type oneTimeTokens struct {
	codec   *token.Codec
	users   model.UserStore
	store   model.OneTimeTokenStore
	class   model.TokenClass
	purpose model.TokenPurpose
}

// issue signs a new token and makes it the only active one of its purpose.
// It must run inside a transaction.
func (o oneTimeTokens) issue(ctx context.Context, user model.User) (string, error) {
	signed, jti, err := o.codec.IssueOneTime(user, o.class)
	if err != nil {
		return "", fmt.Errorf("failed to sign %s token: %w", o.class, err)
	}

	if err := o.store.DeactivateAllByUser(ctx, user.ID, o.purpose); err != nil {
		return "", fmt.Errorf("failed to deactivate %s tokens: %w", o.purpose, err)
	}
	if err := o.store.Create(ctx, model.OneTimeToken{TokenID: jti, UserID: user.ID, Purpose: o.purpose, Active: true}); err != nil {
		return "", fmt.Errorf("failed to store %s token: %w", o.purpose, err)
	}

	return signed, nil
}

// verify checks the signature of signed without touching the store.
func (o oneTimeTokens) verify(signed string) (model.Payload, uuid.UUID, error) {
	payload, err := o.codec.Verify(signed, o.class)
	if errors.Is(err, model.ErrTokenExpired) {
		return model.Payload{}, uuid.Nil, model.NewBadRequest("link has expired")
	}
	if err != nil {
		return model.Payload{}, uuid.Nil, model.NewBadRequest("invalid link")
	}

	jti, err := uuid.Parse(payload.TokenID)
	if err != nil {
		return model.Payload{}, uuid.Nil, model.NewBadRequest("invalid link")
	}

	return payload, jti, nil
}

// redeem consumes the token and returns its owner. It must run inside a transaction.
func (o oneTimeTokens) redeem(ctx context.Context, payload model.Payload, jti uuid.UUID) (model.User, error) {
	record, ok, err := o.store.Consume(ctx, jti, o.purpose)
	if err != nil {
		return model.User{}, fmt.Errorf("failed to consume %s token: %w", o.purpose, err)
	}
	if !ok {
		return model.User{}, model.NewBadRequest("link has already been used")
	}

	user, err := o.users.GetByID(ctx, record.UserID)
	if errors.Is(err, model.ErrNotFound) {
		return model.User{}, model.NewBadRequest("invalid link")
	}
	if err != nil {
		return model.User{}, fmt.Errorf("failed to get user: %w", err)
	}
	if user.UUID != payload.UUID {
		return model.User{}, model.NewBadRequest("invalid link")
	}

	return user, nil
}

// wrapServerError keeps errors that already carry a kind and hides the rest.
func wrapServerError(err error) error {
	var typed *model.Error
	if errors.As(err, &typed) {
		return err
	}
	return model.NewServerError(err)
}
