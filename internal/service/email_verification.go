package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/google/uuid"

	"github.com/dtroode/identity-server/internal/logger"
	"github.com/dtroode/identity-server/internal/model"
	"github.com/dtroode/identity-server/internal/token"
)

// EmailVerification sends and redeems email verification links.
type EmailVerification struct {
	users   model.UserStore
	links   oneTimeTokens
	tokens  *TokenService
	mailer  model.Mailer
	tx      model.Transactor
	baseURL string
	logger  *logger.Logger
}

func NewEmailVerification(
	codec *token.Codec,
	users model.UserStore,
	oneTime model.OneTimeTokenStore,
	tokens *TokenService,
	mailer model.Mailer,
	tx model.Transactor,
	baseURL string,
	logger *logger.Logger,
) *EmailVerification {
	return &EmailVerification{
		users: users,
		links: oneTimeTokens{
			codec:   codec,
			users:   users,
			store:   oneTime,
			class:   model.TokenVerify,
			purpose: model.PurposeEmailVerify,
		},
		tokens:  tokens,
		mailer:  mailer,
		tx:      tx,
		baseURL: baseURL,
		logger:  logger,
	}
}

// Send mails a fresh verification link to user, invalidating earlier ones.
func (v *EmailVerification) Send(ctx context.Context, user model.User) error {
	var signed string
	err := v.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		signed, err = v.links.issue(ctx, user)
		return err
	})
	if err != nil {
		v.logger.Error("Email verification: failed to issue token",
			"user_id", user.ID,
			"email", user.Email,
			"error", err.Error())
		return model.NewServerError(err)
	}

	link := v.baseURL + "/verify-email?token=" + url.QueryEscape(signed)
	err = v.mailer.Send(ctx, model.Message{
		To:      user.Email,
		Subject: "Confirm your email address",
		Body:    "Open the link to confirm your email address: " + link,
	})
	if err != nil {
		v.logger.Error("Email verification: failed to send email",
			"user_id", user.ID,
			"email", user.Email,
			"error", err.Error())
		return model.NewServerError(fmt.Errorf("failed to send verification email: %w", err))
	}

	v.logger.Info("Email verification: link sent",
		"user_id", user.ID)

	return nil
}

// Resend mails a new link to an authenticated, not yet verified user.
func (v *EmailVerification) Resend(ctx context.Context, userUUID uuid.UUID) error {
	user, err := v.users.GetByUUID(ctx, userUUID)
	if errors.Is(err, model.ErrNotFound) {
		return model.NewNotFound("user not found")
	}
	if err != nil {
		v.logger.Error("Email verification: failed to get user",
			"uuid", userUUID.String(),
			"error", err.Error())
		return model.NewServerError(err)
	}

	if user.EmailVerified {
		return model.NewConflict("email is already verified")
	}

	return v.Send(ctx, user)
}

// Verify redeems a verification link, marks the email verified and logs the
// user out of every device.
func (v *EmailVerification) Verify(ctx context.Context, signed string) error {
	payload, jti, err := v.links.verify(signed)
	if err != nil {
		return err
	}

	var user model.User
	err = v.tx.WithinTx(ctx, func(ctx context.Context) error {
		user, err = v.links.redeem(ctx, payload, jti)
		if err != nil {
			return err
		}

		verified := true
		if _, err := v.users.Update(ctx, user.ID, model.UserUpdate{EmailVerified: &verified}); err != nil {
			return fmt.Errorf("failed to mark email verified: %w", err)
		}

		return v.tokens.RevokeRefreshTokens(ctx, user.ID)
	})
	if err != nil {
		if model.KindOf(err) != model.KindServerError {
			return err
		}
		v.logger.Error("Email verification: failed to verify email",
			"uuid", payload.UUID.String(),
			"error", err.Error())
		return wrapServerError(err)
	}

	v.logger.Info("Email verification: email verified",
		"user_id", user.ID)

	return nil
}
