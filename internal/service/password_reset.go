package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/dtroode/identity-server/internal/logger"
	"github.com/dtroode/identity-server/internal/model"
	"github.com/dtroode/identity-server/internal/password"
	"github.com/dtroode/identity-server/internal/token"
)

// PasswordReset implements the forgot/reset password flow.
type PasswordReset struct {
	users   model.UserStore
	links   oneTimeTokens
	tokens  *TokenService
	hasher  *password.Hasher
	limiter model.RateLimiter
	mailer  model.Mailer
	tx      model.Transactor
	baseURL string
	logger  *logger.Logger
}

func NewPasswordReset(
	codec *token.Codec,
	users model.UserStore,
	oneTime model.OneTimeTokenStore,
	tokens *TokenService,
	hasher *password.Hasher,
	limiter model.RateLimiter,
	mailer model.Mailer,
	tx model.Transactor,
	baseURL string,
	logger *logger.Logger,
) *PasswordReset {
	return &PasswordReset{
		users: users,
		links: oneTimeTokens{
			codec:   codec,
			users:   users,
			store:   oneTime,
			class:   model.TokenReset,
			purpose: model.PurposePasswordReset,
		},
		tokens:  tokens,
		hasher:  hasher,
		limiter: limiter,
		mailer:  mailer,
		tx:      tx,
		baseURL: baseURL,
		logger:  logger,
	}
}

// Forgot mails a reset link when the email belongs to an active account.
// The result never tells whether the account exists.
func (r *PasswordReset) Forgot(ctx context.Context, email, clientIP string) error {
	email = normalizeEmail(email)
	if email == "" {
		return model.NewBadRequest("email is required")
	}

	if err := r.limiter.CheckPasswordReset(ctx, email, clientIP); err != nil {
		if errors.Is(err, model.ErrRateLimited) {
			return model.NewTooManyRequests("too many password reset requests")
		}
		r.logger.Warn("Password reset: rate limiter unavailable",
			"error", err.Error())
	}

	user, err := r.users.GetByEmail(ctx, email)
	if errors.Is(err, model.ErrNotFound) {
		r.logger.Debug("Password reset: requested for unknown email",
			"email", email)
		return nil
	}
	if err != nil {
		r.logger.Error("Password reset: failed to get user",
			"email", email,
			"error", err.Error())
		return model.NewServerError(err)
	}
	if !user.Active {
		return nil
	}

	var signed string
	err = r.tx.WithinTx(ctx, func(ctx context.Context) error {
		signed, err = r.links.issue(ctx, user)
		return err
	})
	if err != nil {
		r.logger.Error("Password reset: failed to issue token",
			"user_id", user.ID,
			"email", email,
			"error", err.Error())
		return model.NewServerError(err)
	}

	link := r.baseURL + "/reset-password?token=" + url.QueryEscape(signed)
	err = r.mailer.Send(ctx, model.Message{
		To:      user.Email,
		Subject: "Reset your password",
		Body:    "Open the link to choose a new password: " + link,
	})
	if err != nil {
		// answering differently here would reveal that the account exists
		r.logger.Error("Password reset: failed to send email",
			"user_id", user.ID,
			"email", email,
			"error", err.Error())
		return nil
	}

	r.logger.Info("Password reset: link sent",
		"user_id", user.ID)

	return nil
}

// Reset redeems a reset link, stores the new password and logs the user out
// of every device.
func (r *PasswordReset) Reset(ctx context.Context, signed, newPassword string) error {
	payload, jti, err := r.links.verify(signed)
	if err != nil {
		return err
	}

	hash, err := r.hasher.Hash(newPassword)
	if errors.Is(err, password.ErrTooShort) {
		return model.NewBadRequest(fmt.Sprintf("password must be at least %d characters", r.hasher.MinLength()))
	}
	if err != nil {
		r.logger.Error("Password reset: failed to hash password",
			"uuid", payload.UUID.String(),
			"error", err.Error())
		return model.NewServerError(err)
	}

	var user model.User
	err = r.tx.WithinTx(ctx, func(ctx context.Context) error {
		user, err = r.links.redeem(ctx, payload, jti)
		if err != nil {
			return err
		}

		if _, err := r.users.Update(ctx, user.ID, model.UserUpdate{PasswordHash: &hash}); err != nil {
			return fmt.Errorf("failed to update password: %w", err)
		}

		return r.tokens.RevokeRefreshTokens(ctx, user.ID)
	})
	if err != nil {
		if model.KindOf(err) != model.KindServerError {
			return err
		}
		r.logger.Error("Password reset: failed to reset password",
			"uuid", payload.UUID.String(),
			"error", err.Error())
		return wrapServerError(err)
	}

	r.logger.Info("Password reset: password changed",
		"user_id", user.ID)

	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
