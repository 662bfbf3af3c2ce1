package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dtroode/identity-server/internal/logger"
	"github.com/dtroode/identity-server/internal/model"
	"github.com/dtroode/identity-server/internal/token"
)

var (
	errRefreshForbidden = model.NewForbidden("invalid refresh token")
	errAccountDisabled  = model.NewForbidden("account is disabled")
)

// TokenService issues, rotates and revokes access/refresh pairs bound to
// sessions. Every login or rotation leaves exactly one active refresh token
// and one active session for the user.
type TokenService struct {
	codec    *token.Codec
	users    model.UserStore
	tokens   model.RefreshTokenStore
	sessions *SessionManager
	tx       model.Transactor
	logger   *logger.Logger
	now      func() time.Time
}

func NewTokenService(
	codec *token.Codec,
	users model.UserStore,
	tokens model.RefreshTokenStore,
	sessions *SessionManager,
	tx model.Transactor,
	logger *logger.Logger,
) *TokenService {
	return &TokenService{
		codec:    codec,
		users:    users,
		tokens:   tokens,
		sessions: sessions,
		tx:       tx,
		logger:   logger,
		now:      time.Now,
	}
}

// Issue logs user in: it replaces all refresh tokens and sessions of the user
// with a fresh pair inside one transaction and stamps the last login time.
func (s *TokenService) Issue(ctx context.Context, user model.User, clientIP string) (model.LoginResult, error) {
	var result model.LoginResult

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		result, err = s.replaceCredentials(ctx, user, clientIP, nil)
		if err != nil {
			return err
		}

		now := s.now()
		updated, err := s.users.Update(ctx, user.ID, model.UserUpdate{LastLoginAt: &now})
		if err != nil {
			return fmt.Errorf("failed to update last login: %w", err)
		}
		result.User = updated

		return nil
	})
	if err != nil {
		return model.LoginResult{}, s.serverError("failed to issue tokens", err, "user_id", user.ID, "email", user.Email)
	}

	s.logger.Info("Token service: tokens issued",
		"user_id", user.ID,
		"sid", result.Tokens.SID.String())

	return result, nil
}

// Rotate exchanges a refresh token for a new pair. A well-signed refresh token
// whose record is no longer active is treated as stolen: every refresh token
// and session of its owner is revoked and Forbidden is returned.
func (s *TokenService) Rotate(ctx context.Context, refreshToken, clientIP string) (model.LoginResult, error) {
	return s.RotateSession(ctx, refreshToken, uuid.Nil, clientIP)
}

// RotateSession is Rotate for a client that also presented its session id.
// When that session is the active session of the token owner, the new session
// keeps its CSRF token. Any other sid is ignored.
func (s *TokenService) RotateSession(ctx context.Context, refreshToken string, sid uuid.UUID, clientIP string) (model.LoginResult, error) {
	payload, err := s.codec.Verify(refreshToken, model.TokenRefresh)
	switch {
	case errors.Is(err, model.ErrTokenForbidden):
		s.logger.Security("Token service: untrusted refresh token presented",
			"client_ip", clientIP,
			"error", err.Error())
		return model.LoginResult{}, errRefreshForbidden
	case errors.Is(err, model.ErrTokenExpired):
		return model.LoginResult{}, model.NewUnauthorized("refresh token expired")
	case err != nil:
		return model.LoginResult{}, model.NewUnauthorized("invalid refresh token")
	}

	tokenID, err := uuid.Parse(payload.TokenID)
	if err != nil {
		s.logger.Security("Token service: refresh token with malformed jti",
			"client_ip", clientIP,
			"uuid", payload.UUID.String())
		return model.LoginResult{}, errRefreshForbidden
	}

	var (
		result  model.LoginResult
		revoked *model.User
		denied  error
	)

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		consumed, err := s.tokens.Consume(ctx, tokenID)
		if err != nil {
			return err
		}

		user, err := s.users.GetByUUID(ctx, payload.UUID)
		if errors.Is(err, model.ErrNotFound) {
			denied = errRefreshForbidden
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to get user: %w", err)
		}

		if !consumed {
			if err := s.revokeAll(ctx, user.ID); err != nil {
				return err
			}
			revoked = &user
			denied = errRefreshForbidden
			return nil
		}
		if !user.Active {
			if err := s.revokeAll(ctx, user.ID); err != nil {
				return err
			}
			denied = errAccountDisabled
			return nil
		}

		previous, err := s.continuedSession(ctx, sid, user.ID)
		if err != nil {
			return err
		}
		result, err = s.replaceCredentials(ctx, user, clientIP, previous)
		if err != nil {
			return err
		}
		result.User = user

		return nil
	})
	if err != nil {
		return model.LoginResult{}, s.serverError("failed to rotate tokens", err, "uuid", payload.UUID.String())
	}

	if revoked != nil {
		s.logger.Security("Token service: refresh token reuse detected, all credentials revoked",
			"user_id", revoked.ID,
			"email", revoked.Email,
			"jti", tokenID.String(),
			"client_ip", clientIP)
	}
	if denied != nil {
		return model.LoginResult{}, denied
	}

	s.logger.Debug("Token service: tokens rotated",
		"user_id", result.User.ID,
		"sid", result.Tokens.SID.String())

	return result, nil
}

// Logout revokes the credentials of the session owner. A missing session is
// logged and otherwise ignored, so the caller can always clear the client.
func (s *TokenService) Logout(ctx context.Context, sid uuid.UUID) error {
	session, err := s.sessions.GetSession(ctx, sid)
	if err != nil {
		s.logger.Security("Token service: logout for unknown session",
			"sid", sid.String(),
			"error", err.Error())
		return nil
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.revokeAll(ctx, session.UserID); err != nil {
			return err
		}
		return s.sessions.EndSession(ctx, session.SID)
	})
	if err != nil {
		return s.serverError("failed to log out", err, "user_id", session.UserID, "sid", sid.String())
	}

	s.logger.Info("Token service: user logged out",
		"user_id", session.UserID,
		"sid", sid.String())

	return nil
}

// RevokeAll deactivates every refresh token and session of the user.
func (s *TokenService) RevokeAll(ctx context.Context, userID int64) error {
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		return s.revokeAll(ctx, userID)
	})
	if err != nil {
		return s.serverError("failed to revoke credentials", err, "user_id", userID)
	}
	return nil
}

// RevokeRefreshTokens deactivates refresh tokens only; sessions stay as they are.
func (s *TokenService) RevokeRefreshTokens(ctx context.Context, userID int64) error {
	if err := s.tokens.DeactivateAllByUser(ctx, userID); err != nil {
		return s.serverError("failed to revoke refresh tokens", err, "user_id", userID)
	}
	return nil
}

// VerifyAccess validates an access token.
func (s *TokenService) VerifyAccess(accessToken string) (model.Payload, error) {
	return s.codec.Verify(accessToken, model.TokenAccess)
}

// continuedSession returns the session a rotation may carry the CSRF token
// over from, or nil.
func (s *TokenService) continuedSession(ctx context.Context, sid uuid.UUID, userID int64) (*model.Session, error) {
	if sid == uuid.Nil {
		return nil, nil
	}

	session, err := s.sessions.GetSession(ctx, sid)
	if model.IsKind(err, model.KindNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !session.Active || session.UserID != userID {
		return nil, nil
	}

	return &session, nil
}

// replaceCredentials must run inside a transaction. Old records are
// deactivated before new ones are stored. A non-nil previous session hands
// its CSRF token to the new one.
func (s *TokenService) replaceCredentials(ctx context.Context, user model.User, clientIP string, previous *model.Session) (model.LoginResult, error) {
	if err := s.tokens.DeactivateAllByUser(ctx, user.ID); err != nil {
		return model.LoginResult{}, fmt.Errorf("failed to deactivate refresh tokens: %w", err)
	}

	access, err := s.codec.IssueAccess(user)
	if err != nil {
		return model.LoginResult{}, fmt.Errorf("failed to issue access token: %w", err)
	}
	refresh, jti, err := s.codec.IssueRefresh(user)
	if err != nil {
		return model.LoginResult{}, fmt.Errorf("failed to issue refresh token: %w", err)
	}

	if err := s.tokens.Create(ctx, model.RefreshToken{TokenID: jti, UserID: user.ID, Active: true}); err != nil {
		return model.LoginResult{}, fmt.Errorf("failed to store refresh token: %w", err)
	}

	if err := s.sessions.DeactivateAllSessions(ctx, user.ID); err != nil {
		return model.LoginResult{}, err
	}
	var session model.Session
	if previous != nil {
		session, err = s.sessions.ContinueSession(ctx, *previous, access, clientIP)
	} else {
		session, err = s.sessions.CreateSession(ctx, user.ID, access, clientIP)
	}
	if err != nil {
		return model.LoginResult{}, err
	}

	return model.LoginResult{
		Tokens: model.TokenPair{
			AccessToken:  access,
			RefreshToken: refresh,
			SID:          session.SID,
		},
		CSRFToken: session.CSRFToken,
	}, nil
}

func (s *TokenService) revokeAll(ctx context.Context, userID int64) error {
	if err := s.tokens.DeactivateAllByUser(ctx, userID); err != nil {
		return fmt.Errorf("failed to deactivate refresh tokens: %w", err)
	}
	return s.sessions.DeactivateAllSessions(ctx, userID)
}

// serverError logs err with context and hides it behind a ServerError.
// Errors that already carry a kind other than ServerError pass through.
func (s *TokenService) serverError(msg string, err error, args ...any) error {
	var typed *model.Error
	if errors.As(err, &typed) && typed.Kind != model.KindServerError {
		return err
	}

	s.logger.Error("Token service: "+msg, append(args, "error", err.Error())...)

	if typed != nil {
		return typed
	}
	return model.NewServerError(err)
}
