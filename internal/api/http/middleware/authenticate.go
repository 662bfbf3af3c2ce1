package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/dtroode/identity-server/internal/api/http/handler"
	"github.com/dtroode/identity-server/internal/api/http/transport"
	"github.com/dtroode/identity-server/internal/logger"
	"github.com/dtroode/identity-server/internal/model"
)

var errLoginRequired = model.NewUnauthorized("login required")

// TokenService verifies access tokens and rotates expired ones.
type TokenService interface {
	VerifyAccess(accessToken string) (model.Payload, error)
	RotateSession(ctx context.Context, refreshToken string, sid uuid.UUID, clientIP string) (model.LoginResult, error)
}

// Authenticate resolves the caller from the credentials of its platform.
// An expired access token is rotated silently and the new credentials are
// written back to the client.
type Authenticate struct {
	tokenService   TokenService
	transports     *transport.Resolver
	contextManager model.ContextManager
	logger         *logger.Logger
}

// NewAuthenticate creates a new Authenticate middleware instance.
func NewAuthenticate(
	tokenService TokenService,
	transports *transport.Resolver,
	contextManager model.ContextManager,
	logger *logger.Logger,
) *Authenticate {
	return &Authenticate{
		tokenService:   tokenService,
		transports:     transports,
		contextManager: contextManager,
		logger:         logger,
	}
}

// Require answers 401 unless the caller is authenticated.
func (m *Authenticate) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, err := m.authenticate(w, r)
		if err != nil {
			handler.WriteError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Optional lets anonymous callers through: a missing or rejected token leaves
// the context without a payload. Other failures still fail the request.
func (m *Authenticate) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, err := m.authenticate(w, r)
		if err != nil {
			if model.KindOf(err) != model.KindUnauthorized {
				handler.WriteError(w, err)
				return
			}
			ctx = r.Context()
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *Authenticate) authenticate(w http.ResponseWriter, r *http.Request) (context.Context, error) {
	tr, err := m.transports.Resolve(r)
	if err != nil {
		return nil, err
	}

	creds := tr.Read(r)
	if creds.AccessToken == "" {
		return nil, errLoginRequired
	}

	payload, err := m.tokenService.VerifyAccess(creds.AccessToken)
	switch {
	case err == nil:
		return m.withIdentity(r.Context(), payload, creds), nil
	case !errors.Is(err, model.ErrTokenExpired):
		m.logger.Debug("Authenticate: rejected access token",
			"client_ip", transport.ClientIP(r),
			"error", err.Error())
		return nil, errLoginRequired
	case creds.RefreshToken == "":
		tr.Clear(w)
		return nil, errLoginRequired
	}

	res, err := m.tokenService.RotateSession(r.Context(), creds.RefreshToken, creds.SID, transport.ClientIP(r))
	if err != nil {
		if model.KindOf(err) == model.KindServerError {
			return nil, err
		}
		m.logger.Debug("Authenticate: silent rotation refused",
			"client_ip", transport.ClientIP(r),
			"error", err.Error())
		tr.Clear(w)
		return nil, errLoginRequired
	}

	rotated := transport.FromPair(res.Tokens)
	tr.Write(w, rotated)
	w.Header().Set(transport.HeaderCSRFToken, res.CSRFToken)

	return m.withIdentity(r.Context(), res.User.Public(), rotated), nil
}

func (m *Authenticate) withIdentity(ctx context.Context, payload model.Payload, creds transport.Credentials) context.Context {
	ctx = m.contextManager.SetPayloadToContext(ctx, payload)
	return m.contextManager.SetSIDToContext(ctx, creds.SID)
}
