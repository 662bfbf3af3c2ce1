package router

import (
	"net/http"
	"time"

	"github.com/dtroode/identity-server/internal/api/http/handler"
	"github.com/dtroode/identity-server/internal/api/http/middleware"
	"github.com/dtroode/identity-server/internal/api/http/transport"
	"github.com/dtroode/identity-server/internal/logger"
	"github.com/dtroode/identity-server/internal/model"
	"github.com/dtroode/identity-server/internal/service"
)

// Services bundles what the routes are served by.
type Services struct {
	Auth         *service.Auth
	Tokens       *service.TokenService
	Sessions     *service.SessionManager
	Reset        *service.PasswordReset
	Verification *service.EmailVerification
	Account      *service.Account
	Store        handler.Pinger
}

// Router builds the HTTP handler of the identity server.
type Router struct {
	services       Services
	transports     *transport.Resolver
	contextManager model.ContextManager
	requestTimeout time.Duration
	maxAvatarBytes int64
	logger         *logger.Logger
}

// New creates new HTTP Router instance.
func New(
	services Services,
	transports *transport.Resolver,
	contextManager model.ContextManager,
	requestTimeout time.Duration,
	maxAvatarBytes int64,
	logger *logger.Logger,
) *Router {
	return &Router{
		services:       services,
		transports:     transports,
		contextManager: contextManager,
		requestTimeout: requestTimeout,
		maxAvatarBytes: maxAvatarBytes,
		logger:         logger,
	}
}

// Register mounts every route and wraps the mux with logging and the
// request timeout.
func (r *Router) Register() http.Handler {
	mux := http.NewServeMux()

	authenticate := middleware.NewAuthenticate(r.services.Tokens, r.transports, r.contextManager, r.logger)
	csrf := middleware.NewCSRF(r.services.Sessions, r.contextManager)
	gated := func(h http.HandlerFunc) http.Handler {
		return authenticate.Require(h)
	}
	guarded := func(h http.HandlerFunc) http.Handler {
		return authenticate.Require(csrf.Handle(h))
	}

	authHandler := handler.NewAuth(
		r.services.Auth,
		r.services.Tokens,
		r.services.Reset,
		r.services.Verification,
		r.transports,
		r.contextManager,
		r.logger,
	)
	mux.HandleFunc("POST /auth/register", authHandler.Register)
	mux.HandleFunc("POST /auth/login", authHandler.Login)
	mux.HandleFunc("POST /auth/google", authHandler.GoogleLogin)
	mux.HandleFunc("POST /auth/refresh", authHandler.Refresh)
	mux.HandleFunc("POST /auth/logout", authHandler.Logout)
	mux.HandleFunc("POST /auth/password/forgot", authHandler.ForgotPassword)
	mux.HandleFunc("POST /auth/password/reset", authHandler.ResetPassword)
	mux.HandleFunc("POST /auth/email/verify", authHandler.VerifyEmail)
	mux.Handle("POST /auth/email/resend", gated(authHandler.ResendVerification))
	mux.Handle("GET /auth/session", authenticate.Optional(http.HandlerFunc(authHandler.Session)))

	accountHandler := handler.NewAccount(r.services.Account, r.transports, r.contextManager, r.maxAvatarBytes, r.logger)
	mux.Handle("GET /users/me", gated(accountHandler.Me))
	mux.Handle("PATCH /users/me", guarded(accountHandler.UpdateMe))
	mux.Handle("PUT /users/me/password", guarded(accountHandler.ChangePassword))
	mux.Handle("PUT /users/me/avatar", guarded(accountHandler.PutAvatar))
	mux.Handle("DELETE /users/me", guarded(accountHandler.DeleteMe))
	mux.HandleFunc("GET /users/{uuid}/avatar", accountHandler.Avatar)
	mux.Handle("POST /admin/users/{uuid}/deactivate", guarded(accountHandler.Deactivate))

	healthHandler := handler.NewHealth(r.services.Store, r.logger)
	mux.HandleFunc("GET /healthz", healthHandler.Check)

	logging := middleware.NewLogging(r.logger)
	return logging.Handle(middleware.Timeout(r.requestTimeout)(mux))
}
