package handler

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/dtroode/identity-server/internal/api/http/transport"
	"github.com/dtroode/identity-server/internal/logger"
	"github.com/dtroode/identity-server/internal/model"
)

// AuthService defines registration and login operations.
type AuthService interface {
	Register(ctx context.Context, email, password, displayName string) (model.User, error)
	Login(ctx context.Context, email, password, clientIP string) (model.LoginResult, error)
	GoogleLogin(ctx context.Context, idToken, clientIP string) (model.LoginResult, error)
}

// TokenService defines rotation and logout.
type TokenService interface {
	RotateSession(ctx context.Context, refreshToken string, sid uuid.UUID, clientIP string) (model.LoginResult, error)
	Logout(ctx context.Context, sid uuid.UUID) error
}

// PasswordResetService defines the forgot/reset flow.
type PasswordResetService interface {
	Forgot(ctx context.Context, email, clientIP string) error
	Reset(ctx context.Context, token, newPassword string) error
}

// EmailVerificationService defines email confirmation.
type EmailVerificationService interface {
	Verify(ctx context.Context, token string) error
	Resend(ctx context.Context, userUUID uuid.UUID) error
}

// Auth handles the /auth endpoints.
type Auth struct {
	authService    AuthService
	tokenService   TokenService
	resetService   PasswordResetService
	verifyService  EmailVerificationService
	transports     *transport.Resolver
	contextManager model.ContextManager
	logger         *logger.Logger
}

// NewAuth creates a new Auth handler.
func NewAuth(
	authService AuthService,
	tokenService TokenService,
	resetService PasswordResetService,
	verifyService EmailVerificationService,
	transports *transport.Resolver,
	contextManager model.ContextManager,
	logger *logger.Logger,
) *Auth {
	return &Auth{
		authService:    authService,
		tokenService:   tokenService,
		resetService:   resetService,
		verifyService:  verifyService,
		transports:     transports,
		contextManager: contextManager,
		logger:         logger,
	}
}

type registerRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
}

// Register creates an account.
func (h *Auth) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, err)
		return
	}

	user, err := h.authService.Register(r.Context(), req.Email, req.Password, req.DisplayName)
	if err != nil {
		h.logger.Debug("Auth handler: registration failed",
			"email", req.Email,
			"error", err.Error())
		WriteError(w, err)
		return
	}

	WriteJSON(w, http.StatusCreated, newUserResponse(user))
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login authenticates with email and password.
func (h *Auth) Login(w http.ResponseWriter, r *http.Request) {
	tr, err := h.transports.Resolve(r)
	if err != nil {
		WriteError(w, err)
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, err)
		return
	}

	res, err := h.authService.Login(r.Context(), req.Email, req.Password, transport.ClientIP(r))
	if err != nil {
		h.logger.Debug("Auth handler: login failed",
			"email", req.Email,
			"error", err.Error())
		WriteError(w, err)
		return
	}

	h.writeLogin(w, tr, res)
}

type googleLoginRequest struct {
	IDToken string `json:"idToken"`
}

// GoogleLogin authenticates with a Google ID token.
func (h *Auth) GoogleLogin(w http.ResponseWriter, r *http.Request) {
	tr, err := h.transports.Resolve(r)
	if err != nil {
		WriteError(w, err)
		return
	}

	var req googleLoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, err)
		return
	}

	res, err := h.authService.GoogleLogin(r.Context(), req.IDToken, transport.ClientIP(r))
	if err != nil {
		WriteError(w, err)
		return
	}

	h.writeLogin(w, tr, res)
}

// Refresh rotates the presented refresh token. Rejected tokens clear the
// client credentials; server failures leave them untouched.
func (h *Auth) Refresh(w http.ResponseWriter, r *http.Request) {
	tr, err := h.transports.Resolve(r)
	if err != nil {
		WriteError(w, err)
		return
	}

	creds := tr.Read(r)
	if creds.RefreshToken == "" {
		WriteError(w, model.NewUnauthorized("refresh token is required"))
		return
	}

	res, err := h.tokenService.RotateSession(r.Context(), creds.RefreshToken, creds.SID, transport.ClientIP(r))
	if err != nil {
		if model.KindOf(err) != model.KindServerError {
			tr.Clear(w)
		}
		WriteError(w, err)
		return
	}

	tr.Write(w, transport.FromPair(res.Tokens))
	w.Header().Set(transport.HeaderCSRFToken, res.CSRFToken)
	WriteJSON(w, http.StatusOK, csrfResponse{CSRFToken: res.CSRFToken})
}

// Logout ends the session named by the client and always clears credentials.
func (h *Auth) Logout(w http.ResponseWriter, r *http.Request) {
	tr, err := h.transports.Resolve(r)
	if err != nil {
		WriteError(w, err)
		return
	}

	if sid := tr.Read(r).SID; sid != uuid.Nil {
		if err := h.tokenService.Logout(r.Context(), sid); err != nil {
			h.logger.Error("Auth handler: logout failed",
				"sid", sid.String(),
				"error", err.Error())
		}
	}

	tr.Clear(w)
	w.WriteHeader(http.StatusNoContent)
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

// ForgotPassword accepts every well-formed request with 202.
func (h *Auth) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, err)
		return
	}

	if err := h.resetService.Forgot(r.Context(), req.Email, transport.ClientIP(r)); err != nil {
		WriteError(w, err)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

type resetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

func (h *Auth) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, err)
		return
	}

	if err := h.resetService.Reset(r.Context(), req.Token, req.Password); err != nil {
		WriteError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type verifyEmailRequest struct {
	Token string `json:"token"`
}

func (h *Auth) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req verifyEmailRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, err)
		return
	}

	if err := h.verifyService.Verify(r.Context(), req.Token); err != nil {
		WriteError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ResendVerification requires an authenticated user.
func (h *Auth) ResendVerification(w http.ResponseWriter, r *http.Request) {
	payload, ok := h.contextManager.GetPayloadFromContext(r.Context())
	if !ok {
		WriteError(w, errLoginRequired)
		return
	}

	if err := h.verifyService.Resend(r.Context(), payload.UUID); err != nil {
		WriteError(w, err)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

// Session tells the client whether its credentials are still good. It never
// answers 401, so clients can ask before showing a login screen.
func (h *Auth) Session(w http.ResponseWriter, r *http.Request) {
	payload, ok := h.contextManager.GetPayloadFromContext(r.Context())
	if !ok {
		WriteJSON(w, http.StatusOK, sessionResponse{})
		return
	}

	WriteJSON(w, http.StatusOK, sessionResponse{
		Authenticated: true,
		UUID:          payload.UUID.String(),
		Email:         payload.Email,
	})
}

func (h *Auth) writeLogin(w http.ResponseWriter, tr transport.CredentialTransport, res model.LoginResult) {
	tr.Write(w, transport.FromPair(res.Tokens))
	w.Header().Set(transport.HeaderCSRFToken, res.CSRFToken)
	WriteJSON(w, http.StatusOK, loginResponse{
		User:      newUserResponse(res.User),
		CSRFToken: res.CSRFToken,
	})
}
