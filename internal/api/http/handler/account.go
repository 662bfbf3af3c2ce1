package handler

import (
	"bufio"
	"context"
	"errors"
	"io"
	"mime"
	"net/http"

	"github.com/google/uuid"

	"github.com/dtroode/identity-server/internal/api/http/transport"
	"github.com/dtroode/identity-server/internal/logger"
	"github.com/dtroode/identity-server/internal/model"
)

// AccountService defines profile management operations.
type AccountService interface {
	Profile(ctx context.Context, userUUID uuid.UUID) (model.User, error)
	UpdateProfile(ctx context.Context, userUUID uuid.UUID, displayName string) (model.User, error)
	ChangePassword(ctx context.Context, userUUID uuid.UUID, current, next string) error
	PutAvatar(ctx context.Context, userUUID uuid.UUID, r io.Reader, size int64, contentType string) error
	Avatar(ctx context.Context, userUUID uuid.UUID) (io.ReadCloser, error)
	Delete(ctx context.Context, userUUID uuid.UUID) error
	Deactivate(ctx context.Context, actorUUID, targetUUID uuid.UUID) error
}

// Account handles the /users and /admin endpoints.
type Account struct {
	accountService AccountService
	transports     *transport.Resolver
	contextManager model.ContextManager
	maxAvatarBytes int64
	logger         *logger.Logger
}

// NewAccount creates a new Account handler.
func NewAccount(
	accountService AccountService,
	transports *transport.Resolver,
	contextManager model.ContextManager,
	maxAvatarBytes int64,
	logger *logger.Logger,
) *Account {
	return &Account{
		accountService: accountService,
		transports:     transports,
		contextManager: contextManager,
		maxAvatarBytes: maxAvatarBytes,
		logger:         logger,
	}
}

func (h *Account) Me(w http.ResponseWriter, r *http.Request) {
	payload, ok := h.contextManager.GetPayloadFromContext(r.Context())
	if !ok {
		WriteError(w, errLoginRequired)
		return
	}

	user, err := h.accountService.Profile(r.Context(), payload.UUID)
	if err != nil {
		WriteError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, newUserResponse(user))
}

type updateProfileRequest struct {
	DisplayName string `json:"displayName"`
}

func (h *Account) UpdateMe(w http.ResponseWriter, r *http.Request) {
	payload, ok := h.contextManager.GetPayloadFromContext(r.Context())
	if !ok {
		WriteError(w, errLoginRequired)
		return
	}

	var req updateProfileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, err)
		return
	}

	user, err := h.accountService.UpdateProfile(r.Context(), payload.UUID, req.DisplayName)
	if err != nil {
		WriteError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, newUserResponse(user))
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// ChangePassword logs the user out everywhere, this client included.
func (h *Account) ChangePassword(w http.ResponseWriter, r *http.Request) {
	payload, ok := h.contextManager.GetPayloadFromContext(r.Context())
	if !ok {
		WriteError(w, errLoginRequired)
		return
	}

	var req changePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, err)
		return
	}

	if err := h.accountService.ChangePassword(r.Context(), payload.UUID, req.CurrentPassword, req.NewPassword); err != nil {
		WriteError(w, err)
		return
	}

	h.clearCredentials(w, r)
	w.WriteHeader(http.StatusNoContent)
}

// PutAvatar stores the raw request body as the avatar image.
func (h *Account) PutAvatar(w http.ResponseWriter, r *http.Request) {
	payload, ok := h.contextManager.GetPayloadFromContext(r.Context())
	if !ok {
		WriteError(w, errLoginRequired)
		return
	}

	if r.ContentLength <= 0 {
		WriteError(w, model.NewBadRequest("content length is required"))
		return
	}
	if r.ContentLength > h.maxAvatarBytes {
		WriteError(w, model.NewBadRequest("avatar is too large"))
		return
	}

	contentType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		WriteError(w, model.NewBadRequest("content type is required"))
		return
	}

	body := http.MaxBytesReader(w, r.Body, h.maxAvatarBytes)
	if err := h.accountService.PutAvatar(r.Context(), payload.UUID, body, r.ContentLength, contentType); err != nil {
		WriteError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Avatar streams the avatar of the user named in the path.
func (h *Account) Avatar(w http.ResponseWriter, r *http.Request) {
	userUUID, err := uuid.Parse(r.PathValue("uuid"))
	if err != nil {
		WriteError(w, model.NewBadRequest("invalid user id"))
		return
	}

	rc, err := h.accountService.Avatar(r.Context(), userUUID)
	if err != nil {
		WriteError(w, err)
		return
	}
	defer rc.Close()

	br := bufio.NewReaderSize(rc, 512)
	head, err := br.Peek(512)
	if err != nil && !errors.Is(err, io.EOF) {
		h.logger.Error("Account handler: failed to read avatar",
			"uuid", userUUID.String(),
			"error", err.Error())
		WriteError(w, model.NewServerError(err))
		return
	}

	w.Header().Set("Content-Type", http.DetectContentType(head))
	w.Header().Set("Cache-Control", "public, max-age=300")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, br); err != nil {
		h.logger.Warn("Account handler: avatar stream interrupted",
			"uuid", userUUID.String(),
			"error", err.Error())
	}
}

func (h *Account) DeleteMe(w http.ResponseWriter, r *http.Request) {
	payload, ok := h.contextManager.GetPayloadFromContext(r.Context())
	if !ok {
		WriteError(w, errLoginRequired)
		return
	}

	if err := h.accountService.Delete(r.Context(), payload.UUID); err != nil {
		WriteError(w, err)
		return
	}

	h.clearCredentials(w, r)
	w.WriteHeader(http.StatusNoContent)
}

// Deactivate disables the user named in the path. The service checks the
// caller is an administrator.
func (h *Account) Deactivate(w http.ResponseWriter, r *http.Request) {
	payload, ok := h.contextManager.GetPayloadFromContext(r.Context())
	if !ok {
		WriteError(w, errLoginRequired)
		return
	}

	target, err := uuid.Parse(r.PathValue("uuid"))
	if err != nil {
		WriteError(w, model.NewBadRequest("invalid user id"))
		return
	}

	if err := h.accountService.Deactivate(r.Context(), payload.UUID, target); err != nil {
		WriteError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Account) clearCredentials(w http.ResponseWriter, r *http.Request) {
	if tr, err := h.transports.Resolve(r); err == nil {
		tr.Clear(w)
	}
}
