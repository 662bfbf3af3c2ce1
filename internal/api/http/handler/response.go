package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/dtroode/identity-server/internal/model"
)

const maxJSONBodyBytes = 1 << 20

type errorResponse struct {
	Error string `json:"error"`
}

type userResponse struct {
	UUID          string     `json:"uuid"`
	Email         string     `json:"email"`
	DisplayName   string     `json:"displayName,omitempty"`
	Role          model.Role `json:"role"`
	EmailVerified bool       `json:"emailVerified"`
	HasAvatar     bool       `json:"hasAvatar"`
	CreatedAt     time.Time  `json:"createdAt"`
	LastLoginAt   *time.Time `json:"lastLoginAt,omitempty"`
}

func newUserResponse(u model.User) userResponse {
	return userResponse{
		UUID:          u.UUID.String(),
		Email:         u.Email,
		DisplayName:   u.DisplayName,
		Role:          u.Role,
		EmailVerified: u.EmailVerified,
		HasAvatar:     u.AvatarKey != "",
		CreatedAt:     u.CreatedAt,
		LastLoginAt:   u.LastLoginAt,
	}
}

type loginResponse struct {
	User      userResponse `json:"user"`
	CSRFToken string       `json:"csrfToken"`
}

type sessionResponse struct {
	Authenticated bool   `json:"authenticated"`
	UUID          string `json:"uuid,omitempty"`
	Email         string `json:"email,omitempty"`
}

type csrfResponse struct {
	CSRFToken string `json:"csrfToken"`
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeJSON reads a single JSON object into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return model.NewBadRequest("request body is too large")
		}
		return model.NewBadRequest("invalid request body")
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return model.NewBadRequest("request body must contain a single object")
	}

	return nil
}
