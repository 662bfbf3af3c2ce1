package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/dtroode/identity-server/internal/api/http/handler"
	"github.com/dtroode/identity-server/internal/api/http/transport"
	"github.com/dtroode/identity-server/internal/model"
)

const csrfFormField = "csrf_token"

// CSRFValidator checks a CSRF token against a session.
type CSRFValidator interface {
	ValidateCSRF(ctx context.Context, owner, sid uuid.UUID, supplied string) error
}

// CSRF guards mutating requests on session-bound resources. It must run
// after Authenticate so that the session id is on the context.
type CSRF struct {
	validator      CSRFValidator
	contextManager model.ContextManager
}

func NewCSRF(validator CSRFValidator, contextManager model.ContextManager) *CSRF {
	return &CSRF{validator: validator, contextManager: contextManager}
}

func (m *CSRF) Handle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		payload, _ := m.contextManager.GetPayloadFromContext(r.Context())
		sid, _ := m.contextManager.GetSIDFromContext(r.Context())

		supplied := r.Header.Get(transport.HeaderCSRFToken)
		if supplied == "" {
			supplied = r.PostFormValue(csrfFormField)
		}

		if err := m.validator.ValidateCSRF(r.Context(), payload.UUID, sid, supplied); err != nil {
			handler.WriteError(w, err)
			return
		}

		next.ServeHTTP(w, r)
	})
}
