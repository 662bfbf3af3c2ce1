package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	httpctx "github.com/dtroode/identity-server/internal/api/http/context"
	"github.com/dtroode/identity-server/internal/api/http/transport"
	"github.com/dtroode/identity-server/internal/model"
	"github.com/dtroode/identity-server/internal/testutil"
)

type tokenServiceMock struct {
	mock.Mock
}

func (m *tokenServiceMock) VerifyAccess(accessToken string) (model.Payload, error) {
	args := m.Called(accessToken)
	return args.Get(0).(model.Payload), args.Error(1)
}

func (m *tokenServiceMock) RotateSession(ctx context.Context, refreshToken string, sid uuid.UUID, clientIP string) (model.LoginResult, error) {
	args := m.Called(ctx, refreshToken, sid, clientIP)
	return args.Get(0).(model.LoginResult), args.Error(1)
}

func TestAuthenticate_Require(t *testing.T) {
	t.Parallel()

	userUUID := uuid.New()
	sid := uuid.New()
	newSID := uuid.New()
	payload := model.Payload{UUID: userUUID, Email: "bob@example.com"}
	rotated := model.LoginResult{
		Tokens:    model.TokenPair{AccessToken: "access-2", RefreshToken: "refresh-2", SID: newSID},
		CSRFToken: "csrf-2",
		User:      model.User{UUID: userUUID, Email: "bob@example.com"},
	}

	tests := []struct {
		name        string
		platform    string
		access      string
		refresh     string
		verifyErr   error
		rotateErr   error
		wantStatus  int
		wantSID     uuid.UUID
		wantRotated bool
		wantCleared bool
	}{
		{name: "valid token", platform: "app", access: "access-1", wantStatus: http.StatusOK, wantSID: sid},
		{name: "unknown platform", platform: "tv", access: "access-1", wantStatus: http.StatusBadRequest},
		{name: "no token", platform: "app", wantStatus: http.StatusUnauthorized},
		{name: "invalid token", platform: "app", access: "access-1", verifyErr: model.ErrTokenInvalid, wantStatus: http.StatusUnauthorized},
		{name: "expired without refresh", platform: "app", access: "access-1", verifyErr: model.ErrTokenExpired,
			wantStatus: http.StatusUnauthorized, wantCleared: true},
		{name: "expired and rotated", platform: "app", access: "access-1", refresh: "refresh-1", verifyErr: model.ErrTokenExpired,
			wantStatus: http.StatusOK, wantSID: newSID, wantRotated: true},
		{name: "expired and rotation refused", platform: "app", access: "access-1", refresh: "refresh-1", verifyErr: model.ErrTokenExpired,
			rotateErr: model.NewForbidden("invalid refresh token"), wantStatus: http.StatusUnauthorized, wantCleared: true},
		{name: "expired and store down", platform: "app", access: "access-1", refresh: "refresh-1", verifyErr: model.ErrTokenExpired,
			rotateErr: model.NewServerError(context.DeadlineExceeded), wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			svc := &tokenServiceMock{}
			svc.On("VerifyAccess", tt.access).Return(payload, tt.verifyErr).Maybe()
			svc.On("RotateSession", mock.Anything, tt.refresh, sid, mock.Anything).Return(rotated, tt.rotateErr).Maybe()

			cm := httpctx.NewManager()
			m := NewAuthenticate(svc, transport.NewResolver(false, time.Hour), cm, testutil.MakeNoopLogger())

			var gotPayload model.Payload
			var gotSID uuid.UUID
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotPayload, _ = cm.GetPayloadFromContext(r.Context())
				gotSID, _ = cm.GetSIDFromContext(r.Context())
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, "/users/me", nil)
			req.Header.Set(transport.HeaderPlatform, tt.platform)
			if tt.access != "" {
				req.Header.Set(transport.HeaderAuthorize, "Bearer "+tt.access)
			}
			req.Header.Set(transport.HeaderRefreshToken, tt.refresh)
			req.Header.Set(transport.HeaderSessionID, sid.String())

			rec := httptest.NewRecorder()
			m.Require(next).ServeHTTP(rec, req)

			require.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, userUUID, gotPayload.UUID)
				assert.Equal(t, tt.wantSID, gotSID)
			}
			if tt.wantRotated {
				assert.Equal(t, "Bearer access-2", rec.Header().Get(transport.HeaderAuthorize))
				assert.Equal(t, "refresh-2", rec.Header().Get(transport.HeaderRefreshToken))
				assert.Equal(t, "csrf-2", rec.Header().Get(transport.HeaderCSRFToken))
				svc.AssertCalled(t, "RotateSession", mock.Anything, "refresh-1", sid, mock.Anything)
			}
			if tt.wantCleared {
				_, present := rec.Header()[transport.HeaderRefreshToken]
				assert.True(t, present)
				assert.Empty(t, rec.Header().Get(transport.HeaderRefreshToken))
			}
		})
	}
}

func TestAuthenticate_Optional(t *testing.T) {
	t.Parallel()

	userUUID := uuid.New()

	tests := []struct {
		name        string
		platform    string
		access      string
		verifyErr   error
		wantStatus  int
		wantPayload bool
	}{
		{name: "valid token", platform: "app", access: "good", wantStatus: http.StatusNoContent, wantPayload: true},
		{name: "rejected token", platform: "app", access: "bad", verifyErr: model.ErrTokenInvalid, wantStatus: http.StatusNoContent},
		{name: "no token", platform: "app", wantStatus: http.StatusNoContent},
		{name: "unknown platform", platform: "tv", access: "good", wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			svc := &tokenServiceMock{}
			svc.On("VerifyAccess", tt.access).Return(model.Payload{UUID: userUUID}, tt.verifyErr).Maybe()
			cm := httpctx.NewManager()
			m := NewAuthenticate(svc, transport.NewResolver(false, time.Hour), cm, testutil.MakeNoopLogger())

			var gotPayload bool
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, gotPayload = cm.GetPayloadFromContext(r.Context())
				w.WriteHeader(http.StatusNoContent)
			})

			req := httptest.NewRequest(http.MethodGet, "/auth/session", nil)
			req.Header.Set(transport.HeaderPlatform, tt.platform)
			if tt.access != "" {
				req.Header.Set(transport.HeaderAuthorize, "Bearer "+tt.access)
			}
			rec := httptest.NewRecorder()
			m.Optional(next).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantPayload, gotPayload)
		})
	}
}
