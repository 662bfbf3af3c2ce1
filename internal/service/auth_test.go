package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dtroode/identity-server/internal/mocks"
	"github.com/dtroode/identity-server/internal/model"
)

func TestAuth_Register(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.register(t, "taken@example.com", "password123")

	tests := []struct {
		name     string
		email    string
		password string
		display  string
		wantKind model.ErrorKind
		wantErr  bool
	}{
		{name: "ok", email: "  New@Example.com ", password: "password123", display: "New"},
		{name: "duplicate email", email: "TAKEN@example.com", password: "password123", wantErr: true, wantKind: model.KindConflict},
		{name: "short password", email: "short@example.com", password: "short", wantErr: true, wantKind: model.KindBadRequest},
		{name: "invalid email", email: "not-an-email", password: "password123", wantErr: true, wantKind: model.KindBadRequest},
		{name: "display name in address", email: "Bob <bob@example.com>", password: "password123", wantErr: true, wantKind: model.KindBadRequest},
		{name: "empty email", email: "", password: "password123", wantErr: true, wantKind: model.KindBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user, err := env.auth.Register(ctx, tt.email, tt.password, tt.display)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, tt.wantKind, model.KindOf(err))
				return
			}

			require.NoError(t, err)
			assert.Equal(t, "new@example.com", user.Email)
			assert.Equal(t, model.RoleUser, user.Role)
			assert.True(t, user.Active)
			assert.False(t, user.EmailVerified)
			assert.NotEqual(t, "password123", user.PasswordHash)
		})
	}
}

func TestAuth_Register_SendsVerification(t *testing.T) {
	env := newTestEnv(t)

	env.register(t, "bob@example.com", "password123")

	msg := env.outbox.last(t)
	assert.Equal(t, "bob@example.com", msg.To)
	assert.Contains(t, msg.Body, testBaseURL+"/verify-email?token=")
}

func TestAuth_Register_MailFailureKeepsUser(t *testing.T) {
	env := newTestEnv(t)
	env.mailer.ExpectedCalls = nil
	env.mailer.On("Send", mock.Anything, mock.Anything).Return(errors.New("smtp down"))

	user, err := env.auth.Register(context.Background(), "bob@example.com", "password123", "")
	require.NoError(t, err)

	stored, err := env.store.Users().GetByID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, user.UUID, stored.UUID)
}

func TestAuth_Login_FailuresLookAlike(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.register(t, "bob@example.com", "password123")
	disabled := env.register(t, "off@example.com", "password123")
	inactive := false
	_, err := env.store.Users().Update(ctx, disabled.ID, model.UserUpdate{Active: &inactive})
	require.NoError(t, err)

	tests := []struct {
		name     string
		email    string
		password string
	}{
		{name: "unknown email", email: "nobody@example.com", password: "password123"},
		{name: "wrong password", email: "bob@example.com", password: "password124"},
		{name: "disabled account", email: "off@example.com", password: "password123"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.auth.Login(ctx, tt.email, tt.password, "203.0.113.7")
			assert.Equal(t, errInvalidCredentials, err)
		})
	}

	env.limiter.AssertCalled(t, "RecordLoginFailure", mock.Anything, "nobody@example.com", "203.0.113.7")
	env.limiter.AssertCalled(t, "RecordLoginFailure", mock.Anything, "bob@example.com", "203.0.113.7")
}

func TestAuth_Login_NormalizesEmail(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "bob@example.com", "password123")

	res := env.login(t, " BOB@Example.com", "password123")

	assert.Equal(t, "bob@example.com", res.User.Email)
	env.limiter.AssertCalled(t, "ResetLogin", mock.Anything, "bob@example.com", "203.0.113.7")
}

func TestAuth_Login_RateLimited(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "bob@example.com", "password123")
	env.limiter.ExpectedCalls = nil
	env.limiter.On("CheckLogin", mock.Anything, "bob@example.com", mock.Anything).Return(model.ErrRateLimited)

	_, err := env.auth.Login(context.Background(), "bob@example.com", "password123", "203.0.113.7")

	require.Error(t, err)
	assert.Equal(t, model.KindTooManyRequests, model.KindOf(err))
}

func TestAuth_Login_LimiterUnavailableFailsOpen(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "bob@example.com", "password123")
	env.limiter.ExpectedCalls = nil
	env.limiter.On("CheckLogin", mock.Anything, mock.Anything, mock.Anything).Return(model.ErrLimiterUnavailable)
	env.limiter.On("ResetLogin", mock.Anything, mock.Anything, mock.Anything).Return(model.ErrLimiterUnavailable)

	res, err := env.auth.Login(context.Background(), "bob@example.com", "password123", "")

	require.NoError(t, err)
	assert.NotEmpty(t, res.Tokens.AccessToken)
}

func TestAuth_Login_GoogleOnlyAccount(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.store.Users().Create(context.Background(), model.User{Email: "g@example.com", Active: true, EmailVerified: true})
	require.NoError(t, err)

	_, err = env.auth.Login(context.Background(), "g@example.com", "password123", "")

	assert.Equal(t, errInvalidCredentials, err)
}

func TestAuth_GoogleLogin(t *testing.T) {
	ctx := context.Background()
	identity := model.ExternalIdentity{
		Provider:      model.ProviderGoogle,
		Subject:       "1234567890",
		Email:         "Carol@Example.com",
		EmailVerified: true,
		Name:          "Carol",
	}

	t.Run("provisions a new account", func(t *testing.T) {
		env := newTestEnv(t)
		env.google.On("Verify", mock.Anything, "id-token").Return(identity, nil)

		res, err := env.auth.GoogleLogin(ctx, "id-token", "")
		require.NoError(t, err)
		assert.Equal(t, "carol@example.com", res.User.Email)
		assert.True(t, res.User.EmailVerified)
		assert.False(t, res.User.HasPassword())
		assert.Equal(t, "Carol", res.User.DisplayName)

		link, err := env.store.OAuthLinks().Get(ctx, model.ProviderGoogle, "1234567890")
		require.NoError(t, err)
		assert.Equal(t, res.User.ID, link.UserID)

		again, err := env.auth.GoogleLogin(ctx, "id-token", "")
		require.NoError(t, err)
		assert.Equal(t, res.User.ID, again.User.ID)

		tokens, sessions := env.activeCounts(t, res.User.ID)
		assert.Equal(t, 1, tokens)
		assert.Equal(t, 1, sessions)
	})

	t.Run("links a verified account and keeps its password", func(t *testing.T) {
		env := newTestEnv(t)
		existing := env.register(t, "carol@example.com", "password123")
		verified := true
		_, err := env.store.Users().Update(ctx, existing.ID, model.UserUpdate{EmailVerified: &verified})
		require.NoError(t, err)
		env.google.On("Verify", mock.Anything, "id-token").Return(identity, nil)

		res, err := env.auth.GoogleLogin(ctx, "id-token", "")
		require.NoError(t, err)
		assert.Equal(t, existing.ID, res.User.ID)
		assert.True(t, res.User.HasPassword())
		env.login(t, "carol@example.com", "password123")
	})

	t.Run("unverified account loses the squatted password", func(t *testing.T) {
		env := newTestEnv(t)
		squatted := env.register(t, "carol@example.com", "squatter-pass1")
		squatter := env.login(t, "carol@example.com", "squatter-pass1")
		env.google.On("Verify", mock.Anything, "id-token").Return(identity, nil)

		res, err := env.auth.GoogleLogin(ctx, "id-token", "")
		require.NoError(t, err)
		assert.Equal(t, squatted.ID, res.User.ID)
		assert.True(t, res.User.EmailVerified)
		assert.False(t, res.User.HasPassword())

		_, err = env.auth.Login(ctx, "carol@example.com", "squatter-pass1", "")
		assert.Equal(t, errInvalidCredentials, err)

		// only the google session survives
		tokens, sessions := env.activeCounts(t, res.User.ID)
		assert.Equal(t, 1, tokens)
		assert.Equal(t, 1, sessions)

		_, err = env.tokens.Rotate(ctx, squatter.Tokens.RefreshToken, "")
		assert.Equal(t, model.KindForbidden, model.KindOf(err))
	})

	t.Run("invalid token", func(t *testing.T) {
		env := newTestEnv(t)
		env.google.On("Verify", mock.Anything, "bad").Return(model.ExternalIdentity{}, model.ErrTokenInvalid)

		_, err := env.auth.GoogleLogin(ctx, "bad", "")
		require.Error(t, err)
		assert.Equal(t, model.KindUnauthorized, model.KindOf(err))
	})

	t.Run("provider timeout", func(t *testing.T) {
		env := newTestEnv(t)
		env.google.On("Verify", mock.Anything, "slow").Return(model.ExternalIdentity{}, context.DeadlineExceeded)

		_, err := env.auth.GoogleLogin(ctx, "slow", "")
		require.Error(t, err)
		assert.Equal(t, model.KindServerError, model.KindOf(err))
	})

	t.Run("disabled", func(t *testing.T) {
		env := newTestEnv(t)
		env.auth.google = nil

		_, err := env.auth.GoogleLogin(ctx, "id-token", "")
		require.Error(t, err)
		assert.Equal(t, model.KindNotFound, model.KindOf(err))
	})
}

func TestAuth_GoogleLogin_RollsBackOnLinkFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	links := &mocks.OAuthLinkStore{}
	links.On("Get", mock.Anything, model.ProviderGoogle, "42").Return(model.OAuthLink{}, model.ErrNotFound)
	links.On("Create", mock.Anything, mock.Anything).Return(errors.New("insert failed"))
	env.auth.links = links
	env.google.On("Verify", mock.Anything, "id-token").Return(model.ExternalIdentity{
		Provider: model.ProviderGoogle, Subject: "42", Email: "dave@example.com", EmailVerified: true,
	}, nil)

	_, err := env.auth.GoogleLogin(ctx, "id-token", "")
	require.Error(t, err)
	assert.Equal(t, model.KindServerError, model.KindOf(err))

	_, err = env.store.Users().GetByEmail(ctx, "dave@example.com")
	assert.ErrorIs(t, err, model.ErrNotFound)
}
