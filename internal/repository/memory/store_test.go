package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtroode/identity-server/internal/model"
)

func createUser(t *testing.T, s *Store, email string) model.User {
	t.Helper()

	user, err := s.Users().Create(context.Background(), model.User{Email: email, Active: true})
	require.NoError(t, err)

	return user
}

func TestUserRepository(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	users := s.Users()

	user, err := users.Create(ctx, model.User{Email: "Alice@Example.com", Active: true})
	require.NoError(t, err)
	assert.Equal(t, int64(1), user.ID)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.Equal(t, model.RoleUser, user.Role)
	assert.NotEqual(t, uuid.Nil, user.UUID)

	_, err = users.Create(ctx, model.User{Email: "alice@example.com"})
	assert.ErrorIs(t, err, model.ErrAlreadyExists)

	got, err := users.GetByEmail(ctx, "ALICE@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	got, err = users.GetByUUID(ctx, user.UUID)
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	name := "Alice"
	got, err = users.Update(ctx, user.ID, model.UserUpdate{DisplayName: &name})
	require.NoError(t, err)
	assert.Equal(t, "Alice", got.DisplayName)

	_, err = users.Update(ctx, 42, model.UserUpdate{DisplayName: &name})
	assert.ErrorIs(t, err, model.ErrNotFound)

	_, err = users.GetByID(ctx, 42)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestRefreshTokenRepository_OneActivePerUser(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	user := createUser(t, s, "a@example.com")
	tokens := s.RefreshTokens()

	first := uuid.New()
	require.NoError(t, tokens.Create(ctx, model.RefreshToken{TokenID: first, UserID: user.ID}))

	err := tokens.Create(ctx, model.RefreshToken{TokenID: uuid.New(), UserID: user.ID})
	assert.ErrorIs(t, err, ErrConstraint)

	ok, err := tokens.Consume(ctx, first)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = tokens.Consume(ctx, first)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = tokens.FindActive(ctx, first)
	assert.ErrorIs(t, err, model.ErrNotFound)

	require.NoError(t, tokens.Create(ctx, model.RefreshToken{TokenID: uuid.New(), UserID: user.ID}))
	require.NoError(t, tokens.DeactivateAllByUser(ctx, user.ID))

	n, err := tokens.ActiveCount(ctx, user.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSessionRepository(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	user := createUser(t, s, "a@example.com")
	sessions := s.Sessions()

	sid := uuid.New()
	require.NoError(t, sessions.Create(ctx, model.Session{SID: sid, UserID: user.ID, AccessToken: "a", CSRFToken: "c"}))

	err := sessions.Create(ctx, model.Session{SID: uuid.New(), UserID: user.ID})
	assert.ErrorIs(t, err, ErrConstraint)

	ended := time.Now()
	require.NoError(t, sessions.End(ctx, sid, ended))

	got, err := sessions.GetBySID(ctx, sid)
	require.NoError(t, err)
	assert.False(t, got.Active)
	require.NotNil(t, got.EndTime)

	assert.ErrorIs(t, sessions.End(ctx, uuid.New(), ended), model.ErrNotFound)
}

func TestOneTimeTokenRepository(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	user := createUser(t, s, "a@example.com")
	oneTime := s.OneTimeTokens()

	id := uuid.New()
	require.NoError(t, oneTime.Create(ctx, model.OneTimeToken{TokenID: id, UserID: user.ID, Purpose: model.PurposeEmailVerify}))

	_, ok, err := oneTime.Consume(ctx, id, model.PurposePasswordReset)
	require.NoError(t, err)
	assert.False(t, ok)

	got, ok, err := oneTime.Consume(ctx, id, model.PurposeEmailVerify)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, user.ID, got.UserID)

	_, ok, err = oneTime.Consume(ctx, id, model.PurposeEmailVerify)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUserRepository_DeleteCascades(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	user := createUser(t, s, "a@example.com")

	sid := uuid.New()
	require.NoError(t, s.RefreshTokens().Create(ctx, model.RefreshToken{TokenID: uuid.New(), UserID: user.ID}))
	require.NoError(t, s.Sessions().Create(ctx, model.Session{SID: sid, UserID: user.ID}))
	require.NoError(t, s.OAuthLinks().Create(ctx, model.OAuthLink{Provider: model.ProviderGoogle, Subject: "1", UserID: user.ID}))

	require.NoError(t, s.Users().Delete(ctx, user.ID))

	_, err := s.Sessions().GetBySID(ctx, sid)
	assert.ErrorIs(t, err, model.ErrNotFound)
	_, err = s.OAuthLinks().Get(ctx, model.ProviderGoogle, "1")
	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.ErrorIs(t, s.Users().Delete(ctx, user.ID), model.ErrNotFound)
}

func TestStore_WithinTx_Rollback(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	user := createUser(t, s, "a@example.com")

	id := uuid.New()
	require.NoError(t, s.RefreshTokens().Create(ctx, model.RefreshToken{TokenID: id, UserID: user.ID}))

	boom := errors.New("boom")
	err := s.WithinTx(ctx, func(ctx context.Context) error {
		ok, err := s.RefreshTokens().Consume(ctx, id)
		require.NoError(t, err)
		require.True(t, ok)

		_, err = s.Users().Create(ctx, model.User{Email: "b@example.com"})
		require.NoError(t, err)

		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = s.RefreshTokens().FindActive(ctx, id)
	require.NoError(t, err)
	_, err = s.Users().GetByEmail(ctx, "b@example.com")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestStore_WithinTx_Commit(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	user := createUser(t, s, "a@example.com")

	err := s.WithinTx(ctx, func(ctx context.Context) error {
		return s.WithinTx(ctx, func(ctx context.Context) error {
			return s.RefreshTokens().Create(ctx, model.RefreshToken{TokenID: uuid.New(), UserID: user.ID})
		})
	})
	require.NoError(t, err)

	n, err := s.RefreshTokens().ActiveCount(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestStore_ConcurrentConsume(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	user := createUser(t, s, "a@example.com")

	id := uuid.New()
	require.NoError(t, s.RefreshTokens().Create(ctx, model.RefreshToken{TokenID: id, UserID: user.ID}))

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.WithinTx(ctx, func(ctx context.Context) error {
				ok, err := s.RefreshTokens().Consume(ctx, id)
				if err != nil {
					return err
				}
				if ok {
					mu.Lock()
					wins++
					mu.Unlock()
				}
				return nil
			})
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
}

func TestStore_CancelledContext(t *testing.T) {
	s := NewStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Users().GetByID(ctx, 1)
	assert.ErrorIs(t, err, context.Canceled)
}
