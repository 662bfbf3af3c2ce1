package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtroode/identity-server/internal/model"
)

func TestRefreshTokenRepository_Create(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRefreshTokenRepository(db)
	id := uuid.New()

	mock.ExpectExec(`INSERT INTO refresh_tokens \(token_id, user_id, is_active, created_at\)`).
		WithArgs(id, int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Create(context.Background(), model.RefreshToken{TokenID: id, UserID: 3}))
}

func TestRefreshTokenRepository_FindActive(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRefreshTokenRepository(db)
	id := uuid.New()
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT token_id, user_id, is_active, created_at FROM refresh_tokens WHERE token_id = \$1 AND is_active`).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"token_id", "user_id", "is_active", "created_at"}).
			AddRow(id.String(), int64(3), true, created))

	got, err := repo.FindActive(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, id, got.TokenID)
	assert.Equal(t, int64(3), got.UserID)
	assert.True(t, got.Active)
}

func TestRefreshTokenRepository_FindActive_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRefreshTokenRepository(db)

	mock.ExpectQuery(`FROM refresh_tokens WHERE token_id = \$1 AND is_active`).
		WillReturnRows(sqlmock.NewRows([]string{"token_id", "user_id", "is_active", "created_at"}))

	_, err := repo.FindActive(context.Background(), uuid.New())
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestRefreshTokenRepository_Consume(t *testing.T) {
	tests := []struct {
		name     string
		affected int64
		want     bool
	}{
		{name: "active token", affected: 1, want: true},
		{name: "already consumed", affected: 0, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newMockDB(t)
			repo := NewRefreshTokenRepository(db)
			id := uuid.New()

			mock.ExpectExec(`UPDATE refresh_tokens SET is_active = FALSE WHERE token_id = \$1 AND is_active`).
				WithArgs(id).
				WillReturnResult(sqlmock.NewResult(0, tt.affected))

			got, err := repo.Consume(context.Background(), id)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRefreshTokenRepository_Consume_Error(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRefreshTokenRepository(db)

	mock.ExpectExec(`UPDATE refresh_tokens`).WillReturnError(errors.New("db down"))

	ok, err := repo.Consume(context.Background(), uuid.New())
	require.Error(t, err)
	assert.False(t, ok)
}

func TestRefreshTokenRepository_DeactivateAllByUser(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRefreshTokenRepository(db)

	mock.ExpectExec(`UPDATE refresh_tokens SET is_active = FALSE WHERE user_id = \$1 AND is_active`).
		WithArgs(int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 2))

	require.NoError(t, repo.DeactivateAllByUser(context.Background(), 3))
}

func refreshTokenFor(userID int64) model.RefreshToken {
	return model.RefreshToken{TokenID: uuid.New(), UserID: userID}
}
