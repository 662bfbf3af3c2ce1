package postgres

import (
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})

	return db, mock
}

var userColumnNames = []string{
	"id", "uuid", "email", "password_hash", "role", "email_verified", "is_active",
	"display_name", "avatar_key", "last_login_at", "created_at", "updated_at",
}

func userRow(id int64, u uuid.UUID, email string, lastLogin any) *sqlmock.Rows {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return sqlmock.NewRows(userColumnNames).AddRow(
		id, u.String(), email, "$argon2id$hash", "user", false, true,
		"Alice", "", lastLogin, now, now,
	)
}
