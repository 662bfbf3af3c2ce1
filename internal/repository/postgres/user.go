package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dtroode/identity-server/internal/model"
)

var _ model.UserStore = (*UserRepository)(nil)

const uniqueViolation = "23505"

const userColumns = `id, uuid, email, password_hash, role, email_verified, is_active,
	display_name, avatar_key, last_login_at, created_at, updated_at`

type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{
		db: db,
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (model.User, error) {
	var (
		user      model.User
		role      string
		lastLogin sql.NullTime
	)

	err := row.Scan(
		&user.ID, &user.UUID, &user.Email, &user.PasswordHash, &role, &user.EmailVerified, &user.Active,
		&user.DisplayName, &user.AvatarKey, &lastLogin, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return model.User{}, err
	}

	user.Role = model.Role(role)
	if lastLogin.Valid {
		t := lastLogin.Time
		user.LastLoginAt = &t
	}

	return user, nil
}

func (r *UserRepository) getBy(ctx context.Context, column string, arg any) (model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE ` + column + ` = $1`

	user, err := scanUser(executor(ctx, r.db).QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, model.ErrNotFound
		}
		return model.User{}, fmt.Errorf("failed to get user by %s: %w", column, err)
	}

	return user, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (model.User, error) {
	return r.getBy(ctx, "id", id)
}

func (r *UserRepository) GetByUUID(ctx context.Context, id uuid.UUID) (model.User, error) {
	return r.getBy(ctx, "uuid", id)
}

// GetByEmail matches case-insensitively; emails are stored lower-cased.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (model.User, error) {
	return r.getBy(ctx, "email", strings.ToLower(email))
}

func (r *UserRepository) Create(ctx context.Context, user model.User) (model.User, error) {
	query := `INSERT INTO users (uuid, email, password_hash, role, email_verified, is_active, display_name, avatar_key)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			  RETURNING ` + userColumns

	if user.UUID == uuid.Nil {
		user.UUID = uuid.New()
	}
	if user.Role == "" {
		user.Role = model.RoleUser
	}

	saved, err := scanUser(executor(ctx, r.db).QueryRowContext(ctx, query,
		user.UUID, strings.ToLower(user.Email), user.PasswordHash, string(user.Role),
		user.EmailVerified, user.Active, user.DisplayName, user.AvatarKey,
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return model.User{}, model.ErrAlreadyExists
		}
		return model.User{}, fmt.Errorf("failed to create user: %w", err)
	}

	return saved, nil
}

// Update sets only the non-nil fields of fields and returns the stored row.
func (r *UserRepository) Update(ctx context.Context, id int64, fields model.UserUpdate) (model.User, error) {
	if fields.IsEmpty() {
		return r.GetByID(ctx, id)
	}

	var (
		sets []string
		args []any
	)
	add := func(column string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if fields.PasswordHash != nil {
		add("password_hash", *fields.PasswordHash)
	}
	if fields.Role != nil {
		add("role", string(*fields.Role))
	}
	if fields.EmailVerified != nil {
		add("email_verified", *fields.EmailVerified)
	}
	if fields.Active != nil {
		add("is_active", *fields.Active)
	}
	if fields.DisplayName != nil {
		add("display_name", *fields.DisplayName)
	}
	if fields.AvatarKey != nil {
		add("avatar_key", *fields.AvatarKey)
	}
	if fields.LastLoginAt != nil {
		add("last_login_at", *fields.LastLoginAt)
	}

	args = append(args, id)
	query := fmt.Sprintf(`UPDATE users SET %s, updated_at = NOW() WHERE id = $%d RETURNING %s`,
		strings.Join(sets, ", "), len(args), userColumns)

	user, err := scanUser(executor(ctx, r.db).QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, model.ErrNotFound
		}
		return model.User{}, fmt.Errorf("failed to update user: %w", err)
	}

	return user, nil
}

// Delete removes the user; tokens, sessions and links go with it by cascade.
func (r *UserRepository) Delete(ctx context.Context, id int64) error {
	res, err := executor(ctx, r.db).ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if n == 0 {
		return model.ErrNotFound
	}

	return nil
}
