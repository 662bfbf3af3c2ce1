package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dtroode/identity-server/internal/model"
)

var _ model.OAuthLinkStore = (*OAuthLinkRepository)(nil)

type OAuthLinkRepository struct {
	db *sql.DB
}

func NewOAuthLinkRepository(db *sql.DB) *OAuthLinkRepository {
	return &OAuthLinkRepository{db: db}
}

func (r *OAuthLinkRepository) Get(ctx context.Context, provider, subject string) (model.OAuthLink, error) {
	const query = `
        SELECT provider, subject, user_id, created_at
        FROM oauth_links WHERE provider = $1 AND subject = $2
    `

	var l model.OAuthLink
	err := executor(ctx, r.db).QueryRowContext(ctx, query, provider, subject).Scan(
		&l.Provider, &l.Subject, &l.UserID, &l.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.OAuthLink{}, model.ErrNotFound
		}
		return model.OAuthLink{}, fmt.Errorf("failed to get oauth link: %w", err)
	}

	return l, nil
}

func (r *OAuthLinkRepository) Create(ctx context.Context, link model.OAuthLink) error {
	const query = `
        INSERT INTO oauth_links (provider, subject, user_id, created_at)
        VALUES ($1, $2, $3, NOW())
    `

	_, err := executor(ctx, r.db).ExecContext(ctx, query, link.Provider, link.Subject, link.UserID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return model.ErrAlreadyExists
		}
		return fmt.Errorf("failed to create oauth link: %w", err)
	}
	return nil
}
