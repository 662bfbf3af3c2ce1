package memory

import (
	"context"

	"github.com/dtroode/identity-server/internal/model"
)

var _ model.OAuthLinkStore = (*OAuthLinkRepository)(nil)

type OAuthLinkRepository struct {
	s *Store
}

func (r *OAuthLinkRepository) Get(ctx context.Context, provider, subject string) (model.OAuthLink, error) {
	unlock, err := r.s.lock(ctx)
	if err != nil {
		return model.OAuthLink{}, err
	}
	defer unlock()

	l, ok := r.s.data.links[linkKey{provider: provider, subject: subject}]
	if !ok {
		return model.OAuthLink{}, model.ErrNotFound
	}
	return l, nil
}

func (r *OAuthLinkRepository) Create(ctx context.Context, link model.OAuthLink) error {
	unlock, err := r.s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	key := linkKey{provider: link.Provider, subject: link.Subject}
	if _, ok := r.s.data.links[key]; ok {
		return model.ErrAlreadyExists
	}

	link.CreatedAt = r.s.now()
	r.s.data.links[key] = link

	return nil
}
