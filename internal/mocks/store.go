package mocks

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/dtroode/identity-server/internal/model"
)

// UserStore mocks model.UserStore.
type UserStore struct {
	mock.Mock
}

func (m *UserStore) GetByID(ctx context.Context, id int64) (model.User, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(model.User), args.Error(1)
}

func (m *UserStore) GetByUUID(ctx context.Context, id uuid.UUID) (model.User, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(model.User), args.Error(1)
}

func (m *UserStore) GetByEmail(ctx context.Context, email string) (model.User, error) {
	args := m.Called(ctx, email)
	return args.Get(0).(model.User), args.Error(1)
}

func (m *UserStore) Create(ctx context.Context, user model.User) (model.User, error) {
	args := m.Called(ctx, user)
	return args.Get(0).(model.User), args.Error(1)
}

func (m *UserStore) Update(ctx context.Context, id int64, fields model.UserUpdate) (model.User, error) {
	args := m.Called(ctx, id, fields)
	return args.Get(0).(model.User), args.Error(1)
}

func (m *UserStore) Delete(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// RefreshTokenStore mocks model.RefreshTokenStore.
type RefreshTokenStore struct {
	mock.Mock
}

func (m *RefreshTokenStore) Create(ctx context.Context, token model.RefreshToken) error {
	args := m.Called(ctx, token)
	return args.Error(0)
}

func (m *RefreshTokenStore) FindActive(ctx context.Context, tokenID uuid.UUID) (model.RefreshToken, error) {
	args := m.Called(ctx, tokenID)
	return args.Get(0).(model.RefreshToken), args.Error(1)
}

func (m *RefreshTokenStore) Consume(ctx context.Context, tokenID uuid.UUID) (bool, error) {
	args := m.Called(ctx, tokenID)
	return args.Bool(0), args.Error(1)
}

func (m *RefreshTokenStore) DeactivateAllByUser(ctx context.Context, userID int64) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

// SessionStore mocks model.SessionStore.
type SessionStore struct {
	mock.Mock
}

func (m *SessionStore) Create(ctx context.Context, session model.Session) error {
	args := m.Called(ctx, session)
	return args.Error(0)
}

func (m *SessionStore) GetBySID(ctx context.Context, sid uuid.UUID) (model.Session, error) {
	args := m.Called(ctx, sid)
	return args.Get(0).(model.Session), args.Error(1)
}

func (m *SessionStore) DeactivateAllByUser(ctx context.Context, userID int64) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func (m *SessionStore) End(ctx context.Context, sid uuid.UUID, endedAt time.Time) error {
	args := m.Called(ctx, sid, endedAt)
	return args.Error(0)
}

// OneTimeTokenStore mocks model.OneTimeTokenStore.
type OneTimeTokenStore struct {
	mock.Mock
}

func (m *OneTimeTokenStore) Create(ctx context.Context, token model.OneTimeToken) error {
	args := m.Called(ctx, token)
	return args.Error(0)
}

func (m *OneTimeTokenStore) Consume(ctx context.Context, tokenID uuid.UUID, purpose model.TokenPurpose) (model.OneTimeToken, bool, error) {
	args := m.Called(ctx, tokenID, purpose)
	return args.Get(0).(model.OneTimeToken), args.Bool(1), args.Error(2)
}

func (m *OneTimeTokenStore) DeactivateAllByUser(ctx context.Context, userID int64, purpose model.TokenPurpose) error {
	args := m.Called(ctx, userID, purpose)
	return args.Error(0)
}

// OAuthLinkStore mocks model.OAuthLinkStore.
type OAuthLinkStore struct {
	mock.Mock
}

func (m *OAuthLinkStore) Get(ctx context.Context, provider, subject string) (model.OAuthLink, error) {
	args := m.Called(ctx, provider, subject)
	return args.Get(0).(model.OAuthLink), args.Error(1)
}

func (m *OAuthLinkStore) Create(ctx context.Context, link model.OAuthLink) error {
	args := m.Called(ctx, link)
	return args.Error(0)
}

// Transactor runs callbacks inline without a real transaction.
type Transactor struct {
	mock.Mock
}

func (m *Transactor) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	args := m.Called(ctx)
	if err := args.Error(0); err != nil {
		return err
	}
	return fn(ctx)
}
