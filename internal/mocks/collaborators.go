package mocks

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"

	"github.com/dtroode/identity-server/internal/model"
)

// Mailer mocks model.Mailer.
type Mailer struct {
	mock.Mock
}

func (m *Mailer) Send(ctx context.Context, msg model.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

// Storage mocks model.Storage.
type Storage struct {
	mock.Mock
}

func (m *Storage) Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	args := m.Called(ctx, key, reader, size, contentType)
	return args.Error(0)
}

func (m *Storage) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	args := m.Called(ctx, key)
	if rc, ok := args.Get(0).(io.ReadCloser); ok {
		return rc, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *Storage) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *Storage) Exists(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

// RateLimiter mocks model.RateLimiter.
type RateLimiter struct {
	mock.Mock
}

func (m *RateLimiter) CheckLogin(ctx context.Context, email, clientIP string) error {
	args := m.Called(ctx, email, clientIP)
	return args.Error(0)
}

func (m *RateLimiter) RecordLoginFailure(ctx context.Context, email, clientIP string) error {
	args := m.Called(ctx, email, clientIP)
	return args.Error(0)
}

func (m *RateLimiter) ResetLogin(ctx context.Context, email, clientIP string) error {
	args := m.Called(ctx, email, clientIP)
	return args.Error(0)
}

func (m *RateLimiter) CheckPasswordReset(ctx context.Context, email, clientIP string) error {
	args := m.Called(ctx, email, clientIP)
	return args.Error(0)
}

// IdentityVerifier mocks model.IdentityVerifier.
type IdentityVerifier struct {
	mock.Mock
}

func (m *IdentityVerifier) Verify(ctx context.Context, idToken string) (model.ExternalIdentity, error) {
	args := m.Called(ctx, idToken)
	return args.Get(0).(model.ExternalIdentity), args.Error(1)
}
