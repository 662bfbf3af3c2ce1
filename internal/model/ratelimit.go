package model

import (
	"context"
	"errors"
)

var (
	// ErrRateLimited is returned when a fixed window is exhausted.
	ErrRateLimited = errors.New("rate limited")
	// ErrLimiterUnavailable is returned when the limiter backend cannot be reached.
	ErrLimiterUnavailable = errors.New("rate limiter unavailable")
)

// RateLimiter throttles credential-guessing endpoints. Login counts failed
// attempts only; password reset counts every request.
type RateLimiter interface {
	CheckLogin(ctx context.Context, email, clientIP string) error
	RecordLoginFailure(ctx context.Context, email, clientIP string) error
	ResetLogin(ctx context.Context, email, clientIP string) error
	CheckPasswordReset(ctx context.Context, email, clientIP string) error
}
