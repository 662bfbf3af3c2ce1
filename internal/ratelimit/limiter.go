package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dtroode/identity-server/internal/model"
)

var _ model.RateLimiter = (*Limiter)(nil)

// Config holds fixed-window limits.
type Config struct {
	MaxLoginAttempts int
	LoginWindow      time.Duration
	MaxResetRequests int
	ResetWindow      time.Duration
}

// Limiter keeps fixed-window counters in Redis, keyed by email and by client IP.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a Limiter backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	return &Limiter{
		redis:  redisClient,
		config: cfg,
	}
}

// CheckLogin fails once either the email or the IP used up its failure budget.
func (l *Limiter) CheckLogin(ctx context.Context, email, clientIP string) error {
	for _, key := range loginKeys(email, clientIP) {
		if err := l.checkCounter(ctx, key, l.config.MaxLoginAttempts); err != nil {
			return err
		}
	}
	return nil
}

// RecordLoginFailure counts one failed attempt.
func (l *Limiter) RecordLoginFailure(ctx context.Context, email, clientIP string) error {
	for _, key := range loginKeys(email, clientIP) {
		if _, err := l.incrementWithTTL(ctx, key, l.config.LoginWindow); err != nil {
			return err
		}
	}
	return nil
}

// ResetLogin clears the email counter after a successful login. The IP
// counter is left alone so one good account does not unlock spraying.
func (l *Limiter) ResetLogin(ctx context.Context, email, _ string) error {
	if err := l.redis.Del(ctx, loginEmailKey(email)).Err(); err != nil {
		return fmt.Errorf("%w: %v", model.ErrLimiterUnavailable, err)
	}
	return nil
}

// CheckPasswordReset counts the request and fails past the window budget.
func (l *Limiter) CheckPasswordReset(ctx context.Context, email, clientIP string) error {
	keys := []string{resetEmailKey(email)}
	if clientIP != "" {
		keys = append(keys, resetIPKey(clientIP))
	}

	for _, key := range keys {
		count, err := l.incrementWithTTL(ctx, key, l.config.ResetWindow)
		if err != nil {
			return err
		}
		if count > int64(l.config.MaxResetRequests) {
			return model.ErrRateLimited
		}
	}
	return nil
}

func (l *Limiter) checkCounter(ctx context.Context, key string, maxAttempts int) error {
	count, err := l.redis.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", model.ErrLimiterUnavailable, err)
	}

	if count >= int64(maxAttempts) {
		return model.ErrRateLimited
	}
	return nil
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", model.ErrLimiterUnavailable, err)
	}

	// the window starts with the first hit
	if count == 1 {
		if err := l.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", model.ErrLimiterUnavailable, err)
		}
	}

	return count, nil
}

func loginKeys(email, clientIP string) []string {
	keys := []string{loginEmailKey(email)}
	if clientIP != "" {
		keys = append(keys, loginIPKey(clientIP))
	}
	return keys
}

func loginEmailKey(email string) string {
	return "rl:login:email:" + strings.ToLower(email)
}

func loginIPKey(ip string) string {
	return "rl:login:ip:" + ip
}

func resetEmailKey(email string) string {
	return "rl:reset:email:" + strings.ToLower(email)
}

func resetIPKey(ip string) string {
	return "rl:reset:ip:" + ip
}
