package ratelimit

import (
	"context"

	"github.com/dtroode/identity-server/internal/model"
)

var _ model.RateLimiter = Noop{}

// Noop allows everything. Used when Redis is not configured.
type Noop struct{}

func (Noop) CheckLogin(context.Context, string, string) error         { return nil }
func (Noop) RecordLoginFailure(context.Context, string, string) error { return nil }
func (Noop) ResetLogin(context.Context, string, string) error         { return nil }
func (Noop) CheckPasswordReset(context.Context, string, string) error { return nil }
