package model

import (
	"context"

	"github.com/google/uuid"
)

// ContextManager stores the authenticated token payload and the session id
// on a request context.
type ContextManager interface {
	SetPayloadToContext(ctx context.Context, payload Payload) context.Context
	GetPayloadFromContext(ctx context.Context) (Payload, bool)
	SetSIDToContext(ctx context.Context, sid uuid.UUID) context.Context
	GetSIDFromContext(ctx context.Context) (uuid.UUID, bool)
}
