package context

import (
	"context"

	"github.com/google/uuid"

	"github.com/dtroode/identity-server/internal/model"
)

type payloadKey struct{}

type sidKey struct{}

var _ model.ContextManager = (*Manager)(nil)

// Manager keeps the authenticated payload and session id on request contexts.
type Manager struct{}

// NewManager creates a new context manager instance.
func NewManager() *Manager {
	return &Manager{}
}

// SetPayloadToContext returns a copy of ctx carrying payload.
func (m *Manager) SetPayloadToContext(ctx context.Context, payload model.Payload) context.Context {
	return context.WithValue(ctx, payloadKey{}, payload)
}

// GetPayloadFromContext returns the payload set by the authentication gate.
// A payload without a user UUID counts as absent.
func (m *Manager) GetPayloadFromContext(ctx context.Context) (model.Payload, bool) {
	payload, ok := ctx.Value(payloadKey{}).(model.Payload)
	if !ok || payload.UUID == uuid.Nil {
		return model.Payload{}, false
	}
	return payload, true
}

func (m *Manager) SetSIDToContext(ctx context.Context, sid uuid.UUID) context.Context {
	return context.WithValue(ctx, sidKey{}, sid)
}

func (m *Manager) GetSIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	sid, ok := ctx.Value(sidKey{}).(uuid.UUID)
	if !ok || sid == uuid.Nil {
		return uuid.Nil, false
	}
	return sid, true
}
