package handler

import (
	"context"
	"net/http"

	"github.com/dtroode/identity-server/internal/logger"
)

// Pinger reports whether the credential store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Health struct {
	store  Pinger
	logger *logger.Logger
}

func NewHealth(store Pinger, logger *logger.Logger) *Health {
	return &Health{store: store, logger: logger}
}

func (h *Health) Check(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		h.logger.Error("Health handler: store is unreachable",
			"error", err.Error())
		WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
