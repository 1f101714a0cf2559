package handlers

import (
	"net/http"

	"go.uber.org/zap"
)

// ReadyChecker reports whether the switch session is up.
type ReadyChecker interface {
	Connected() bool
}

// HealthHandler handles liveness and readiness checks.
type HealthHandler struct {
	ready  ReadyChecker
	logger *zap.Logger
}

func NewHealthHandler(ready ReadyChecker, logger *zap.Logger) *HealthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthHandler{ready: ready, logger: logger}
}

// HandleHealth handles GET /api/v1/health. The process answering is enough.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, h.logger, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleReady handles GET /api/v1/ready: ready once the switch session is
// logged in and the state has been loaded.
func (h *HealthHandler) HandleReady(w http.ResponseWriter, r *http.Request) {
	if h.ready == nil || !h.ready.Connected() {
		respondWithError(w, h.logger, http.StatusServiceUnavailable, "switch not connected")
		return
	}
	respondWithJSON(w, h.logger, http.StatusOK, map[string]string{"status": "ready"})
}
