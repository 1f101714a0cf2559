package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sweeney/asterisk-proxy/internal/model"
	"github.com/sweeney/asterisk-proxy/internal/pbx"
)

// Snapshots is the read side of the engine.
type Snapshots interface {
	Extensions(obfuscate bool) map[string]model.Extension
	Extension(id string, obfuscate bool) (model.Extension, error)
	Trunks(obfuscate bool) map[string]model.Trunk
	Queues(obfuscate bool) map[string]model.Queue
	Queue(id string, obfuscate bool) (model.Queue, error)
	Parkings(obfuscate bool) map[string]model.Parking
}

// SnapshotHandler serves the current PBX state.
type SnapshotHandler struct {
	state  Snapshots
	logger *zap.Logger
}

func NewSnapshotHandler(state Snapshots, logger *zap.Logger) *SnapshotHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SnapshotHandler{state: state, logger: logger}
}

func (h *SnapshotHandler) Extensions(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, h.logger, http.StatusOK, h.state.Extensions(obfuscate(r)))
}

func (h *SnapshotHandler) Extension(w http.ResponseWriter, r *http.Request) {
	x, err := h.state.Extension(chi.URLParam(r, "id"), obfuscate(r))
	if err != nil {
		h.notFound(w, err)
		return
	}
	respondWithJSON(w, h.logger, http.StatusOK, x)
}

func (h *SnapshotHandler) Trunks(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, h.logger, http.StatusOK, h.state.Trunks(obfuscate(r)))
}

func (h *SnapshotHandler) Queues(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, h.logger, http.StatusOK, h.state.Queues(obfuscate(r)))
}

func (h *SnapshotHandler) Queue(w http.ResponseWriter, r *http.Request) {
	q, err := h.state.Queue(chi.URLParam(r, "id"), obfuscate(r))
	if err != nil {
		h.notFound(w, err)
		return
	}
	respondWithJSON(w, h.logger, http.StatusOK, q)
}

func (h *SnapshotHandler) Parkings(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, h.logger, http.StatusOK, h.state.Parkings(obfuscate(r)))
}

func (h *SnapshotHandler) notFound(w http.ResponseWriter, err error) {
	if errors.Is(err, pbx.ErrEndpointNotFound) || errors.Is(err, pbx.ErrQueueNotFound) {
		respondWithError(w, h.logger, http.StatusNotFound, err.Error())
		return
	}
	h.logger.Error("snapshot lookup failed", zap.Error(err))
	respondWithError(w, h.logger, http.StatusInternalServerError, "internal server error")
}
