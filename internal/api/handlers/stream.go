package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/sweeney/asterisk-proxy/internal/events"
)

// Hub hands out domain event subscriptions.
type Hub interface {
	Subscribe() events.Subscriber
	Unsubscribe(events.Subscriber)
}

// StreamHandler relays domain events as server-sent events.
type StreamHandler struct {
	hub    Hub
	logger *zap.Logger
}

func NewStreamHandler(hub Hub, logger *zap.Logger) *StreamHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StreamHandler{hub: hub, logger: logger}
}

// Handle handles GET /api/v1/events until the client goes away.
func (h *StreamHandler) Handle(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondWithError(w, h.logger, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	sub := h.hub.Subscribe()
	defer h.hub.Unsubscribe(sub)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case e, ok := <-sub:
			if !ok {
				return
			}
			data, err := json.Marshal(e)
			if err != nil {
				h.logger.Error("failed to encode event", zap.String("event", string(e.Name())), zap.Error(err))
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Name(), data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
