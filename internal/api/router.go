// Package api is the read-only HTTP surface of the proxy.
package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sweeney/asterisk-proxy/internal/api/handlers"
	"github.com/sweeney/asterisk-proxy/internal/api/middleware"
)

// NewRouter creates the chi router with all routes and middleware.
func NewRouter(state handlers.Snapshots, hub handlers.Hub, ready handlers.ReadyChecker, logger *zap.Logger) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(logger))
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Metrics)

	health := handlers.NewHealthHandler(ready, logger)
	snapshots := handlers.NewSnapshotHandler(state, logger)
	stream := handlers.NewStreamHandler(hub, logger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", health.HandleHealth)
		r.Get("/ready", health.HandleReady)
		r.Get("/metrics", promhttp.Handler().ServeHTTP)

		// The event stream outlives any request timeout.
		r.Get("/events", stream.Handle)

		r.Group(func(r chi.Router) {
			r.Use(chimiddleware.Timeout(10 * time.Second))
			r.Get("/extensions", snapshots.Extensions)
			r.Get("/extensions/{id}", snapshots.Extension)
			r.Get("/trunks", snapshots.Trunks)
			r.Get("/queues", snapshots.Queues)
			r.Get("/queues/{id}", snapshots.Queue)
			r.Get("/parkings", snapshots.Parkings)
		})
	})

	return r
}
