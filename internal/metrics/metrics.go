// Package metrics holds the Prometheus collectors of the proxy.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AMI actions issued, by action name and outcome
	ActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pbx_ami_actions_total",
			Help: "Total AMI actions by action and status",
		},
		[]string{"action", "status"},
	)

	ActionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pbx_ami_action_duration_seconds",
			Help:    "AMI action round trip in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"action"},
	)

	EventsIngestedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pbx_events_ingested_total",
			Help: "Total AMI events handled by type",
		},
		[]string{"event"},
	)

	HandlerPanicsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pbx_handler_panics_total",
			Help: "Total number of recovered panics in event handlers",
		},
	)

	DomainEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pbx_domain_events_total",
			Help: "Total domain events emitted by name",
		},
		[]string{"event"},
	)

	ActiveConversations = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pbx_active_conversations",
			Help: "Conversations known after the last full reconciliation",
		},
	)

	ReconcilePassesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pbx_reconcile_passes_total",
			Help: "Channel reconciliation passes by scope",
		},
		[]string{"scope"},
	)

	// Domain events handed to the MQTT sink, by outcome (published, failed, dropped)
	SinkEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pbx_sink_events_total",
			Help: "Domain events handled by the MQTT sink by outcome",
		},
		[]string{"outcome"},
	)

	AMIConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pbx_ami_connected",
			Help: "Whether the AMI session is up (1) or not (0)",
		},
	)

	// HTTP metrics
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	PanicsRecoveredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "http_panics_recovered_total",
			Help: "Total number of recovered panics in HTTP handlers",
		},
	)
)
