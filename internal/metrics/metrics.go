package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulse_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pulse_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Realtime metrics
	ConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pulse_ws_connections_active",
			Help: "Currently open websocket connections",
		},
	)

	UsersOnline = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pulse_users_online",
			Help: "Users with at least one live connection",
		},
	)

	MessagesRelayed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pulse_messages_relayed_total",
			Help: "Messages fanned out to room members",
		},
	)

	TypingEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulse_typing_events_total",
			Help: "Typing state transitions",
		},
		[]string{"kind"}, // "start", "stop", "expired"
	)

	PresenceTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulse_presence_transitions_total",
			Help: "Online/offline presence transitions",
		},
		[]string{"status"},
	)

	FramesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulse_ws_frames_dropped_total",
			Help: "Inbound frames dropped",
		},
		[]string{"reason"}, // "malformed", "unknown_event", "slow_consumer"
	)

	// Business metrics
	MessagesPersisted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pulse_messages_persisted_total",
			Help: "Messages written to the durable store",
		},
	)

	UsersRegistered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pulse_users_registered_total",
			Help: "Total users registered",
		},
	)
)
