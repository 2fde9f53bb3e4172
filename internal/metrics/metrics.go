// Package metrics exposes the Prometheus instruments for the real-time layer.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "messenger_ws_connections_active",
			Help: "Current number of open WebSocket connections",
		},
	)

	RoomsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "messenger_rooms_active",
			Help: "Current number of rooms with at least one member",
		},
	)

	BroadcastsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messenger_broadcasts_total",
			Help: "Total number of room broadcasts by event name and origin (local or relay)",
		},
		[]string{"event", "origin"},
	)

	DeliveriesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "messenger_deliveries_dropped_total",
			Help: "Events dropped because a member's send queue was full or closed",
		},
	)

	CommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messenger_ws_commands_total",
			Help: "WebSocket commands handled, by command and result",
		},
		[]string{"command", "result"},
	)

	RelayErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "messenger_relay_errors_total",
			Help: "Failures publishing to or decoding from the cross-instance relay",
		},
	)

	RelayBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "messenger_relay_breaker_state",
			Help: "Relay publish circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
	)
)
