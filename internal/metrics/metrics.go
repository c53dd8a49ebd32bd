// Package metrics defines the Prometheus collectors for chatline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WebSocket metrics.
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ws_connections_active",
		Help: "The current number of active WebSocket connections.",
	})
	TotalConnections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ws_connections_total",
		Help: "The total number of WebSocket connections accepted.",
	})

	// Presence metrics.
	BoundUsers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "presence_bound_users",
		Help: "The current number of identities bound to a live connection.",
	})
	Broadcasts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "presence_broadcasts_total",
		Help: "The total number of presence snapshot broadcasts.",
	})

	// Auth metrics.
	AuthSuccess = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auth_success_total",
		Help: "The total number of successful authentications.",
	})
	AuthFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_failures_total",
		Help: "The total number of failed authentications.",
	}, []string{"reason"})
)
