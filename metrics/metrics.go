// Package metrics holds the process-wide prometheus instruments. They are
// registered on the default registry and served at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "drawsync_active_sessions",
		Help: "Number of sessions currently held in the registry.",
	})

	ConnectedClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "drawsync_connected_clients",
		Help: "Number of live WebSocket connections across all sessions.",
	})

	BroadcastsDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "drawsync_broadcasts_delivered_total",
		Help: "Messages enqueued to individual clients by the fan-out.",
	})

	BroadcastsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "drawsync_broadcasts_dropped_total",
		Help: "Messages dropped because a client's send buffer was full.",
	})

	MalformedInbound = promauto.NewCounter(prometheus.CounterOpts{
		Name: "drawsync_malformed_inbound_total",
		Help: "Inbound WebSocket frames dropped as malformed.",
	})

	AssetUploads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "drawsync_asset_uploads_total",
		Help: "Asset upload requests by outcome.",
	}, []string{"outcome"})
)
