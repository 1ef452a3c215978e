package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ActiveConnections tracks live websocket connections across all rooms.
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sayit_active_connections",
		Help: "Currently open websocket connections.",
	})

	// MessagesTotal counts persisted chat messages.
	MessagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sayit_messages_total",
		Help: "Chat messages persisted and broadcast.",
	})

	// BroadcastPrunes counts connections dropped because a delivery failed.
	BroadcastPrunes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sayit_broadcast_prunes_total",
		Help: "Connections pruned after a failed broadcast write.",
	})

	// RoomsSwept counts rooms reclaimed by the expiry sweeper.
	RoomsSwept = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sayit_rooms_swept_total",
		Help: "Expired rooms deleted by the sweeper.",
	})
)

// Handler exposes Prometheus metrics at /metrics
func Handler() http.Handler {
	return promhttp.Handler()
}
