package core

import (
	"github.com/prometheus/client_golang/prometheus"
)

var SnapshotsSent = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "lynxsync",
	Subsystem: "server",
	Name:      "snapshots_sent",
}, []string{"type"})

var BytesSent = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "lynxsync",
	Subsystem: "server",
	Name:      "bytes_sent",
}, []string{"kind"})

var SendsThrottled = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "lynxsync",
	Subsystem: "server",
	Name:      "sends_throttled",
})

var ResyncRequests = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "lynxsync",
	Subsystem: "server",
	Name:      "resync_requests",
})

var StaleBaselines = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "lynxsync",
	Subsystem: "server",
	Name:      "stale_baselines",
})

var PacketErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "lynxsync",
	Subsystem: "server",
	Name:      "packet_errors",
}, []string{"reason"})

var Disconnects = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "lynxsync",
	Subsystem: "server",
	Name:      "disconnects",
}, []string{"reason"})

var HistoryEntries = prometheus.NewGauge(prometheus.GaugeOpts{
	Namespace: "lynxsync",
	Subsystem: "history",
	Name:      "entries",
})

var HistoryPruned = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "lynxsync",
	Subsystem: "history",
	Name:      "pruned",
})

var ConnectedClients = prometheus.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "lynxsync",
	Subsystem: "server",
	Name:      "clients",
}, []string{"state"})

var TickDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
	Namespace: "lynxsync",
	Subsystem: "server",
	Name:      "tick_duration_ms",
	Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100},
})

// Collectors returns every server metric for registration.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		SnapshotsSent,
		BytesSent,
		SendsThrottled,
		ResyncRequests,
		StaleBaselines,
		PacketErrors,
		Disconnects,
		HistoryEntries,
		HistoryPruned,
		ConnectedClients,
		TickDuration,
	}
}
