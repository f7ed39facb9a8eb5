package socket

import "github.com/prometheus/client_golang/prometheus"

// Metrics instruments a Manager.
type Metrics struct {
	Reconnects prometheus.Counter
	QueueDepth prometheus.Gauge
	Dropped    *prometheus.CounterVec
	Connected  prometheus.Gauge
}

// NewMetrics builds the collectors and registers them with reg when reg is non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "courtside",
			Subsystem: "socket",
			Name:      "reconnects_total",
			Help:      "Reconnect attempts scheduled after an unexpected close.",
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "courtside",
			Subsystem: "socket",
			Name:      "outbound_queue_depth",
			Help:      "Frames waiting for the connection to open.",
		}),
		Dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "courtside",
			Subsystem: "socket",
			Name:      "frames_dropped_total",
			Help:      "Frames discarded, by reason.",
		}, []string{"reason"}),
		Connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "courtside",
			Subsystem: "socket",
			Name:      "connected",
			Help:      "1 while the connection is open.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Reconnects, m.QueueDepth, m.Dropped, m.Connected)
	}
	return m
}
