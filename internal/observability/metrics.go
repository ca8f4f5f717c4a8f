package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	registry *prometheus.Registry

	ActiveSessions  prometheus.Gauge
	SessionEvents   *prometheus.CounterVec
	WSMessages      *prometheus.CounterVec
	WSWriteErrors   prometheus.Counter
	SessionDuration prometheus.Histogram
}

// NewMetrics registers the instruments on a fresh registry so several
// servers (and tests) can coexist in one process.
func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of focus sessions that have not ended.",
		}),
		SessionEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Session events by type.",
		}, []string{"event"}),
		WSMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
		WSWriteErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_write_errors_total",
			Help:      "Failed websocket writes.",
		}),
		SessionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "completed_session_seconds",
			Help:      "Length of completed tracked focus sessions in seconds.",
			Buckets:   []float64{60, 300, 900, 1500, 3000, 5400, 7200, 14400},
		}),
	}
}

func (m *Metrics) ObserveSessionDuration(d time.Duration) {
	m.SessionDuration.Observe(d.Seconds())
}

func (m *Metrics) Event(name string) {
	m.SessionEvents.WithLabelValues(name).Inc()
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
