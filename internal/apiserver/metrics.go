package apiserver

import (
	"strconv"
	"time"

	"github.com/VK7KSM/ElfRadio/internal/elfradio"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// metrics is the operational counter set exposed on /metrics: request
// totals/latency, TX queue depth, and connected client count.
type metrics struct {
	registry *prometheus.Registry

	requestsTotal  *prometheus.CounterVec
	requestLatency *prometheus.HistogramVec
}

func newMetrics(state *elfradio.AppState) *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "elfradio_http_requests_total",
			Help: "HTTP requests served, by path and status.",
		}, []string{"path", "status"}),
		requestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "elfradio_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"path"}),
	}

	m.registry.MustRegister(m.requestsTotal, m.requestLatency)
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "elfradio_tx_queue_depth",
		Help: "TxItems waiting in the transmit queue.",
	}, func() float64 { return float64(len(state.TxQueue)) }))
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "elfradio_connected_clients",
		Help: "WebSocket observers currently connected.",
	}, func() float64 {
		state.ClientsMu.RLock()
		defer state.ClientsMu.RUnlock()
		return float64(len(state.Clients))
	}))

	return m
}

func (m *metrics) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.requestsTotal.WithLabelValues(path, strconv.Itoa(c.Writer.Status())).Inc()
		m.requestLatency.WithLabelValues(path).Observe(time.Since(start).Seconds())
	}
}
