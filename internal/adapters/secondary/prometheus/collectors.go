package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"eeg-decoder-service/internal/core/domain"
)

const namespace = "eeg"

// Collectors holds the pipeline and HTTP metrics exported on /metrics.
// It satisfies pipeline.Observer and the session service's active gauge.
type Collectors struct {
	BlocksIngested   *prometheus.CounterVec
	WindowsProcessed *prometheus.CounterVec
	WindowsRejected  *prometheus.CounterVec
	WindowLatency    *prometheus.HistogramVec
	ActiveSessions   prometheus.Gauge
	HTTPDuration     *prometheus.HistogramVec
}

func NewCollectors(reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		BlocksIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blocks_ingested_total",
			Help:      "Sample blocks submitted to live sessions by result.",
		}, []string{"result"}),
		WindowsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "windows_processed_total",
			Help:      "Windows classified by decoder kind.",
		}, []string{"kind"}),
		WindowsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "windows_rejected_total",
			Help:      "Windows rejected before classification by reason.",
		}, []string{"reason"}),
		WindowLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "window_latency_seconds",
			Help:      "Time from window completion to prediction.",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25},
		}, []string{"kind"}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Live decoding sessions.",
		}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
	reg.MustRegister(
		c.BlocksIngested,
		c.WindowsProcessed,
		c.WindowsRejected,
		c.WindowLatency,
		c.ActiveSessions,
		c.HTTPDuration,
	)
	return c
}

func (c *Collectors) BlockIngested(result string) {
	c.BlocksIngested.With(prometheus.Labels{"result": result}).Inc()
}

func (c *Collectors) WindowProcessed(kind domain.DecoderKind, latency time.Duration) {
	labels := prometheus.Labels{"kind": string(kind)}
	c.WindowsProcessed.With(labels).Inc()
	c.WindowLatency.With(labels).Observe(latency.Seconds())
}

func (c *Collectors) WindowRejected(reason string) {
	c.WindowsRejected.With(prometheus.Labels{"reason": reason}).Inc()
}

func (c *Collectors) SetActiveSessions(n int) {
	c.ActiveSessions.Set(float64(n))
}

func (c *Collectors) ObserveHTTP(method, route, status string, d time.Duration) {
	c.HTTPDuration.With(prometheus.Labels{
		"method": method,
		"route":  route,
		"status": status,
	}).Observe(d.Seconds())
}
