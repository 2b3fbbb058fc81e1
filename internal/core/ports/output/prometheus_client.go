package ports

import (
	"context"
	"time"
)

// TimeRange for metric queries
type TimeRange struct {
	Start time.Time
	End   time.Time
	Step  time.Duration // e.g., 1m, 5m, 1h
}

// DataPoint represents a single metric value at a point in time
type DataPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// KindMetrics aggregates pipeline performance of one decoder kind over a
// time range.
type KindMetrics struct {
	Kind          string  `json:"kind"`
	Windows       int64   `json:"windows"`
	LatencyP50    float64 `json:"latency_p50_ms"`
	LatencyP99    float64 `json:"latency_p99_ms"`
	WindowRate    float64 `json:"windows_per_second"`
	RejectRate    float64 `json:"reject_rate_percent"`
	BlocksDropped int64   `json:"blocks_dropped"`
}

// PrometheusClient defines the contract for Prometheus queries
type PrometheusClient interface {
	// Window latency histogram (eeg_window_latency_seconds), in ms
	QueryLatencyP50(ctx context.Context, kind string, tr TimeRange) ([]DataPoint, error)
	QueryLatencyP99(ctx context.Context, kind string, tr TimeRange) ([]DataPoint, error)

	// Throughput (eeg_windows_processed_total)
	QueryWindowRate(ctx context.Context, kind string, tr TimeRange) ([]DataPoint, error)

	QueryKindMetrics(ctx context.Context, kind string, tr TimeRange) (*KindMetrics, error)

	IsAvailable() bool
}
