package services

import (
	"context"
	"time"

	"eeg-decoder-service/internal/core/domain"
	ports "eeg-decoder-service/internal/core/ports/output"
)

// MetricsService handles metrics operations
type MetricsService struct {
	prometheus ports.PrometheusClient
}

// NewMetricsService creates a new metrics service
func NewMetricsService(prometheus ports.PrometheusClient) *MetricsService {
	return &MetricsService{prometheus: prometheus}
}

// KindMetricsRequest contains parameters for decoder kind metrics request
type KindMetricsRequest struct {
	Kind string
	From time.Time
	To   time.Time
	Step time.Duration
}

// TimeRangeInfo contains time range information for responses
type TimeRangeInfo struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
	Step string    `json:"step"`
}

// KindMetricsResponse contains decoder kind metrics response
type KindMetricsResponse struct {
	Kind       string             `json:"kind"`
	TimeRange  TimeRangeInfo      `json:"time_range"`
	Summary    *ports.KindMetrics `json:"summary"`
	LatencyP50 []ports.DataPoint  `json:"latency_p50,omitempty"`
	LatencyP99 []ports.DataPoint  `json:"latency_p99,omitempty"`
	WindowRate []ports.DataPoint  `json:"window_rate,omitempty"`
}

// GetKindMetrics retrieves pipeline latency and throughput of one decoder
// kind. Time series are best effort; only the summary query must succeed.
func (s *MetricsService) GetKindMetrics(ctx context.Context, req KindMetricsRequest) (*KindMetricsResponse, error) {
	if !s.IsAvailable() {
		return nil, domain.ErrPrometheusNotAvailable
	}
	kind, err := domain.ParseDecoderKind(req.Kind)
	if err != nil {
		return nil, err
	}
	if req.To.IsZero() {
		req.To = time.Now()
	}
	if req.From.IsZero() {
		req.From = req.To.Add(-time.Hour)
	}
	if !req.From.Before(req.To) {
		return nil, domain.ErrInvalidTimeRange
	}
	if req.Step <= 0 {
		req.Step = time.Minute
	}
	tr := ports.TimeRange{
		Start: req.From,
		End:   req.To,
		Step:  req.Step,
	}

	summary, err := s.prometheus.QueryKindMetrics(ctx, string(kind), tr)
	if err != nil {
		return nil, err
	}

	latencyP50, _ := s.prometheus.QueryLatencyP50(ctx, string(kind), tr)
	latencyP99, _ := s.prometheus.QueryLatencyP99(ctx, string(kind), tr)
	windowRate, _ := s.prometheus.QueryWindowRate(ctx, string(kind), tr)

	return &KindMetricsResponse{
		Kind: string(kind),
		TimeRange: TimeRangeInfo{
			From: req.From,
			To:   req.To,
			Step: req.Step.String(),
		},
		Summary:    summary,
		LatencyP50: latencyP50,
		LatencyP99: latencyP99,
		WindowRate: windowRate,
	}, nil
}

// IsAvailable checks if Prometheus is available
func (s *MetricsService) IsAvailable() bool {
	if s.prometheus == nil {
		return false
	}
	return s.prometheus.IsAvailable()
}
