package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"eeg-decoder-service/internal/core/domain"
	"eeg-decoder-service/internal/core/ports/output"
	"eeg-decoder-service/internal/testutil"
)

func TestMetricsService_GetKindMetrics(t *testing.T) {
	prom := new(testutil.MockPrometheusClient)
	svc := NewMetricsService(prom)

	to := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	from := to.Add(-30 * time.Minute)
	tr := ports.TimeRange{Start: from, End: to, Step: time.Minute}

	prom.On("IsAvailable").Return(true)
	prom.On("QueryKindMetrics", mock.Anything, "csp-lda", tr).Return(&ports.KindMetrics{Kind: "csp-lda", Windows: 1200, LatencyP99: 4.2}, nil)
	prom.On("QueryLatencyP50", mock.Anything, "csp-lda", tr).Return([]ports.DataPoint{{Timestamp: from, Value: 1.1}}, nil)
	prom.On("QueryLatencyP99", mock.Anything, "csp-lda", tr).Return(nil, errors.New("timeout"))
	prom.On("QueryWindowRate", mock.Anything, "csp-lda", tr).Return([]ports.DataPoint{{Timestamp: from, Value: 4}}, nil)

	resp, err := svc.GetKindMetrics(context.Background(), KindMetricsRequest{Kind: "CSP-LDA", From: from, To: to})
	require.NoError(t, err)
	assert.Equal(t, "csp-lda", resp.Kind)
	assert.Equal(t, int64(1200), resp.Summary.Windows)
	assert.Len(t, resp.LatencyP50, 1)
	assert.Nil(t, resp.LatencyP99)
	assert.Equal(t, "1m0s", resp.TimeRange.Step)
}

func TestMetricsService_GetKindMetrics_Errors(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name      string
		available bool
		req       KindMetricsRequest
		want      error
	}{
		{"unavailable", false, KindMetricsRequest{Kind: "csp-lda"}, domain.ErrPrometheusNotAvailable},
		{"unknown kind", true, KindMetricsRequest{Kind: "svm"}, domain.ErrUnsupportedKind},
		{"inverted range", true, KindMetricsRequest{Kind: "csp-lda", From: now, To: now.Add(-time.Hour)}, domain.ErrInvalidTimeRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prom := new(testutil.MockPrometheusClient)
			prom.On("IsAvailable").Return(tt.available)
			_, err := NewMetricsService(prom).GetKindMetrics(context.Background(), tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestMetricsService_IsAvailable_NilClient(t *testing.T) {
	assert.False(t, NewMetricsService(nil).IsAvailable())
}
