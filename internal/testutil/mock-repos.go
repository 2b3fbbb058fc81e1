package testutil

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"eeg-decoder-service/internal/core/domain"
	"eeg-decoder-service/internal/core/ports/output"
)

// MockDecoderRepo is a mock of DecoderRepository.
type MockDecoderRepo struct {
	mock.Mock
}

func (m *MockDecoderRepo) Create(ctx context.Context, decoder *domain.Decoder) error {
	args := m.Called(ctx, decoder)
	return args.Error(0)
}

func (m *MockDecoderRepo) GetByID(ctx context.Context, projectID uuid.UUID, id uuid.UUID) (*domain.Decoder, error) {
	args := m.Called(ctx, projectID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Decoder), args.Error(1)
}

func (m *MockDecoderRepo) Update(ctx context.Context, projectID uuid.UUID, decoder *domain.Decoder) error {
	args := m.Called(ctx, projectID, decoder)
	return args.Error(0)
}

func (m *MockDecoderRepo) Delete(ctx context.Context, projectID uuid.UUID, id uuid.UUID) error {
	args := m.Called(ctx, projectID, id)
	return args.Error(0)
}

func (m *MockDecoderRepo) List(ctx context.Context, filter ports.DecoderListFilter) ([]*domain.Decoder, int, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]*domain.Decoder), args.Int(1), args.Error(2)
}

// MockSessionRepo is a mock of SessionRepository.
type MockSessionRepo struct {
	mock.Mock
}

func (m *MockSessionRepo) Create(ctx context.Context, session *domain.Session) error {
	args := m.Called(ctx, session)
	return args.Error(0)
}

func (m *MockSessionRepo) GetByID(ctx context.Context, projectID uuid.UUID, id uuid.UUID) (*domain.Session, error) {
	args := m.Called(ctx, projectID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Session), args.Error(1)
}

func (m *MockSessionRepo) Update(ctx context.Context, session *domain.Session) error {
	args := m.Called(ctx, session)
	return args.Error(0)
}

func (m *MockSessionRepo) CountActiveByDecoder(ctx context.Context, decoderID uuid.UUID) (int, error) {
	args := m.Called(ctx, decoderID)
	return args.Int(0), args.Error(1)
}

// MockPredictionRepo is a mock of PredictionRepository.
type MockPredictionRepo struct {
	mock.Mock
}

func (m *MockPredictionRepo) InsertBatch(ctx context.Context, predictions []domain.Prediction) error {
	args := m.Called(ctx, predictions)
	return args.Error(0)
}

func (m *MockPredictionRepo) ListBySession(ctx context.Context, sessionID uuid.UUID, afterSeq uint64, limit int) ([]domain.Prediction, error) {
	args := m.Called(ctx, sessionID, afterSeq, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Prediction), args.Error(1)
}

// MockPublisher is a mock of DecoderPublisher.
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, namespace string, decoder *domain.Decoder) (*ports.Publication, error) {
	args := m.Called(ctx, namespace, decoder)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ports.Publication), args.Error(1)
}

func (m *MockPublisher) Unpublish(ctx context.Context, namespace string, decoderID uuid.UUID) error {
	args := m.Called(ctx, namespace, decoderID)
	return args.Error(0)
}

func (m *MockPublisher) IsAvailable() bool {
	return m.Called().Bool(0)
}

// MockPrometheusClient is a mock of PrometheusClient.
type MockPrometheusClient struct {
	mock.Mock
}

func (m *MockPrometheusClient) series(ctx context.Context, method, kind string, tr ports.TimeRange) ([]ports.DataPoint, error) {
	args := m.MethodCalled(method, ctx, kind, tr)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]ports.DataPoint), args.Error(1)
}

func (m *MockPrometheusClient) QueryLatencyP50(ctx context.Context, kind string, tr ports.TimeRange) ([]ports.DataPoint, error) {
	return m.series(ctx, "QueryLatencyP50", kind, tr)
}

func (m *MockPrometheusClient) QueryLatencyP99(ctx context.Context, kind string, tr ports.TimeRange) ([]ports.DataPoint, error) {
	return m.series(ctx, "QueryLatencyP99", kind, tr)
}

func (m *MockPrometheusClient) QueryWindowRate(ctx context.Context, kind string, tr ports.TimeRange) ([]ports.DataPoint, error) {
	return m.series(ctx, "QueryWindowRate", kind, tr)
}

func (m *MockPrometheusClient) QueryKindMetrics(ctx context.Context, kind string, tr ports.TimeRange) (*ports.KindMetrics, error) {
	args := m.Called(ctx, kind, tr)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ports.KindMetrics), args.Error(1)
}

func (m *MockPrometheusClient) IsAvailable() bool {
	return m.Called().Bool(0)
}
