package ports

import (
	"context"

	"github.com/google/uuid"

	"eeg-decoder-service/internal/core/domain"
)

type DecoderListFilter struct {
	ProjectID uuid.UUID
	Kind      string
	State     string
	Search    string
	SortBy    string
	Order     string
	Limit     int
	Offset    int
}

type DecoderRepository interface {
	Create(ctx context.Context, decoder *domain.Decoder) error
	GetByID(ctx context.Context, projectID uuid.UUID, id uuid.UUID) (*domain.Decoder, error)
	Update(ctx context.Context, projectID uuid.UUID, decoder *domain.Decoder) error
	Delete(ctx context.Context, projectID uuid.UUID, id uuid.UUID) error
	List(ctx context.Context, filter DecoderListFilter) ([]*domain.Decoder, int, error)
}

type SessionRepository interface {
	Create(ctx context.Context, session *domain.Session) error
	GetByID(ctx context.Context, projectID uuid.UUID, id uuid.UUID) (*domain.Session, error)
	Update(ctx context.Context, session *domain.Session) error
	CountActiveByDecoder(ctx context.Context, decoderID uuid.UUID) (int, error)
}

type PredictionRepository interface {
	InsertBatch(ctx context.Context, predictions []domain.Prediction) error
	// ListBySession returns predictions with Seq > afterSeq in ascending order.
	ListBySession(ctx context.Context, sessionID uuid.UUID, afterSeq uint64, limit int) ([]domain.Prediction, error)
}
