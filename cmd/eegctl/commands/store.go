package commands

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"eeg-decoder-service/internal/core/domain"
	"eeg-decoder-service/internal/core/ports/output"
)

// decoderStore keeps decoders in memory so the CLI can drive DecoderService
// without a database.
type decoderStore struct {
	mu       sync.Mutex
	decoders map[uuid.UUID]*domain.Decoder
}

func newDecoderStore() *decoderStore {
	return &decoderStore{decoders: make(map[uuid.UUID]*domain.Decoder)}
}

var _ ports.DecoderRepository = (*decoderStore)(nil)

func (s *decoderStore) Create(_ context.Context, d *domain.Decoder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.decoders {
		if existing.ProjectID == d.ProjectID && existing.Name == d.Name {
			return domain.ErrDecoderNameConflict
		}
	}
	s.decoders[d.ID] = d
	return nil
}

func (s *decoderStore) GetByID(_ context.Context, projectID uuid.UUID, id uuid.UUID) (*domain.Decoder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.decoders[id]
	if !ok || d.ProjectID != projectID {
		return nil, domain.ErrDecoderNotFound
	}
	return d, nil
}

func (s *decoderStore) Update(ctx context.Context, projectID uuid.UUID, d *domain.Decoder) error {
	if _, err := s.GetByID(ctx, projectID, d.ID); err != nil {
		return err
	}
	s.mu.Lock()
	s.decoders[d.ID] = d
	s.mu.Unlock()
	return nil
}

func (s *decoderStore) Delete(ctx context.Context, projectID uuid.UUID, id uuid.UUID) error {
	if _, err := s.GetByID(ctx, projectID, id); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.decoders, id)
	s.mu.Unlock()
	return nil
}

func (s *decoderStore) List(_ context.Context, filter ports.DecoderListFilter) ([]*domain.Decoder, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*domain.Decoder{}
	for _, d := range s.decoders {
		if d.ProjectID == filter.ProjectID {
			out = append(out, d)
		}
	}
	return out, len(out), nil
}
