package dto

import (
	"time"

	"github.com/google/uuid"

	"eeg-decoder-service/internal/core/domain"
)

// ============================================================================
// Session DTOs
// ============================================================================

type StartSessionRequest struct {
	DecoderID uuid.UUID `json:"decoder_id" binding:"required"`
}

type BlockDTO struct {
	Seq       uint64      `json:"seq"`
	Timestamp *time.Time  `json:"timestamp"`
	Samples   [][]float64 `json:"samples" binding:"required"`
}

type PushSamplesRequest struct {
	Blocks []BlockDTO `json:"blocks" binding:"required,min=1"`
}

type PushSamplesResponse struct {
	Accepted int `json:"accepted"`
}

// ToBlocks stamps blocks without a timestamp with now.
func (r PushSamplesRequest) ToBlocks(now time.Time) []domain.Block {
	blocks := make([]domain.Block, 0, len(r.Blocks))
	for _, b := range r.Blocks {
		ts := now
		if b.Timestamp != nil {
			ts = *b.Timestamp
		}
		blocks = append(blocks, domain.Block{Seq: b.Seq, Timestamp: ts, Samples: b.Samples})
	}
	return blocks
}

type SessionResponse struct {
	ID        uuid.UUID           `json:"id"`
	ProjectID uuid.UUID           `json:"project_id"`
	DecoderID uuid.UUID           `json:"decoder_id"`
	State     string              `json:"state"`
	StartedAt time.Time           `json:"started_at"`
	StoppedAt *time.Time          `json:"stopped_at,omitempty"`
	Stats     domain.SessionStats `json:"stats"`
}

func ToSessionResponse(s *domain.Session) SessionResponse {
	return SessionResponse{
		ID:        s.ID,
		ProjectID: s.ProjectID,
		DecoderID: s.DecoderID,
		State:     string(s.State),
		StartedAt: s.StartedAt,
		StoppedAt: s.StoppedAt,
		Stats:     s.Stats,
	}
}

type PredictionResponse struct {
	Seq           uint64    `json:"seq"`
	WindowStart   int64     `json:"window_start"`
	WindowEnd     int64     `json:"window_end"`
	Timestamp     time.Time `json:"timestamp"`
	Class         int       `json:"class"`
	Label         string    `json:"label"`
	Probabilities []float64 `json:"probabilities,omitempty"`
	Rejected      bool      `json:"rejected"`
	RejectReason  string    `json:"reject_reason,omitempty"`
	LatencyMs     float64   `json:"latency_ms"`
}

type ListPredictionsResponse struct {
	Items   []PredictionResponse `json:"items"`
	NextSeq uint64               `json:"next_seq"`
}

func ToPredictionResponse(p domain.Prediction) PredictionResponse {
	return PredictionResponse{
		Seq:           p.Seq,
		WindowStart:   p.WindowStart,
		WindowEnd:     p.WindowEnd,
		Timestamp:     p.Timestamp,
		Class:         p.Class,
		Label:         p.Label,
		Probabilities: p.Probabilities,
		Rejected:      p.Rejected,
		RejectReason:  p.RejectReason,
		LatencyMs:     float64(p.Latency.Microseconds()) / 1000,
	}
}

// ToListPredictionsResponse sets NextSeq to the cursor for the following
// page; it echoes after when the page is empty.
func ToListPredictionsResponse(preds []domain.Prediction, after uint64) ListPredictionsResponse {
	items := make([]PredictionResponse, 0, len(preds))
	next := after
	for _, p := range preds {
		items = append(items, ToPredictionResponse(p))
		if p.Seq > next {
			next = p.Seq
		}
	}
	return ListPredictionsResponse{Items: items, NextSeq: next}
}
