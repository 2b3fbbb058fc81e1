package dto

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"eeg-decoder-service/internal/classify"
	"eeg-decoder-service/internal/core/domain"
)

// ============================================================================
// Recording DTOs
// ============================================================================

type RecordingDTO struct {
	Montage domain.Montage `json:"montage"`
	Samples [][]float64    `json:"samples" binding:"required"`
	Events  []EventDTO     `json:"events"`
}

type EventDTO struct {
	Sample int    `json:"sample"`
	Label  string `json:"label" binding:"required"`
}

func (r RecordingDTO) ToDomain() *domain.Recording {
	rec := &domain.Recording{
		Montage: r.Montage,
		Samples: r.Samples,
		Events:  make([]domain.Event, 0, len(r.Events)),
	}
	for _, e := range r.Events {
		rec.Events = append(rec.Events, domain.Event{Sample: e.Sample, Label: e.Label})
	}
	return rec
}

// ============================================================================
// Decoder DTOs
// ============================================================================

type TrainDecoderRequest struct {
	Name        string                 `json:"name" binding:"required,max=100"`
	Description string                 `json:"description"`
	Kind        string                 `json:"kind" binding:"required"`
	Pipeline    *domain.PipelineConfig `json:"pipeline"`
	Classes     []string               `json:"classes"`
	Options     *classify.Options      `json:"options"`
	Labels      map[string]string      `json:"labels"`
	Recording   RecordingDTO           `json:"recording"`
}

type ImportDecoderRequest struct {
	Name        string                 `json:"name" binding:"required,max=100"`
	Description string                 `json:"description"`
	Montage     domain.Montage         `json:"montage"`
	Pipeline    *domain.PipelineConfig `json:"pipeline"`
	Classes     []string               `json:"classes" binding:"required"`
	Artifact    *domain.ArtifactModel  `json:"artifact"`
	Weights     json.RawMessage        `json:"weights" binding:"required"`
	Labels      map[string]string      `json:"labels"`
}

type UpdateDecoderRequest struct {
	Name        *string           `json:"name"`
	Description *string           `json:"description"`
	State       *string           `json:"state"`
	Labels      map[string]string `json:"labels"`
}

// EvaluateDecoderRequest carries a labeled hold-out recording. The montage
// defaults to the decoder's when omitted.
type EvaluateDecoderRequest struct {
	Recording RecordingDTO `json:"recording"`
}

type DecoderResponse struct {
	ID          uuid.UUID                `json:"id"`
	CreatedAt   time.Time                `json:"created_at"`
	UpdatedAt   time.Time                `json:"updated_at"`
	ProjectID   uuid.UUID                `json:"project_id"`
	Name        string                   `json:"name"`
	Description string                   `json:"description"`
	Kind        string                   `json:"kind"`
	State       string                   `json:"state"`
	Montage     domain.Montage           `json:"montage"`
	Classes     []string                 `json:"classes"`
	Pipeline    domain.PipelineConfig    `json:"pipeline"`
	HasArtifact bool                     `json:"has_artifact_model"`
	Report      *domain.EvaluationReport `json:"report,omitempty"`
	Labels      map[string]string        `json:"labels"`
	Published   bool                     `json:"published"`
	Error       string                   `json:"error,omitempty"`
}

type ListDecodersResponse struct {
	Items      []DecoderResponse `json:"items"`
	Total      int               `json:"total"`
	PageSize   int               `json:"page_size"`
	NextOffset int               `json:"next_offset"`
}

type PublishDecoderResponse struct {
	DecoderID uuid.UUID `json:"decoder_id"`
	Namespace string    `json:"namespace"`
	Name      string    `json:"name"`
	UID       string    `json:"uid,omitempty"`
}

// ToDecoderResponse omits the model weights, which can be large.
func ToDecoderResponse(d *domain.Decoder) DecoderResponse {
	labels := d.Labels
	if labels == nil {
		labels = map[string]string{}
	}
	classes := d.Classes
	if classes == nil {
		classes = []string{}
	}
	return DecoderResponse{
		ID:          d.ID,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
		ProjectID:   d.ProjectID,
		Name:        d.Name,
		Description: d.Description,
		Kind:        string(d.Kind),
		State:       string(d.State),
		Montage:     d.Montage,
		Classes:     classes,
		Pipeline:    d.Pipeline,
		HasArtifact: d.Artifact != nil,
		Report:      d.Report,
		Labels:      labels,
		Published:   d.Published,
		Error:       d.Error,
	}
}
