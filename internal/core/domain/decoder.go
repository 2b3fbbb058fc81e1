package domain

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

type DecoderKind string

const (
	KindCSPLDA        DecoderKind = "csp-lda"
	KindBandPowerLDA  DecoderKind = "bandpower-lda"
	KindNeuroTransNet DecoderKind = "neurotransnet"
)

var SupportedKinds = map[DecoderKind]bool{
	KindCSPLDA:        true,
	KindBandPowerLDA:  true,
	KindNeuroTransNet: true,
}

func ParseDecoderKind(s string) (DecoderKind, error) {
	k := DecoderKind(strings.ToLower(strings.TrimSpace(s)))
	if !SupportedKinds[k] {
		return "", ErrUnsupportedKind
	}
	return k, nil
}

// Trainable reports whether the kind can be fitted from a calibration
// recording. Network decoders are imported with pre-trained weights.
func (k DecoderKind) Trainable() bool {
	return k == KindCSPLDA || k == KindBandPowerLDA
}

type DecoderState string

const (
	DecoderStateTraining DecoderState = "TRAINING"
	DecoderStateReady    DecoderState = "READY"
	DecoderStateFailed   DecoderState = "FAILED"
	DecoderStateArchived DecoderState = "ARCHIVED"
)

func (s DecoderState) IsValid() bool {
	switch s {
	case DecoderStateTraining, DecoderStateReady, DecoderStateFailed, DecoderStateArchived:
		return true
	}
	return false
}

// EvaluationReport summarises cross-validated or hold-out decoding
// performance.
type EvaluationReport struct {
	Folds          int       `json:"folds"`
	Trials         int       `json:"trials"`
	Classes        []string  `json:"classes"`
	Accuracy       float64   `json:"accuracy"`
	FoldAccuracies []float64 `json:"fold_accuracies,omitempty"`
	Kappa          float64   `json:"kappa"`
	ITRBitsPerMin  float64   `json:"itr_bits_per_min"`
	TrialSeconds   float64   `json:"trial_seconds"`
	Confusion      [][]int   `json:"confusion"`
	SkippedEpochs  int       `json:"skipped_epochs,omitempty"`
}

// Decoder is a trained, persisted pipeline + model pair.
type Decoder struct {
	ID          uuid.UUID         `json:"id"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	ProjectID   uuid.UUID         `json:"project_id"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Kind        DecoderKind       `json:"kind"`
	State       DecoderState      `json:"state"`
	Montage     Montage           `json:"montage"`
	Classes     []string          `json:"classes"`
	Pipeline    PipelineConfig    `json:"pipeline"`
	Artifact    *ArtifactModel    `json:"artifact,omitempty"`
	Model       json.RawMessage   `json:"model,omitempty"`
	Report      *EvaluationReport `json:"report,omitempty"`
	Labels      map[string]string `json:"labels"`
	Published   bool              `json:"published"`
	Error       string            `json:"error,omitempty"`
}

// NewDecoder creates a decoder in TRAINING state with validation.
func NewDecoder(projectID uuid.UUID, name string, kind DecoderKind, montage Montage, cfg PipelineConfig) (*Decoder, error) {
	if strings.TrimSpace(name) == "" {
		return nil, ErrInvalidDecoderName
	}
	if projectID == uuid.Nil {
		return nil, ErrMissingProjectID
	}
	if !SupportedKinds[kind] {
		return nil, ErrUnsupportedKind
	}
	if err := montage.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(montage.SampleRate); err != nil {
		return nil, err
	}
	now := time.Now()
	return &Decoder{
		ID:        uuid.New(),
		CreatedAt: now,
		UpdatedAt: now,
		ProjectID: projectID,
		Name:      strings.TrimSpace(name),
		Kind:      kind,
		State:     DecoderStateTraining,
		Montage:   montage,
		Pipeline:  cfg,
		Labels:    make(map[string]string),
	}, nil
}

// Label returns the class name for an index, or "" when out of range.
func (d *Decoder) Label(class int) string {
	if class < 0 || class >= len(d.Classes) {
		return ""
	}
	return d.Classes[class]
}
