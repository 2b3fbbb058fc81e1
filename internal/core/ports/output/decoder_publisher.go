package ports

import (
	"context"

	"github.com/google/uuid"

	"eeg-decoder-service/internal/core/domain"
)

// Publication is where a decoder was published in the cluster.
type Publication struct {
	Namespace string `json:"namespace"`
	Name      string `json:"name"`
	UID       string `json:"uid"`
}

// DecoderPublisher makes trained decoders available to in-cluster
// consumers.
type DecoderPublisher interface {
	// Publish creates or updates the decoder's ConfigMap
	Publish(ctx context.Context, namespace string, decoder *domain.Decoder) (*Publication, error)

	// Unpublish removes it; a missing ConfigMap is not an error
	Unpublish(ctx context.Context, namespace string, decoderID uuid.UUID) error

	// IsAvailable checks if Kubernetes integration is enabled and configured
	IsAvailable() bool
}
