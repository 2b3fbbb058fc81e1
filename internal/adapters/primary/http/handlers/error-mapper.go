package handlers

import (
	"errors"
	"net/http"

	"eeg-decoder-service/internal/core/domain"
	"eeg-decoder-service/internal/dsp"
	"eeg-decoder-service/internal/recording"

	"github.com/gin-gonic/gin"
)

func mapDomainError(c *gin.Context, err error) {
	switch {
	// Not found errors
	case errors.Is(err, domain.ErrDecoderNotFound),
		errors.Is(err, domain.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})

	// Conflict errors
	case errors.Is(err, domain.ErrDecoderNameConflict),
		errors.Is(err, domain.ErrDecoderInUse),
		errors.Is(err, domain.ErrSessionClosed),
		errors.Is(err, domain.ErrDecoderNotReady):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})

	// Backpressure
	case errors.Is(err, domain.ErrBackpressure):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})

	// Bad request / validation errors
	case errors.Is(err, domain.ErrInvalidDecoderName),
		errors.Is(err, domain.ErrMissingProjectID),
		errors.Is(err, domain.ErrUnsupportedKind),
		errors.Is(err, domain.ErrInvalidState),
		errors.Is(err, domain.ErrInvalidModelPayload),
		errors.Is(err, domain.ErrClassMismatch),
		errors.Is(err, domain.ErrCannotTrainNeuroModel),
		errors.Is(err, domain.ErrInvalidMontage),
		errors.Is(err, domain.ErrInvalidSampleRate),
		errors.Is(err, domain.ErrDuplicateChannel),
		errors.Is(err, domain.ErrUnknownChannel),
		errors.Is(err, domain.ErrEmptyBlock),
		errors.Is(err, domain.ErrChannelMismatch),
		errors.Is(err, domain.ErrRaggedBlock),
		errors.Is(err, domain.ErrNonFiniteSample),
		errors.Is(err, domain.ErrInvalidWindow),
		errors.Is(err, domain.ErrInvalidFilterConfig),
		errors.Is(err, domain.ErrInvalidArtifactConf),
		errors.Is(err, domain.ErrNoEvents),
		errors.Is(err, domain.ErrTooFewClasses),
		errors.Is(err, domain.ErrInsufficientTrials),
		errors.Is(err, domain.ErrStaleBlock),
		errors.Is(err, domain.ErrInvalidTimeRange),
		errors.Is(err, domain.ErrPublicationTooLarge),
		errors.Is(err, dsp.ErrInvalidFilter),
		errors.Is(err, dsp.ErrShape),
		errors.Is(err, dsp.ErrRankDeficient),
		errors.Is(err, dsp.ErrNotConverged),
		errors.Is(err, recording.ErrInvalidCSV):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

	// Service unavailable errors
	case errors.Is(err, domain.ErrKubernetesNotAvailable),
		errors.Is(err, domain.ErrPrometheusNotAvailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})

	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
