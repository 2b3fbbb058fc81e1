package domain

import "errors"

// ============================================================================
// Decoder Errors
// ============================================================================

var (
	ErrDecoderNotFound       = errors.New("decoder not found")
	ErrDecoderNameConflict   = errors.New("decoder with this name already exists in the project")
	ErrInvalidDecoderName    = errors.New("decoder name is required")
	ErrMissingProjectID      = errors.New("project ID is required (Project-ID header)")
	ErrUnsupportedKind       = errors.New("unsupported decoder kind")
	ErrDecoderNotReady       = errors.New("decoder is not ready")
	ErrDecoderInUse          = errors.New("decoder is used by active sessions")
	ErrInvalidState          = errors.New("invalid state")
	ErrInvalidModelPayload   = errors.New("invalid decoder model payload")
	ErrClassMismatch         = errors.New("model class count does not match decoder classes")
	ErrCannotTrainNeuroModel = errors.New("neurotransnet decoders must be imported, not trained")
)

// ============================================================================
// Signal Errors
// ============================================================================

// Validation errors
var (
	ErrInvalidMontage      = errors.New("invalid montage")
	ErrInvalidSampleRate   = errors.New("sample rate must be positive")
	ErrDuplicateChannel    = errors.New("duplicate channel name")
	ErrUnknownChannel      = errors.New("unknown channel")
	ErrEmptyBlock          = errors.New("block has no samples")
	ErrChannelMismatch     = errors.New("block channel count does not match montage")
	ErrRaggedBlock         = errors.New("block rows have different lengths")
	ErrNonFiniteSample     = errors.New("block contains NaN or Inf samples")
	ErrInvalidWindow       = errors.New("window length and hop must be positive and hop <= length")
	ErrInvalidFilterConfig = errors.New("invalid filter configuration")
	ErrInvalidArtifactConf = errors.New("invalid artifact configuration")
)

// Training errors
var (
	ErrNoEvents           = errors.New("recording has no labeled events")
	ErrTooFewClasses      = errors.New("at least two classes are required")
	ErrInsufficientTrials = errors.New("not enough epochs per class")
)

// ============================================================================
// Session Errors
// ============================================================================

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionClosed   = errors.New("session is closed")
	ErrBackpressure    = errors.New("session queue is full")
	ErrStaleBlock      = errors.New("block sequence number already processed")
)

// ============================================================================
// Integration Errors
// ============================================================================

var (
	ErrKubernetesNotAvailable = errors.New("kubernetes integration is not available")
	ErrPrometheusNotAvailable = errors.New("prometheus integration is not available")
	ErrInvalidTimeRange       = errors.New("invalid time range")
	ErrPublicationTooLarge    = errors.New("decoder is too large to publish")
)
