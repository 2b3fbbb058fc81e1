package domain

import (
	"time"

	"github.com/google/uuid"
)

type SessionState string

const (
	SessionStateActive  SessionState = "ACTIVE"
	SessionStateStopped SessionState = "STOPPED"
)

// SessionStats are running counters of a streaming session.
type SessionStats struct {
	BlocksIngested   int64   `json:"blocks_ingested"`
	BlocksRejected   int64   `json:"blocks_rejected"`
	BlocksDropped    int64   `json:"blocks_dropped"`
	SamplesIngested  int64   `json:"samples_ingested"`
	WindowsProcessed int64   `json:"windows_processed"`
	WindowsRejected  int64   `json:"windows_rejected"`
	SequenceGaps     int64   `json:"sequence_gaps"`
	MeanLatencyMs    float64 `json:"mean_latency_ms"`
	MaxLatencyMs     float64 `json:"max_latency_ms"`
}

// Session is one live decoding stream bound to a decoder.
type Session struct {
	ID        uuid.UUID    `json:"id"`
	ProjectID uuid.UUID    `json:"project_id"`
	DecoderID uuid.UUID    `json:"decoder_id"`
	State     SessionState `json:"state"`
	StartedAt time.Time    `json:"started_at"`
	StoppedAt *time.Time   `json:"stopped_at,omitempty"`
	Stats     SessionStats `json:"stats"`
}

const (
	RejectPeakToPeak = "peak_to_peak"
)

// Prediction is the decoder output for one window. WindowStart and
// WindowEnd are absolute sample indexes since the start of the session;
// WindowEnd is exclusive.
type Prediction struct {
	SessionID     uuid.UUID     `json:"session_id"`
	Seq           uint64        `json:"seq"`
	WindowStart   int64         `json:"window_start"`
	WindowEnd     int64         `json:"window_end"`
	Timestamp     time.Time     `json:"timestamp"`
	Class         int           `json:"class"`
	Label         string        `json:"label"`
	Probabilities []float64     `json:"probabilities,omitempty"`
	Rejected      bool          `json:"rejected"`
	RejectReason  string        `json:"reject_reason,omitempty"`
	Latency       time.Duration `json:"latency"`
}
