package domain

import "fmt"

// FilterConfig configures the causal preprocessing filters. A zero cutoff
// disables the corresponding stage.
type FilterConfig struct {
	LowHz   float64 `json:"low_hz"`
	HighHz  float64 `json:"high_hz"`
	Order   int     `json:"order"`
	NotchHz float64 `json:"notch_hz"`
	NotchQ  float64 `json:"notch_q"`
}

func (f FilterConfig) Validate(rate float64) error {
	nyquist := rate / 2
	if f.LowHz < 0 || f.HighHz < 0 || f.NotchHz < 0 {
		return fmt.Errorf("%w: negative frequency", ErrInvalidFilterConfig)
	}
	if (f.LowHz > 0 || f.HighHz > 0) && (f.Order < 2 || f.Order > 8 || f.Order%2 != 0) {
		return fmt.Errorf("%w: order must be even and between 2 and 8", ErrInvalidFilterConfig)
	}
	if f.LowHz >= nyquist || f.HighHz >= nyquist || f.NotchHz >= nyquist {
		return fmt.Errorf("%w: cutoff at or above nyquist (%.1f Hz)", ErrInvalidFilterConfig, nyquist)
	}
	if f.LowHz > 0 && f.HighHz > 0 && f.LowHz >= f.HighHz {
		return fmt.Errorf("%w: low cutoff must be below high cutoff", ErrInvalidFilterConfig)
	}
	if f.NotchHz > 0 && f.NotchQ <= 0 {
		return fmt.Errorf("%w: notch Q must be positive", ErrInvalidFilterConfig)
	}
	return nil
}

// WindowConfig is expressed in samples. Offset positions training epochs
// relative to their event onset.
type WindowConfig struct {
	Length int `json:"length"`
	Hop    int `json:"hop"`
	Offset int `json:"offset"`
}

func (w WindowConfig) Validate() error {
	if w.Length <= 0 || w.Hop <= 0 || w.Hop > w.Length {
		return ErrInvalidWindow
	}
	return nil
}

type ArtifactMethod string

const (
	ArtifactNone ArtifactMethod = "none"
	ArtifactICA  ArtifactMethod = "ica"
)

type ArtifactConfig struct {
	Method            ArtifactMethod `json:"method"`
	EOGThreshold      float64        `json:"eog_threshold"`
	KurtosisThreshold float64        `json:"kurtosis_threshold"`
	MaxComponents     int            `json:"max_components"`
	RejectPeakToPeak  float64        `json:"reject_peak_to_peak"`
}

func (a ArtifactConfig) Validate() error {
	switch a.Method {
	case "", ArtifactNone, ArtifactICA:
	default:
		return fmt.Errorf("%w: unknown method %q", ErrInvalidArtifactConf, a.Method)
	}
	if a.EOGThreshold < 0 || a.EOGThreshold > 1 {
		return fmt.Errorf("%w: eog threshold must be in [0, 1]", ErrInvalidArtifactConf)
	}
	if a.KurtosisThreshold < 0 || a.MaxComponents < 0 || a.RejectPeakToPeak < 0 {
		return fmt.Errorf("%w: negative threshold", ErrInvalidArtifactConf)
	}
	return nil
}

type ReferenceMode string

const (
	ReferenceNone ReferenceMode = "none"
	ReferenceCAR  ReferenceMode = "car"
)

// PipelineConfig is everything needed to turn raw blocks into model-ready
// windows.
type PipelineConfig struct {
	Filter    FilterConfig   `json:"filter"`
	Reference ReferenceMode  `json:"reference"`
	Window    WindowConfig   `json:"window"`
	Artifact  ArtifactConfig `json:"artifact"`
}

// DefaultPipelineConfig returns motor-imagery oriented defaults: 8-30 Hz band,
// 2 s windows with 250 ms hop at the given rate.
func DefaultPipelineConfig(rate float64) PipelineConfig {
	return PipelineConfig{
		Filter: FilterConfig{
			LowHz:  8,
			HighHz: 30,
			Order:  4,
		},
		Reference: ReferenceNone,
		Window: WindowConfig{
			Length: int(2 * rate),
			Hop:    int(0.25 * rate),
			Offset: int(0.5 * rate),
		},
		Artifact: ArtifactConfig{
			Method:            ArtifactNone,
			EOGThreshold:      0.7,
			KurtosisThreshold: 2,
			MaxComponents:     2,
		},
	}
}

func (p PipelineConfig) Validate(rate float64) error {
	if err := p.Filter.Validate(rate); err != nil {
		return err
	}
	switch p.Reference {
	case "", ReferenceNone, ReferenceCAR:
	default:
		return fmt.Errorf("%w: unknown reference %q", ErrInvalidFilterConfig, p.Reference)
	}
	if err := p.Window.Validate(); err != nil {
		return err
	}
	return p.Artifact.Validate()
}

// ArtifactModel is the fitted ICA decomposition and the components judged to
// be artifacts. Cleaning is the precomputed channel-space projection.
type ArtifactModel struct {
	Unmixing [][]float64 `json:"unmixing"`
	Mixing   [][]float64 `json:"mixing"`
	Mean     []float64   `json:"mean"`
	Excluded []int       `json:"excluded"`
	Scores   []float64   `json:"scores,omitempty"`
	Cleaning [][]float64 `json:"cleaning"`
}
