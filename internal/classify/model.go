// Package classify holds the decoders that turn a preprocessed window into
// class probabilities. Models are read-only after fitting or loading and are
// safe for concurrent use.
package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"eeg-decoder-service/internal/core/domain"
	"eeg-decoder-service/internal/dsp"
)

// Model predicts class probabilities for one window shaped
// [channel][sample].
type Model interface {
	Kind() domain.DecoderKind
	NumClasses() int
	Predict(window [][]float64) ([]float64, error)
	json.Marshaler
}

// Options tunes the trainable decoders.
type Options struct {
	// Pairs of CSP filters kept from each end of the spectrum, per class.
	Pairs int `json:"pairs"`
	// CovShrinkage regularises the class covariances fed to CSP.
	CovShrinkage float64 `json:"cov_shrinkage"`
	// Shrinkage regularises the LDA pooled covariance.
	Shrinkage float64    `json:"shrinkage"`
	Bands     []dsp.Band `json:"bands,omitempty"`
}

func DefaultOptions() Options {
	return Options{
		Pairs:        2,
		CovShrinkage: 0.01,
		Shrinkage:    0.1,
		Bands:        dsp.DefaultBands,
	}
}

// MinTrialsPerClass is the smallest number of epochs of every class a
// decoder can be fitted on.
const MinTrialsPerClass = 2

// Fit trains a decoder of the given kind on labelled epochs.
func Fit(ctx context.Context, kind domain.DecoderKind, epochs [][][]float64, labels []int, classes int, rate float64, opts Options) (Model, error) {
	if err := checkTrials(epochs, labels, classes); err != nil {
		return nil, err
	}
	switch kind {
	case domain.KindCSPLDA:
		return FitCSPLDA(ctx, epochs, labels, classes, opts)
	case domain.KindBandPowerLDA:
		return FitBandPowerLDA(epochs, labels, classes, rate, opts)
	case domain.KindNeuroTransNet:
		return nil, domain.ErrCannotTrainNeuroModel
	default:
		return nil, domain.ErrUnsupportedKind
	}
}

// Decode restores a model persisted with json.Marshal.
func Decode(kind domain.DecoderKind, raw json.RawMessage) (Model, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty model", domain.ErrInvalidModelPayload)
	}
	var (
		m   Model
		err error
	)
	switch kind {
	case domain.KindCSPLDA:
		var v CSPLDA
		err = json.Unmarshal(raw, &v)
		if err == nil {
			err = v.validate()
		}
		m = &v
	case domain.KindBandPowerLDA:
		var v BandPowerLDA
		err = json.Unmarshal(raw, &v)
		if err == nil {
			err = v.validate()
		}
		m = &v
	case domain.KindNeuroTransNet:
		var w NeuroWeights
		if err = json.Unmarshal(raw, &w); err == nil {
			m, err = NewNeuroTransNet(&w)
		}
	default:
		return nil, domain.ErrUnsupportedKind
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidModelPayload, err)
	}
	return m, nil
}

// Argmax returns the index of the largest probability.
func Argmax(p []float64) int {
	best := 0
	for i, v := range p {
		if v > p[best] {
			best = i
		}
	}
	return best
}

// Softmax returns exp(s)/sum(exp(s)) computed after subtracting the maximum.
func Softmax(scores []float64) []float64 {
	out := make([]float64, len(scores))
	if len(scores) == 0 {
		return out
	}
	maxVal := scores[0]
	for _, v := range scores[1:] {
		if v > maxVal {
			maxVal = v
		}
	}
	var sum float64
	for i, v := range scores {
		out[i] = math.Exp(v - maxVal)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

func checkTrials(epochs [][][]float64, labels []int, classes int) error {
	if len(epochs) == 0 {
		return domain.ErrNoEvents
	}
	if len(epochs) != len(labels) {
		return fmt.Errorf("%w: %d epochs, %d labels", domain.ErrClassMismatch, len(epochs), len(labels))
	}
	if classes < 2 {
		return domain.ErrTooFewClasses
	}
	counts := make([]int, classes)
	for _, l := range labels {
		if l < 0 || l >= classes {
			return fmt.Errorf("%w: label %d outside %d classes", domain.ErrClassMismatch, l, classes)
		}
		counts[l]++
	}
	for k, n := range counts {
		if n < MinTrialsPerClass {
			return fmt.Errorf("%w: class %d has %d epochs", domain.ErrInsufficientTrials, k, n)
		}
	}
	return nil
}

func checkWindow(window [][]float64, channels int) error {
	if len(window) != channels {
		return fmt.Errorf("%w: model expects %d channels, got %d", domain.ErrChannelMismatch, channels, len(window))
	}
	return nil
}
