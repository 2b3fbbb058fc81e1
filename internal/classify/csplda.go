package classify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"eeg-decoder-service/internal/core/domain"
	"eeg-decoder-service/internal/dsp"
)

// CSPLDA projects a window through common spatial patterns, takes the
// normalised log-variance of every projection and classifies it with LDA.
type CSPLDA struct {
	Channels int         `json:"channels"`
	Filters  [][]float64 `json:"filters"`
	LDA      *LDA        `json:"lda"`
}

// FitCSPLDA fits one-vs-rest CSP filters and an LDA on their features.
func FitCSPLDA(ctx context.Context, epochs [][][]float64, labels []int, classes int, opts Options) (*CSPLDA, error) {
	if err := checkTrials(epochs, labels, classes); err != nil {
		return nil, err
	}
	channels := len(epochs[0])
	byClass := make([][][][]float64, classes)
	for i, ep := range epochs {
		byClass[labels[i]] = append(byClass[labels[i]], ep)
	}
	filters, err := dsp.FitCSPOneVsRest(ctx, byClass, opts.Pairs, opts.CovShrinkage)
	if err != nil {
		return nil, fmt.Errorf("fit csp: %w", err)
	}

	m := &CSPLDA{Channels: channels, Filters: filters}
	features := make([][]float64, len(epochs))
	for i, ep := range epochs {
		if features[i], err = m.features(ep); err != nil {
			return nil, err
		}
	}
	if m.LDA, err = FitLDA(features, labels, classes, opts.Shrinkage); err != nil {
		return nil, fmt.Errorf("fit lda: %w", err)
	}
	return m, nil
}

func (m *CSPLDA) Kind() domain.DecoderKind { return domain.KindCSPLDA }

func (m *CSPLDA) NumClasses() int { return len(m.LDA.Weights) }

func (m *CSPLDA) Predict(window [][]float64) ([]float64, error) {
	f, err := m.features(window)
	if err != nil {
		return nil, err
	}
	return m.LDA.Probabilities(f)
}

func (m *CSPLDA) features(window [][]float64) ([]float64, error) {
	if err := checkWindow(window, m.Channels); err != nil {
		return nil, err
	}
	return dsp.LogVarianceFeatures(m.Filters, window)
}

func (m *CSPLDA) MarshalJSON() ([]byte, error) {
	type plain CSPLDA
	return json.Marshal((*plain)(m))
}

func (m *CSPLDA) validate() error {
	if m.Channels <= 0 || len(m.Filters) == 0 {
		return errors.New("csp-lda: missing filters")
	}
	for _, f := range m.Filters {
		if len(f) != m.Channels {
			return errors.New("csp-lda: filter width does not match channels")
		}
	}
	if err := m.LDA.validate(); err != nil {
		return err
	}
	if len(m.LDA.Weights[0]) != len(m.Filters) {
		return errors.New("csp-lda: lda width does not match filters")
	}
	return nil
}
