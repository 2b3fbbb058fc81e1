package classify

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"eeg-decoder-service/internal/core/domain"
	"eeg-decoder-service/internal/dsp"
)

// BandPowerLDA classifies the standardised log band power of every channel.
type BandPowerLDA struct {
	Channels int        `json:"channels"`
	Rate     float64    `json:"rate"`
	Bands    []dsp.Band `json:"bands"`
	Mean     []float64  `json:"mean"`
	Std      []float64  `json:"std"`
	LDA      *LDA       `json:"lda"`
}

func FitBandPowerLDA(epochs [][][]float64, labels []int, classes int, rate float64, opts Options) (*BandPowerLDA, error) {
	if err := checkTrials(epochs, labels, classes); err != nil {
		return nil, err
	}
	if rate <= 0 {
		return nil, domain.ErrInvalidSampleRate
	}
	bands := opts.Bands
	if len(bands) == 0 {
		bands = dsp.DefaultBands
	}
	m := &BandPowerLDA{Channels: len(epochs[0]), Rate: rate, Bands: bands}

	raw := make([][]float64, len(epochs))
	for i, ep := range epochs {
		f, err := m.logPower(ep)
		if err != nil {
			return nil, err
		}
		raw[i] = f
	}

	d := len(raw[0])
	m.Mean = make([]float64, d)
	m.Std = make([]float64, d)
	for _, f := range raw {
		for j, v := range f {
			m.Mean[j] += v
		}
	}
	for j := range m.Mean {
		m.Mean[j] /= float64(len(raw))
	}
	for _, f := range raw {
		for j, v := range f {
			dv := v - m.Mean[j]
			m.Std[j] += dv * dv
		}
	}
	for j := range m.Std {
		m.Std[j] = math.Sqrt(m.Std[j] / float64(len(raw)))
		if m.Std[j] == 0 {
			m.Std[j] = 1
		}
	}
	for _, f := range raw {
		m.standardise(f)
	}

	lda, err := FitLDA(raw, labels, classes, opts.Shrinkage)
	if err != nil {
		return nil, fmt.Errorf("fit lda: %w", err)
	}
	m.LDA = lda
	return m, nil
}

func (m *BandPowerLDA) Kind() domain.DecoderKind { return domain.KindBandPowerLDA }

func (m *BandPowerLDA) NumClasses() int { return len(m.LDA.Weights) }

func (m *BandPowerLDA) Predict(window [][]float64) ([]float64, error) {
	f, err := m.logPower(window)
	if err != nil {
		return nil, err
	}
	m.standardise(f)
	return m.LDA.Probabilities(f)
}

// logPower returns log band power ordered channel-major.
func (m *BandPowerLDA) logPower(window [][]float64) ([]float64, error) {
	if err := checkWindow(window, m.Channels); err != nil {
		return nil, err
	}
	out := make([]float64, 0, len(window)*len(m.Bands))
	for _, row := range window {
		p, err := dsp.BandPower(row, m.Rate, m.Bands)
		if err != nil {
			return nil, err
		}
		for _, v := range p {
			out = append(out, dsp.ClampedLog(v))
		}
	}
	return out, nil
}

func (m *BandPowerLDA) standardise(f []float64) {
	for j := range f {
		f[j] = (f[j] - m.Mean[j]) / m.Std[j]
	}
}

func (m *BandPowerLDA) MarshalJSON() ([]byte, error) {
	type plain BandPowerLDA
	return json.Marshal((*plain)(m))
}

func (m *BandPowerLDA) validate() error {
	if m.Channels <= 0 || m.Rate <= 0 || len(m.Bands) == 0 {
		return errors.New("bandpower-lda: missing channels, rate or bands")
	}
	d := m.Channels * len(m.Bands)
	if len(m.Mean) != d || len(m.Std) != d {
		return errors.New("bandpower-lda: standardisation width mismatch")
	}
	if err := m.LDA.validate(); err != nil {
		return err
	}
	if len(m.LDA.Weights[0]) != d {
		return errors.New("bandpower-lda: lda width mismatch")
	}
	return nil
}
