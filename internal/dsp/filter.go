package dsp

import (
	"errors"
	"fmt"
	"math"

	"eeg-decoder-service/internal/core/domain"
)

var (
	ErrInvalidFilter = errors.New("invalid filter design")
	ErrShape         = errors.New("shape mismatch")
)

// Biquad holds normalised second-order section coefficients (a0 == 1).
type Biquad struct {
	B0, B1, B2 float64
	A1, A2     float64
}

// butterworthQ returns the section quality factors of an even order
// Butterworth prototype.
func butterworthQ(order int) []float64 {
	qs := make([]float64, order/2)
	for k := range qs {
		qs[k] = 1 / (2 * math.Sin(float64(2*k+1)*math.Pi/float64(2*order)))
	}
	return qs
}

func checkCutoff(cutoff, rate float64) error {
	if rate <= 0 {
		return fmt.Errorf("%w: sample rate %.2f", ErrInvalidFilter, rate)
	}
	if cutoff <= 0 || cutoff >= rate/2 {
		return fmt.Errorf("%w: cutoff %.2f Hz outside (0, %.2f)", ErrInvalidFilter, cutoff, rate/2)
	}
	return nil
}

func checkOrder(order int) error {
	if order < 2 || order > 8 || order%2 != 0 {
		return fmt.Errorf("%w: order %d", ErrInvalidFilter, order)
	}
	return nil
}

// ButterworthLowpass designs an even order low-pass as cascaded sections.
func ButterworthLowpass(order int, cutoff, rate float64) ([]Biquad, error) {
	if err := checkOrder(order); err != nil {
		return nil, err
	}
	if err := checkCutoff(cutoff, rate); err != nil {
		return nil, err
	}
	w0 := 2 * math.Pi * cutoff / rate
	cosw, sinw := math.Cos(w0), math.Sin(w0)
	var sections []Biquad
	for _, q := range butterworthQ(order) {
		alpha := sinw / (2 * q)
		a0 := 1 + alpha
		sections = append(sections, Biquad{
			B0: (1 - cosw) / 2 / a0,
			B1: (1 - cosw) / a0,
			B2: (1 - cosw) / 2 / a0,
			A1: -2 * cosw / a0,
			A2: (1 - alpha) / a0,
		})
	}
	return sections, nil
}

// ButterworthHighpass designs an even order high-pass as cascaded sections.
func ButterworthHighpass(order int, cutoff, rate float64) ([]Biquad, error) {
	if err := checkOrder(order); err != nil {
		return nil, err
	}
	if err := checkCutoff(cutoff, rate); err != nil {
		return nil, err
	}
	w0 := 2 * math.Pi * cutoff / rate
	cosw, sinw := math.Cos(w0), math.Sin(w0)
	var sections []Biquad
	for _, q := range butterworthQ(order) {
		alpha := sinw / (2 * q)
		a0 := 1 + alpha
		sections = append(sections, Biquad{
			B0: (1 + cosw) / 2 / a0,
			B1: -(1 + cosw) / a0,
			B2: (1 + cosw) / 2 / a0,
			A1: -2 * cosw / a0,
			A2: (1 - alpha) / a0,
		})
	}
	return sections, nil
}

// Notch designs a second-order band-stop centred on f0.
func Notch(f0, q, rate float64) (Biquad, error) {
	if err := checkCutoff(f0, rate); err != nil {
		return Biquad{}, err
	}
	if q <= 0 {
		return Biquad{}, fmt.Errorf("%w: notch Q %.2f", ErrInvalidFilter, q)
	}
	w0 := 2 * math.Pi * f0 / rate
	cosw := math.Cos(w0)
	alpha := math.Sin(w0) / (2 * q)
	a0 := 1 + alpha
	return Biquad{
		B0: 1 / a0,
		B1: -2 * cosw / a0,
		B2: 1 / a0,
		A1: -2 * cosw / a0,
		A2: (1 - alpha) / a0,
	}, nil
}

// SOSFilter runs cascaded sections over several channels in direct form II
// transposed, keeping per-channel state between calls.
type SOSFilter struct {
	sections []Biquad
	// state[channel][section] = {z1, z2}
	state [][][2]float64
}

func NewSOSFilter(sections []Biquad, channels int) *SOSFilter {
	state := make([][][2]float64, channels)
	for c := range state {
		state[c] = make([][2]float64, len(sections))
	}
	return &SOSFilter{sections: sections, state: state}
}

// Process filters x in place.
func (f *SOSFilter) Process(x [][]float64) error {
	if len(x) != len(f.state) {
		return fmt.Errorf("%w: filter has %d channels, got %d", ErrShape, len(f.state), len(x))
	}
	for c, row := range x {
		st := f.state[c]
		for i, v := range row {
			for s := range f.sections {
				sec := &f.sections[s]
				z := &st[s]
				y := sec.B0*v + z[0]
				z[0] = sec.B1*v - sec.A1*y + z[1]
				z[1] = sec.B2*v - sec.A2*y
				v = y
			}
			row[i] = v
		}
	}
	return nil
}

func (f *SOSFilter) Reset() {
	for c := range f.state {
		for s := range f.state[c] {
			f.state[c][s] = [2]float64{}
		}
	}
}

// FilterBank chains high-pass, low-pass and notch stages for a stream.
type FilterBank struct {
	stages []*SOSFilter
}

// NewFilterBank builds the causal preprocessing chain described by cfg.
// Stages with a zero frequency are omitted; an all-zero config is a no-op.
func NewFilterBank(cfg domain.FilterConfig, rate float64, channels int) (*FilterBank, error) {
	if err := cfg.Validate(rate); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFilter, err)
	}
	fb := &FilterBank{}
	if cfg.LowHz > 0 {
		hp, err := ButterworthHighpass(cfg.Order, cfg.LowHz, rate)
		if err != nil {
			return nil, err
		}
		fb.stages = append(fb.stages, NewSOSFilter(hp, channels))
	}
	if cfg.HighHz > 0 {
		lp, err := ButterworthLowpass(cfg.Order, cfg.HighHz, rate)
		if err != nil {
			return nil, err
		}
		fb.stages = append(fb.stages, NewSOSFilter(lp, channels))
	}
	if cfg.NotchHz > 0 {
		n, err := Notch(cfg.NotchHz, cfg.NotchQ, rate)
		if err != nil {
			return nil, err
		}
		fb.stages = append(fb.stages, NewSOSFilter([]Biquad{n}, channels))
	}
	return fb, nil
}

func (fb *FilterBank) Process(x [][]float64) error {
	for _, st := range fb.stages {
		if err := st.Process(x); err != nil {
			return err
		}
	}
	return nil
}

func (fb *FilterBank) Reset() {
	for _, st := range fb.stages {
		st.Reset()
	}
}

// Copy returns a deep copy of x.
func Copy(x [][]float64) [][]float64 {
	out := make([][]float64, len(x))
	for i, row := range x {
		out[i] = append([]float64(nil), row...)
	}
	return out
}
