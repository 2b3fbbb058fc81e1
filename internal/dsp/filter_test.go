package dsp

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eeg-decoder-service/internal/core/domain"
)

func sine(freq, amp, rate float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = amp * math.Sin(2*math.Pi*freq*float64(i)/rate)
	}
	return out
}

func rms(row []float64) float64 {
	var s float64
	for _, v := range row {
		s += v * v
	}
	return math.Sqrt(s / float64(len(row)))
}

// ============================================================================
// Design
// ============================================================================

func TestButterworthQ(t *testing.T) {
	qs := butterworthQ(2)
	require.Len(t, qs, 1)
	assert.InDelta(t, 1/math.Sqrt2, qs[0], 1e-12)

	qs = butterworthQ(4)
	require.Len(t, qs, 2)
	assert.InDelta(t, 1.3066, qs[0], 1e-4)
	assert.InDelta(t, 0.5412, qs[1], 1e-4)
}

func TestFilterDesign_Errors(t *testing.T) {
	tests := []struct {
		name string
		fn   func() error
	}{
		{"odd order", func() error { _, err := ButterworthLowpass(3, 30, 250); return err }},
		{"order too high", func() error { _, err := ButterworthHighpass(10, 8, 250); return err }},
		{"cutoff at nyquist", func() error { _, err := ButterworthLowpass(4, 125, 250); return err }},
		{"zero cutoff", func() error { _, err := ButterworthHighpass(4, 0, 250); return err }},
		{"bad notch q", func() error { _, err := Notch(50, 0, 250); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.fn(), ErrInvalidFilter)
		})
	}
}

func TestNewFilterBank_InvalidConfig(t *testing.T) {
	_, err := NewFilterBank(domain.FilterConfig{LowHz: 30, HighHz: 8, Order: 4}, 250, 1)
	assert.ErrorIs(t, err, ErrInvalidFilter)
}

// ============================================================================
// Frequency response
// ============================================================================

func TestFilterBank_PassesInBandSine(t *testing.T) {
	fb, err := NewFilterBank(domain.FilterConfig{LowHz: 8, HighHz: 30, Order: 4}, 250, 1)
	require.NoError(t, err)

	x := [][]float64{sine(15, 1, 250, 1000)}
	require.NoError(t, fb.Process(x))

	amp := rms(x[0][750:]) * math.Sqrt2
	assert.InDelta(t, 1.0, amp, 0.05)
}

func TestFilterBank_RejectsDC(t *testing.T) {
	fb, err := NewFilterBank(domain.FilterConfig{LowHz: 8, HighHz: 30, Order: 4}, 250, 1)
	require.NoError(t, err)

	row := make([]float64, 1000)
	for i := range row {
		row[i] = 1
	}
	x := [][]float64{row}
	require.NoError(t, fb.Process(x))

	var mean float64
	for _, v := range x[0][750:] {
		mean += v
	}
	mean /= 250
	assert.Less(t, math.Abs(mean), 1e-3)
}

func TestFilterBank_NotchAttenuatesMains(t *testing.T) {
	fb, err := NewFilterBank(domain.FilterConfig{NotchHz: 50, NotchQ: 30}, 250, 1)
	require.NoError(t, err)

	x := [][]float64{sine(50, 1, 250, 1000)}
	require.NoError(t, fb.Process(x))

	assert.Less(t, rms(x[0][750:]), 0.1/math.Sqrt2)
}

func TestFilterBank_EmptyConfigIsIdentity(t *testing.T) {
	fb, err := NewFilterBank(domain.FilterConfig{}, 250, 2)
	require.NoError(t, err)

	x := [][]float64{{1, 2, 3}, {4, 5, 6}}
	want := Copy(x)
	require.NoError(t, fb.Process(x))
	assert.Equal(t, want, x)
}

// ============================================================================
// Streaming
// ============================================================================

func TestFilterBank_ChunkInvariance(t *testing.T) {
	cfg := domain.FilterConfig{LowHz: 8, HighHz: 30, Order: 4, NotchHz: 50, NotchQ: 30}
	rng := rand.New(rand.NewSource(7))
	x := make([][]float64, 3)
	for c := range x {
		x[c] = make([]float64, 1000)
		for i := range x[c] {
			x[c][i] = rng.NormFloat64()
		}
	}

	whole, err := NewFilterBank(cfg, 250, 3)
	require.NoError(t, err)
	want := Copy(x)
	require.NoError(t, whole.Process(want))

	chunked, err := NewFilterBank(cfg, 250, 3)
	require.NoError(t, err)
	got := Copy(x)
	sizes := []int{1, 7, 33, 250, 2}
	for start, i := 0, 0; start < 1000; i++ {
		end := start + sizes[i%len(sizes)]
		if end > 1000 {
			end = 1000
		}
		part := make([][]float64, 3)
		for c := range part {
			part[c] = got[c][start:end]
		}
		require.NoError(t, chunked.Process(part))
		start = end
	}

	assert.Equal(t, want, got)
}

func TestFilterBank_ResetClearsState(t *testing.T) {
	fb, err := NewFilterBank(domain.FilterConfig{LowHz: 8, HighHz: 30, Order: 4}, 250, 1)
	require.NoError(t, err)

	first := [][]float64{sine(12, 1, 250, 300)}
	require.NoError(t, fb.Process(first))
	fb.Reset()
	second := [][]float64{sine(12, 1, 250, 300)}
	require.NoError(t, fb.Process(second))

	assert.Equal(t, first, second)
}

func TestSOSFilter_ChannelMismatch(t *testing.T) {
	f := NewSOSFilter(nil, 2)
	err := f.Process([][]float64{{1}})
	assert.ErrorIs(t, err, ErrShape)
}
