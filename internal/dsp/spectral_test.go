package dsp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWelch_PeakAtSineFrequency(t *testing.T) {
	freqs, psd, err := Welch(sine(20, 1, 250, 1000), 250, 250)
	require.NoError(t, err)
	require.Len(t, freqs, 126)

	peak := 0
	for k := range psd {
		if psd[k] > psd[peak] {
			peak = k
		}
	}
	assert.InDelta(t, 20, freqs[peak], 1e-9)
}

func TestWelch_TooShort(t *testing.T) {
	_, _, err := Welch([]float64{1, 2, 3}, 250, 250)
	assert.ErrorIs(t, err, ErrShape)
}

func TestBandPower_SineFallsInItsBand(t *testing.T) {
	power, err := BandPower(sine(10, 1, 250, 500), 250, DefaultBands)
	require.NoError(t, err)
	require.Len(t, power, 2)

	// a unit sine carries 0.5 of mean-square power
	assert.InDelta(t, 0.5, power[0], 0.05)
	assert.Less(t, power[1], 0.01)
}

func TestBandPower_ShortRowUsesWholeRow(t *testing.T) {
	power, err := BandPower(sine(20, 1, 250, 125), 250, DefaultBands)
	require.NoError(t, err)
	assert.Greater(t, power[1], power[0])
}
