package dsp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ramp(channels, n int) [][]float64 {
	x := make([][]float64, channels)
	for c := range x {
		x[c] = make([]float64, n)
		for i := range x[c] {
			x[c][i] = float64(c*10000 + i)
		}
	}
	return x
}

func slice(x [][]float64, start, end int) [][]float64 {
	out := make([][]float64, len(x))
	for c := range x {
		out[c] = x[c][start:end]
	}
	return out
}

func TestNewWindower_Validation(t *testing.T) {
	tests := []struct {
		name                  string
		channels, length, hop int
	}{
		{"no channels", 0, 10, 5},
		{"zero length", 2, 0, 1},
		{"zero hop", 2, 10, 0},
		{"hop longer than window", 2, 10, 11},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewWindower(tt.channels, tt.length, tt.hop)
			assert.ErrorIs(t, err, ErrShape)
		})
	}
}

func TestWindower_CountAndContent(t *testing.T) {
	x := ramp(2, 1000)
	w, err := NewWindower(2, 100, 25)
	require.NoError(t, err)

	wins, err := w.Push(x)
	require.NoError(t, err)

	require.Len(t, wins, (1000-100)/25+1)
	for i, win := range wins {
		start := i * 25
		assert.Equal(t, int64(start), win.Start)
		assert.Equal(t, int64(start+100), win.End())
		assert.Equal(t, slice(x, start, start+100), win.Data)
	}
	assert.Equal(t, int64(1000), w.Position())
}

func TestWindower_ChunkInvariance(t *testing.T) {
	x := ramp(3, 777)

	whole, err := NewWindower(3, 64, 16)
	require.NoError(t, err)
	want, err := whole.Push(x)
	require.NoError(t, err)

	chunked, err := NewWindower(3, 64, 16)
	require.NoError(t, err)
	var got []Window
	sizes := []int{5, 1, 64, 13, 100}
	for start, i := 0, 0; start < 777; i++ {
		end := start + sizes[i%len(sizes)]
		if end > 777 {
			end = 777
		}
		wins, err := chunked.Push(slice(x, start, end))
		require.NoError(t, err)
		got = append(got, wins...)
		start = end
	}

	assert.Equal(t, want, got)
}

func TestWindower_ShortStreamEmitsNothing(t *testing.T) {
	w, err := NewWindower(1, 50, 10)
	require.NoError(t, err)
	wins, err := w.Push(ramp(1, 49))
	require.NoError(t, err)
	assert.Empty(t, wins)
}

func TestWindower_WindowsAreCopies(t *testing.T) {
	w, err := NewWindower(1, 4, 1)
	require.NoError(t, err)
	wins, err := w.Push([][]float64{{1, 2, 3, 4, 5}})
	require.NoError(t, err)
	require.Len(t, wins, 2)
	assert.Equal(t, []float64{1, 2, 3, 4}, wins[0].Data[0])
	assert.Equal(t, []float64{2, 3, 4, 5}, wins[1].Data[0])
}

func TestWindower_SkipStartsFresh(t *testing.T) {
	w, err := NewWindower(1, 100, 20)
	require.NoError(t, err)

	_, err = w.Push(ramp(1, 150))
	require.NoError(t, err)
	w.Skip(10)
	assert.Equal(t, int64(160), w.Position())

	wins, err := w.Push(ramp(1, 99))
	require.NoError(t, err)
	assert.Empty(t, wins)

	wins, err = w.Push([][]float64{{42}})
	require.NoError(t, err)
	require.Len(t, wins, 1)
	assert.Equal(t, int64(160), wins[0].Start)
	assert.Equal(t, 42.0, wins[0].Data[0][99])
}

func TestWindower_ChannelMismatch(t *testing.T) {
	w, err := NewWindower(2, 10, 5)
	require.NoError(t, err)
	_, err = w.Push(ramp(1, 10))
	assert.ErrorIs(t, err, ErrShape)
}
