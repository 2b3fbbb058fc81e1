package dsp

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClampedLog(t *testing.T) {
	tests := []struct {
		name string
		in   float64
		want float64
	}{
		{"zero", 0, math.Log(MinVariance)},
		{"negative", -1, math.Log(MinVariance)},
		{"nan", math.NaN(), math.Log(MinVariance)},
		{"huge", 1e12, math.Log(MaxVariance)},
		{"in range", 2, math.Log(2)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, ClampedLog(tt.in), 1e-12)
		})
	}
}

func TestLogVariance(t *testing.T) {
	// unbiased variance of 1..5 is 2.5
	assert.InDelta(t, math.Log(2.5), LogVariance([]float64{1, 2, 3, 4, 5}), 1e-12)
	assert.InDelta(t, math.Log(MinVariance), LogVariance([]float64{3, 3, 3}), 1e-12)
	assert.InDelta(t, math.Log(MinVariance), LogVariance([]float64{1}), 1e-12)
}

func TestKurtosisOfGaussianIsNearZero(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	row := make([]float64, 20000)
	for i := range row {
		row[i] = rng.NormFloat64()
	}
	assert.InDelta(t, 0, Kurtosis(row), 0.2)
	assert.Equal(t, 0.0, Kurtosis([]float64{1, 2}))
}

func TestPearson(t *testing.T) {
	a := []float64{1, 2, 3, 4}
	assert.InDelta(t, 1, Pearson(a, []float64{2, 4, 6, 8}), 1e-12)
	assert.InDelta(t, -1, Pearson(a, []float64{4, 3, 2, 1}), 1e-12)
	assert.Equal(t, 0.0, Pearson(a, []float64{1, 1, 1, 1}))
	assert.Equal(t, 0.0, Pearson(a, []float64{1, 2}))
}

func TestPeakToPeak(t *testing.T) {
	x := [][]float64{{0, 1, -1}, {10, -5, 0}, {}}
	assert.Equal(t, 15.0, PeakToPeak(x))
}

func TestCommonAverage(t *testing.T) {
	x := [][]float64{{1, 2}, {3, 4}, {5, 9}}
	CommonAverage(x)
	for i := 0; i < 2; i++ {
		assert.InDelta(t, 0, x[0][i]+x[1][i]+x[2][i], 1e-12)
	}
	assert.Equal(t, []float64{-2, -3}, x[0])
}

func TestApplyMatrix(t *testing.T) {
	m := [][]float64{{1, 1}, {1, -1}}
	x := [][]float64{{1, 2}, {3, 4}}
	out, err := ApplyMatrix(m, x)
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{4, 6}, {-2, -2}}, out)

	_, err = ApplyMatrix([][]float64{{1, 2, 3}}, x)
	assert.ErrorIs(t, err, ErrShape)
}

func TestCovariance_TraceNormalised(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	x := make([][]float64, 3)
	for c := range x {
		x[c] = make([]float64, 500)
		for i := range x[c] {
			x[c][i] = float64(c+1) * rng.NormFloat64()
		}
	}
	cov := Covariance(x, true)
	assert.InDelta(t, 1, cov.At(0, 0)+cov.At(1, 1)+cov.At(2, 2), 1e-12)
	assert.Greater(t, cov.At(2, 2), cov.At(0, 0))
}

func TestShrink(t *testing.T) {
	cov := Covariance([][]float64{{1, 2, 3, 4}, {2, 4, 6, 8}}, false)
	full := Shrink(cov, 1)
	nu := (cov.At(0, 0) + cov.At(1, 1)) / 2
	assert.InDelta(t, nu, full.At(0, 0), 1e-12)
	assert.InDelta(t, 0, full.At(0, 1), 1e-12)

	none := Shrink(cov, 0)
	assert.InDelta(t, cov.At(0, 1), none.At(0, 1), 1e-12)
}

// ============================================================================
// Pooling
// ============================================================================

func TestPooledLen(t *testing.T) {
	assert.Equal(t, 64, PooledLen(1000, 50, 15))
	assert.Equal(t, 1, PooledLen(50, 50, 15))
	assert.Equal(t, 0, PooledLen(49, 50, 15))
	assert.Equal(t, 0, PooledLen(100, 0, 15))
}

func TestAveragePool(t *testing.T) {
	out, err := AveragePool([]float64{1, 2, 3, 4, 5, 6}, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, []float64{1.5, 3.5, 5.5}, out)

	_, err = AveragePool([]float64{1}, 2, 1)
	assert.ErrorIs(t, err, ErrShape)
}

func TestVariancePool(t *testing.T) {
	out, err := VariancePool([]float64{1, 1, 1, 0, 2, 4}, 3, 3)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.InDelta(t, math.Log(MinVariance), out[0], 1e-12)
	assert.InDelta(t, math.Log(4), out[1], 1e-12)
}
