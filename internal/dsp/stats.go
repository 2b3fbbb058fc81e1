package dsp

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Variance bounds applied before taking logarithms.
const (
	MinVariance = 1e-6
	MaxVariance = 1e6
)

// ClampedLog returns log(v) with v clamped to [MinVariance, MaxVariance].
func ClampedLog(v float64) float64 {
	if math.IsNaN(v) || v < MinVariance {
		v = MinVariance
	}
	if v > MaxVariance {
		v = MaxVariance
	}
	return math.Log(v)
}

// LogVariance returns the clamped log of the unbiased variance of row.
func LogVariance(row []float64) float64 {
	if len(row) < 2 {
		return ClampedLog(0)
	}
	return ClampedLog(stat.Variance(row, nil))
}

// Kurtosis returns the sample excess kurtosis (0 for a Gaussian).
func Kurtosis(row []float64) float64 {
	if len(row) < 4 {
		return 0
	}
	k := stat.ExKurtosis(row, nil)
	if math.IsNaN(k) {
		return 0
	}
	return k
}

// Pearson returns the correlation coefficient of a and b, or 0 when either
// is constant.
func Pearson(a, b []float64) float64 {
	if len(a) != len(b) || len(a) < 2 {
		return 0
	}
	r := stat.Correlation(a, b, nil)
	if math.IsNaN(r) {
		return 0
	}
	return r
}

// PeakToPeak returns the largest max-min range over all channels.
func PeakToPeak(x [][]float64) float64 {
	var ptp float64
	for _, row := range x {
		if len(row) == 0 {
			continue
		}
		if d := floats.Max(row) - floats.Min(row); d > ptp {
			ptp = d
		}
	}
	return ptp
}

// CommonAverage subtracts the instantaneous mean across channels in place.
func CommonAverage(x [][]float64) {
	if len(x) < 2 {
		return
	}
	n := len(x[0])
	for i := 0; i < n; i++ {
		var sum float64
		for c := range x {
			sum += x[c][i]
		}
		mean := sum / float64(len(x))
		for c := range x {
			x[c][i] -= mean
		}
	}
}

// ToDense packs channel-major rows into a matrix.
func ToDense(x [][]float64) *mat.Dense {
	r := len(x)
	if r == 0 {
		return &mat.Dense{}
	}
	c := len(x[0])
	data := make([]float64, 0, r*c)
	for _, row := range x {
		data = append(data, row...)
	}
	return mat.NewDense(r, c, data)
}

// FromDense unpacks a matrix into rows.
func FromDense(m mat.Matrix) [][]float64 {
	r, c := m.Dims()
	out := make([][]float64, r)
	for i := range out {
		out[i] = make([]float64, c)
		for j := range out[i] {
			out[i][j] = m.At(i, j)
		}
	}
	return out
}

// ApplyMatrix returns m·x for a channel-major signal x.
func ApplyMatrix(m [][]float64, x [][]float64) ([][]float64, error) {
	if len(m) == 0 || len(m[0]) != len(x) {
		return nil, fmt.Errorf("%w: matrix has %d columns, signal has %d channels", ErrShape, colsOf(m), len(x))
	}
	var out mat.Dense
	out.Mul(ToDense(m), ToDense(x))
	return FromDense(&out), nil
}

func colsOf(m [][]float64) int {
	if len(m) == 0 {
		return 0
	}
	return len(m[0])
}

// Covariance returns the channel covariance of x around each channel mean.
// When normalize is set the result is divided by its trace.
func Covariance(x [][]float64, normalize bool) *mat.SymDense {
	c := len(x)
	cov := mat.NewSymDense(c, nil)
	if c == 0 || len(x[0]) < 2 {
		return cov
	}
	n := len(x[0])
	means := make([]float64, c)
	for i, row := range x {
		means[i] = stat.Mean(row, nil)
	}
	for i := 0; i < c; i++ {
		for j := i; j < c; j++ {
			var s float64
			for t := 0; t < n; t++ {
				s += (x[i][t] - means[i]) * (x[j][t] - means[j])
			}
			cov.SetSym(i, j, s/float64(n-1))
		}
	}
	if normalize {
		if tr := mat.Trace(cov); tr > 0 {
			cov.ScaleSym(1/tr, cov)
		}
	}
	return cov
}

// Shrink blends cov towards a scaled identity: (1-l)·cov + l·(tr/n)·I.
func Shrink(cov *mat.SymDense, l float64) *mat.SymDense {
	n := cov.SymmetricDim()
	out := mat.NewSymDense(n, nil)
	if n == 0 {
		return out
	}
	nu := mat.Trace(cov) / float64(n)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v := (1 - l) * cov.At(i, j)
			if i == j {
				v += l * nu
			}
			out.SetSym(i, j, v)
		}
	}
	return out
}
