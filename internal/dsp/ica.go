package dsp

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

var (
	ErrNotConverged  = errors.New("ica did not converge")
	ErrRankDeficient = errors.New("signal covariance has no usable rank")
)

// ICAOptions tunes FastICA.
type ICAOptions struct {
	// Components caps the number of estimated sources; 0 keeps the numerical
	// rank of the data.
	Components int
	MaxIter    int
	Tol        float64
	Seed       int64
	// RankTol drops whitening directions whose eigenvalue is below
	// RankTol times the largest one.
	RankTol float64
	// AllowUnconverged returns the last estimate together with
	// ErrNotConverged instead of failing outright.
	AllowUnconverged bool
}

func DefaultICAOptions() ICAOptions {
	return ICAOptions{
		MaxIter: 1000,
		Tol:     1e-5,
		Seed:    1,
		RankTol: 1e-10,
	}
}

// ICA is a fitted decomposition: sources = Unmixing·(x - Mean) and
// x ≈ Mixing·sources + Mean.
type ICA struct {
	Unmixing *mat.Dense // k x C
	Mixing   *mat.Dense // C x k
	Mean     []float64
	Iter     int
}

// Components returns the number of estimated sources.
func (ica *ICA) Components() int {
	r, _ := ica.Unmixing.Dims()
	return r
}

// Sources projects x into source space.
func (ica *ICA) Sources(x [][]float64) ([][]float64, error) {
	_, c := ica.Unmixing.Dims()
	if len(x) != c {
		return nil, fmt.Errorf("%w: ica fitted on %d channels, got %d", ErrShape, c, len(x))
	}
	centred := Copy(x)
	for i := range centred {
		for t := range centred[i] {
			centred[i][t] -= ica.Mean[i]
		}
	}
	var s mat.Dense
	s.Mul(ica.Unmixing, ToDense(centred))
	return FromDense(&s), nil
}

// FastICA estimates independent components of x with the symmetric
// fixed-point algorithm and the logcosh contrast.
func FastICA(x [][]float64, opts ICAOptions) (*ICA, error) {
	if opts.MaxIter <= 0 {
		opts.MaxIter = 1000
	}
	if opts.Tol <= 0 {
		opts.Tol = 1e-5
	}
	if opts.RankTol <= 0 {
		opts.RankTol = 1e-10
	}
	c := len(x)
	if c == 0 || len(x[0]) < 2 {
		return nil, fmt.Errorf("%w: need at least one channel and two samples", ErrShape)
	}
	n := len(x[0])

	mean := make([]float64, c)
	centred := make([][]float64, c)
	for i, row := range x {
		if len(row) != n {
			return nil, fmt.Errorf("%w: ragged input", ErrShape)
		}
		mean[i] = stat.Mean(row, nil)
		centred[i] = make([]float64, n)
		for t, v := range row {
			centred[i][t] = v - mean[i]
		}
	}
	X := ToDense(centred)

	// PCA whitening
	cov := mat.NewSymDense(c, nil)
	cov.SymOuterK(1/float64(n), X)
	var es mat.EigenSym
	if ok := es.Factorize(cov, true); !ok {
		return nil, fmt.Errorf("%w: eigendecomposition failed", ErrRankDeficient)
	}
	vals := es.Values(nil)
	var vecs mat.Dense
	es.VectorsTo(&vecs)

	// eigenvalues are ascending; walk from the largest
	maxVal := vals[len(vals)-1]
	if maxVal <= 0 {
		return nil, ErrRankDeficient
	}
	var keep []int
	for i := len(vals) - 1; i >= 0; i-- {
		if vals[i] > opts.RankTol*maxVal {
			keep = append(keep, i)
		}
	}
	k := len(keep)
	if opts.Components > 0 && opts.Components < k {
		k = opts.Components
		keep = keep[:k]
	}

	K := mat.NewDense(k, c, nil)    // whitening
	Kinv := mat.NewDense(c, k, nil) // dewhitening
	for r, idx := range keep {
		d := math.Sqrt(vals[idx])
		for j := 0; j < c; j++ {
			e := vecs.At(j, idx)
			K.Set(r, j, e/d)
			Kinv.Set(j, r, e*d)
		}
	}
	var Z mat.Dense
	Z.Mul(K, X)

	rng := rand.New(rand.NewSource(opts.Seed))
	W := mat.NewDense(k, k, nil)
	for i := 0; i < k; i++ {
		for j := 0; j < k; j++ {
			W.Set(i, j, rng.NormFloat64())
		}
	}
	W, err := symDecorrelate(W)
	if err != nil {
		return nil, err
	}

	var (
		iter      int
		converged bool
		wz        mat.Dense
		gzt       mat.Dense
	)
	g := mat.NewDense(k, n, nil)
	gp := make([]float64, k)
	for iter = 1; iter <= opts.MaxIter; iter++ {
		wz.Mul(W, &Z)
		for i := 0; i < k; i++ {
			var sum float64
			for t := 0; t < n; t++ {
				v := math.Tanh(wz.At(i, t))
				g.Set(i, t, v)
				sum += 1 - v*v
			}
			gp[i] = sum / float64(n)
		}
		gzt.Mul(g, Z.T())
		next := mat.NewDense(k, k, nil)
		for i := 0; i < k; i++ {
			for j := 0; j < k; j++ {
				next.Set(i, j, gzt.At(i, j)/float64(n)-gp[i]*W.At(i, j))
			}
		}
		next, err = symDecorrelate(next)
		if err != nil {
			return nil, err
		}

		var lim float64
		for i := 0; i < k; i++ {
			dot := mat.Dot(next.RowView(i), W.RowView(i))
			if d := math.Abs(math.Abs(dot) - 1); d > lim {
				lim = d
			}
		}
		W = next
		if lim < opts.Tol {
			converged = true
			break
		}
	}
	if iter > opts.MaxIter {
		iter = opts.MaxIter
	}

	unmixing := mat.NewDense(k, c, nil)
	unmixing.Mul(W, K)
	mixing := mat.NewDense(c, k, nil)
	mixing.Mul(Kinv, W.T())

	ica := &ICA{Unmixing: unmixing, Mixing: mixing, Mean: mean, Iter: iter}
	if !converged {
		if opts.AllowUnconverged {
			return ica, fmt.Errorf("%w after %d iterations", ErrNotConverged, iter)
		}
		return nil, fmt.Errorf("%w after %d iterations", ErrNotConverged, iter)
	}
	return ica, nil
}

// symDecorrelate returns (W·Wᵀ)^(-1/2)·W.
func symDecorrelate(w *mat.Dense) (*mat.Dense, error) {
	k, _ := w.Dims()
	wwt := mat.NewSymDense(k, nil)
	wwt.SymOuterK(1, w)
	var es mat.EigenSym
	if ok := es.Factorize(wwt, true); !ok {
		return nil, fmt.Errorf("%w: decorrelation failed", ErrRankDeficient)
	}
	vals := es.Values(nil)
	var vecs mat.Dense
	es.VectorsTo(&vecs)
	d := mat.NewDiagDense(k, nil)
	for i, v := range vals {
		if v <= 0 {
			return nil, fmt.Errorf("%w: singular unmixing estimate", ErrRankDeficient)
		}
		d.SetDiag(i, 1/math.Sqrt(v))
	}
	var tmp, inv, out mat.Dense
	tmp.Mul(&vecs, d)
	inv.Mul(&tmp, vecs.T())
	out.Mul(&inv, w)
	return &out, nil
}
