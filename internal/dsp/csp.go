package dsp

import (
	"context"
	"fmt"
	"math"
	"sort"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// MeanCovariance averages the trace-normalised covariances of epochs and
// applies shrinkage.
func MeanCovariance(epochs [][][]float64, shrink float64) (*mat.SymDense, error) {
	if len(epochs) == 0 {
		return nil, fmt.Errorf("%w: no epochs", ErrShape)
	}
	c := len(epochs[0])
	sum := mat.NewSymDense(c, nil)
	for _, ep := range epochs {
		if len(ep) != c {
			return nil, fmt.Errorf("%w: epoch has %d channels, want %d", ErrShape, len(ep), c)
		}
		sum.AddSym(sum, Covariance(ep, true))
	}
	sum.ScaleSym(1/float64(len(epochs)), sum)
	if shrink > 0 {
		return Shrink(sum, shrink), nil
	}
	return sum, nil
}

// FitCSP returns spatial filters (rows) that maximise the variance of class
// A relative to class B. The first `pairs` rows favour A, the last `pairs`
// rows favour B.
func FitCSP(classA, classB [][][]float64, pairs int, shrink float64) ([][]float64, error) {
	ca, err := MeanCovariance(classA, shrink)
	if err != nil {
		return nil, err
	}
	cb, err := MeanCovariance(classB, shrink)
	if err != nil {
		return nil, err
	}
	c := ca.SymmetricDim()
	if cb.SymmetricDim() != c {
		return nil, fmt.Errorf("%w: class channel counts differ", ErrShape)
	}
	if pairs <= 0 || 2*pairs > c {
		pairs = c / 2
		if pairs == 0 {
			pairs = 1
		}
	}

	composite := mat.NewSymDense(c, nil)
	composite.AddSym(ca, cb)
	var es mat.EigenSym
	if ok := es.Factorize(composite, true); !ok {
		return nil, fmt.Errorf("%w: composite covariance", ErrRankDeficient)
	}
	vals := es.Values(nil)
	var u mat.Dense
	es.VectorsTo(&u)
	p := mat.NewDense(c, c, nil)
	for i, v := range vals {
		if v <= 0 {
			return nil, fmt.Errorf("%w: composite covariance is singular, raise shrinkage", ErrRankDeficient)
		}
		s := 1 / math.Sqrt(v)
		for j := 0; j < c; j++ {
			p.Set(i, j, u.At(j, i)*s)
		}
	}

	var tmp, sa mat.Dense
	tmp.Mul(p, ca)
	sa.Mul(&tmp, p.T())
	saSym := mat.NewSymDense(c, nil)
	for i := 0; i < c; i++ {
		for j := i; j < c; j++ {
			saSym.SetSym(i, j, (sa.At(i, j)+sa.At(j, i))/2)
		}
	}
	var es2 mat.EigenSym
	if ok := es2.Factorize(saSym, true); !ok {
		return nil, fmt.Errorf("%w: whitened class covariance", ErrRankDeficient)
	}
	lambda := es2.Values(nil)
	var b mat.Dense
	es2.VectorsTo(&b)

	var full mat.Dense
	full.Mul(b.T(), p)

	order := make([]int, c)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool { return lambda[order[i]] > lambda[order[j]] })

	pick := append(append([]int{}, order[:pairs]...), order[c-pairs:]...)
	filters := make([][]float64, 0, len(pick))
	for _, r := range pick {
		row := make([]float64, c)
		for j := range row {
			row[j] = full.At(r, j)
		}
		filters = append(filters, row)
	}
	return filters, nil
}

// FitCSPOneVsRest fits one CSP filter set per class against the pooled
// remaining classes and concatenates them. Two classes need a single fit.
func FitCSPOneVsRest(ctx context.Context, byClass [][][][]float64, pairs int, shrink float64) ([][]float64, error) {
	if len(byClass) < 2 {
		return nil, fmt.Errorf("%w: need at least two classes", ErrShape)
	}
	if len(byClass) == 2 {
		return FitCSP(byClass[0], byClass[1], pairs, shrink)
	}

	sets := make([][][]float64, len(byClass))
	g, ctx := errgroup.WithContext(ctx)
	for k := range byClass {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			var rest [][][]float64
			for j, eps := range byClass {
				if j != k {
					rest = append(rest, eps...)
				}
			}
			f, err := FitCSP(byClass[k], rest, pairs, shrink)
			if err != nil {
				return fmt.Errorf("class %d: %w", k, err)
			}
			sets[k] = f
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	var filters [][]float64
	for _, f := range sets {
		filters = append(filters, f...)
	}
	return filters, nil
}

// LogVarianceFeatures projects x through filters and returns the clamped
// log of each filtered signal's variance share.
func LogVarianceFeatures(filters [][]float64, x [][]float64) ([]float64, error) {
	y, err := ApplyMatrix(filters, x)
	if err != nil {
		return nil, err
	}
	vars := make([]float64, len(y))
	var total float64
	for i, row := range y {
		v := 0.0
		if len(row) > 1 {
			v = stat.Variance(row, nil)
		}
		vars[i] = v
		total += v
	}
	out := make([]float64, len(vars))
	for i, v := range vars {
		if total > 0 {
			v /= total
		}
		out[i] = ClampedLog(v)
	}
	return out, nil
}
