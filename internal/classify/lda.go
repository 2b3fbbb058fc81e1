package classify

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

var ErrSingularCovariance = errors.New("pooled covariance is not positive definite")

// LDA is a linear discriminant with one weight vector per class.
type LDA struct {
	Weights [][]float64 `json:"weights"`
	Bias    []float64   `json:"bias"`
}

// FitLDA fits shrinkage LDA on feature rows x. Priors follow the class
// frequencies. Shrinkage blends the pooled covariance towards a scaled
// identity and must be in [0, 1].
func FitLDA(x [][]float64, y []int, classes int, shrinkage float64) (*LDA, error) {
	if len(x) == 0 || len(x) != len(y) {
		return nil, fmt.Errorf("lda: %d rows, %d labels", len(x), len(y))
	}
	if shrinkage < 0 || shrinkage > 1 {
		return nil, fmt.Errorf("lda: shrinkage %.3f outside [0, 1]", shrinkage)
	}
	d := len(x[0])
	means := make([][]float64, classes)
	counts := make([]int, classes)
	for k := range means {
		means[k] = make([]float64, d)
	}
	for i, row := range x {
		if len(row) != d {
			return nil, fmt.Errorf("lda: row %d has %d features, want %d", i, len(row), d)
		}
		k := y[i]
		counts[k]++
		for j, v := range row {
			means[k][j] += v
		}
	}
	for k := range means {
		if counts[k] == 0 {
			return nil, fmt.Errorf("lda: class %d has no samples", k)
		}
		for j := range means[k] {
			means[k][j] /= float64(counts[k])
		}
	}

	cov := mat.NewSymDense(d, nil)
	diff := make([]float64, d)
	for i, row := range x {
		for j, v := range row {
			diff[j] = v - means[y[i]][j]
		}
		cov.SymRankOne(cov, 1, mat.NewVecDense(d, diff))
	}
	dof := len(x) - classes
	if dof <= 0 {
		dof = len(x)
	}
	cov.ScaleSym(1/float64(dof), cov)

	nu := mat.Trace(cov) / float64(d)
	if nu <= 0 {
		nu = 1
	}
	// a small ridge keeps the factorisation stable at zero shrinkage
	ridge := 1e-10 * nu
	for i := 0; i < d; i++ {
		for j := i; j < d; j++ {
			v := (1 - shrinkage) * cov.At(i, j)
			if i == j {
				v += shrinkage*nu + ridge
			}
			cov.SetSym(i, j, v)
		}
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(cov); !ok {
		return nil, ErrSingularCovariance
	}
	lda := &LDA{
		Weights: make([][]float64, classes),
		Bias:    make([]float64, classes),
	}
	for k := range means {
		mu := mat.NewVecDense(d, means[k])
		var w mat.VecDense
		if err := chol.SolveVecTo(&w, mu); err != nil {
			return nil, fmt.Errorf("lda: solve class %d: %w", k, err)
		}
		lda.Weights[k] = make([]float64, d)
		for j := range lda.Weights[k] {
			lda.Weights[k][j] = w.AtVec(j)
		}
		prior := float64(counts[k]) / float64(len(x))
		lda.Bias[k] = -0.5*mat.Dot(mu, &w) + math.Log(prior)
	}
	return lda, nil
}

// Scores returns the discriminant score of every class.
func (l *LDA) Scores(f []float64) ([]float64, error) {
	out := make([]float64, len(l.Weights))
	for k, w := range l.Weights {
		if len(w) != len(f) {
			return nil, fmt.Errorf("lda: %d features, want %d", len(f), len(w))
		}
		s := l.Bias[k]
		for j, v := range f {
			s += w[j] * v
		}
		out[k] = s
	}
	return out, nil
}

// Probabilities returns softmax(Scores(f)).
func (l *LDA) Probabilities(f []float64) ([]float64, error) {
	s, err := l.Scores(f)
	if err != nil {
		return nil, err
	}
	return Softmax(s), nil
}

func (l *LDA) validate() error {
	if l == nil || len(l.Weights) < 2 || len(l.Weights) != len(l.Bias) {
		return errors.New("lda: missing or inconsistent weights")
	}
	d := len(l.Weights[0])
	for _, w := range l.Weights {
		if len(w) != d || d == 0 {
			return errors.New("lda: ragged weights")
		}
	}
	return nil
}
