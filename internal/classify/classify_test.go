package classify

import (
	"context"
	"encoding/json"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eeg-decoder-service/internal/core/domain"
)

func gaussianEpochs(rng *rand.Rand, count, channels, n, loud int) [][][]float64 {
	out := make([][][]float64, count)
	for e := range out {
		ep := make([][]float64, channels)
		for c := range ep {
			scale := 1.0
			if c == loud {
				scale = 3
			}
			ep[c] = make([]float64, n)
			for i := range ep[c] {
				ep[c][i] = scale * rng.NormFloat64()
			}
		}
		out[e] = ep
	}
	return out
}

func sineEpochs(rng *rand.Rand, count, channels, n int, freq, rate float64) [][][]float64 {
	out := make([][][]float64, count)
	for e := range out {
		phase := rng.Float64() * 2 * math.Pi
		ep := make([][]float64, channels)
		for c := range ep {
			ep[c] = make([]float64, n)
			for i := range ep[c] {
				ep[c][i] = 0.3 * rng.NormFloat64()
				if c == 0 {
					ep[c][i] += 2 * math.Sin(2*math.Pi*freq*float64(i)/rate+phase)
				}
			}
		}
		out[e] = ep
	}
	return out
}

func labelled(sets ...[][][]float64) ([][][]float64, []int) {
	var epochs [][][]float64
	var labels []int
	for k, set := range sets {
		epochs = append(epochs, set...)
		for range set {
			labels = append(labels, k)
		}
	}
	return epochs, labels
}

func accuracy(t *testing.T, m Model, epochs [][][]float64, labels []int) float64 {
	t.Helper()
	correct := 0
	for i, ep := range epochs {
		p, err := m.Predict(ep)
		require.NoError(t, err)
		if Argmax(p) == labels[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(epochs))
}

// ============================================================================
// Softmax / LDA
// ============================================================================

func TestSoftmax(t *testing.T) {
	p := Softmax([]float64{1000, 1000, 0})
	assert.InDelta(t, 0.5, p[0], 1e-12)
	assert.InDelta(t, 0.5, p[1], 1e-12)
	assert.InDelta(t, 0, p[2], 1e-12)
	assert.Empty(t, Softmax(nil))
}

func TestArgmax(t *testing.T) {
	assert.Equal(t, 2, Argmax([]float64{0.1, 0.2, 0.7}))
	assert.Equal(t, 0, Argmax([]float64{0.5, 0.5}))
}

func TestFitLDA_SeparatesClusters(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	var x [][]float64
	var y []int
	for i := 0; i < 100; i++ {
		k := i % 3
		x = append(x, []float64{float64(k)*4 + rng.NormFloat64(), rng.NormFloat64()})
		y = append(y, k)
	}
	lda, err := FitLDA(x, y, 3, 0.1)
	require.NoError(t, err)

	correct := 0
	for i, row := range x {
		p, err := lda.Probabilities(row)
		require.NoError(t, err)
		var sum float64
		for _, v := range p {
			sum += v
		}
		assert.InDelta(t, 1, sum, 1e-9)
		if Argmax(p) == y[i] {
			correct++
		}
	}
	assert.GreaterOrEqual(t, correct, 90)
}

func TestFitLDA_Errors(t *testing.T) {
	_, err := FitLDA(nil, nil, 2, 0.1)
	assert.Error(t, err)

	_, err = FitLDA([][]float64{{1}, {2}}, []int{0, 1}, 2, 1.5)
	assert.Error(t, err)

	_, err = FitLDA([][]float64{{1}, {2}}, []int{0, 0}, 2, 0.1)
	assert.Error(t, err)

	_, err = FitLDA([][]float64{{1, 2}, {2}}, []int{0, 1}, 2, 0.1)
	assert.Error(t, err)
}

func TestLDA_FeatureWidth(t *testing.T) {
	lda := &LDA{Weights: [][]float64{{1, 0}, {0, 1}}, Bias: []float64{0, 0}}
	_, err := lda.Scores([]float64{1})
	assert.Error(t, err)
}

// ============================================================================
// CSP + LDA
// ============================================================================

func TestFitCSPLDA(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	epochs, labels := labelled(
		gaussianEpochs(rng, 20, 4, 200, 0),
		gaussianEpochs(rng, 20, 4, 200, 3),
	)
	m, err := FitCSPLDA(context.Background(), epochs, labels, 2, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, domain.KindCSPLDA, m.Kind())
	assert.Equal(t, 2, m.NumClasses())
	assert.Len(t, m.Filters, 4)

	testEpochs, testLabels := labelled(
		gaussianEpochs(rng, 10, 4, 200, 0),
		gaussianEpochs(rng, 10, 4, 200, 3),
	)
	assert.GreaterOrEqual(t, accuracy(t, m, testEpochs, testLabels), 0.9)
}

func TestFitCSPLDA_MultiClass(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	epochs, labels := labelled(
		gaussianEpochs(rng, 15, 4, 200, 0),
		gaussianEpochs(rng, 15, 4, 200, 1),
		gaussianEpochs(rng, 15, 4, 200, 2),
	)
	opts := DefaultOptions()
	opts.Pairs = 1
	m, err := FitCSPLDA(context.Background(), epochs, labels, 3, opts)
	require.NoError(t, err)
	assert.Equal(t, 3, m.NumClasses())
	assert.GreaterOrEqual(t, accuracy(t, m, epochs, labels), 0.8)
}

func TestCSPLDA_ChannelMismatch(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	epochs, labels := labelled(gaussianEpochs(rng, 5, 3, 100, 0), gaussianEpochs(rng, 5, 3, 100, 2))
	m, err := FitCSPLDA(context.Background(), epochs, labels, 2, DefaultOptions())
	require.NoError(t, err)

	_, err = m.Predict(gaussianEpochs(rng, 1, 2, 100, 0)[0])
	assert.ErrorIs(t, err, domain.ErrChannelMismatch)
}

// ============================================================================
// Band power + LDA
// ============================================================================

func TestFitBandPowerLDA(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	epochs, labels := labelled(
		sineEpochs(rng, 15, 2, 250, 10, 250),
		sineEpochs(rng, 15, 2, 250, 20, 250),
	)
	m, err := FitBandPowerLDA(epochs, labels, 2, 250, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, domain.KindBandPowerLDA, m.Kind())
	assert.Len(t, m.Mean, 4)

	testEpochs, testLabels := labelled(
		sineEpochs(rng, 5, 2, 250, 10, 250),
		sineEpochs(rng, 5, 2, 250, 20, 250),
	)
	assert.Equal(t, 1.0, accuracy(t, m, testEpochs, testLabels))
}

func TestFitBandPowerLDA_InvalidRate(t *testing.T) {
	rng := rand.New(rand.NewSource(6))
	epochs, labels := labelled(sineEpochs(rng, 2, 1, 100, 10, 250), sineEpochs(rng, 2, 1, 100, 20, 250))
	_, err := FitBandPowerLDA(epochs, labels, 2, 0, DefaultOptions())
	assert.ErrorIs(t, err, domain.ErrInvalidSampleRate)
}

// ============================================================================
// Fit / Decode registry
// ============================================================================

func TestFit_Validation(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	two := gaussianEpochs(rng, 2, 2, 50, 0)
	tests := []struct {
		name    string
		kind    domain.DecoderKind
		epochs  [][][]float64
		labels  []int
		classes int
		want    error
	}{
		{"no epochs", domain.KindCSPLDA, nil, nil, 2, domain.ErrNoEvents},
		{"one class", domain.KindCSPLDA, two, []int{0, 0}, 1, domain.ErrTooFewClasses},
		{"label count", domain.KindCSPLDA, two, []int{0}, 2, domain.ErrClassMismatch},
		{"label range", domain.KindCSPLDA, two, []int{0, 5}, 2, domain.ErrClassMismatch},
		{"too few trials", domain.KindCSPLDA, two, []int{0, 1}, 2, domain.ErrInsufficientTrials},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Fit(context.Background(), tt.kind, tt.epochs, tt.labels, tt.classes, 250, DefaultOptions())
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestFit_NeuroTransNetIsNotTrainable(t *testing.T) {
	rng := rand.New(rand.NewSource(8))
	epochs, labels := labelled(gaussianEpochs(rng, 2, 2, 50, 0), gaussianEpochs(rng, 2, 2, 50, 1))
	_, err := Fit(context.Background(), domain.KindNeuroTransNet, epochs, labels, 2, 250, DefaultOptions())
	assert.ErrorIs(t, err, domain.ErrCannotTrainNeuroModel)
}

func TestDecode_RestoresPredictions(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	epochs, labels := labelled(gaussianEpochs(rng, 8, 3, 120, 0), gaussianEpochs(rng, 8, 3, 120, 2))

	for _, kind := range []domain.DecoderKind{domain.KindCSPLDA, domain.KindBandPowerLDA} {
		t.Run(string(kind), func(t *testing.T) {
			m, err := Fit(context.Background(), kind, epochs, labels, 2, 120, DefaultOptions())
			require.NoError(t, err)
			raw, err := json.Marshal(m)
			require.NoError(t, err)

			restored, err := Decode(kind, raw)
			require.NoError(t, err)
			want, err := m.Predict(epochs[0])
			require.NoError(t, err)
			got, err := restored.Predict(epochs[0])
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestDecode_Errors(t *testing.T) {
	_, err := Decode(domain.KindCSPLDA, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidModelPayload)

	_, err = Decode(domain.KindCSPLDA, json.RawMessage(`{"channels":2,"filters":[[1,0]],"lda":{"weights":[[1],[2]],"bias":[0]}}`))
	assert.ErrorIs(t, err, domain.ErrInvalidModelPayload)

	_, err = Decode(domain.KindBandPowerLDA, json.RawMessage(`not json`))
	assert.ErrorIs(t, err, domain.ErrInvalidModelPayload)

	_, err = Decode("svm", json.RawMessage(`{}`))
	assert.ErrorIs(t, err, domain.ErrUnsupportedKind)
}
