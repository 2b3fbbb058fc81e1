package evaluation

import (
	"context"
	"errors"
	"sort"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eeg-decoder-service/internal/classify"
	"eeg-decoder-service/internal/core/domain"
)

// oracle predicts the class stored in the first sample of a window.
type oracle struct{ classes int }

func (o oracle) Kind() domain.DecoderKind { return domain.KindCSPLDA }
func (o oracle) NumClasses() int          { return o.classes }
func (o oracle) MarshalJSON() ([]byte, error) {
	return []byte(`{}`), nil
}

func (o oracle) Predict(window [][]float64) ([]float64, error) {
	p := make([]float64, o.classes)
	p[int(window[0][0])] = 1
	return p, nil
}

func labelledEpochs(perClass, classes int) ([][][]float64, []int) {
	var epochs [][][]float64
	var labels []int
	for k := 0; k < classes; k++ {
		for i := 0; i < perClass; i++ {
			epochs = append(epochs, [][]float64{{float64(k)}})
			labels = append(labels, k)
		}
	}
	return epochs, labels
}

func TestConfusionAndAccuracy(t *testing.T) {
	conf := Confusion([]int{0, 0, 1, 1, 5}, []int{0, 1, 1, 1, 0}, 2)
	assert.Equal(t, [][]int{{1, 1}, {0, 2}}, conf)
	assert.InDelta(t, 0.75, Accuracy(conf), 1e-12)
	assert.Equal(t, 0.0, Accuracy(Confusion(nil, nil, 2)))
}

func TestCohenKappa(t *testing.T) {
	assert.InDelta(t, 0.5, CohenKappa([][]int{{1, 1}, {0, 2}}), 1e-12)
	assert.InDelta(t, 1, CohenKappa([][]int{{5, 0}, {0, 5}}), 1e-12)
	assert.InDelta(t, 0, CohenKappa([][]int{{5, 5}, {5, 5}}), 1e-12)
	assert.Equal(t, 0.0, CohenKappa([][]int{{4, 0}, {0, 0}}))
}

func TestITR(t *testing.T) {
	tests := []struct {
		name    string
		n       int
		p, secs float64
		want    float64
	}{
		{"perfect binary", 2, 1, 1, 60},
		{"chance", 2, 0.5, 1, 0},
		{"below chance", 4, 0.2, 4, 0},
		{"four class", 4, 0.7, 4, 9.6483},
		{"bad trial length", 2, 1, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, ITR(tt.n, tt.p, tt.secs), 1e-3)
		})
	}
}

func TestStratifiedKFold(t *testing.T) {
	_, labels := labelledEpochs(10, 2)
	folds, err := StratifiedKFold(labels, 5, 1)
	require.NoError(t, err)
	require.Len(t, folds, 5)

	var all []int
	for _, f := range folds {
		perClass := map[int]int{}
		for _, i := range f {
			perClass[labels[i]]++
		}
		assert.Equal(t, map[int]int{0: 2, 1: 2}, perClass)
		all = append(all, f...)
	}
	sort.Ints(all)
	for i, v := range all {
		assert.Equal(t, i, v)
	}
}

func TestStratifiedKFold_Errors(t *testing.T) {
	_, err := StratifiedKFold([]int{0, 1}, 1, 0)
	assert.Error(t, err)

	_, err = StratifiedKFold([]int{0, 0, 0, 1}, 3, 0)
	assert.ErrorIs(t, err, domain.ErrInsufficientTrials)
}

func TestCrossValidate(t *testing.T) {
	epochs, labels := labelledEpochs(6, 3)
	var calls int32
	fit := func(ctx context.Context, x [][][]float64, y []int) (classify.Model, error) {
		atomic.AddInt32(&calls, 1)
		assert.Len(t, x, 12)
		return oracle{classes: 3}, nil
	}

	report, err := CrossValidate(context.Background(), epochs, labels, CVConfig{
		Folds:        3,
		Workers:      2,
		Classes:      []string{"a", "b", "c"},
		TrialSeconds: 4,
	}, fit)
	require.NoError(t, err)

	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.Equal(t, 3, report.Folds)
	assert.Equal(t, 18, report.Trials)
	assert.InDelta(t, 1, report.Accuracy, 1e-12)
	assert.InDelta(t, 1, report.Kappa, 1e-12)
	assert.InDelta(t, 60*1.58496/4, report.ITRBitsPerMin, 1e-3)
	assert.Equal(t, []float64{1, 1, 1}, report.FoldAccuracies)
	assert.Equal(t, [][]int{{6, 0, 0}, {0, 6, 0}, {0, 0, 6}}, report.Confusion)
}

func TestCrossValidate_FitError(t *testing.T) {
	epochs, labels := labelledEpochs(4, 2)
	boom := errors.New("boom")
	_, err := CrossValidate(context.Background(), epochs, labels, CVConfig{Folds: 2, Classes: []string{"a", "b"}},
		func(context.Context, [][][]float64, []int) (classify.Model, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)
}

func TestCrossValidate_LengthMismatch(t *testing.T) {
	epochs, _ := labelledEpochs(4, 2)
	_, err := CrossValidate(context.Background(), epochs, []int{0}, CVConfig{Folds: 2}, nil)
	assert.ErrorIs(t, err, domain.ErrClassMismatch)
}
