package evaluation

import (
	"context"
	"fmt"
	"math/rand"

	"golang.org/x/sync/errgroup"

	"eeg-decoder-service/internal/classify"
	"eeg-decoder-service/internal/core/domain"
)

// FitFunc trains a model on one training split.
type FitFunc func(ctx context.Context, epochs [][][]float64, labels []int) (classify.Model, error)

// StratifiedKFold assigns every sample to one of k test folds, spreading
// each class evenly. Returned folds hold sample indexes.
func StratifiedKFold(labels []int, k int, seed int64) ([][]int, error) {
	if k < 2 {
		return nil, fmt.Errorf("need at least 2 folds, got %d", k)
	}
	byClass := map[int][]int{}
	var order []int
	for i, l := range labels {
		if _, ok := byClass[l]; !ok {
			order = append(order, l)
		}
		byClass[l] = append(byClass[l], i)
	}
	for _, l := range order {
		if len(byClass[l]) < k {
			return nil, fmt.Errorf("%w: class %d has %d epochs for %d folds", domain.ErrInsufficientTrials, l, len(byClass[l]), k)
		}
	}

	rng := rand.New(rand.NewSource(seed))
	folds := make([][]int, k)
	next := 0
	for _, l := range order {
		idx := append([]int(nil), byClass[l]...)
		rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
		for _, i := range idx {
			folds[next%k] = append(folds[next%k], i)
			next++
		}
	}
	return folds, nil
}

// CVConfig controls CrossValidate.
type CVConfig struct {
	Folds        int
	Workers      int
	Seed         int64
	Classes      []string
	TrialSeconds float64
}

// CrossValidate fits and scores one model per fold, running up to Workers
// folds concurrently. Predictions of all folds are pooled into one report.
func CrossValidate(ctx context.Context, epochs [][][]float64, labels []int, cfg CVConfig, fit FitFunc) (*domain.EvaluationReport, error) {
	if len(epochs) != len(labels) {
		return nil, fmt.Errorf("%w: %d epochs, %d labels", domain.ErrClassMismatch, len(epochs), len(labels))
	}
	folds, err := StratifiedKFold(labels, cfg.Folds, cfg.Seed)
	if err != nil {
		return nil, err
	}
	preds := make([]int, len(labels))
	foldAcc := make([]float64, len(folds))

	g, ctx := errgroup.WithContext(ctx)
	if cfg.Workers > 0 {
		g.SetLimit(cfg.Workers)
	}
	for f, test := range folds {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			inTest := make(map[int]bool, len(test))
			for _, i := range test {
				inTest[i] = true
			}
			var trainX [][][]float64
			var trainY []int
			for i := range epochs {
				if !inTest[i] {
					trainX = append(trainX, epochs[i])
					trainY = append(trainY, labels[i])
				}
			}
			model, err := fit(ctx, trainX, trainY)
			if err != nil {
				return fmt.Errorf("fold %d: %w", f, err)
			}
			hit := 0
			for _, i := range test {
				p, err := model.Predict(epochs[i])
				if err != nil {
					return fmt.Errorf("fold %d: %w", f, err)
				}
				// each fold writes a disjoint set of indexes
				preds[i] = classify.Argmax(p)
				if preds[i] == labels[i] {
					hit++
				}
			}
			foldAcc[f] = float64(hit) / float64(len(test))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := Report(labels, preds, cfg.Classes, cfg.TrialSeconds)
	report.Folds = len(folds)
	report.FoldAccuracies = foldAcc
	return report, nil
}

// Report summarises pooled predictions.
func Report(truth, pred []int, classes []string, trialSeconds float64) *domain.EvaluationReport {
	conf := Confusion(truth, pred, len(classes))
	acc := Accuracy(conf)
	return &domain.EvaluationReport{
		Trials:        len(truth),
		Classes:       classes,
		Accuracy:      acc,
		Kappa:         CohenKappa(conf),
		ITRBitsPerMin: ITR(len(classes), acc, trialSeconds),
		TrialSeconds:  trialSeconds,
		Confusion:     conf,
	}
}
