package pipeline

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"eeg-decoder-service/internal/classify"
	"eeg-decoder-service/internal/core/domain"
	"eeg-decoder-service/internal/dsp"
)

// TrainConfig describes one calibration run.
type TrainConfig struct {
	Kind     domain.DecoderKind
	Pipeline domain.PipelineConfig
	// Classes fixes the class order; empty means the recording's labels in
	// first-seen order.
	Classes []string
	Options classify.Options
	ICA     dsp.ICAOptions
}

// Calibration is the outcome of fitting a decoder on a recording.
type Calibration struct {
	Classes  []string
	Artifact *domain.ArtifactModel
	Epochs   [][][]float64
	Labels   []int
	Skipped  int
	Model    classify.Model
}

// Calibrate preprocesses rec exactly like the live pipeline, fits the
// artifact model when configured, extracts labelled epochs and fits the
// decoder on them.
func Calibrate(ctx context.Context, rec *domain.Recording, cfg TrainConfig) (*Calibration, error) {
	epochs, labels, classes, artifact, skipped, err := PrepareTraining(ctx, rec, cfg)
	if err != nil {
		return nil, err
	}
	model, err := classify.Fit(ctx, cfg.Kind, epochs, labels, len(classes), rec.Montage.SampleRate, cfg.Options)
	if err != nil {
		return nil, err
	}
	return &Calibration{
		Classes:  classes,
		Artifact: artifact,
		Epochs:   epochs,
		Labels:   labels,
		Skipped:  skipped,
		Model:    model,
	}, nil
}

// PrepareTraining runs every calibration step short of fitting the model.
func PrepareTraining(ctx context.Context, rec *domain.Recording, cfg TrainConfig) (epochs [][][]float64, labels []int, classes []string, artifact *domain.ArtifactModel, skipped int, err error) {
	if err = rec.Validate(); err != nil {
		return
	}
	if err = cfg.Pipeline.Validate(rec.Montage.SampleRate); err != nil {
		return
	}
	if len(rec.Events) == 0 {
		err = domain.ErrNoEvents
		return
	}
	classes = cfg.Classes
	if len(classes) == 0 {
		classes = rec.Labels()
	}
	if len(classes) < 2 {
		err = domain.ErrTooFewClasses
		return
	}

	x, err := filterAndReference(rec.Samples, rec.Montage, cfg.Pipeline)
	if err != nil {
		return
	}
	if cfg.Pipeline.Artifact.Method == domain.ArtifactICA {
		if err = ctx.Err(); err != nil {
			return
		}
		artifact, err = FitArtifactModel(x, rec.Montage, cfg.Pipeline.Artifact, cfg.ICA)
		if err != nil {
			return
		}
		if x, err = dsp.Clean(artifact.Cleaning, artifact.Mean, x); err != nil {
			return
		}
	}

	epochs, labels, skipped, err = ExtractEpochs(x, rec.Events, classes, cfg.Pipeline.Window)
	if err != nil {
		return
	}
	counts := make([]int, len(classes))
	for _, l := range labels {
		counts[l]++
	}
	for k, n := range counts {
		if n < classify.MinTrialsPerClass {
			err = fmt.Errorf("%w: class %q has %d epochs", domain.ErrInsufficientTrials, classes[k], n)
			return
		}
	}
	return
}

// FitArtifactModel decomposes the preprocessed signal x with FastICA and
// marks the components that track the EOG reference or are too peaky.
func FitArtifactModel(x [][]float64, montage domain.Montage, cfg domain.ArtifactConfig, opts dsp.ICAOptions) (*domain.ArtifactModel, error) {
	if opts.MaxIter == 0 {
		opts = dsp.DefaultICAOptions()
	}
	opts.AllowUnconverged = true
	ica, err := dsp.FastICA(x, opts)
	if err != nil {
		if !errors.Is(err, dsp.ErrNotConverged) || ica == nil {
			return nil, fmt.Errorf("fit ica: %w", err)
		}
		log.WithError(err).Warn("ICA did not converge, using last estimate")
	}

	excluded, scores, err := dsp.ArtifactComponents(ica, x, montage.EOGIndexes(), dsp.ArtifactCriteria{
		EOGThreshold:      cfg.EOGThreshold,
		KurtosisThreshold: cfg.KurtosisThreshold,
		MaxComponents:     cfg.MaxComponents,
	})
	if err != nil {
		return nil, err
	}
	model := &domain.ArtifactModel{
		Unmixing: dsp.FromDense(ica.Unmixing),
		Mixing:   dsp.FromDense(ica.Mixing),
		Mean:     append([]float64(nil), ica.Mean...),
		Excluded: excluded,
		Scores:   make([]float64, len(scores)),
		Cleaning: dsp.FromDense(dsp.CleaningMatrix(ica, excluded)),
	}
	for i, s := range scores {
		model.Scores[i] = s.Score
	}
	log.WithFields(log.Fields{
		"components": ica.Components(),
		"excluded":   excluded,
		"iterations": ica.Iter,
	}).Info("Artifact model fitted")
	return model, nil
}
