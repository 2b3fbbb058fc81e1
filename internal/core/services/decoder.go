package services

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"eeg-decoder-service/internal/classify"
	"eeg-decoder-service/internal/core/domain"
	"eeg-decoder-service/internal/core/ports/output"
	"eeg-decoder-service/internal/evaluation"
	"eeg-decoder-service/internal/pipeline"
)

// DecoderServiceConfig tunes training and publishing.
type DecoderServiceConfig struct {
	Namespace   string
	Folds       int
	EvalWorkers int
	Seed        int64
}

type DecoderService struct {
	repo      ports.DecoderRepository
	sessions  ports.SessionRepository
	publisher ports.DecoderPublisher
	cfg       DecoderServiceConfig
}

func NewDecoderService(repo ports.DecoderRepository, sessions ports.SessionRepository, publisher ports.DecoderPublisher, cfg DecoderServiceConfig) *DecoderService {
	if cfg.Folds < 2 {
		cfg.Folds = 5
	}
	if cfg.Namespace == "" {
		cfg.Namespace = "default"
	}
	return &DecoderService{repo: repo, sessions: sessions, publisher: publisher, cfg: cfg}
}

// TrainRequest describes a decoder to fit from a calibration recording.
type TrainRequest struct {
	Name        string
	Description string
	Kind        domain.DecoderKind
	Pipeline    domain.PipelineConfig
	Classes     []string
	Options     *classify.Options
	Labels      map[string]string
	Recording   *domain.Recording
}

// Train fits a decoder, cross-validates it on the calibration epochs and
// persists it as READY. A decoder whose calibration fails is persisted as
// FAILED and the calibration error is returned.
func (s *DecoderService) Train(ctx context.Context, projectID uuid.UUID, req TrainRequest) (*domain.Decoder, error) {
	if !req.Kind.Trainable() {
		if req.Kind == domain.KindNeuroTransNet {
			return nil, domain.ErrCannotTrainNeuroModel
		}
		return nil, domain.ErrUnsupportedKind
	}
	if req.Recording == nil {
		return nil, domain.ErrNoEvents
	}
	d, err := domain.NewDecoder(projectID, req.Name, req.Kind, req.Recording.Montage, req.Pipeline)
	if err != nil {
		return nil, err
	}
	d.Description = req.Description
	if req.Labels != nil {
		d.Labels = req.Labels
	}
	if err := s.repo.Create(ctx, d); err != nil {
		return nil, err
	}

	opts := classify.DefaultOptions()
	if req.Options != nil {
		opts = *req.Options
	}
	started := time.Now()
	trainErr := s.calibrate(ctx, d, req, opts)
	if trainErr != nil {
		d.State = domain.DecoderStateFailed
		d.Error = trainErr.Error()
	}
	d.UpdatedAt = time.Now()
	if err := s.repo.Update(ctx, projectID, d); err != nil {
		return nil, err
	}

	entry := log.WithFields(log.Fields{
		"decoder_id": d.ID,
		"kind":       d.Kind,
		"duration":   time.Since(started).String(),
	})
	if trainErr != nil {
		entry.WithError(trainErr).Warn("Decoder training failed")
		return nil, trainErr
	}
	entry.WithField("accuracy", d.Report.Accuracy).Info("Decoder trained")
	return s.repo.GetByID(ctx, projectID, d.ID)
}

func (s *DecoderService) calibrate(ctx context.Context, d *domain.Decoder, req TrainRequest, opts classify.Options) error {
	rate := req.Recording.Montage.SampleRate
	cal, err := pipeline.Calibrate(ctx, req.Recording, pipeline.TrainConfig{
		Kind:     d.Kind,
		Pipeline: d.Pipeline,
		Classes:  req.Classes,
		Options:  opts,
	})
	if err != nil {
		return err
	}
	raw, err := json.Marshal(cal.Model)
	if err != nil {
		return fmt.Errorf("encode model: %w", err)
	}

	trialSeconds := float64(d.Pipeline.Window.Length) / rate
	report, err := s.crossValidate(ctx, cal, d.Kind, rate, opts, trialSeconds)
	if err != nil {
		return err
	}
	report.SkippedEpochs = cal.Skipped

	d.Classes = cal.Classes
	d.Artifact = cal.Artifact
	d.Model = raw
	d.Report = report
	d.State = domain.DecoderStateReady
	d.Error = ""
	return nil
}

// cvFolds returns the largest fold count up to limit whose training splits
// keep classify.MinTrialsPerClass epochs of the rarest class, or 0 when no
// count of at least two does. A stratified fold holds at most
// ceil(rarest/k) test epochs of that class.
func cvFolds(limit, rarest int) int {
	for k := min(limit, rarest); k >= 2; k-- {
		if rarest-(rarest+k-1)/k >= classify.MinTrialsPerClass {
			return k
		}
	}
	return 0
}

// crossValidate uses as many folds as the rarest class allows, up to the
// configured count. When no split leaves enough training epochs it reports
// the training-set fit instead.
func (s *DecoderService) crossValidate(ctx context.Context, cal *pipeline.Calibration, kind domain.DecoderKind, rate float64, opts classify.Options, trialSeconds float64) (*domain.EvaluationReport, error) {
	counts := make([]int, len(cal.Classes))
	for _, l := range cal.Labels {
		counts[l]++
	}
	folds := cvFolds(s.cfg.Folds, slices.Min(counts))
	if folds == 0 {
		preds := make([]int, len(cal.Epochs))
		for i, e := range cal.Epochs {
			p, err := cal.Model.Predict(e)
			if err != nil {
				return nil, err
			}
			preds[i] = classify.Argmax(p)
		}
		return evaluation.Report(cal.Labels, preds, cal.Classes, trialSeconds), nil
	}

	fit := func(ctx context.Context, x [][][]float64, y []int) (classify.Model, error) {
		return classify.Fit(ctx, kind, x, y, len(cal.Classes), rate, opts)
	}
	return evaluation.CrossValidate(ctx, cal.Epochs, cal.Labels, evaluation.CVConfig{
		Folds:        folds,
		Workers:      s.cfg.EvalWorkers,
		Seed:         s.cfg.Seed,
		Classes:      cal.Classes,
		TrialSeconds: trialSeconds,
	}, fit)
}

// ImportRequest registers a decoder with pre-trained network weights.
type ImportRequest struct {
	Name        string
	Description string
	Montage     domain.Montage
	Pipeline    domain.PipelineConfig
	Classes     []string
	Artifact    *domain.ArtifactModel
	Weights     json.RawMessage
	Labels      map[string]string
}

func (s *DecoderService) Import(ctx context.Context, projectID uuid.UUID, req ImportRequest) (*domain.Decoder, error) {
	d, err := domain.NewDecoder(projectID, req.Name, domain.KindNeuroTransNet, req.Montage, req.Pipeline)
	if err != nil {
		return nil, err
	}
	if len(req.Classes) < 2 {
		return nil, domain.ErrTooFewClasses
	}
	model, err := classify.Decode(domain.KindNeuroTransNet, req.Weights)
	if err != nil {
		return nil, err
	}
	if model.NumClasses() != len(req.Classes) {
		return nil, fmt.Errorf("%w: weights have %d classes, %d given", domain.ErrClassMismatch, model.NumClasses(), len(req.Classes))
	}
	if net, ok := model.(*classify.NeuroTransNet); ok {
		cfg := net.Config()
		if cfg.Channels != len(req.Montage.Channels) || cfg.Samples != req.Pipeline.Window.Length {
			return nil, fmt.Errorf("%w: weights expect %d channels x %d samples", domain.ErrInvalidModelPayload, cfg.Channels, cfg.Samples)
		}
	}
	if req.Pipeline.Artifact.Method == domain.ArtifactICA {
		if req.Artifact == nil {
			return nil, fmt.Errorf("%w: ica method requires an artifact model", domain.ErrInvalidArtifactConf)
		}
		n := len(req.Montage.Channels)
		if len(req.Artifact.Cleaning) != n || len(req.Artifact.Mean) != n {
			return nil, fmt.Errorf("%w: artifact model does not match montage", domain.ErrInvalidModelPayload)
		}
		d.Artifact = req.Artifact
	}

	d.Description = req.Description
	d.Classes = req.Classes
	d.Model = req.Weights
	d.State = domain.DecoderStateReady
	if req.Labels != nil {
		d.Labels = req.Labels
	}
	if err := s.repo.Create(ctx, d); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, projectID, d.ID)
}

func (s *DecoderService) Get(ctx context.Context, projectID uuid.UUID, id uuid.UUID) (*domain.Decoder, error) {
	return s.repo.GetByID(ctx, projectID, id)
}

func (s *DecoderService) List(ctx context.Context, filter ports.DecoderListFilter) ([]*domain.Decoder, int, error) {
	if filter.Limit <= 0 {
		filter.Limit = 20
	}
	if filter.Limit > 100 {
		filter.Limit = 100
	}
	return s.repo.List(ctx, filter)
}

// Update applies name, description, labels and state changes. The only
// state transitions allowed are READY to ARCHIVED and back.
func (s *DecoderService) Update(ctx context.Context, projectID uuid.UUID, id uuid.UUID, updates map[string]interface{}) (*domain.Decoder, error) {
	d, err := s.repo.GetByID(ctx, projectID, id)
	if err != nil {
		return nil, err
	}

	if v, ok := updates["name"]; ok && v != nil {
		name := strings.TrimSpace(v.(string))
		if name == "" {
			return nil, domain.ErrInvalidDecoderName
		}
		d.Name = name
	}
	if v, ok := updates["description"]; ok && v != nil {
		d.Description = v.(string)
	}
	if v, ok := updates["labels"]; ok && v != nil {
		d.Labels = v.(map[string]string)
	}
	if v, ok := updates["state"]; ok && v != nil {
		next := domain.DecoderState(strings.ToUpper(v.(string)))
		if err := transition(d, next); err != nil {
			return nil, err
		}
	}

	d.UpdatedAt = time.Now()
	if err := s.repo.Update(ctx, projectID, d); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, projectID, id)
}

func transition(d *domain.Decoder, next domain.DecoderState) error {
	if next == d.State {
		return nil
	}
	switch {
	case d.State == domain.DecoderStateReady && next == domain.DecoderStateArchived:
	case d.State == domain.DecoderStateArchived && next == domain.DecoderStateReady && len(d.Model) > 0:
	default:
		return fmt.Errorf("%w: %s to %s", domain.ErrInvalidState, d.State, next)
	}
	d.State = next
	return nil
}

// Delete removes a decoder no active session uses, unpublishing it first.
func (s *DecoderService) Delete(ctx context.Context, projectID uuid.UUID, id uuid.UUID) error {
	d, err := s.repo.GetByID(ctx, projectID, id)
	if err != nil {
		return err
	}
	active, err := s.sessions.CountActiveByDecoder(ctx, id)
	if err != nil {
		return err
	}
	if active > 0 {
		return domain.ErrDecoderInUse
	}
	if d.Published && s.publisherAvailable() {
		if err := s.publisher.Unpublish(ctx, s.cfg.Namespace, id); err != nil {
			log.WithError(err).WithField("decoder_id", id).Warn("Failed to unpublish decoder")
		}
	}
	return s.repo.Delete(ctx, projectID, id)
}

// Publish writes a READY decoder to a ConfigMap for in-cluster consumers.
func (s *DecoderService) Publish(ctx context.Context, projectID uuid.UUID, id uuid.UUID) (*ports.Publication, error) {
	if !s.publisherAvailable() {
		return nil, domain.ErrKubernetesNotAvailable
	}
	d, err := s.repo.GetByID(ctx, projectID, id)
	if err != nil {
		return nil, err
	}
	if d.State != domain.DecoderStateReady {
		return nil, domain.ErrDecoderNotReady
	}
	pub, err := s.publisher.Publish(ctx, s.cfg.Namespace, d)
	if err != nil {
		return nil, err
	}
	if !d.Published {
		d.Published = true
		d.UpdatedAt = time.Now()
		if err := s.repo.Update(ctx, projectID, d); err != nil {
			return nil, err
		}
	}
	log.WithFields(log.Fields{
		"decoder_id": id,
		"namespace":  pub.Namespace,
		"configmap":  pub.Name,
	}).Info("Decoder published")
	return pub, nil
}

// Evaluate scores a READY decoder on a held-out labelled recording, using
// the stored preprocessing and artifact model unchanged.
func (s *DecoderService) Evaluate(ctx context.Context, projectID uuid.UUID, id uuid.UUID, rec *domain.Recording) (*domain.EvaluationReport, error) {
	d, err := s.repo.GetByID(ctx, projectID, id)
	if err != nil {
		return nil, err
	}
	if d.State != domain.DecoderStateReady {
		return nil, domain.ErrDecoderNotReady
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	if !slices.Equal(rec.Montage.Channels, d.Montage.Channels) {
		return nil, fmt.Errorf("%w: recording channels %v, decoder %v", domain.ErrChannelMismatch, rec.Montage.Channels, d.Montage.Channels)
	}
	if rec.Montage.SampleRate != d.Montage.SampleRate {
		return nil, fmt.Errorf("%w: recording at %g Hz, decoder at %g Hz", domain.ErrInvalidSampleRate, rec.Montage.SampleRate, d.Montage.SampleRate)
	}
	model, err := classify.Decode(d.Kind, d.Model)
	if err != nil {
		return nil, err
	}

	x, err := pipeline.Preprocess(rec.Samples, d.Montage, d.Pipeline, d.Artifact)
	if err != nil {
		return nil, err
	}
	epochs, labels, skipped, err := pipeline.ExtractEpochs(x, rec.Events, d.Classes, d.Pipeline.Window)
	if err != nil {
		return nil, err
	}
	preds := make([]int, len(epochs))
	for i, e := range epochs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p, err := model.Predict(e)
		if err != nil {
			return nil, err
		}
		preds[i] = classify.Argmax(p)
	}
	report := evaluation.Report(labels, preds, d.Classes, float64(d.Pipeline.Window.Length)/d.Montage.SampleRate)
	report.SkippedEpochs = skipped
	return report, nil
}

func (s *DecoderService) publisherAvailable() bool {
	return s.publisher != nil && s.publisher.IsAvailable()
}
