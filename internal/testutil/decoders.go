package testutil

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"eeg-decoder-service/internal/classify"
	"eeg-decoder-service/internal/core/domain"
	"eeg-decoder-service/internal/pipeline"
)

// TrainedDecoder calibrates a READY CSP-LDA decoder on MotorRecording.
func TrainedDecoder(projectID uuid.UUID, name string) (*domain.Decoder, error) {
	cal, err := pipeline.Calibrate(context.Background(), MotorRecording(1, 40), pipeline.TrainConfig{
		Kind:     domain.KindCSPLDA,
		Pipeline: MotorPipeline(),
		Options:  classify.DefaultOptions(),
	})
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(cal.Model)
	if err != nil {
		return nil, err
	}
	d, err := domain.NewDecoder(projectID, name, domain.KindCSPLDA, MotorMontage(), MotorPipeline())
	if err != nil {
		return nil, err
	}
	d.State = domain.DecoderStateReady
	d.Classes = cal.Classes
	d.Model = raw
	return d, nil
}
