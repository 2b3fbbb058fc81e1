package recording

import (
	"encoding/json"
	"fmt"
	"os"

	"eeg-decoder-service/internal/classify"
	"eeg-decoder-service/internal/core/domain"
)

// SaveDecoder writes d as indented JSON.
func SaveDecoder(path string, d *domain.Decoder) error {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("encode decoder: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// LoadDecoder reads a decoder file and restores its model.
func LoadDecoder(path string) (*domain.Decoder, classify.Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	var d domain.Decoder
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", domain.ErrInvalidModelPayload, err)
	}
	model, err := classify.Decode(d.Kind, d.Model)
	if err != nil {
		return nil, nil, err
	}
	if model.NumClasses() != len(d.Classes) {
		return nil, nil, domain.ErrClassMismatch
	}
	return &d, model, nil
}
