// Package pipeline turns raw multichannel blocks into decoder predictions
// and fits decoders from labelled calibration recordings. Offline
// calibration and the live stream share the same causal preprocessing so a
// decoder sees identical features in both.
package pipeline

import (
	"fmt"

	"eeg-decoder-service/internal/core/domain"
	"eeg-decoder-service/internal/dsp"
)

// Preprocess runs the causal filter chain, optional re-referencing and, when
// artifact is set, the artifact cleaning projection over a whole recording.
// x is not modified.
func Preprocess(x [][]float64, montage domain.Montage, cfg domain.PipelineConfig, artifact *domain.ArtifactModel) ([][]float64, error) {
	out, err := filterAndReference(x, montage, cfg)
	if err != nil {
		return nil, err
	}
	if artifact == nil {
		return out, nil
	}
	return dsp.Clean(artifact.Cleaning, artifact.Mean, out)
}

func filterAndReference(x [][]float64, montage domain.Montage, cfg domain.PipelineConfig) ([][]float64, error) {
	bank, err := dsp.NewFilterBank(cfg.Filter, montage.SampleRate, len(montage.Channels))
	if err != nil {
		return nil, err
	}
	out := dsp.Copy(x)
	if err := bank.Process(out); err != nil {
		return nil, err
	}
	if cfg.Reference == domain.ReferenceCAR {
		dsp.CommonAverage(out)
	}
	return out, nil
}

// ExtractEpochs cuts one window of win.Length samples per event, starting
// win.Offset samples after its onset. Events whose label is not in classes
// are ignored; epochs that fall outside x are counted as skipped.
func ExtractEpochs(x [][]float64, events []domain.Event, classes []string, win domain.WindowConfig) ([][][]float64, []int, int, error) {
	if err := win.Validate(); err != nil {
		return nil, nil, 0, err
	}
	index := make(map[string]int, len(classes))
	for i, c := range classes {
		index[c] = i
	}
	n := 0
	if len(x) > 0 {
		n = len(x[0])
	}

	var (
		epochs  [][][]float64
		labels  []int
		skipped int
	)
	for _, ev := range events {
		k, ok := index[ev.Label]
		if !ok {
			continue
		}
		start := ev.Sample + win.Offset
		end := start + win.Length
		if start < 0 || end > n {
			skipped++
			continue
		}
		ep := make([][]float64, len(x))
		for c := range x {
			ep[c] = append([]float64(nil), x[c][start:end]...)
		}
		epochs = append(epochs, ep)
		labels = append(labels, k)
	}
	if len(epochs) == 0 {
		return nil, nil, skipped, fmt.Errorf("%w: no epoch fits inside the recording", domain.ErrNoEvents)
	}
	return epochs, labels, skipped, nil
}
