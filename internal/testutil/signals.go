package testutil

import (
	"math"
	"math/rand"

	"eeg-decoder-service/internal/core/domain"
)

const MotorRate = 100.0

func MotorMontage() domain.Montage {
	return domain.Montage{Channels: []string{"C3", "Cz", "C4", "Pz"}, SampleRate: MotorRate}
}

// MotorPipeline is the default 8-30 Hz pipeline with 1 s windows, a 250 ms
// hop and epochs starting 500 ms after onset.
func MotorPipeline() domain.PipelineConfig {
	cfg := domain.DefaultPipelineConfig(MotorRate)
	cfg.Window = domain.WindowConfig{Length: 100, Hop: 25, Offset: 50}
	return cfg
}

// MotorRecording alternates "left" and "right" trials every 300 samples on
// white noise. A 12 Hz burst lasting 200 samples after each onset is
// strongest on C3 for left and Pz for right.
func MotorRecording(seed int64, trials int) *domain.Recording {
	rng := rand.New(rand.NewSource(seed))
	n := 300*trials + 300
	x := make([][]float64, 4)
	for c := range x {
		x[c] = make([]float64, n)
		for i := range x[c] {
			x[c][i] = rng.NormFloat64()
		}
	}
	var events []domain.Event
	for tr := 0; tr < trials; tr++ {
		onset := 100 + tr*300
		label, loud := "left", 0
		if tr%2 == 1 {
			label, loud = "right", 3
		}
		events = append(events, domain.Event{Sample: onset, Label: label})
		for i := 0; i < 200; i++ {
			x[loud][onset+i] += 4 * math.Sin(2*math.Pi*12*float64(i)/MotorRate)
		}
	}
	return &domain.Recording{Montage: MotorMontage(), Samples: x, Events: events}
}

// Blocks splits x into consecutive blocks of size samples numbered from 0.
func Blocks(x [][]float64, size int) []domain.Block {
	var out []domain.Block
	n := len(x[0])
	for start, seq := 0, uint64(0); start < n; seq++ {
		end := min(start+size, n)
		s := make([][]float64, len(x))
		for c := range x {
			s[c] = x[c][start:end]
		}
		out = append(out, domain.Block{Seq: seq, Samples: s})
		start = end
	}
	return out
}
