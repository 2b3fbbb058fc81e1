package domain

import (
	"fmt"
	"math"
	"time"
)

// Montage describes the electrode layout of a stream.
type Montage struct {
	Channels    []string `json:"channels"`
	SampleRate  float64  `json:"sample_rate"`
	EOGChannels []string `json:"eog_channels,omitempty"`
}

func (m Montage) Validate() error {
	if len(m.Channels) == 0 {
		return fmt.Errorf("%w: no channels", ErrInvalidMontage)
	}
	if m.SampleRate <= 0 || math.IsNaN(m.SampleRate) || math.IsInf(m.SampleRate, 0) {
		return ErrInvalidSampleRate
	}
	seen := make(map[string]bool, len(m.Channels))
	for _, ch := range m.Channels {
		if ch == "" {
			return fmt.Errorf("%w: empty channel name", ErrInvalidMontage)
		}
		if seen[ch] {
			return fmt.Errorf("%w: %s", ErrDuplicateChannel, ch)
		}
		seen[ch] = true
	}
	for _, eog := range m.EOGChannels {
		if !seen[eog] {
			return fmt.Errorf("%w: eog channel %s", ErrUnknownChannel, eog)
		}
	}
	return nil
}

// Index returns the position of a channel or -1.
func (m Montage) Index(name string) int {
	for i, ch := range m.Channels {
		if ch == name {
			return i
		}
	}
	return -1
}

// EOGIndexes resolves the EOG reference channels to row indexes.
func (m Montage) EOGIndexes() []int {
	idx := make([]int, 0, len(m.EOGChannels))
	for _, name := range m.EOGChannels {
		if i := m.Index(name); i >= 0 {
			idx = append(idx, i)
		}
	}
	return idx
}

// Block is one chunk of a multichannel stream, Samples[channel][sample].
type Block struct {
	Seq       uint64      `json:"seq"`
	Timestamp time.Time   `json:"timestamp"`
	Samples   [][]float64 `json:"samples"`
}

// Len returns the number of samples per channel.
func (b Block) Len() int {
	if len(b.Samples) == 0 {
		return 0
	}
	return len(b.Samples[0])
}

// Validate checks the block shape against the expected channel count and
// rejects non-finite values.
func (b Block) Validate(channels int) error {
	if len(b.Samples) != channels {
		return fmt.Errorf("%w: got %d, want %d", ErrChannelMismatch, len(b.Samples), channels)
	}
	n := b.Len()
	if n == 0 {
		return ErrEmptyBlock
	}
	for c, row := range b.Samples {
		if len(row) != n {
			return fmt.Errorf("%w: channel %d has %d samples, want %d", ErrRaggedBlock, c, len(row), n)
		}
		for i, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%w: channel %d sample %d", ErrNonFiniteSample, c, i)
			}
		}
	}
	return nil
}

// Event marks the onset of a labeled trial at a sample index.
type Event struct {
	Sample int    `json:"sample"`
	Label  string `json:"label"`
}

// Recording is a continuous labeled multichannel signal used for calibration
// and offline evaluation.
type Recording struct {
	Montage Montage     `json:"montage"`
	Samples [][]float64 `json:"samples"`
	Events  []Event     `json:"events"`
}

// Len returns the number of samples per channel.
func (r Recording) Len() int {
	if len(r.Samples) == 0 {
		return 0
	}
	return len(r.Samples[0])
}

func (r Recording) Validate() error {
	if err := r.Montage.Validate(); err != nil {
		return err
	}
	return Block{Samples: r.Samples}.Validate(len(r.Montage.Channels))
}

// Labels returns the distinct event labels in first-seen order.
func (r Recording) Labels() []string {
	var labels []string
	seen := make(map[string]bool)
	for _, ev := range r.Events {
		if !seen[ev.Label] {
			seen[ev.Label] = true
			labels = append(labels, ev.Label)
		}
	}
	return labels
}
