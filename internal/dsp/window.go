package dsp

import "fmt"

// Window is a copy of the most recent Length samples of every channel.
// Start is the absolute index of its first sample.
type Window struct {
	Start int64
	Data  [][]float64
}

// End returns the exclusive absolute index of the last sample.
func (w Window) End() int64 {
	if len(w.Data) == 0 {
		return w.Start
	}
	return w.Start + int64(len(w.Data[0]))
}

// Windower slices a continuous stream into overlapping windows. The first
// window is emitted once length samples are buffered, then one every hop
// samples.
type Windower struct {
	length, hop int
	ring        [][]float64
	head        int
	untilNext   int
	pos         int64
}

func NewWindower(channels, length, hop int) (*Windower, error) {
	if channels <= 0 || length <= 0 || hop <= 0 || hop > length {
		return nil, fmt.Errorf("%w: channels=%d length=%d hop=%d", ErrShape, channels, length, hop)
	}
	ring := make([][]float64, channels)
	for c := range ring {
		ring[c] = make([]float64, length)
	}
	return &Windower{
		length:    length,
		hop:       hop,
		ring:      ring,
		untilNext: length,
	}, nil
}

// Position is the absolute index of the next sample to be pushed.
func (w *Windower) Position() int64 { return w.pos }

// Push appends x and returns the windows completed by it, oldest first.
func (w *Windower) Push(x [][]float64) ([]Window, error) {
	if len(x) != len(w.ring) {
		return nil, fmt.Errorf("%w: windower has %d channels, got %d", ErrShape, len(w.ring), len(x))
	}
	if len(x) == 0 {
		return nil, nil
	}
	var out []Window
	n := len(x[0])
	for i := 0; i < n; i++ {
		for c := range w.ring {
			w.ring[c][w.head] = x[c][i]
		}
		w.head = (w.head + 1) % w.length
		w.pos++
		w.untilNext--
		if w.untilNext == 0 {
			out = append(out, w.snapshot())
			w.untilNext = w.hop
		}
	}
	return out, nil
}

func (w *Windower) snapshot() Window {
	data := make([][]float64, len(w.ring))
	for c, row := range w.ring {
		d := make([]float64, w.length)
		// head points at the oldest sample once the ring is full
		n := copy(d, row[w.head:])
		copy(d[n:], row[:w.head])
		data[c] = d
	}
	return Window{Start: w.pos - int64(w.length), Data: data}
}

// Skip discards buffered samples and advances the absolute position by n, so
// that no window spans a discontinuity.
func (w *Windower) Skip(n int64) {
	for c := range w.ring {
		for i := range w.ring[c] {
			w.ring[c][i] = 0
		}
	}
	w.head = 0
	w.untilNext = w.length
	w.pos += n
}
