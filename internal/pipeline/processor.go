package pipeline

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"eeg-decoder-service/internal/classify"
	"eeg-decoder-service/internal/core/domain"
	"eeg-decoder-service/internal/dsp"
)

// Observer receives pipeline events, typically to update metrics.
type Observer interface {
	BlockIngested(result string)
	WindowProcessed(kind domain.DecoderKind, latency time.Duration)
	WindowRejected(reason string)
}

// Block ingestion results reported to the Observer.
const (
	BlockAccepted = "accepted"
	BlockRejected = "rejected"
	BlockDropped  = "dropped"
)

type nopObserver struct{}

func (nopObserver) BlockIngested(string)                              {}
func (nopObserver) WindowProcessed(domain.DecoderKind, time.Duration) {}
func (nopObserver) WindowRejected(string)                             {}

// Processor is the single-goroutine streaming core of a session: causal
// filters, re-referencing, artifact cleaning, windowing, window rejection and
// classification. It is not safe for concurrent use.
type Processor struct {
	sessionID uuid.UUID
	decoder   *domain.Decoder
	model     classify.Model
	filters   *dsp.FilterBank
	windower  *dsp.Windower
	channels  int
	observer  Observer
	now       func() time.Time

	started bool
	nextSeq uint64
	predSeq uint64
	stats   domain.SessionStats
}

// ProcessorOption customises a Processor.
type ProcessorOption func(*Processor)

func WithObserver(o Observer) ProcessorOption {
	return func(p *Processor) {
		if o != nil {
			p.observer = o
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) ProcessorOption {
	return func(p *Processor) { p.now = now }
}

// NewProcessor prepares the streaming state for a READY decoder.
func NewProcessor(sessionID uuid.UUID, d *domain.Decoder, model classify.Model, opts ...ProcessorOption) (*Processor, error) {
	if d.State != domain.DecoderStateReady {
		return nil, domain.ErrDecoderNotReady
	}
	if model.NumClasses() != len(d.Classes) {
		return nil, fmt.Errorf("%w: model has %d classes, decoder %d", domain.ErrClassMismatch, model.NumClasses(), len(d.Classes))
	}
	channels := len(d.Montage.Channels)
	filters, err := dsp.NewFilterBank(d.Pipeline.Filter, d.Montage.SampleRate, channels)
	if err != nil {
		return nil, err
	}
	windower, err := dsp.NewWindower(channels, d.Pipeline.Window.Length, d.Pipeline.Window.Hop)
	if err != nil {
		return nil, err
	}
	if a := d.Artifact; a != nil && (len(a.Cleaning) != channels || len(a.Mean) != channels) {
		return nil, fmt.Errorf("%w: artifact model does not match montage", domain.ErrInvalidModelPayload)
	}
	p := &Processor{
		sessionID: sessionID,
		decoder:   d,
		model:     model,
		filters:   filters,
		windower:  windower,
		channels:  channels,
		observer:  nopObserver{},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Stats returns the running counters.
func (p *Processor) Stats() domain.SessionStats { return p.stats }

// Push feeds one block through the pipeline and returns the predictions of
// every window it completes. An invalid or stale block is rejected whole and
// leaves the streaming state untouched. A forward gap in sequence numbers
// resets filters and window buffer so no window spans the discontinuity.
func (p *Processor) Push(b domain.Block) ([]domain.Prediction, error) {
	entered := p.now()
	if err := b.Validate(p.channels); err != nil {
		p.reject()
		return nil, err
	}
	if p.started && b.Seq < p.nextSeq {
		p.reject()
		return nil, fmt.Errorf("%w: got %d, expected %d", domain.ErrStaleBlock, b.Seq, p.nextSeq)
	}
	if p.started && b.Seq > p.nextSeq {
		// missing blocks are assumed to be as long as this one
		missing := gapSamples(p.windower.Position(), b.Seq-p.nextSeq, b.Len())
		p.stats.SequenceGaps++
		p.filters.Reset()
		p.windower.Skip(missing)
	}
	p.started = true
	p.nextSeq = b.Seq + 1
	p.stats.BlocksIngested++
	p.stats.SamplesIngested += int64(b.Len())
	p.observer.BlockIngested(BlockAccepted)

	x := dsp.Copy(b.Samples)
	if err := p.filters.Process(x); err != nil {
		return nil, err
	}
	if p.decoder.Pipeline.Reference == domain.ReferenceCAR {
		dsp.CommonAverage(x)
	}
	if a := p.decoder.Artifact; a != nil {
		cleaned, err := dsp.Clean(a.Cleaning, a.Mean, x)
		if err != nil {
			return nil, err
		}
		x = cleaned
	}
	windows, err := p.windower.Push(x)
	if err != nil {
		return nil, err
	}

	preds := make([]domain.Prediction, 0, len(windows))
	for _, w := range windows {
		pred, err := p.classify(w, entered)
		if err != nil {
			return preds, err
		}
		preds = append(preds, pred)
	}
	return preds, nil
}

// maxPosition bounds the absolute sample position a gap can advance to, so
// positions stay non-negative however far a sequence number jumps.
const maxPosition = math.MaxInt64 / 2

// gapSamples returns blocks*blockLen, saturated so pos plus the result
// never exceeds maxPosition.
func gapSamples(pos int64, blocks uint64, blockLen int) int64 {
	if pos >= maxPosition || blockLen <= 0 {
		return 0
	}
	room := uint64(maxPosition - pos)
	if blocks > room/uint64(blockLen) {
		return int64(room)
	}
	return int64(blocks * uint64(blockLen))
}

func (p *Processor) classify(w dsp.Window, entered time.Time) (domain.Prediction, error) {
	p.predSeq++
	pred := domain.Prediction{
		SessionID:   p.sessionID,
		Seq:         p.predSeq,
		WindowStart: w.Start,
		WindowEnd:   w.End(),
		Class:       -1,
	}

	threshold := p.decoder.Pipeline.Artifact.RejectPeakToPeak
	if threshold > 0 && dsp.PeakToPeak(w.Data) > threshold {
		pred.Rejected = true
		pred.RejectReason = domain.RejectPeakToPeak
		p.stats.WindowsRejected++
		p.observer.WindowRejected(domain.RejectPeakToPeak)
	} else {
		probs, err := p.model.Predict(w.Data)
		if err != nil {
			return pred, fmt.Errorf("predict window %d: %w", pred.Seq, err)
		}
		pred.Probabilities = probs
		pred.Class = classify.Argmax(probs)
		pred.Label = p.decoder.Label(pred.Class)
	}

	pred.Timestamp = p.now()
	pred.Latency = pred.Timestamp.Sub(entered)
	p.recordLatency(pred.Latency)
	p.observer.WindowProcessed(p.decoder.Kind, pred.Latency)
	return pred, nil
}

func (p *Processor) recordLatency(d time.Duration) {
	ms := float64(d) / float64(time.Millisecond)
	p.stats.WindowsProcessed++
	n := float64(p.stats.WindowsProcessed)
	p.stats.MeanLatencyMs += (ms - p.stats.MeanLatencyMs) / n
	if ms > p.stats.MaxLatencyMs {
		p.stats.MaxLatencyMs = ms
	}
}

func (p *Processor) reject() {
	p.stats.BlocksRejected++
	p.observer.BlockIngested(BlockRejected)
}
