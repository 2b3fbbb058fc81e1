package pipeline

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"eeg-decoder-service/internal/core/domain"
)

// Sink receives every prediction of a stream, in order, from the stream
// goroutine. It must not block for long.
type Sink func(domain.Prediction)

// Stream runs a Processor on its own goroutine behind a bounded queue.
// Producers never block: a full queue rejects the block with
// domain.ErrBackpressure.
type Stream struct {
	proc     *Processor
	queue    chan domain.Block
	sink     Sink
	observer Observer

	mu           sync.Mutex
	closed       bool
	dropped      int64
	stats        domain.SessionStats
	lastActivity time.Time

	done chan struct{}
}

func NewStream(proc *Processor, queueSize int, sink Sink) *Stream {
	if queueSize <= 0 {
		queueSize = 1
	}
	if sink == nil {
		sink = func(domain.Prediction) {}
	}
	return &Stream{
		proc:         proc,
		queue:        make(chan domain.Block, queueSize),
		sink:         sink,
		observer:     proc.observer,
		lastActivity: time.Now(),
		done:         make(chan struct{}),
	}
}

// Submit enqueues a block without blocking.
func (s *Stream) Submit(b domain.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return domain.ErrSessionClosed
	}
	s.lastActivity = time.Now()
	select {
	case s.queue <- b:
		return nil
	default:
		s.dropped++
		s.observer.BlockIngested(BlockDropped)
		return domain.ErrBackpressure
	}
}

// Close stops accepting blocks. Run drains what is already queued and
// returns. Close is idempotent.
func (s *Stream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.queue)
}

// Run processes queued blocks until the queue is closed and drained or ctx
// is cancelled.
func (s *Stream) Run(ctx context.Context) error {
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case b, ok := <-s.queue:
			if !ok {
				return nil
			}
			s.process(b)
		}
	}
}

func (s *Stream) process(b domain.Block) {
	preds, err := s.proc.Push(b)
	if err != nil {
		log.WithError(err).WithFields(log.Fields{
			"session_id": s.proc.sessionID,
			"seq":        b.Seq,
		}).Warn("Block not processed")
	}
	for _, p := range preds {
		s.sink(p)
	}
	// stats are published after the sink so they never run ahead of it
	stats := s.proc.Stats()

	s.mu.Lock()
	stats.BlocksDropped = s.dropped
	s.stats = stats
	s.mu.Unlock()
}

// Done is closed when Run returns.
func (s *Stream) Done() <-chan struct{} { return s.done }

// Stats returns a snapshot of the session counters.
func (s *Stream) Stats() domain.SessionStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := s.stats
	stats.BlocksDropped = s.dropped
	return stats
}

// LastActivity is the time of the last Submit call.
func (s *Stream) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// Closed reports whether Close was called.
func (s *Stream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
