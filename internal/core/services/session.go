package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"eeg-decoder-service/internal/classify"
	"eeg-decoder-service/internal/core/domain"
	"eeg-decoder-service/internal/core/ports/output"
	"eeg-decoder-service/internal/pipeline"
)

// SessionServiceConfig bounds the resources of live sessions.
type SessionServiceConfig struct {
	QueueSize        int
	PredictionBuffer int
	SubscriberBuffer int
	IdleTimeout      time.Duration
	FlushInterval    time.Duration
	FlushBatch       int
	StopTimeout      time.Duration
}

func (c *SessionServiceConfig) setDefaults() {
	if c.QueueSize <= 0 {
		c.QueueSize = 64
	}
	if c.PredictionBuffer <= 0 {
		c.PredictionBuffer = 1024
	}
	if c.SubscriberBuffer <= 0 {
		c.SubscriberBuffer = 64
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 5 * time.Minute
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = time.Second
	}
	if c.FlushBatch <= 0 {
		c.FlushBatch = 500
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = 10 * time.Second
	}
}

// ActiveSessionsObserver is implemented by observers that also track the
// number of live sessions.
type ActiveSessionsObserver interface {
	SetActiveSessions(n int)
}

// SessionService owns the live decoding streams. Each active session runs
// its pipeline on one goroutine; predictions are kept in a bounded
// in-memory buffer, fanned out to subscribers and flushed in batches to the
// prediction repository.
type SessionService struct {
	decoders    ports.DecoderRepository
	sessions    ports.SessionRepository
	predictions ports.PredictionRepository
	observer    pipeline.Observer
	cfg         SessionServiceConfig

	mu     sync.RWMutex
	active map[uuid.UUID]*liveSession
}

func NewSessionService(decoders ports.DecoderRepository, sessions ports.SessionRepository, predictions ports.PredictionRepository, observer pipeline.Observer, cfg SessionServiceConfig) *SessionService {
	cfg.setDefaults()
	return &SessionService{
		decoders:    decoders,
		sessions:    sessions,
		predictions: predictions,
		observer:    observer,
		cfg:         cfg,
		active:      make(map[uuid.UUID]*liveSession),
	}
}

type liveSession struct {
	session domain.Session
	stream  *pipeline.Stream
	cancel  context.CancelFunc

	mu       sync.Mutex
	buffer   []domain.Prediction
	capacity int
	pending  []domain.Prediction
	subs     map[int]chan domain.Prediction
	nextSub  int
	closed   bool
}

// deliver runs on the stream goroutine.
func (ls *liveSession) deliver(p domain.Prediction) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	if len(ls.buffer) == ls.capacity {
		copy(ls.buffer, ls.buffer[1:])
		ls.buffer = ls.buffer[:len(ls.buffer)-1]
	}
	ls.buffer = append(ls.buffer, p)
	ls.pending = append(ls.pending, p)
	for _, ch := range ls.subs {
		select {
		case ch <- p:
		default:
		}
	}
}

func (ls *liveSession) after(seq uint64, limit int) []domain.Prediction {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	out := make([]domain.Prediction, 0, min(limit, len(ls.buffer)))
	for _, p := range ls.buffer {
		if p.Seq <= seq {
			continue
		}
		out = append(out, p)
		if len(out) == limit {
			break
		}
	}
	return out
}

func (ls *liveSession) takePending() []domain.Prediction {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	p := ls.pending
	ls.pending = nil
	return p
}

func (ls *liveSession) closeSubscribers() {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	ls.closed = true
	for id, ch := range ls.subs {
		close(ch)
		delete(ls.subs, id)
	}
}

func (ls *liveSession) snapshot() *domain.Session {
	s := ls.session
	s.Stats = ls.stream.Stats()
	return &s
}

// Start opens a live session on a READY decoder.
func (s *SessionService) Start(ctx context.Context, projectID uuid.UUID, decoderID uuid.UUID) (*domain.Session, error) {
	d, err := s.decoders.GetByID(ctx, projectID, decoderID)
	if err != nil {
		return nil, err
	}
	if d.State != domain.DecoderStateReady {
		return nil, domain.ErrDecoderNotReady
	}
	model, err := classify.Decode(d.Kind, d.Model)
	if err != nil {
		return nil, err
	}

	session := domain.Session{
		ID:        uuid.New(),
		ProjectID: projectID,
		DecoderID: decoderID,
		State:     domain.SessionStateActive,
		StartedAt: time.Now(),
	}
	proc, err := pipeline.NewProcessor(session.ID, d, model, pipeline.WithObserver(s.observer))
	if err != nil {
		return nil, err
	}
	if err := s.sessions.Create(ctx, &session); err != nil {
		return nil, err
	}

	ls := &liveSession{
		session:  session,
		capacity: s.cfg.PredictionBuffer,
		subs:     make(map[int]chan domain.Prediction),
	}
	ls.stream = pipeline.NewStream(proc, s.cfg.QueueSize, ls.deliver)
	runCtx, cancel := context.WithCancel(context.Background())
	ls.cancel = cancel
	go func() {
		if err := ls.stream.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.WithError(err).WithField("session_id", session.ID).Warn("Session stream stopped")
		}
	}()

	s.mu.Lock()
	s.active[session.ID] = ls
	n := len(s.active)
	s.mu.Unlock()
	s.reportActive(n)

	log.WithFields(log.Fields{
		"session_id": session.ID,
		"decoder_id": decoderID,
		"kind":       d.Kind,
	}).Info("Session started")
	return ls.snapshot(), nil
}

func (s *SessionService) lookup(projectID, id uuid.UUID) (*liveSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ls, ok := s.active[id]
	if !ok || ls.session.ProjectID != projectID {
		return nil, false
	}
	return ls, true
}

// Push enqueues blocks in order and returns how many were accepted. It
// stops at the first block the queue refuses.
func (s *SessionService) Push(ctx context.Context, projectID uuid.UUID, id uuid.UUID, blocks []domain.Block) (int, error) {
	ls, ok := s.lookup(projectID, id)
	if !ok {
		return 0, s.inactiveError(ctx, projectID, id)
	}
	for i, b := range blocks {
		if err := ls.stream.Submit(b); err != nil {
			return i, err
		}
	}
	return len(blocks), nil
}

// inactiveError tells a stopped session apart from an unknown one.
func (s *SessionService) inactiveError(ctx context.Context, projectID, id uuid.UUID) error {
	if _, err := s.sessions.GetByID(ctx, projectID, id); err != nil {
		return err
	}
	return domain.ErrSessionClosed
}

// Predictions returns up to limit predictions with Seq > after. Live
// sessions are served from memory, stopped ones from the repository.
func (s *SessionService) Predictions(ctx context.Context, projectID uuid.UUID, id uuid.UUID, after uint64, limit int) ([]domain.Prediction, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > 1000 {
		limit = 1000
	}
	if ls, ok := s.lookup(projectID, id); ok {
		return ls.after(after, limit), nil
	}
	if _, err := s.sessions.GetByID(ctx, projectID, id); err != nil {
		return nil, err
	}
	return s.predictions.ListBySession(ctx, id, after, limit)
}

// Subscribe returns a channel receiving every new prediction of a live
// session. Slow receivers miss predictions. The channel is closed when the
// session stops or cancel is called.
func (s *SessionService) Subscribe(ctx context.Context, projectID uuid.UUID, id uuid.UUID) (<-chan domain.Prediction, func(), error) {
	ls, ok := s.lookup(projectID, id)
	if !ok {
		return nil, nil, s.inactiveError(ctx, projectID, id)
	}
	ls.mu.Lock()
	defer ls.mu.Unlock()
	if ls.closed {
		return nil, nil, domain.ErrSessionClosed
	}
	ch := make(chan domain.Prediction, s.cfg.SubscriberBuffer)
	sub := ls.nextSub
	ls.nextSub++
	ls.subs[sub] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			ls.mu.Lock()
			defer ls.mu.Unlock()
			if c, ok := ls.subs[sub]; ok {
				close(c)
				delete(ls.subs, sub)
			}
		})
	}
	return ch, cancel, nil
}

func (s *SessionService) Get(ctx context.Context, projectID uuid.UUID, id uuid.UUID) (*domain.Session, error) {
	if ls, ok := s.lookup(projectID, id); ok {
		return ls.snapshot(), nil
	}
	return s.sessions.GetByID(ctx, projectID, id)
}

// Stop drains the session queue, flushes its predictions and persists the
// final counters.
func (s *SessionService) Stop(ctx context.Context, projectID uuid.UUID, id uuid.UUID) (*domain.Session, error) {
	s.mu.Lock()
	ls, ok := s.active[id]
	if ok && ls.session.ProjectID == projectID {
		delete(s.active, id)
	} else {
		ok = false
	}
	n := len(s.active)
	s.mu.Unlock()

	if !ok {
		return s.stopOrphan(ctx, projectID, id)
	}
	s.reportActive(n)
	return s.finish(ctx, ls)
}

// stopOrphan closes a session left ACTIVE in the repository without a live
// stream, e.g. after a restart.
func (s *SessionService) stopOrphan(ctx context.Context, projectID, id uuid.UUID) (*domain.Session, error) {
	session, err := s.sessions.GetByID(ctx, projectID, id)
	if err != nil {
		return nil, err
	}
	if session.State == domain.SessionStateStopped {
		return nil, domain.ErrSessionClosed
	}
	now := time.Now()
	session.State = domain.SessionStateStopped
	session.StoppedAt = &now
	if err := s.sessions.Update(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// finish ignores cancellation of ctx. Draining and persisting are each
// bounded by StopTimeout.
func (s *SessionService) finish(ctx context.Context, ls *liveSession) (*domain.Session, error) {
	base := context.WithoutCancel(ctx)

	drainCtx, cancelDrain := context.WithTimeout(base, s.cfg.StopTimeout)
	defer cancelDrain()
	ls.stream.Close()
	select {
	case <-ls.stream.Done():
	case <-drainCtx.Done():
		log.WithField("session_id", ls.session.ID).Warn("Session drain timed out, discarding queued blocks")
		ls.cancel()
		<-ls.stream.Done()
	}
	ls.cancel()
	ls.closeSubscribers()

	ctx, cancel := context.WithTimeout(base, s.cfg.StopTimeout)
	defer cancel()
	s.flush(ctx, ls)

	session := ls.snapshot()
	now := time.Now()
	session.State = domain.SessionStateStopped
	session.StoppedAt = &now
	if err := s.sessions.Update(ctx, session); err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{
		"session_id": session.ID,
		"windows":    session.Stats.WindowsProcessed,
		"dropped":    session.Stats.BlocksDropped,
	}).Info("Session stopped")
	return session, nil
}

func (s *SessionService) flush(ctx context.Context, ls *liveSession) {
	pending := ls.takePending()
	for start := 0; start < len(pending); start += s.cfg.FlushBatch {
		end := min(start+s.cfg.FlushBatch, len(pending))
		if err := s.predictions.InsertBatch(ctx, pending[start:end]); err != nil {
			log.WithError(err).WithFields(log.Fields{
				"session_id": ls.session.ID,
				"lost":       len(pending) - start,
			}).Error("Failed to persist predictions")
			return
		}
	}
}

func (s *SessionService) live() []*liveSession {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*liveSession, 0, len(s.active))
	for _, ls := range s.active {
		out = append(out, ls)
	}
	return out
}

// FlushAll persists the pending predictions of every live session.
func (s *SessionService) FlushAll(ctx context.Context) {
	for _, ls := range s.live() {
		s.flush(ctx, ls)
	}
}

// ReapIdle stops sessions that received no blocks for IdleTimeout before
// now and returns how many were stopped.
func (s *SessionService) ReapIdle(ctx context.Context, now time.Time) int {
	reaped := 0
	for _, ls := range s.live() {
		if now.Sub(ls.stream.LastActivity()) < s.cfg.IdleTimeout {
			continue
		}
		log.WithField("session_id", ls.session.ID).Info("Stopping idle session")
		if _, err := s.Stop(ctx, ls.session.ProjectID, ls.session.ID); err != nil {
			log.WithError(err).WithField("session_id", ls.session.ID).Warn("Failed to stop idle session")
			continue
		}
		reaped++
	}
	return reaped
}

// Run flushes predictions and reaps idle sessions until ctx is done, then
// stops every remaining session.
func (s *SessionService) Run(ctx context.Context) {
	flush := time.NewTicker(s.cfg.FlushInterval)
	defer flush.Stop()
	reap := time.NewTicker(max(s.cfg.IdleTimeout/4, time.Second))
	defer reap.Stop()

	for {
		select {
		case <-ctx.Done():
			s.StopAll(ctx)
			return
		case <-flush.C:
			s.FlushAll(ctx)
		case now := <-reap.C:
			s.ReapIdle(ctx, now)
		}
	}
}

// StopAll stops every live session.
func (s *SessionService) StopAll(ctx context.Context) {
	for _, ls := range s.live() {
		if _, err := s.Stop(ctx, ls.session.ProjectID, ls.session.ID); err != nil {
			log.WithError(err).WithField("session_id", ls.session.ID).Warn("Failed to stop session")
		}
	}
}

// ActiveCount returns the number of live sessions.
func (s *SessionService) ActiveCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.active)
}

func (s *SessionService) reportActive(n int) {
	if o, ok := s.observer.(ActiveSessionsObserver); ok {
		o.SetActiveSessions(n)
	}
}
