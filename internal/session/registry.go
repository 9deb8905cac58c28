package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Guffawaffle/LoquiLex-sub000/internal/aggregator"
	"github.com/Guffawaffle/LoquiLex-sub000/internal/metrics"
	"github.com/Guffawaffle/LoquiLex-sub000/internal/protocol"
)

// Translator performs machine translation of finalized segments. A nil
// translator disables the mt.final stream.
type Translator interface {
	Translate(ctx context.Context, text string) (string, error)
	Status() map[string]interface{}
}

// RegistryConfig configures session creation and reaping.
type RegistryConfig struct {
	Manager         ManagerConfig
	Aggregator      aggregator.Config
	IngestQueueSize int
	IdleTTL         time.Duration
	ReaperInterval  time.Duration
}

// Session binds one session id to its protocol manager, its aggregator, and
// the ingest pump that bridges raw engine events onto the session stream.
type Session struct {
	ID        string
	Epoch     int
	StartTime time.Time

	Manager *Manager

	// aggMu guards the aggregator; the pump goroutine and snapshot requests
	// are the only readers and writers.
	aggMu sync.Mutex
	agg   *aggregator.Aggregator

	events chan aggregator.RawEvent
	done   chan struct{}
	pumpWG sync.WaitGroup
}

// Registry owns all live sessions. Sessions are created on demand, keyed by
// session id, and reaped once idle past the configured TTL. Epochs are
// tracked per session id across generations so a stale resume against a
// recreated session is detectable.
type Registry struct {
	cfg RegistryConfig

	mu       sync.Mutex
	sessions map[string]*Session
	epochs   map[string]int

	translator Translator
	logger     *slog.Logger
	metrics    *metrics.Metrics

	stop     chan struct{}
	reaperWG sync.WaitGroup
}

// NewRegistry creates a session registry and starts its idle-session reaper.
func NewRegistry(cfg RegistryConfig, translator Translator, logger *slog.Logger, m *metrics.Metrics) *Registry {
	if cfg.IngestQueueSize <= 0 {
		cfg.IngestQueueSize = 256
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 5 * time.Minute
	}
	if cfg.ReaperInterval <= 0 {
		cfg.ReaperInterval = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	r := &Registry{
		cfg:        cfg,
		sessions:   make(map[string]*Session),
		epochs:     make(map[string]int),
		translator: translator,
		logger:     logger,
		metrics:    m,
		stop:       make(chan struct{}),
	}

	r.reaperWG.Add(1)
	go r.reaperLoop()

	return r
}

// GetOrCreate returns the live session for sid, creating one with a fresh
// epoch when none exists.
func (r *Registry) GetOrCreate(sid string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[sid]; ok {
		if !s.Manager.Closed() {
			return s
		}
		// Replacing a dead generation; reclaim its pump before reuse.
		delete(r.sessions, sid)
		go r.destroy(s)
	}

	r.epochs[sid]++
	epoch := r.epochs[sid]

	s := &Session{
		ID:        sid,
		Epoch:     epoch,
		StartTime: time.Now(),
		agg:       aggregator.New(r.cfg.Aggregator),
		events:    make(chan aggregator.RawEvent, r.cfg.IngestQueueSize),
		done:      make(chan struct{}),
	}

	s.Manager = NewManager(sid, epoch, r.cfg.Manager, r.logger,
		WithMetrics(r.metrics),
		WithSnapshotFunc(r.snapshotFor(s)),
		WithDisconnectFunc(r.onDisconnect),
		WithIngestDepth(func() int { return len(s.events) }),
	)

	r.sessions[sid] = s
	r.metrics.RecordSessionCreated()

	s.pumpWG.Add(1)
	go r.pump(s)

	r.logger.Info("Session created",
		slog.String("session_id", sid),
		slog.Int("epoch", epoch),
	)

	return s
}

// Get returns the live session for sid, if any.
func (r *Registry) Get(sid string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sid]
	return s, ok
}

// Submit hands a raw engine event to the session's ingest queue without
// blocking. A full queue drops the event and counts it for queue.drop
// reporting; recognition engines must never stall on slow consumers.
func (r *Registry) Submit(sid string, ev aggregator.RawEvent) bool {
	r.mu.Lock()
	s, ok := r.sessions[sid]
	r.mu.Unlock()
	if !ok {
		return false
	}

	select {
	case s.events <- ev:
		return true
	default:
		s.Manager.RecordIngestDrop()
		return false
	}
}

// pump drains the session's ingest queue into the aggregator. It is the
// single goroutine mutating the aggregator, so aggregator calls stay
// serialized; the emit callback forwards enriched events onto the session
// stream synchronously.
func (r *Registry) pump(s *Session) {
	defer s.pumpWG.Done()

	emit := func(e aggregator.Event) {
		sent, err := s.Manager.SendDomainEvent(e.Type, e)
		if err != nil {
			r.logger.Warn("Failed to send domain event",
				slog.String("session_id", s.ID),
				slog.String("type", e.Type),
				slog.String("error", err.Error()),
			)
			return
		}
		r.metrics.RecordAggregatorEvent(e.Stable)
		if sent && e.Type == protocol.TypeASRFinal && r.translator != nil {
			go r.translateFinal(s, e)
		}
	}

	var partialsEvicted, finalsEvicted uint64

	for {
		select {
		case <-s.done:
			return
		case ev := <-s.events:
			s.aggMu.Lock()
			if ev.Final {
				s.agg.AddFinal(ev, emit)
			} else {
				s.agg.AddPartial(ev, emit)
			}
			st := s.agg.Stats()
			s.aggMu.Unlock()

			for ; partialsEvicted < st.PartialsEvicted; partialsEvicted++ {
				r.metrics.RecordPartialEvicted()
			}
			for ; finalsEvicted < st.FinalsEvicted; finalsEvicted++ {
				r.metrics.RecordFinalEvicted()
			}
		}
	}
}

// mtFinalPayload is the data body of mt.final envelopes.
type mtFinalPayload struct {
	SegmentID string  `json:"segment_id"`
	SrcText   string  `json:"src_text"`
	Text      string  `json:"text"`
	TS        float64 `json:"ts"`
}

// translateFinal translates one finalized segment and publishes the result
// as an mt.final domain event. Runs off the pump goroutine so translation
// latency never backs up recognition.
func (r *Registry) translateFinal(s *Session, e aggregator.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	translated, err := r.translator.Translate(ctx, e.Text)
	if err != nil {
		r.logger.Warn("Translation failed",
			slog.String("session_id", s.ID),
			slog.String("segment_id", e.SegmentID),
			slog.String("error", err.Error()),
		)
		return
	}

	s.Manager.SendDomainEvent(protocol.TypeMTFinal, mtFinalPayload{
		SegmentID: e.SegmentID,
		SrcText:   e.Text,
		Text:      translated,
		TS:        protocol.WallNow(),
	})
}

// snapshotFor builds the snapshot collaborator for one session: recent
// finals and the live partial from the aggregator, plus translation status.
func (r *Registry) snapshotFor(s *Session) SnapshotFunc {
	return func(string) (*Snapshot, error) {
		s.aggMu.Lock()
		aggSnap := s.agg.Snapshot()
		s.aggMu.Unlock()

		var mtStatus map[string]interface{}
		if r.translator != nil {
			mtStatus = r.translator.Status()
		}

		return &Snapshot{
			FinalizedTranscript: aggSnap.RecentFinals,
			ActivePartials:      aggSnap.LivePartial,
			MTStatus:            mtStatus,
		}, nil
	}
}

// onDisconnect is invoked when a session loses its last connection. The
// session stays alive for the resume window; the reaper handles eventual
// cleanup.
func (r *Registry) onDisconnect(sid string) {
	r.logger.Info("Session has no live connections",
		slog.String("session_id", sid),
	)
}

// AggregatorStats returns the aggregator counters for a session.
func (s *Session) AggregatorStats() aggregator.Stats {
	s.aggMu.Lock()
	defer s.aggMu.Unlock()
	return s.agg.Stats()
}

// List returns monitoring info for all live sessions.
func (r *Registry) List() []Info {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Info, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s.Manager.Info())
	}
	return out
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// reaperLoop periodically removes sessions that closed or sat idle past the
// TTL with no connections.
func (r *Registry) reaperLoop() {
	defer r.reaperWG.Done()

	ticker := time.NewTicker(r.cfg.ReaperInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			r.reap()
		}
	}
}

// reap removes dead and expired-idle sessions.
func (r *Registry) reap() {
	var victims []*Session

	r.mu.Lock()
	for sid, s := range r.sessions {
		if s.Manager.Closed() {
			delete(r.sessions, sid)
			victims = append(victims, s)
			continue
		}
		if idle, ok := s.Manager.IdleSince(); ok && time.Since(idle) > r.cfg.IdleTTL {
			delete(r.sessions, sid)
			victims = append(victims, s)
		}
	}
	r.mu.Unlock()

	for _, s := range victims {
		r.destroy(s)
	}
}

// destroy tears one session down and records its lifetime.
func (r *Registry) destroy(s *Session) {
	s.Manager.Close()
	close(s.done)
	s.pumpWG.Wait()

	r.metrics.RecordSessionDestroyed(time.Since(s.StartTime).Seconds())
	r.logger.Info("Session destroyed",
		slog.String("session_id", s.ID),
		slog.Duration("lifetime", time.Since(s.StartTime)),
	)
}

// Shutdown stops the reaper and tears down every session.
func (r *Registry) Shutdown() {
	close(r.stop)
	r.reaperWG.Wait()

	r.mu.Lock()
	victims := make([]*Session, 0, len(r.sessions))
	for sid, s := range r.sessions {
		delete(r.sessions, sid)
		victims = append(victims, s)
	}
	r.mu.Unlock()

	for _, s := range victims {
		r.destroy(s)
	}

	r.logger.Info("Session registry shut down")
}
