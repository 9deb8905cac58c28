package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/Guffawaffle/LoquiLex-sub000/internal/metrics"
	"github.com/Guffawaffle/LoquiLex-sub000/internal/protocol"
)

// ErrSessionClosed is returned when attaching to a torn-down session.
var ErrSessionClosed = errors.New("session closed")

// Conn is one live client connection. Implementations must be safe for
// concurrent writes.
type Conn interface {
	WriteEnvelope(env *protocol.Envelope) error
	Close() error
}

// connPhase tracks the per-connection protocol state machine.
type connPhase int

const (
	connAwaitingHello connPhase = iota
	connActive
)

// Snapshot is the session rehydration payload assembled from the owning
// session's aggregator and translation status. It is supplied by the
// SnapshotFunc collaborator and sent verbatim as session.snapshot data.
type Snapshot struct {
	FinalizedTranscript interface{} `json:"finalized_transcript"`
	ActivePartials      interface{} `json:"active_partials"`
	MTStatus            interface{} `json:"mt_status"`
}

// SnapshotFunc supplies the reconnect snapshot for a session.
type SnapshotFunc func(sessionID string) (*Snapshot, error)

// DisconnectFunc is invoked exactly once when a session has no remaining
// live connections, letting the owner reclaim resources.
type DisconnectFunc func(sessionID string)

// ManagerConfig contains protocol manager configuration.
type ManagerConfig struct {
	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration
	ResumeWindow      time.Duration
	MaxInFlight       int // server-side flow-control limit
	MaxReplay         int
	AckMode           string
}

// Telemetry is a best-effort summary of session counters. Values are
// advisory and never authoritative.
type Telemetry struct {
	ResumeAttempts  uint64  `json:"resume_attempts"`
	ResumeSuccesses uint64  `json:"resume_successes"`
	ResumeMisses    uint64  `json:"resume_misses"`
	AvgSnapshotSize float64 `json:"avg_snapshot_bytes"`
	AvgReplayMS     float64 `json:"avg_replay_ms"`
	FlowDrops       uint64  `json:"flow_drops"`
	ReplayPrunes    uint64  `json:"replay_prunes"`
	IngestDrops     uint64  `json:"ingest_drops"`
}

// Info describes a session for monitoring APIs.
type Info struct {
	SessionID   string    `json:"session_id"`
	Epoch       int       `json:"epoch"`
	StartTime   time.Time `json:"start_time"`
	Connections int       `json:"connections"`
	Seq         int64     `json:"seq"`
	LastAckSeq  int64     `json:"last_ack_seq"`
	ReplaySize  int       `json:"replay_size"`
	AckMode     string    `json:"ack_mode"`
	MaxInFlight int       `json:"max_in_flight"`
	Closed      bool      `json:"closed"`
	Telemetry   Telemetry `json:"telemetry"`
}

// Manager owns the connections of one session and drives its protocol state
// machine: handshake, heartbeats, acknowledgements, flow control, resume,
// and broadcast. All session mutation happens inside the manager's mutex,
// so sequence allocation and replay insertion never interleave.
type Manager struct {
	sid string
	cfg ManagerConfig

	mu     sync.Mutex
	state  *State
	conns  map[Conn]connPhase
	closed bool

	lastClientHB time.Time
	idleSince    time.Time

	logger  *slog.Logger
	metrics *metrics.Metrics

	snapshotFn   SnapshotFunc
	onDisconnect DisconnectFunc
	disconnected sync.Once

	// qIn reports the ingest queue depth for server.hb frames.
	qIn func() int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Best-effort telemetry, guarded by mu.
	resumeAttempts  uint64
	resumeSuccesses uint64
	resumeMisses    uint64
	snapshotBytes   uint64
	snapshotCount   uint64
	replayNanos     uint64
	replayCount     uint64
	flowDrops       uint64
	replayPrunes    uint64
	ingestDrops     uint64
	reportedDrops   protocol.QueueDropPayload
}

// ManagerOption customizes manager construction.
type ManagerOption func(*Manager)

// WithSnapshotFunc installs the reconnect snapshot collaborator.
func WithSnapshotFunc(fn SnapshotFunc) ManagerOption {
	return func(m *Manager) { m.snapshotFn = fn }
}

// WithDisconnectFunc installs the no-connections-left callback.
func WithDisconnectFunc(fn DisconnectFunc) ManagerOption {
	return func(m *Manager) { m.onDisconnect = fn }
}

// WithMetrics installs the Prometheus metrics sink. A nil sink is valid.
func WithMetrics(m *metrics.Metrics) ManagerOption {
	return func(mgr *Manager) { mgr.metrics = m }
}

// WithIngestDepth installs a callback supplying the ingest queue depth
// reported in server.hb frames.
func WithIngestDepth(fn func() int) ManagerOption {
	return func(m *Manager) { m.qIn = fn }
}

// NewManager creates a protocol manager for one session generation and
// starts its heartbeat sender and watchdog tasks.
func NewManager(sid string, epoch int, cfg ManagerConfig, logger *slog.Logger, opts ...ManagerOption) *Manager {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 5 * time.Second
	}
	if cfg.HeartbeatTimeout <= 0 {
		cfg.HeartbeatTimeout = 3 * cfg.HeartbeatInterval
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	m := &Manager{
		sid: sid,
		cfg: cfg,
		state: NewState(sid, epoch, StateConfig{
			AckMode:      cfg.AckMode,
			MaxInFlight:  cfg.MaxInFlight,
			ResumeWindow: cfg.ResumeWindow,
			MaxReplay:    cfg.MaxReplay,
		}),
		conns:        make(map[Conn]connPhase),
		lastClientHB: time.Now(),
		idleSince:    time.Now(),
		logger:       logger.With(slog.String("session_id", sid)),
		ctx:          ctx,
		cancel:       cancel,
	}

	for _, opt := range opts {
		opt(m)
	}

	// Heartbeat sender and watchdog share the manager context so session
	// close cancels both together.
	m.wg.Add(2)
	go m.heartbeatLoop()
	go m.watchdogLoop()

	return m
}

// SessionID returns the session id the manager owns.
func (m *Manager) SessionID() string {
	return m.sid
}

// AttachConn registers a new connection and immediately sends the welcome
// message at sequence 0.
func (m *Manager) AttachConn(c Conn) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrSessionClosed
	}
	m.conns[c] = connAwaitingHello
	// Restart the watchdog clock so a reconnecting client gets the full
	// advertised timeout to complete its hello or resume.
	m.lastClientHB = time.Now()
	welcome := protocol.WelcomePayload{
		HB: protocol.HBConfig{
			IntervalMS: int(m.cfg.HeartbeatInterval / time.Millisecond),
			TimeoutMS:  int(m.cfg.HeartbeatTimeout / time.Millisecond),
		},
		ResumeWindowSec: m.cfg.ResumeWindow.Seconds(),
		Limits:          protocol.Limits{MaxInFlight: m.cfg.MaxInFlight},
	}
	m.mu.Unlock()

	env, err := protocol.NewEnvelope(protocol.TypeServerWelcome, welcome,
		protocol.WithSession(m.sid), protocol.WithSeq(0))
	if err != nil {
		return err
	}

	if err := c.WriteEnvelope(env); err != nil {
		m.DetachConn(c)
		return err
	}

	m.logger.Debug("Connection attached, welcome sent")
	return nil
}

// DetachConn removes a connection from the session. The last detach fires
// the disconnect callback.
func (m *Manager) DetachConn(c Conn) {
	m.mu.Lock()
	if _, ok := m.conns[c]; !ok {
		m.mu.Unlock()
		return
	}
	delete(m.conns, c)
	empty := len(m.conns) == 0
	if empty {
		m.idleSince = time.Now()
	}
	m.mu.Unlock()

	if empty {
		m.fireDisconnect()
	}
}

// ConnectionCount returns the number of live connections.
func (m *Manager) ConnectionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.conns)
}

// IdleSince reports when the session last lost its final connection. The
// second return is false while any connection is live.
func (m *Manager) IdleSince() (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.conns) > 0 {
		return time.Time{}, false
	}
	return m.idleSince, true
}

// Closed reports whether the session has been torn down.
func (m *Manager) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// HandleMessage processes one inbound frame from a connection. Every
// failure path converts to a server.error reply; decode failures are also
// returned so transports can count them.
func (m *Manager) HandleMessage(c Conn, raw []byte) error {
	env, err := protocol.Decode(raw)
	if err != nil {
		m.logger.Warn("Dropping malformed frame", slog.String("error", err.Error()))
		m.sendError(c, "", protocol.ErrCodeInvalidMessage, err.Error())
		return err
	}

	payload, err := protocol.DecodeClientPayload(env.Type, env.Data)
	if err != nil {
		code := protocol.ErrCodeInvalidMessage
		if isUnknownType(err) {
			code = protocol.ErrCodeInvalidType
		}
		m.logger.Warn("Rejecting client message",
			slog.String("type", env.Type),
			slog.String("error", err.Error()),
		)
		m.sendError(c, env.ID, code, err.Error())
		return err
	}

	switch p := payload.(type) {
	case *protocol.HelloPayload:
		m.handleHello(c, env, p)
	case *protocol.AckPayload:
		m.handleAck(c, env, p)
	case *protocol.ClientHeartbeatPayload:
		m.handleClientHeartbeat()
	case *protocol.FlowPayload:
		m.handleFlow(p)
	case *protocol.ResumePayload:
		m.handleResume(c, env, p)
	}
	return nil
}

// handleHello negotiates flow-control settings, or routes to the resume
// flow when the hello carries a resume request.
func (m *Manager) handleHello(c Conn, env *protocol.Envelope, p *protocol.HelloPayload) {
	if p.Resume != nil {
		m.handleResume(c, env, p.Resume)
		return
	}

	m.mu.Lock()
	if p.MaxInFlight > 0 && p.MaxInFlight < m.cfg.MaxInFlight {
		m.state.MaxInFlight = p.MaxInFlight
	} else {
		m.state.MaxInFlight = m.cfg.MaxInFlight
	}
	if protocol.IsValidAckMode(p.AckMode) {
		m.state.AckMode = p.AckMode
	}
	m.conns[c] = connActive
	m.lastClientHB = time.Now()
	negotiated := m.state.MaxInFlight
	ackMode := m.state.AckMode
	m.mu.Unlock()

	m.logger.Info("Client hello accepted",
		slog.String("agent", p.Agent),
		slog.Int("max_in_flight", negotiated),
		slog.String("ack_mode", ackMode),
	)

	m.sendControl(c, protocol.TypeServerAck,
		protocol.SessionAckPayload{Status: "ok"}, env.ID)
}

// handleAck validates and applies a client acknowledgement. An ack beyond
// the highest delivered sequence is rejected as spoofing rather than
// treated as a no-op.
func (m *Manager) handleAck(c Conn, env *protocol.Envelope, p *protocol.AckPayload) {
	m.mu.Lock()
	if p.AckSeq > m.state.CurrentSeq() {
		highest := m.state.CurrentSeq()
		m.mu.Unlock()
		m.logger.Warn("Rejecting ack beyond delivered seq",
			slog.Int64("ack_seq", p.AckSeq),
			slog.Int64("highest_seq", highest),
		)
		m.metrics.RecordProtocolError(protocol.ErrCodeInvalidAck)
		m.sendError(c, env.ID, protocol.ErrCodeInvalidAck, "ack_seq exceeds delivered sequence")
		return
	}
	err := m.state.ProcessAck(p.AckSeq)
	m.mu.Unlock()

	if err != nil {
		m.metrics.RecordProtocolError(protocol.ErrCodeInvalidAck)
		m.sendError(c, env.ID, protocol.ErrCodeInvalidAck, err.Error())
	}
}

// handleClientHeartbeat refreshes the watchdog deadline.
func (m *Manager) handleClientHeartbeat() {
	m.mu.Lock()
	m.lastClientHB = time.Now()
	m.mu.Unlock()
}

// handleFlow adjusts flow-control settings mid-session, clamped to the
// server limit.
func (m *Manager) handleFlow(p *protocol.FlowPayload) {
	m.mu.Lock()
	if p.MaxInFlight > 0 {
		if p.MaxInFlight < m.cfg.MaxInFlight {
			m.state.MaxInFlight = p.MaxInFlight
		} else {
			m.state.MaxInFlight = m.cfg.MaxInFlight
		}
	}
	if protocol.IsValidAckMode(p.AckMode) {
		m.state.AckMode = p.AckMode
	}
	m.mu.Unlock()
}

// handleResume drives the reconnect-with-replay flow: validate identity,
// epoch, and the resume window; then snapshot, replay, and confirm.
func (m *Manager) handleResume(c Conn, env *protocol.Envelope, p *protocol.ResumePayload) {
	m.mu.Lock()
	m.resumeAttempts++
	m.mu.Unlock()
	m.metrics.RecordResumeAttempt()

	reject := func(reason string) {
		m.mu.Lock()
		m.resumeMisses++
		m.mu.Unlock()
		m.metrics.RecordResumeRejected(reason)
		m.logger.Info("Resume rejected",
			slog.String("reason", reason),
			slog.String("requested_session", p.SessionID),
			slog.Int("requested_epoch", p.Epoch),
		)
		m.sendControl(c, protocol.TypeSessionNew,
			protocol.SessionNewPayload{Reason: reason}, env.ID)
	}

	if p.SessionID != m.sid {
		reject(protocol.ReasonSessionIDMismatch)
		return
	}

	m.mu.Lock()
	epochOK := p.Epoch == m.state.Epoch
	expired := m.state.ResumeExpired()
	m.mu.Unlock()

	if !epochOK {
		reject(protocol.ReasonEpochMismatch)
		return
	}
	if expired {
		reject(protocol.ReasonResumeExpired)
		return
	}

	var snap *Snapshot
	if m.snapshotFn != nil {
		s, err := m.snapshotFn(m.sid)
		if err != nil {
			m.logger.Warn("Snapshot collaborator failed, resuming with empty snapshot",
				slog.String("error", err.Error()),
			)
		} else {
			snap = s
		}
	}
	if snap == nil {
		snap = &Snapshot{}
	}

	snapEnv, err := protocol.NewEnvelope(protocol.TypeSessionSnapshot, snap,
		protocol.WithSession(m.sid), protocol.WithSeq(0), protocol.WithCorr(env.ID))
	if err != nil {
		m.logger.Error("Failed to build snapshot envelope", slog.String("error", err.Error()))
		return
	}

	start := time.Now()
	if err := c.WriteEnvelope(snapEnv); err != nil {
		m.logger.Warn("Snapshot send failed", slog.String("error", err.Error()))
		m.DetachConn(c)
		return
	}

	ackEnv, err := protocol.NewEnvelope(protocol.TypeSessionAck,
		protocol.SessionAckPayload{Status: "resumed"},
		protocol.WithSession(m.sid), protocol.WithSeq(0), protocol.WithCorr(env.ID))
	if err != nil {
		m.logger.Error("Failed to build session.ack envelope", slog.String("error", err.Error()))
		return
	}

	snapBytes := 0
	if data, err := snapEnv.Encode(); err == nil {
		snapBytes = len(data)
	}

	// The replay batch and the confirmation are written under the lock, and
	// the connection joins the broadcast set in the same critical section. A
	// concurrent domain event waits on the lock, so it cannot land ahead of
	// or between replayed envelopes.
	m.mu.Lock()
	replayBatch := m.state.ReplayAfter(p.LastSeq)
	for _, replayEnv := range replayBatch {
		if err := c.WriteEnvelope(replayEnv); err != nil {
			m.logger.Warn("Replay send failed",
				slog.Int64("seq", replayEnv.Seq),
				slog.String("error", err.Error()),
			)
			m.evictConnLocked(c)
			m.mu.Unlock()
			return
		}
	}
	if err := c.WriteEnvelope(ackEnv); err != nil {
		m.logger.Warn("Resume confirmation send failed", slog.String("error", err.Error()))
		m.evictConnLocked(c)
		m.mu.Unlock()
		return
	}
	m.conns[c] = connActive
	m.lastClientHB = time.Now()
	m.resumeSuccesses++
	m.snapshotBytes += uint64(snapBytes)
	m.snapshotCount++
	m.replayNanos += uint64(time.Since(start).Nanoseconds())
	m.replayCount++
	m.mu.Unlock()
	m.metrics.RecordResumeSuccess(snapBytes, len(replayBatch))

	m.logger.Info("Session resumed",
		slog.Int64("last_seq", p.LastSeq),
		slog.Int("replayed", len(replayBatch)),
	)
}

// SendDomainEvent wraps an aggregated domain event into an envelope and
// broadcasts it. When the flow-control window is full the event is dropped
// without consuming a sequence number and (false, nil) is returned; the
// decision to retry belongs to the producer.
func (m *Manager) SendDomainEvent(eventType string, data interface{}) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return false, nil
	}

	if !m.state.CanSend() {
		m.flowDrops++
		m.metrics.RecordFlowControlDrop()
		return false, nil
	}

	seq := m.state.NextSeq()
	env, err := protocol.NewEnvelope(eventType, data,
		protocol.WithSession(m.sid), protocol.WithSeq(seq))
	if err != nil {
		return false, err
	}

	pruned := m.state.AddToReplay(env)
	if pruned > 0 {
		m.replayPrunes += uint64(pruned)
		m.metrics.RecordReplayPruned(pruned)
	}

	m.broadcastLocked(env)
	m.metrics.RecordEnvelopeSent()
	return true, nil
}

// RecordIngestDrop counts a raw engine event lost to a full ingest queue,
// for queue.drop surfacing.
func (m *Manager) RecordIngestDrop() {
	m.mu.Lock()
	m.ingestDrops++
	m.mu.Unlock()
	m.metrics.RecordIngestDropped()
}

// broadcastLocked sends an envelope to every active connection. It iterates
// a copy of the connection set so eviction mid-loop is safe. A failed send
// removes that connection only. Callers must hold m.mu; writes stay under
// the lock so each connection observes strictly increasing seq order.
func (m *Manager) broadcastLocked(env *protocol.Envelope) {
	targets := make([]Conn, 0, len(m.conns))
	for c, phase := range m.conns {
		if phase == connActive {
			targets = append(targets, c)
		}
	}

	for _, c := range targets {
		if err := c.WriteEnvelope(env); err != nil {
			m.logger.Warn("Broadcast send failed, removing connection",
				slog.String("error", err.Error()),
			)
			m.evictConnLocked(c)
		}
	}
}

// evictConnLocked closes and removes a failed connection. Callers must hold
// m.mu.
func (m *Manager) evictConnLocked(c Conn) {
	c.Close()
	delete(m.conns, c)
	if len(m.conns) == 0 {
		m.idleSince = time.Now()
		// fireDisconnect is once-guarded and must not run under the lock.
		go m.fireDisconnect()
	}
}

// sendControl sends a control envelope (seq 0, never buffered) to a single
// connection. Control traffic stays outside the replayed sequence space so
// the replay buffer remains dense and gap-free.
func (m *Manager) sendControl(c Conn, msgType string, payload interface{}, corr string) {
	opts := []protocol.Option{protocol.WithSession(m.sid), protocol.WithSeq(0)}
	if corr != "" {
		opts = append(opts, protocol.WithCorr(corr))
	}

	env, err := protocol.NewEnvelope(msgType, payload, opts...)
	if err != nil {
		m.logger.Error("Failed to build control envelope",
			slog.String("type", msgType),
			slog.String("error", err.Error()),
		)
		return
	}

	if err := c.WriteEnvelope(env); err != nil {
		m.logger.Warn("Control send failed, removing connection",
			slog.String("type", msgType),
			slog.String("error", err.Error()),
		)
		m.DetachConn(c)
		c.Close()
	}
}

// sendError reports a protocol error to the offending connection.
func (m *Manager) sendError(c Conn, corr, code, message string) {
	m.metrics.RecordProtocolError(code)
	m.sendControl(c, protocol.TypeServerError,
		protocol.ErrorPayload{Code: code, Message: message}, corr)
}

// heartbeatLoop emits server.hb frames at the configured interval and
// surfaces accumulated queue drops via queue.drop events.
func (m *Manager) heartbeatLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.sendHeartbeat()
			m.reportQueueDrops()
		}
	}
}

// sendHeartbeat broadcasts a server.hb control frame with queue depths.
func (m *Manager) sendHeartbeat() {
	qIn := 0
	if m.qIn != nil {
		qIn = m.qIn()
	}

	m.mu.Lock()
	if m.closed || len(m.conns) == 0 {
		m.mu.Unlock()
		return
	}
	hb := protocol.ServerHeartbeatPayload{
		TS:   protocol.WallNow(),
		QOut: m.state.ReplaySize(),
		QIn:  qIn,
	}

	env, err := protocol.NewEnvelope(protocol.TypeServerHB, hb,
		protocol.WithSession(m.sid), protocol.WithSeq(0))
	if err == nil {
		m.broadcastLocked(env)
	}
	m.mu.Unlock()
}

// reportQueueDrops emits a queue.drop domain event when drop counters have
// advanced since the last report. Best-effort: a full window skips the
// report rather than queueing it.
func (m *Manager) reportQueueDrops() {
	m.mu.Lock()
	current := protocol.QueueDropPayload{
		FlowDrops:   m.flowDrops,
		ReplayDrops: m.replayPrunes,
		IngestDrops: m.ingestDrops,
	}
	changed := current != m.reportedDrops
	if changed {
		m.reportedDrops = current
	}
	m.mu.Unlock()

	if changed {
		m.SendDomainEvent(protocol.TypeQueueDrop, current)
	}
}

// watchdogLoop closes the session when no client heartbeat arrives within
// the timeout.
func (m *Manager) watchdogLoop() {
	defer m.wg.Done()

	interval := m.cfg.HeartbeatTimeout / 2
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.mu.Lock()
			expired := len(m.conns) > 0 && time.Since(m.lastClientHB) > m.cfg.HeartbeatTimeout
			m.mu.Unlock()

			if expired {
				m.logger.Warn("Heartbeat timeout, closing session",
					slog.Duration("timeout", m.cfg.HeartbeatTimeout),
				)
				m.metrics.RecordHeartbeatTimeout()
				m.Close()
				return
			}
		}
	}
}

// Close tears the session down: both heartbeat tasks are cancelled
// together, every connection is closed, and the disconnect callback fires
// exactly once. Safe to call from the watchdog, an external stop request,
// or failed-broadcast detection; idempotent.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	conns := make([]Conn, 0, len(m.conns))
	for c := range m.conns {
		conns = append(conns, c)
	}
	m.conns = make(map[Conn]connPhase)
	m.idleSince = time.Now()
	m.mu.Unlock()

	m.cancel()

	for _, c := range conns {
		c.Close()
	}

	m.fireDisconnect()
	m.logger.Info("Session closed")
}

// Wait blocks until the heartbeat tasks have exited. Callers other than the
// watchdog may use it after Close for a clean teardown.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// fireDisconnect invokes the disconnect callback exactly once per session
// lifecycle.
func (m *Manager) fireDisconnect() {
	m.disconnected.Do(func() {
		if m.onDisconnect != nil {
			m.onDisconnect(m.sid)
		}
	})
}

// TelemetrySummary returns the session's best-effort counters.
func (m *Manager) TelemetrySummary() Telemetry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.telemetryLocked()
}

func (m *Manager) telemetryLocked() Telemetry {
	t := Telemetry{
		ResumeAttempts:  m.resumeAttempts,
		ResumeSuccesses: m.resumeSuccesses,
		ResumeMisses:    m.resumeMisses,
		FlowDrops:       m.flowDrops,
		ReplayPrunes:    m.replayPrunes,
		IngestDrops:     m.ingestDrops,
	}
	if m.snapshotCount > 0 {
		t.AvgSnapshotSize = float64(m.snapshotBytes) / float64(m.snapshotCount)
	}
	if m.replayCount > 0 {
		t.AvgReplayMS = float64(m.replayNanos) / float64(m.replayCount) / float64(time.Millisecond)
	}
	return t
}

// Info returns a monitoring view of the session.
func (m *Manager) Info() Info {
	m.mu.Lock()
	defer m.mu.Unlock()

	return Info{
		SessionID:   m.sid,
		Epoch:       m.state.Epoch,
		StartTime:   m.state.T0Wall,
		Connections: len(m.conns),
		Seq:         m.state.CurrentSeq(),
		LastAckSeq:  m.state.LastAckSeq(),
		ReplaySize:  m.state.ReplaySize(),
		AckMode:     m.state.AckMode,
		MaxInFlight: m.state.MaxInFlight,
		Closed:      m.closed,
		Telemetry:   m.telemetryLocked(),
	}
}

func isUnknownType(err error) bool {
	return errors.Is(err, protocol.ErrUnknownType)
}
