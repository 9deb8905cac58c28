package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Guffawaffle/LoquiLex-sub000/internal/config"
	"github.com/Guffawaffle/LoquiLex-sub000/internal/metrics"
	"github.com/Guffawaffle/LoquiLex-sub000/internal/protocol"
	"github.com/Guffawaffle/LoquiLex-sub000/internal/session"
)

// WSServer accepts WebSocket connections at /ws/{session_id} and bridges
// frames between clients and their session's protocol manager.
type WSServer struct {
	config   config.ServerConfig
	registry *session.Registry
	logger   *slog.Logger
	metrics  *metrics.Metrics

	upgrader websocket.Upgrader
	server   *http.Server

	// Statistics
	framesReceived uint64
	decodeErrors   uint64
	connsOpened    uint64
	connsClosed    uint64
	mu             sync.RWMutex
}

// Statistics represents WebSocket server statistics
type Statistics struct {
	FramesReceived uint64 `json:"frames_received"`
	DecodeErrors   uint64 `json:"decode_errors"`
	ConnsOpened    uint64 `json:"conns_opened"`
	ConnsClosed    uint64 `json:"conns_closed"`
	ActiveSessions int    `json:"active_sessions"`
}

// NewWSServer creates a new WebSocket server
func NewWSServer(cfg config.ServerConfig, registry *session.Registry, logger *slog.Logger, m *metrics.Metrics) *WSServer {
	s := &WSServer{
		config:   cfg,
		registry: registry,
		logger:   logger,
		metrics:  m,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws/", s.handleWS)

	s.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.BindAddress, cfg.Port),
		Handler: mux,
	}

	return s
}

// Start begins accepting WebSocket connections
func (s *WSServer) Start() error {
	s.logger.Info("Starting WebSocket server",
		slog.String("address", s.server.Addr),
	)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("WebSocket server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the WebSocket server
func (s *WSServer) Stop(ctx context.Context) error {
	s.logger.Info("Stopping WebSocket server...")

	return s.server.Shutdown(ctx)
}

// handleWS upgrades the HTTP request and runs the connection's read loop.
func (s *WSServer) handleWS(w http.ResponseWriter, r *http.Request) {
	sid := strings.TrimPrefix(r.URL.Path, "/ws/")
	if sid == "" || strings.Contains(sid, "/") {
		http.Error(w, "Session ID required", http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed",
			slog.String("remote", r.RemoteAddr),
			slog.String("error", err.Error()),
		)
		return
	}

	s.mu.Lock()
	s.connsOpened++
	s.mu.Unlock()
	s.metrics.RecordConnectionOpened()

	s.logger.Info("WebSocket connection established",
		slog.String("session_id", sid),
		slog.String("remote", r.RemoteAddr),
	)

	sess := s.registry.GetOrCreate(sid)
	wc := &wsConn{
		conn:         conn,
		writeTimeout: s.config.GetWriteTimeout(),
	}

	if err := sess.Manager.AttachConn(wc); err != nil {
		s.logger.Warn("Failed to attach connection",
			slog.String("session_id", sid),
			slog.String("error", err.Error()),
		)
		conn.Close()
		return
	}

	s.readLoop(sess, wc)
}

// readLoop pumps inbound frames into the protocol manager until the
// connection dies. The read deadline is refreshed by every inbound frame,
// so a fully silent peer is detected at the transport level too.
func (s *WSServer) readLoop(sess *session.Session, wc *wsConn) {
	defer func() {
		sess.Manager.DetachConn(wc)
		wc.Close()

		s.mu.Lock()
		s.connsClosed++
		s.mu.Unlock()
		s.metrics.RecordConnectionClosed()
	}()

	if s.config.MaxMessageSize > 0 {
		wc.conn.SetReadLimit(s.config.MaxMessageSize)
	}

	readTimeout := s.config.GetReadTimeout()

	for {
		if readTimeout > 0 {
			wc.conn.SetReadDeadline(time.Now().Add(readTimeout))
		}

		msgType, data, err := wc.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("WebSocket read error",
					slog.String("session_id", sess.ID),
					slog.String("error", err.Error()),
				)
			}
			return
		}

		if msgType != websocket.TextMessage {
			continue
		}

		s.mu.Lock()
		s.framesReceived++
		s.mu.Unlock()
		s.metrics.RecordFrameReceived()

		if err := sess.Manager.HandleMessage(wc, data); err != nil {
			s.mu.Lock()
			s.decodeErrors++
			s.mu.Unlock()
			s.metrics.RecordDecodeError()
		}
	}
}

// GetStatistics returns current server statistics
func (s *WSServer) GetStatistics() Statistics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Statistics{
		FramesReceived: s.framesReceived,
		DecodeErrors:   s.decodeErrors,
		ConnsOpened:    s.connsOpened,
		ConnsClosed:    s.connsClosed,
		ActiveSessions: s.registry.Count(),
	}
}

// wsConn adapts a gorilla WebSocket connection to the session.Conn
// interface. The mutex serializes writes; gorilla connections support one
// concurrent writer only.
type wsConn struct {
	conn         *websocket.Conn
	mu           sync.Mutex
	writeTimeout time.Duration
}

func (c *wsConn) WriteEnvelope(env *protocol.Envelope) error {
	data, err := env.Encode()
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.writeTimeout > 0 {
		c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}
