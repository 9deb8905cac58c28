package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Guffawaffle/LoquiLex-sub000/internal/aggregator"
	"github.com/Guffawaffle/LoquiLex-sub000/internal/config"
	"github.com/Guffawaffle/LoquiLex-sub000/internal/metrics"
	"github.com/Guffawaffle/LoquiLex-sub000/internal/session"
)

// HTTPServer provides HTTP API endpoints for monitoring, management, and
// raw event ingest
type HTTPServer struct {
	server   *http.Server
	logger   *slog.Logger
	config   *config.Config
	registry *session.Registry
	wsServer *WSServer
	metrics  *metrics.Metrics

	startTime time.Time
	mu        sync.RWMutex
}

// NewHTTPServer creates a new HTTP API server
func NewHTTPServer(cfg config.HTTPConfig, logger *slog.Logger,
	appConfig *config.Config, registry *session.Registry, wsServer *WSServer, m *metrics.Metrics) *HTTPServer {

	h := &HTTPServer{
		logger:    logger,
		config:    appConfig,
		registry:  registry,
		wsServer:  wsServer,
		metrics:   m,
		startTime: time.Now(),
	}

	mux := http.NewServeMux()
	h.setupRoutes(mux)

	h.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Address, cfg.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return h
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	// Health check endpoint
	mux.HandleFunc("/health", h.withMetrics("/health", h.handleHealth))

	// Session monitoring and event ingest endpoints
	mux.HandleFunc("/sessions", h.withMetrics("/sessions", h.handleSessions))
	mux.HandleFunc("/sessions/", h.withMetrics("/sessions/{id}", h.handleSessionDetail))

	// Configuration endpoint
	mux.HandleFunc("/config", h.withMetrics("/config", h.handleConfig))

	// Statistics endpoint
	mux.HandleFunc("/stats", h.withMetrics("/stats", h.handleStats))

	// Prometheus metrics endpoint (no metrics needed for metrics endpoint)
	mux.Handle("/metrics", promhttp.Handler())

	// Root endpoint with API documentation
	mux.HandleFunc("/", h.withMetrics("/", h.handleRoot))
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		// Create a response writer wrapper to capture status code
		ww := &responseWriter{ResponseWriter: w, statusCode: 200}

		handler(ww, r)

		duration := time.Since(startTime).Seconds()
		statusCode := fmt.Sprintf("%d", ww.statusCode)

		h.metrics.RecordHTTPRequest(r.Method, endpoint, statusCode, duration)

		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			h.metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	h.logger.Info("Starting HTTP API server",
		slog.String("address", h.server.Addr),
	)

	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP API server...")

	return h.server.Shutdown(ctx)
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	uptime := time.Since(h.startTime)
	wsStats := h.wsServer.GetStatistics()

	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    uptime.String(),
		"service": map[string]interface{}{
			"name":    "loquilex-stream-service",
			"version": "1.0.0",
		},
		"components": map[string]interface{}{
			"ws_server": map[string]interface{}{
				"status":          "running",
				"frames_received": wsStats.FramesReceived,
				"conns_opened":    wsStats.ConnsOpened,
				"conns_closed":    wsStats.ConnsClosed,
			},
			"session_registry": map[string]interface{}{
				"status":          "running",
				"active_sessions": wsStats.ActiveSessions,
			},
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(health)
}

// handleSessions implements the /sessions endpoint
func (h *HTTPServer) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	infos := h.registry.List()

	response := map[string]interface{}{
		"total_sessions": len(infos),
		"timestamp":      time.Now().UTC(),
		"sessions":       infos,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// handleSessionDetail implements GET /sessions/{session_id} and
// POST /sessions/{session_id}/events (raw engine event ingest)
func (h *HTTPServer) handleSessionDetail(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/sessions/")
	if rest == "" {
		http.Error(w, "Session ID required", http.StatusBadRequest)
		return
	}

	if sid, ok := strings.CutSuffix(rest, "/events"); ok {
		h.handleIngest(w, r, sid)
		return
	}

	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sess, exists := h.registry.Get(rest)
	if !exists {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	detail := map[string]interface{}{
		"session":    sess.Manager.Info(),
		"aggregator": sess.AggregatorStats(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(detail)
}

// handleIngest accepts one raw recognition event for a session. The event
// is queued for the session's aggregator; a full queue answers 429.
func (h *HTTPServer) handleIngest(w http.ResponseWriter, r *http.Request, sid string) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if sid == "" {
		http.Error(w, "Session ID required", http.StatusBadRequest)
		return
	}

	var ev aggregator.RawEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		http.Error(w, fmt.Sprintf("Invalid event JSON: %v", err), http.StatusBadRequest)
		return
	}

	if ev.SegmentID == "" {
		http.Error(w, "segment_id required", http.StatusBadRequest)
		return
	}

	if _, exists := h.registry.Get(sid); !exists {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	if !h.registry.Submit(sid, ev) {
		http.Error(w, "Ingest queue full", http.StatusTooManyRequests)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

// handleConfig implements the /config endpoint
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Return sanitized configuration (remove sensitive data)
	sanitizedConfig := map[string]interface{}{
		"server": map[string]interface{}{
			"port":             h.config.Server.Port,
			"bind_address":     h.config.Server.BindAddress,
			"max_message_size": h.config.Server.MaxMessageSize,
		},
		"session": map[string]interface{}{
			"heartbeat_interval_ms": h.config.Session.HeartbeatIntervalMS,
			"heartbeat_timeout_ms":  h.config.Session.HeartbeatTimeoutMS,
			"resume_window_sec":     h.config.Session.ResumeWindowSec,
			"max_in_flight":         h.config.Session.MaxInFlight,
			"max_replay":            h.config.Session.MaxReplay,
			"ack_mode":              h.config.Session.AckMode,
		},
		"aggregator": map[string]interface{}{
			"max_partials":      h.config.Aggregator.MaxPartials,
			"max_recent_finals": h.config.Aggregator.MaxRecentFinals,
		},
		"translation": map[string]interface{}{
			"enabled":        h.config.Translation.Enabled,
			"endpoint":       h.config.Translation.Endpoint,
			"timeout":        h.config.Translation.Timeout,
			"max_retries":    h.config.Translation.MaxRetries,
			"max_concurrent": h.config.Translation.MaxConcurrent,
			"src_lang":       h.config.Translation.SrcLang,
			"tgt_lang":       h.config.Translation.TgtLang,
			// Note: API key is intentionally omitted for security
		},
		"logging": map[string]interface{}{
			"level":  h.config.Logging.Level,
			"format": h.config.Logging.Format,
			"output": h.config.Logging.Output,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sanitizedConfig)
}

// handleStats implements the /stats endpoint
func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	wsStats := h.wsServer.GetStatistics()
	uptime := time.Since(h.startTime)

	stats := map[string]interface{}{
		"uptime":    uptime.String(),
		"timestamp": time.Now().UTC(),
		"websocket": wsStats,
		"sessions": map[string]interface{}{
			"active_count": h.registry.Count(),
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	apiDoc := map[string]interface{}{
		"service": "LoquiLex Stream Service",
		"version": "1.0.0",
		"endpoints": map[string]interface{}{
			"GET /":                              "API documentation",
			"GET /health":                        "Service health check",
			"GET /sessions":                      "List all live sessions",
			"GET /sessions/{session_id}":         "Get detailed session information",
			"POST /sessions/{session_id}/events": "Submit a raw recognition event",
			"GET /config":                        "Get service configuration",
			"GET /stats":                         "Get service statistics",
			"GET /metrics":                       "Prometheus metrics",
		},
		"timestamp": time.Now().UTC(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(apiDoc)
}
