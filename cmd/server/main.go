package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Guffawaffle/LoquiLex-sub000/internal/aggregator"
	"github.com/Guffawaffle/LoquiLex-sub000/internal/config"
	"github.com/Guffawaffle/LoquiLex-sub000/internal/metrics"
	"github.com/Guffawaffle/LoquiLex-sub000/internal/server"
	"github.com/Guffawaffle/LoquiLex-sub000/internal/session"
	"github.com/Guffawaffle/LoquiLex-sub000/internal/translate"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "loquilex-stream-service"
	serviceVersion    = "1.0.0"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger based on configuration
	logger := initLogger(cfg.Logging)

	// Log service startup
	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	// Log configuration summary (without sensitive data)
	logger.Info("Configuration loaded",
		slog.Int("ws_port", cfg.Server.Port),
		slog.String("bind_address", cfg.Server.BindAddress),
		slog.Int("heartbeat_interval_ms", cfg.Session.HeartbeatIntervalMS),
		slog.Int("resume_window_sec", cfg.Session.ResumeWindowSec),
		slog.Int("max_in_flight", cfg.Session.MaxInFlight),
		slog.String("ack_mode", cfg.Session.AckMode),
		slog.Bool("translation_enabled", cfg.Translation.Enabled),
		slog.String("log_level", cfg.Logging.Level),
	)

	// Create cancellable context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Prometheus metrics
	appMetrics := metrics.NewMetrics()
	logger.Info("Prometheus metrics initialized")

	// Initialize translation client (if enabled)
	var translator session.Translator
	var translateClient *translate.Client
	if cfg.Translation.Enabled {
		translateClient, err = translate.NewClient(translate.Config{
			Endpoint:      cfg.Translation.Endpoint,
			APIKey:        cfg.Translation.APIKey,
			Timeout:       cfg.Translation.GetTimeoutDuration(),
			MaxRetries:    cfg.Translation.MaxRetries,
			MaxConcurrent: cfg.Translation.MaxConcurrent,
			SrcLang:       cfg.Translation.SrcLang,
			TgtLang:       cfg.Translation.TgtLang,
		}, appMetrics)
		if err != nil {
			logger.Error("Failed to create translation client", slog.String("error", err.Error()))
			os.Exit(1)
		}
		translator = translateClient
		logger.Info("Translation client initialized",
			slog.String("endpoint", cfg.Translation.Endpoint),
			slog.String("src_lang", cfg.Translation.SrcLang),
			slog.String("tgt_lang", cfg.Translation.TgtLang),
		)
	}

	// Initialize session registry
	registry := session.NewRegistry(session.RegistryConfig{
		Manager: session.ManagerConfig{
			HeartbeatInterval: cfg.Session.GetHeartbeatInterval(),
			HeartbeatTimeout:  cfg.Session.GetHeartbeatTimeout(),
			ResumeWindow:      cfg.Session.GetResumeWindow(),
			MaxInFlight:       cfg.Session.MaxInFlight,
			MaxReplay:         cfg.Session.MaxReplay,
			AckMode:           cfg.Session.AckMode,
		},
		Aggregator: aggregator.Config{
			MaxPartials:     cfg.Aggregator.MaxPartials,
			MaxRecentFinals: cfg.Aggregator.MaxRecentFinals,
		},
		IngestQueueSize: cfg.Session.IngestQueueSize,
		IdleTTL:         cfg.Session.GetIdleTTL(),
	}, translator, logger, appMetrics)
	logger.Info("Session registry initialized",
		slog.Duration("idle_ttl", cfg.Session.GetIdleTTL()),
	)

	// Initialize WebSocket server
	wsServer := server.NewWSServer(cfg.Server, registry, logger, appMetrics)
	logger.Info("WebSocket server initialized")

	// Initialize HTTP API server (if enabled)
	var httpServer *server.HTTPServer
	if cfg.HTTP.Enabled {
		httpServer = server.NewHTTPServer(cfg.HTTP, logger, cfg, registry, wsServer, appMetrics)
		logger.Info("HTTP API server initialized",
			slog.String("address", fmt.Sprintf("%s:%d", cfg.HTTP.Address, cfg.HTTP.Port)),
		)
	}

	// Start WebSocket server
	if err := wsServer.Start(); err != nil {
		logger.Error("Failed to start WebSocket server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start HTTP server (if enabled)
	if httpServer != nil {
		if err := httpServer.Start(); err != nil {
			logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Service started successfully, waiting for signals...",
		slog.String("ws_address", fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.Port)),
	)

	// Wait for shutdown signal
	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
	case <-ctx.Done():
		logger.Info("Context cancelled, shutting down")
	}

	logger.Info("Starting graceful shutdown...")

	// Stop HTTP server first (stop accepting new requests)
	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := httpServer.Stop(shutdownCtx); err != nil {
			logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
		}
	}

	// Stop WebSocket server (stop accepting new connections)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := wsServer.Stop(shutdownCtx); err != nil {
		logger.Error("Error stopping WebSocket server", slog.String("error", err.Error()))
	}

	// Tear down all sessions and stop background routines
	registry.Shutdown()

	// Drain in-flight translation requests
	if translateClient != nil {
		translateClient.Close()
	}

	// Get final statistics
	stats := wsServer.GetStatistics()
	logger.Info("Final server statistics",
		slog.Uint64("frames_received", stats.FramesReceived),
		slog.Uint64("conns_opened", stats.ConnsOpened),
		slog.Uint64("conns_closed", stats.ConnsClosed),
	)

	logger.Info("Service stopped")
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	// Parse log level
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo // default fallback
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug, // Add source info for debug level
	}

	// Determine output destination
	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		// Assume it's a file path
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	// Create handler based on format
	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
