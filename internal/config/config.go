package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Guffawaffle/LoquiLex-sub000/internal/protocol"
)

// Config represents the complete service configuration
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	HTTP        HTTPConfig        `yaml:"http"`
	Session     SessionConfig     `yaml:"session"`
	Aggregator  AggregatorConfig  `yaml:"aggregator"`
	Translation TranslationConfig `yaml:"translation"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// ServerConfig contains WebSocket server configuration
type ServerConfig struct {
	Port            int    `yaml:"port"`
	BindAddress     string `yaml:"bind_address"`
	ReadBufferSize  int    `yaml:"read_buffer_size"`
	WriteBufferSize int    `yaml:"write_buffer_size"`
	ReadTimeout     int    `yaml:"read_timeout"`  // seconds, 0 disables
	WriteTimeout    int    `yaml:"write_timeout"` // seconds
	MaxMessageSize  int64  `yaml:"max_message_size"`
}

// HTTPConfig contains HTTP API server configuration
type HTTPConfig struct {
	Port    int    `yaml:"port"`
	Address string `yaml:"address"`
	Enabled bool   `yaml:"enabled"`
}

// SessionConfig contains session protocol parameters
type SessionConfig struct {
	HeartbeatIntervalMS int    `yaml:"heartbeat_interval_ms"`
	HeartbeatTimeoutMS  int    `yaml:"heartbeat_timeout_ms"`
	ResumeWindowSec     int    `yaml:"resume_window_sec"`
	MaxInFlight         int    `yaml:"max_in_flight"`
	MaxReplay           int    `yaml:"max_replay"`
	AckMode             string `yaml:"ack_mode"`
	IdleTTLSec          int    `yaml:"idle_ttl_sec"`
	IngestQueueSize     int    `yaml:"ingest_queue_size"`
}

// AggregatorConfig bounds the transcription aggregator
type AggregatorConfig struct {
	MaxPartials     int `yaml:"max_partials"`
	MaxRecentFinals int `yaml:"max_recent_finals"`
}

// TranslationConfig contains translation API configuration
type TranslationConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Endpoint      string `yaml:"endpoint"`
	APIKey        string `yaml:"api_key"`
	Timeout       int    `yaml:"timeout"` // seconds
	MaxRetries    int    `yaml:"max_retries"`
	MaxConcurrent int    `yaml:"max_concurrent"`
	SrcLang       string `yaml:"src_lang"`
	TgtLang       string `yaml:"tgt_lang"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Session.Validate(); err != nil {
		return fmt.Errorf("session config: %w", err)
	}

	if err := c.Aggregator.Validate(); err != nil {
		return fmt.Errorf("aggregator config: %w", err)
	}

	if err := c.Translation.Validate(); err != nil {
		return fmt.Errorf("translation config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates server configuration
func (s *ServerConfig) Validate() error {
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", s.Port)
	}

	if s.BindAddress == "" {
		return fmt.Errorf("bind_address cannot be empty")
	}

	if s.ReadBufferSize < 1024 {
		return fmt.Errorf("read_buffer_size must be at least 1024 bytes, got %d", s.ReadBufferSize)
	}

	if s.WriteBufferSize < 1024 {
		return fmt.Errorf("write_buffer_size must be at least 1024 bytes, got %d", s.WriteBufferSize)
	}

	if s.ReadTimeout < 0 {
		return fmt.Errorf("read_timeout cannot be negative, got %d", s.ReadTimeout)
	}

	if s.WriteTimeout < 1 {
		return fmt.Errorf("write_timeout must be at least 1 second, got %d", s.WriteTimeout)
	}

	if s.MaxMessageSize < 1024 {
		return fmt.Errorf("max_message_size must be at least 1024 bytes, got %d", s.MaxMessageSize)
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
		}

		if h.Address == "" {
			return fmt.Errorf("http address cannot be empty when HTTP is enabled")
		}
	}

	return nil
}

// Validate validates session protocol configuration
func (s *SessionConfig) Validate() error {
	if s.HeartbeatIntervalMS < 100 {
		return fmt.Errorf("heartbeat_interval_ms must be at least 100, got %d", s.HeartbeatIntervalMS)
	}

	if s.HeartbeatTimeoutMS <= s.HeartbeatIntervalMS {
		return fmt.Errorf("heartbeat_timeout_ms (%d) must be greater than heartbeat_interval_ms (%d)",
			s.HeartbeatTimeoutMS, s.HeartbeatIntervalMS)
	}

	if s.ResumeWindowSec < 1 {
		return fmt.Errorf("resume_window_sec must be at least 1, got %d", s.ResumeWindowSec)
	}

	if s.MaxInFlight < 1 {
		return fmt.Errorf("max_in_flight must be at least 1, got %d", s.MaxInFlight)
	}

	if s.MaxReplay < 1 {
		return fmt.Errorf("max_replay must be at least 1, got %d", s.MaxReplay)
	}

	if !protocol.IsValidAckMode(s.AckMode) {
		return fmt.Errorf("ack_mode must be 'cumulative' or 'per_message', got '%s'", s.AckMode)
	}

	if s.IdleTTLSec < 1 {
		return fmt.Errorf("idle_ttl_sec must be at least 1, got %d", s.IdleTTLSec)
	}

	if s.IngestQueueSize < 1 {
		return fmt.Errorf("ingest_queue_size must be at least 1, got %d", s.IngestQueueSize)
	}

	return nil
}

// Validate validates aggregator configuration
func (a *AggregatorConfig) Validate() error {
	if a.MaxPartials < 1 {
		return fmt.Errorf("max_partials must be at least 1, got %d", a.MaxPartials)
	}

	if a.MaxRecentFinals < 1 {
		return fmt.Errorf("max_recent_finals must be at least 1, got %d", a.MaxRecentFinals)
	}

	return nil
}

// Validate validates translation configuration
func (t *TranslationConfig) Validate() error {
	if !t.Enabled {
		return nil
	}

	if t.Endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty when translation is enabled")
	}

	if t.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", t.Timeout)
	}

	if t.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative, got %d", t.MaxRetries)
	}

	if t.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1, got %d", t.MaxConcurrent)
	}

	if t.TgtLang == "" {
		return fmt.Errorf("tgt_lang cannot be empty when translation is enabled")
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	return nil
}

// GetHeartbeatInterval returns the heartbeat interval as a time.Duration
func (s *SessionConfig) GetHeartbeatInterval() time.Duration {
	return time.Duration(s.HeartbeatIntervalMS) * time.Millisecond
}

// GetHeartbeatTimeout returns the heartbeat timeout as a time.Duration
func (s *SessionConfig) GetHeartbeatTimeout() time.Duration {
	return time.Duration(s.HeartbeatTimeoutMS) * time.Millisecond
}

// GetResumeWindow returns the resume window as a time.Duration
func (s *SessionConfig) GetResumeWindow() time.Duration {
	return time.Duration(s.ResumeWindowSec) * time.Second
}

// GetIdleTTL returns the idle session TTL as a time.Duration
func (s *SessionConfig) GetIdleTTL() time.Duration {
	return time.Duration(s.IdleTTLSec) * time.Second
}

// GetReadTimeout returns the WebSocket read idle timeout as a time.Duration
func (s *ServerConfig) GetReadTimeout() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Second
}

// GetWriteTimeout returns the WebSocket write timeout as a time.Duration
func (s *ServerConfig) GetWriteTimeout() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

// GetTimeoutDuration returns the translation timeout as a time.Duration
func (t *TranslationConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(t.Timeout) * time.Second
}
