package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnknownType is returned by DecodeClientPayload for envelope types that
// are not valid client → server messages. Callers map it to an
// invalid_type protocol error rather than invalid_message.
var ErrUnknownType = errors.New("unknown client message type")

// HelloPayload is the client.hello handshake body.
type HelloPayload struct {
	Agent       string         `json:"agent"`
	Accept      []string       `json:"accept,omitempty"`
	AckMode     string         `json:"ack_mode,omitempty"`
	MaxInFlight int            `json:"max_in_flight,omitempty"`
	Resume      *ResumePayload `json:"resume,omitempty"`
}

// AckPayload is the client.ack body acknowledging delivered envelopes.
type AckPayload struct {
	AckSeq int64 `json:"ack_seq"`
}

// ClientHeartbeatPayload is the client.hb body.
type ClientHeartbeatPayload struct {
	TS float64 `json:"ts,omitempty"`
}

// FlowPayload is the client.flow body adjusting flow-control settings
// mid-session.
type FlowPayload struct {
	MaxInFlight int    `json:"max_in_flight,omitempty"`
	AckMode     string `json:"ack_mode,omitempty"`
}

// ResumePayload is the session.resume body (also embeddable in
// client.hello) requesting replay after a reconnect.
type ResumePayload struct {
	SessionID string `json:"session_id"`
	LastSeq   int64  `json:"last_seq"`
	Epoch     int    `json:"epoch"`
}

// HBConfig describes the heartbeat cadence announced in server.welcome.
type HBConfig struct {
	IntervalMS int `json:"interval_ms"`
	TimeoutMS  int `json:"timeout_ms"`
}

// Limits describes server-imposed flow-control limits announced in
// server.welcome.
type Limits struct {
	MaxInFlight int `json:"max_in_flight"`
}

// WelcomePayload is the server.welcome body sent at seq 0 on connect.
type WelcomePayload struct {
	HB              HBConfig `json:"hb"`
	ResumeWindowSec float64  `json:"resume_window_sec"`
	Limits          Limits   `json:"limits"`
}

// ErrorPayload is the server.error body reporting a protocol error.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

// ServerHeartbeatPayload is the server.hb body.
type ServerHeartbeatPayload struct {
	TS   float64 `json:"ts"`
	QOut int     `json:"q_out"`
	QIn  int     `json:"q_in"`
}

// SessionNewPayload is the session.new body instructing the client to start
// a fresh session instead of resuming.
type SessionNewPayload struct {
	Reason string `json:"reason"`
}

// SessionAckPayload is the session.ack body completing a resume exchange.
type SessionAckPayload struct {
	Status string `json:"status"`
}

// QueueDropPayload is the queue.drop body surfacing bounded-resource drops.
type QueueDropPayload struct {
	FlowDrops   uint64 `json:"flow_drops"`
	ReplayDrops uint64 `json:"replay_drops"`
	IngestDrops uint64 `json:"ingest_drops"`
}

// DecodeClientPayload decodes the data body of a client → server envelope
// into its concrete payload type, discriminated by the envelope type.
// Returns ErrUnknownType for types a client may not send.
func DecodeClientPayload(msgType string, data json.RawMessage) (interface{}, error) {
	if len(data) == 0 {
		data = json.RawMessage("{}")
	}

	switch msgType {
	case TypeClientHello:
		var p HelloPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("malformed %s payload: %w", msgType, err)
		}
		if p.AckMode != "" && !IsValidAckMode(p.AckMode) {
			return nil, fmt.Errorf("invalid ack_mode: %q", p.AckMode)
		}
		if p.MaxInFlight < 0 {
			return nil, fmt.Errorf("negative max_in_flight: %d", p.MaxInFlight)
		}
		if p.Resume != nil && p.Resume.SessionID == "" {
			return nil, fmt.Errorf("resume request missing session_id")
		}
		return &p, nil

	case TypeClientAck:
		var p AckPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("malformed %s payload: %w", msgType, err)
		}
		if p.AckSeq < 0 {
			return nil, fmt.Errorf("negative ack_seq: %d", p.AckSeq)
		}
		return &p, nil

	case TypeClientHB:
		var p ClientHeartbeatPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("malformed %s payload: %w", msgType, err)
		}
		return &p, nil

	case TypeClientFlow:
		var p FlowPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("malformed %s payload: %w", msgType, err)
		}
		if p.AckMode != "" && !IsValidAckMode(p.AckMode) {
			return nil, fmt.Errorf("invalid ack_mode: %q", p.AckMode)
		}
		if p.MaxInFlight < 0 {
			return nil, fmt.Errorf("negative max_in_flight: %d", p.MaxInFlight)
		}
		return &p, nil

	case TypeSessionResume:
		var p ResumePayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("malformed %s payload: %w", msgType, err)
		}
		if p.SessionID == "" {
			return nil, fmt.Errorf("resume request missing session_id")
		}
		if p.LastSeq < 0 {
			return nil, fmt.Errorf("negative last_seq: %d", p.LastSeq)
		}
		return &p, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, msgType)
	}
}
