package protocol

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// Version is the envelope schema version carried in the "v" field.
const Version = 1

// Envelope message types
const (
	// Client → server
	TypeClientHello   = "client.hello"
	TypeClientAck     = "client.ack"
	TypeClientHB      = "client.hb"
	TypeClientFlow    = "client.flow"
	TypeSessionResume = "session.resume"

	// Server → client
	TypeServerWelcome   = "server.welcome"
	TypeServerError     = "server.error"
	TypeServerHB        = "server.hb"
	TypeServerAck       = "server.ack"
	TypeASRPartial      = "asr.partial"
	TypeASRFinal        = "asr.final"
	TypeMTPartial       = "mt.partial"
	TypeMTFinal         = "mt.final"
	TypeStatus          = "status"
	TypeSessionSnapshot = "session.snapshot"
	TypeSessionNew      = "session.new"
	TypeSessionAck      = "session.ack"
	TypeSystemHeartbeat = "system.heartbeat"
	TypeQueueDrop       = "queue.drop"
	TypeSystemMetrics   = "system.metrics"
)

// Protocol error codes carried in server.error payloads
const (
	ErrCodeInvalidMessage = "invalid_message"
	ErrCodeInvalidAck     = "invalid_ack"
	ErrCodeInvalidType    = "invalid_type"
)

// Resume rejection reasons carried in session.new payloads
const (
	ReasonSessionIDMismatch = "session_id_mismatch"
	ReasonEpochMismatch     = "epoch_mismatch"
	ReasonResumeExpired     = "resume_expired"
)

// Acknowledgement modes negotiated in client.hello
const (
	AckModeCumulative = "cumulative"
	AckModePerMessage = "per_message"
)

// knownTypes is the set of valid envelope types on either direction.
var knownTypes = map[string]bool{
	TypeClientHello: true, TypeClientAck: true, TypeClientHB: true,
	TypeClientFlow: true, TypeSessionResume: true,
	TypeServerWelcome: true, TypeServerError: true, TypeServerHB: true,
	TypeServerAck: true, TypeASRPartial: true, TypeASRFinal: true,
	TypeMTPartial: true, TypeMTFinal: true, TypeStatus: true,
	TypeSessionSnapshot: true, TypeSessionNew: true, TypeSessionAck: true,
	TypeSystemHeartbeat: true, TypeQueueDrop: true, TypeSystemMetrics: true,
}

// corrAllowed lists the reply/ack/final-style types permitted to carry a
// correlation id. Any other type with corr set fails validation.
var corrAllowed = map[string]bool{
	TypeServerError:     true,
	TypeServerAck:       true,
	TypeSessionAck:      true,
	TypeSessionNew:      true,
	TypeSessionSnapshot: true,
	TypeClientAck:       true,
	TypeASRFinal:        true,
	TypeMTFinal:         true,
}

// monoStart anchors the process-local monotonic timebase used in t_mono.
var monoStart = time.Now()

// MonoNow returns seconds elapsed on the process monotonic clock.
func MonoNow() float64 {
	return time.Since(monoStart).Seconds()
}

// WallNow returns the current wall clock as Unix seconds.
func WallNow() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Second)
}

// Envelope is the versioned wire message wrapping a typed payload.
// One JSON-encoded envelope is sent per WebSocket text frame.
// Envelopes are immutable once constructed.
type Envelope struct {
	V     int             `json:"v"`
	Type  string          `json:"t"`
	SID   string          `json:"sid,omitempty"`
	ID    string          `json:"id,omitempty"`
	Seq   int64           `json:"seq"`
	Corr  string          `json:"corr,omitempty"`
	TWall float64         `json:"t_wall"`
	TMono float64         `json:"t_mono"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Option customizes envelope construction.
type Option func(*Envelope)

// WithSession sets the session id. Envelopes with a session id get an
// auto-generated message id.
func WithSession(sid string) Option {
	return func(e *Envelope) { e.SID = sid }
}

// WithSeq sets the delivery sequence number.
func WithSeq(seq int64) Option {
	return func(e *Envelope) { e.Seq = seq }
}

// WithCorr sets the correlation id referencing the message being answered.
func WithCorr(corr string) Option {
	return func(e *Envelope) { e.Corr = corr }
}

// NewEnvelope constructs a validated envelope of the given type wrapping
// payload. The payload is marshalled to JSON; timestamps are taken from the
// wall and monotonic clocks at construction time.
func NewEnvelope(msgType string, payload interface{}, opts ...Option) (*Envelope, error) {
	env := &Envelope{
		V:     Version,
		Type:  msgType,
		TWall: WallNow(),
		TMono: MonoNow(),
	}

	for _, opt := range opts {
		opt(env)
	}

	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s payload: %w", msgType, err)
		}
		env.Data = data
	}

	if env.SID != "" && env.ID == "" {
		env.ID = newMessageID()
	}

	if err := env.Validate(); err != nil {
		return nil, err
	}

	return env, nil
}

// Validate checks the envelope invariants: known version and type,
// non-negative sequence number, and corr only on reply/ack/final types.
func (e *Envelope) Validate() error {
	if e.V != Version {
		return fmt.Errorf("unsupported envelope version: %d (expected %d)", e.V, Version)
	}

	if !knownTypes[e.Type] {
		return fmt.Errorf("unknown envelope type: %q", e.Type)
	}

	if e.Seq < 0 {
		return fmt.Errorf("negative sequence number: %d", e.Seq)
	}

	if e.Corr != "" && !corrAllowed[e.Type] {
		return fmt.Errorf("corr not permitted on type %q", e.Type)
	}

	return nil
}

// Encode serializes the envelope to its JSON wire form.
func (e *Envelope) Encode() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to encode envelope: %w", err)
	}
	return data, nil
}

// Decode parses and validates an envelope from its JSON wire form.
func Decode(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("malformed envelope JSON: %w", err)
	}

	if err := env.Validate(); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	return &env, nil
}

// IsValidType checks whether t is a known envelope type.
func IsValidType(t string) bool {
	return knownTypes[t]
}

// IsValidAckMode checks whether mode is a recognized acknowledgement mode.
func IsValidAckMode(mode string) bool {
	return mode == AckModeCumulative || mode == AckModePerMessage
}

// newMessageID generates a random 16-hex-char message id.
func newMessageID() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		// Fall back to a time-derived id; uniqueness within a session is
		// all the protocol requires.
		return fmt.Sprintf("%016x", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf)
}

// String returns a human-readable representation of the envelope.
func (e *Envelope) String() string {
	return fmt.Sprintf("Envelope{Type:%s, SID:%s, Seq:%d, Corr:%q, DataLen:%d}",
		e.Type, e.SID, e.Seq, e.Corr, len(e.Data))
}
