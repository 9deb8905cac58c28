package protocol

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestDecodeClientPayload(t *testing.T) {
	tests := []struct {
		name    string
		msgType string
		data    string
		wantErr bool
	}{
		{
			name:    "valid hello",
			msgType: TypeClientHello,
			data:    `{"agent":"web/1.0","ack_mode":"cumulative","max_in_flight":32}`,
		},
		{
			name:    "hello with resume",
			msgType: TypeClientHello,
			data:    `{"agent":"web/1.0","resume":{"session_id":"s1","last_seq":10,"epoch":1}}`,
		},
		{
			name:    "hello invalid ack mode",
			msgType: TypeClientHello,
			data:    `{"agent":"web/1.0","ack_mode":"batched"}`,
			wantErr: true,
		},
		{
			name:    "hello negative max_in_flight",
			msgType: TypeClientHello,
			data:    `{"max_in_flight":-1}`,
			wantErr: true,
		},
		{
			name:    "hello resume without session id",
			msgType: TypeClientHello,
			data:    `{"resume":{"last_seq":10}}`,
			wantErr: true,
		},
		{
			name:    "valid ack",
			msgType: TypeClientAck,
			data:    `{"ack_seq":5}`,
		},
		{
			name:    "negative ack",
			msgType: TypeClientAck,
			data:    `{"ack_seq":-2}`,
			wantErr: true,
		},
		{
			name:    "valid heartbeat",
			msgType: TypeClientHB,
			data:    `{"ts":123.5}`,
		},
		{
			name:    "heartbeat empty body",
			msgType: TypeClientHB,
			data:    ``,
		},
		{
			name:    "valid flow",
			msgType: TypeClientFlow,
			data:    `{"max_in_flight":16,"ack_mode":"per_message"}`,
		},
		{
			name:    "flow invalid ack mode",
			msgType: TypeClientFlow,
			data:    `{"ack_mode":"nope"}`,
			wantErr: true,
		},
		{
			name:    "valid resume",
			msgType: TypeSessionResume,
			data:    `{"session_id":"s1","last_seq":7,"epoch":2}`,
		},
		{
			name:    "resume missing session id",
			msgType: TypeSessionResume,
			data:    `{"last_seq":7}`,
			wantErr: true,
		},
		{
			name:    "resume negative last_seq",
			msgType: TypeSessionResume,
			data:    `{"session_id":"s1","last_seq":-1}`,
			wantErr: true,
		},
		{
			name:    "malformed json",
			msgType: TypeClientAck,
			data:    `{"ack_seq":`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeClientPayload(tt.msgType, json.RawMessage(tt.data))
			if (err != nil) != tt.wantErr {
				t.Errorf("DecodeClientPayload() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDecodeClientPayloadUnknownType(t *testing.T) {
	// Server-to-client types must be rejected as unknown client messages.
	for _, msgType := range []string{TypeServerWelcome, TypeASRPartial, "totally.made.up"} {
		_, err := DecodeClientPayload(msgType, json.RawMessage(`{}`))
		if !errors.Is(err, ErrUnknownType) {
			t.Errorf("Expected ErrUnknownType for %s, got %v", msgType, err)
		}
	}
}

func TestDecodeClientPayloadConcreteTypes(t *testing.T) {
	p, err := DecodeClientPayload(TypeClientHello,
		json.RawMessage(`{"agent":"cli/2.0","max_in_flight":8}`))
	if err != nil {
		t.Fatalf("DecodeClientPayload failed: %v", err)
	}

	hello, ok := p.(*HelloPayload)
	if !ok {
		t.Fatalf("Expected *HelloPayload, got %T", p)
	}
	if hello.Agent != "cli/2.0" || hello.MaxInFlight != 8 {
		t.Errorf("Unexpected payload: %+v", hello)
	}

	p, err = DecodeClientPayload(TypeClientAck, json.RawMessage(`{"ack_seq":11}`))
	if err != nil {
		t.Fatalf("DecodeClientPayload failed: %v", err)
	}
	ack, ok := p.(*AckPayload)
	if !ok {
		t.Fatalf("Expected *AckPayload, got %T", p)
	}
	if ack.AckSeq != 11 {
		t.Errorf("Expected ack_seq 11, got %d", ack.AckSeq)
	}
}
