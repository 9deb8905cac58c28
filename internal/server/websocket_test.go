package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Guffawaffle/LoquiLex-sub000/internal/aggregator"
	"github.com/Guffawaffle/LoquiLex-sub000/internal/config"
	"github.com/Guffawaffle/LoquiLex-sub000/internal/protocol"
	"github.com/Guffawaffle/LoquiLex-sub000/internal/session"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStack(t *testing.T) (*session.Registry, *WSServer, *httptest.Server) {
	t.Helper()

	registry := session.NewRegistry(session.RegistryConfig{
		Manager: session.ManagerConfig{
			HeartbeatInterval: time.Minute,
			HeartbeatTimeout:  3 * time.Minute,
			ResumeWindow:      time.Hour,
			MaxInFlight:       64,
			MaxReplay:         512,
		},
		IngestQueueSize: 16,
		IdleTTL:         time.Hour,
	}, nil, testLogger(), nil)
	t.Cleanup(registry.Shutdown)

	ws := NewWSServer(config.ServerConfig{
		Port:            0,
		BindAddress:     "127.0.0.1",
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		WriteTimeout:    5,
		MaxMessageSize:  65536,
	}, registry, testLogger(), nil)

	srv := httptest.NewServer(http.HandlerFunc(ws.handleWS))
	t.Cleanup(srv.Close)

	return registry, ws, srv
}

func dial(t *testing.T, srv *httptest.Server, sid string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/" + sid
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) *protocol.Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage failed: %v", err)
	}
	env, err := protocol.Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	return env
}

func writeEnvelope(t *testing.T, conn *websocket.Conn, msgType string, payload interface{}, sid string) string {
	t.Helper()
	env, err := protocol.NewEnvelope(msgType, payload, protocol.WithSession(sid))
	if err != nil {
		t.Fatalf("NewEnvelope failed: %v", err)
	}
	data, err := env.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("WriteMessage failed: %v", err)
	}
	return env.ID
}

func TestHandshakeOverWebSocket(t *testing.T) {
	_, _, srv := newTestStack(t)

	conn := dial(t, srv, "sess-ws")

	welcome := readEnvelope(t, conn)
	if welcome.Type != protocol.TypeServerWelcome {
		t.Fatalf("First message type = %s, want server.welcome", welcome.Type)
	}
	if welcome.Seq != 0 {
		t.Errorf("Welcome seq = %d, want 0", welcome.Seq)
	}

	var wp protocol.WelcomePayload
	if err := json.Unmarshal(welcome.Data, &wp); err != nil {
		t.Fatalf("Failed to unmarshal welcome: %v", err)
	}
	if wp.Limits.MaxInFlight != 64 {
		t.Errorf("MaxInFlight = %d, want 64", wp.Limits.MaxInFlight)
	}

	helloID := writeEnvelope(t, conn, protocol.TypeClientHello,
		protocol.HelloPayload{Agent: "test/1.0", MaxInFlight: 8}, "sess-ws")

	ack := readEnvelope(t, conn)
	if ack.Type != protocol.TypeServerAck {
		t.Fatalf("Reply type = %s, want server.ack", ack.Type)
	}
	if ack.Corr != helloID {
		t.Errorf("Ack corr = %s, want %s", ack.Corr, helloID)
	}
}

func TestDomainEventsOverWebSocket(t *testing.T) {
	registry, _, srv := newTestStack(t)

	conn := dial(t, srv, "sess-ws")
	readEnvelope(t, conn) // welcome
	writeEnvelope(t, conn, protocol.TypeClientHello,
		protocol.HelloPayload{Agent: "test/1.0"}, "sess-ws")
	readEnvelope(t, conn) // server.ack

	if !registry.Submit("sess-ws", aggregator.RawEvent{
		StreamID: "st1", SegmentID: "seg1", Seq: 1, Text: "partial text", TS: 1.0,
	}) {
		t.Fatal("Submit failed")
	}

	env := readEnvelope(t, conn)
	if env.Type != protocol.TypeASRPartial {
		t.Fatalf("Event type = %s, want asr.partial", env.Type)
	}
	if env.Seq != 1 {
		t.Errorf("Event seq = %d, want 1", env.Seq)
	}
	if env.SID != "sess-ws" {
		t.Errorf("Event sid = %s, want sess-ws", env.SID)
	}

	var ev aggregator.Event
	if err := json.Unmarshal(env.Data, &ev); err != nil {
		t.Fatalf("Failed to unmarshal event: %v", err)
	}
	if ev.Text != "partial text" || ev.Stable {
		t.Errorf("Unexpected event: %+v", ev)
	}

	// Ack it so the window stays open.
	writeEnvelope(t, conn, protocol.TypeClientAck, protocol.AckPayload{AckSeq: 1}, "sess-ws")
}

func TestResumeOverWebSocket(t *testing.T) {
	registry, _, srv := newTestStack(t)

	conn1 := dial(t, srv, "sess-ws")
	readEnvelope(t, conn1) // welcome
	writeEnvelope(t, conn1, protocol.TypeClientHello,
		protocol.HelloPayload{Agent: "test/1.0"}, "sess-ws")
	readEnvelope(t, conn1) // server.ack

	for i := 1; i <= 3; i++ {
		registry.Submit("sess-ws", aggregator.RawEvent{
			SegmentID: "seg1", Seq: int64(i), Text: "t", TS: float64(i),
		})
		readEnvelope(t, conn1)
	}
	conn1.Close()

	conn2 := dial(t, srv, "sess-ws")
	readEnvelope(t, conn2) // fresh welcome

	resumeID := writeEnvelope(t, conn2, protocol.TypeSessionResume,
		protocol.ResumePayload{SessionID: "sess-ws", LastSeq: 1, Epoch: 1}, "sess-ws")

	snap := readEnvelope(t, conn2)
	if snap.Type != protocol.TypeSessionSnapshot {
		t.Fatalf("First resume reply = %s, want session.snapshot", snap.Type)
	}
	if snap.Corr != resumeID {
		t.Errorf("Snapshot corr = %s, want %s", snap.Corr, resumeID)
	}

	// Replay of seqs 2 and 3 in order.
	for want := int64(2); want <= 3; want++ {
		env := readEnvelope(t, conn2)
		if env.Type != protocol.TypeASRPartial || env.Seq != want {
			t.Errorf("Replayed env = %s seq %d, want asr.partial seq %d", env.Type, env.Seq, want)
		}
	}

	fin := readEnvelope(t, conn2)
	if fin.Type != protocol.TypeSessionAck {
		t.Fatalf("Final resume reply = %s, want session.ack", fin.Type)
	}
	var ack protocol.SessionAckPayload
	if err := json.Unmarshal(fin.Data, &ack); err != nil {
		t.Fatalf("Failed to unmarshal session.ack: %v", err)
	}
	if ack.Status != "resumed" {
		t.Errorf("Status = %s, want resumed", ack.Status)
	}
}

func TestProtocolErrorOverWebSocket(t *testing.T) {
	_, ws, srv := newTestStack(t)

	conn := dial(t, srv, "sess-ws")
	readEnvelope(t, conn) // welcome

	if err := conn.WriteMessage(websocket.TextMessage, []byte("}{garbage")); err != nil {
		t.Fatalf("WriteMessage failed: %v", err)
	}

	env := readEnvelope(t, conn)
	if env.Type != protocol.TypeServerError {
		t.Fatalf("Reply type = %s, want server.error", env.Type)
	}
	var payload protocol.ErrorPayload
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		t.Fatalf("Failed to unmarshal error: %v", err)
	}
	if payload.Code != protocol.ErrCodeInvalidMessage {
		t.Errorf("Code = %s, want invalid_message", payload.Code)
	}

	// The rejected frame shows up in the server's decode error counter.
	deadline := time.Now().Add(2 * time.Second)
	for ws.GetStatistics().DecodeErrors != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("DecodeErrors = %d, want 1", ws.GetStatistics().DecodeErrors)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestMissingSessionID(t *testing.T) {
	_, _, srv := newTestStack(t)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("Expected dial failure without session id")
	}
	if resp != nil && resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Status = %d, want 400", resp.StatusCode)
	}
}

func TestStatisticsTracking(t *testing.T) {
	registry, _, srv := newTestStack(t)

	conn := dial(t, srv, "sess-ws")
	readEnvelope(t, conn) // welcome
	writeEnvelope(t, conn, protocol.TypeClientHello,
		protocol.HelloPayload{Agent: "test/1.0"}, "sess-ws")
	readEnvelope(t, conn) // server.ack

	if registry.Count() != 1 {
		t.Errorf("Registry count = %d, want 1", registry.Count())
	}

	sess, ok := registry.Get("sess-ws")
	if !ok {
		t.Fatal("Session not found")
	}
	info := sess.Manager.Info()
	if info.Connections != 1 {
		t.Errorf("Connections = %d, want 1", info.Connections)
	}
	if info.Epoch != 1 {
		t.Errorf("Epoch = %d, want 1", info.Epoch)
	}
}
