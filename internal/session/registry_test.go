package session

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/Guffawaffle/LoquiLex-sub000/internal/aggregator"
	"github.com/Guffawaffle/LoquiLex-sub000/internal/protocol"
)

// stubTranslator answers immediately with a marked-up translation.
type stubTranslator struct{}

func (stubTranslator) Translate(_ context.Context, text string) (string, error) {
	return "[fr] " + text, nil
}

func (stubTranslator) Status() map[string]interface{} {
	return map[string]interface{}{"enabled": true}
}

func newTestRegistry(t *testing.T, translator Translator) *Registry {
	t.Helper()
	r := NewRegistry(RegistryConfig{
		Manager: ManagerConfig{
			HeartbeatInterval: time.Minute,
			HeartbeatTimeout:  3 * time.Minute,
			ResumeWindow:      time.Hour,
			MaxInFlight:       64,
			MaxReplay:         512,
		},
		IngestQueueSize: 16,
		IdleTTL:         time.Hour,
	}, translator, testLogger(), nil)
	t.Cleanup(r.Shutdown)
	return r
}

// waitFor polls until the condition holds or the deadline passes.
func waitFor(t *testing.T, d time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("Condition never held")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestGetOrCreateReusesLiveSession(t *testing.T) {
	r := newTestRegistry(t, nil)

	s1 := r.GetOrCreate("sess-a")
	s2 := r.GetOrCreate("sess-a")
	if s1 != s2 {
		t.Error("Expected the same session for the same id")
	}
	if s1.Epoch != 1 {
		t.Errorf("Epoch = %d, want 1", s1.Epoch)
	}
	if r.Count() != 1 {
		t.Errorf("Count = %d, want 1", r.Count())
	}
}

func TestEpochIncrementsAcrossGenerations(t *testing.T) {
	r := newTestRegistry(t, nil)

	s1 := r.GetOrCreate("sess-a")
	s1.Manager.Close()

	s2 := r.GetOrCreate("sess-a")
	if s2.Epoch != 2 {
		t.Errorf("Epoch = %d after recreation, want 2", s2.Epoch)
	}
	if s1 == s2 {
		t.Error("Expected a fresh session after close")
	}
}

func TestSubmitFlowsThroughAggregator(t *testing.T) {
	r := newTestRegistry(t, nil)

	s := r.GetOrCreate("sess-a")
	conn := &fakeConn{}
	activate(t, s.Manager, conn)

	if !r.Submit("sess-a", aggregator.RawEvent{
		StreamID: "st1", SegmentID: "seg1", Seq: 1, Text: "hel", TS: 1.0,
	}) {
		t.Fatal("Submit returned false")
	}
	if !r.Submit("sess-a", aggregator.RawEvent{
		StreamID: "st1", SegmentID: "seg1", Seq: 2, Text: "hello", TS: 1.5, Final: true,
	}) {
		t.Fatal("Submit returned false")
	}

	waitFor(t, 2*time.Second, func() bool {
		return len(conn.byType(protocol.TypeASRPartial)) == 1 &&
			len(conn.byType(protocol.TypeASRFinal)) == 1
	})

	partial := conn.byType(protocol.TypeASRPartial)[0]
	if partial.Seq != 1 {
		t.Errorf("Partial envelope seq = %d, want 1", partial.Seq)
	}

	var ev aggregator.Event
	if err := json.Unmarshal(partial.Data, &ev); err != nil {
		t.Fatalf("Failed to unmarshal event: %v", err)
	}
	if ev.Text != "hel" || ev.Stable {
		t.Errorf("Unexpected partial event: %+v", ev)
	}

	final := conn.byType(protocol.TypeASRFinal)[0]
	if final.Seq != 2 {
		t.Errorf("Final envelope seq = %d, want 2", final.Seq)
	}
}

func TestSubmitUnknownSession(t *testing.T) {
	r := newTestRegistry(t, nil)
	if r.Submit("nope", aggregator.RawEvent{SegmentID: "s"}) {
		t.Error("Submit to unknown session should return false")
	}
}

func TestFinalTriggersTranslation(t *testing.T) {
	r := newTestRegistry(t, stubTranslator{})

	s := r.GetOrCreate("sess-a")
	conn := &fakeConn{}
	activate(t, s.Manager, conn)

	r.Submit("sess-a", aggregator.RawEvent{
		SegmentID: "seg1", Text: "hello", TS: 1, Final: true,
	})

	waitFor(t, 2*time.Second, func() bool {
		return len(conn.byType(protocol.TypeMTFinal)) == 1
	})

	mt := conn.byType(protocol.TypeMTFinal)[0]
	var payload mtFinalPayload
	if err := json.Unmarshal(mt.Data, &payload); err != nil {
		t.Fatalf("Failed to unmarshal mt.final: %v", err)
	}
	if payload.Text != "[fr] hello" || payload.SrcText != "hello" {
		t.Errorf("Unexpected mt.final payload: %+v", payload)
	}
	if payload.SegmentID != "seg1" {
		t.Errorf("SegmentID = %s, want seg1", payload.SegmentID)
	}
}

func TestSnapshotCollaborator(t *testing.T) {
	r := newTestRegistry(t, stubTranslator{})

	s := r.GetOrCreate("sess-a")
	conn := &fakeConn{}
	activate(t, s.Manager, conn)

	r.Submit("sess-a", aggregator.RawEvent{SegmentID: "seg1", Text: "done", TS: 1, Final: true})
	waitFor(t, 2*time.Second, func() bool {
		return len(conn.byType(protocol.TypeASRFinal)) == 1
	})
	s.Manager.DetachConn(conn)

	conn2 := &fakeConn{}
	if err := s.Manager.AttachConn(conn2); err != nil {
		t.Fatalf("AttachConn failed: %v", err)
	}

	frame, _ := clientFrame(t, protocol.TypeSessionResume,
		protocol.ResumePayload{SessionID: "sess-a", LastSeq: 0, Epoch: 1})
	s.Manager.HandleMessage(conn2, frame)

	snaps := conn2.byType(protocol.TypeSessionSnapshot)
	if len(snaps) != 1 {
		t.Fatalf("Expected 1 snapshot, got %d", len(snaps))
	}

	var snap struct {
		FinalizedTranscript []aggregator.FinalSegment `json:"finalized_transcript"`
		MTStatus            map[string]interface{}    `json:"mt_status"`
	}
	if err := json.Unmarshal(snaps[0].Data, &snap); err != nil {
		t.Fatalf("Failed to unmarshal snapshot: %v", err)
	}
	if len(snap.FinalizedTranscript) != 1 || snap.FinalizedTranscript[0].Text != "done" {
		t.Errorf("Unexpected finalized transcript: %+v", snap.FinalizedTranscript)
	}
	if snap.MTStatus["enabled"] != true {
		t.Errorf("Unexpected mt status: %+v", snap.MTStatus)
	}
}

func TestShutdownDestroysSessions(t *testing.T) {
	r := NewRegistry(RegistryConfig{
		Manager: ManagerConfig{
			HeartbeatInterval: time.Minute,
			HeartbeatTimeout:  3 * time.Minute,
		},
	}, nil, testLogger(), nil)

	s := r.GetOrCreate("sess-a")
	r.Shutdown()

	if !s.Manager.Closed() {
		t.Error("Session not closed after registry shutdown")
	}
	if r.Count() != 0 {
		t.Errorf("Count = %d after shutdown, want 0", r.Count())
	}
}

func TestReaperRemovesIdleSessions(t *testing.T) {
	r := NewRegistry(RegistryConfig{
		Manager: ManagerConfig{
			HeartbeatInterval: time.Minute,
			HeartbeatTimeout:  3 * time.Minute,
		},
		IdleTTL:        20 * time.Millisecond,
		ReaperInterval: 10 * time.Millisecond,
	}, nil, testLogger(), nil)
	t.Cleanup(r.Shutdown)

	s := r.GetOrCreate("sess-a")
	conn := &fakeConn{}
	activate(t, s.Manager, conn)
	s.Manager.DetachConn(conn)

	waitFor(t, 2*time.Second, func() bool { return r.Count() == 0 })
	if !s.Manager.Closed() {
		t.Error("Reaped session should be closed")
	}
}
