package aggregator

import (
	"fmt"
	"testing"

	"github.com/Guffawaffle/LoquiLex-sub000/internal/protocol"
)

// collector records emitted events in order.
type collector struct {
	events []Event
}

func (c *collector) emit(e Event) {
	c.events = append(c.events, e)
}

func TestPartialThenFinal(t *testing.T) {
	agg := New(Config{})
	var c collector

	agg.AddPartial(RawEvent{StreamID: "st1", SegmentID: "seg1", Seq: 1, Text: "hel", TS: 1.0}, c.emit)
	agg.AddPartial(RawEvent{StreamID: "st1", SegmentID: "seg1", Seq: 2, Text: "hello", TS: 1.2}, c.emit)
	agg.AddFinal(RawEvent{StreamID: "st1", SegmentID: "seg1", Seq: 3, Text: "hello world", TS: 1.5, EOUReason: "silence"}, c.emit)

	if len(c.events) != 3 {
		t.Fatalf("Expected 3 emitted events, got %d", len(c.events))
	}

	// Monotonic global sequence across partials and finals.
	for i, e := range c.events {
		if e.Seq != uint64(i+1) {
			t.Errorf("events[%d].Seq = %d, want %d", i, e.Seq, i+1)
		}
	}

	if c.events[0].Type != protocol.TypeASRPartial || c.events[0].Stable {
		t.Errorf("First event should be an unstable partial: %+v", c.events[0])
	}

	final := c.events[2]
	if final.Type != protocol.TypeASRFinal || !final.Stable {
		t.Errorf("Last event should be a stable final: %+v", final)
	}
	if final.Text != "hello world" {
		t.Errorf("Final text = %q, want %q", final.Text, "hello world")
	}
	if final.EOUReason != "silence" {
		t.Errorf("EOUReason = %q, want silence", final.EOUReason)
	}

	// Finalization removed the live partial.
	stats := agg.Stats()
	if stats.LivePartials != 0 {
		t.Errorf("LivePartials = %d, want 0", stats.LivePartials)
	}
	if stats.RecentFinals != 1 {
		t.Errorf("RecentFinals = %d, want 1", stats.RecentFinals)
	}
}

func TestPartialSupersedesInPlace(t *testing.T) {
	agg := New(Config{})
	var c collector

	agg.AddPartial(RawEvent{SegmentID: "seg1", Seq: 1, Text: "a", TS: 1}, c.emit)
	agg.AddPartial(RawEvent{SegmentID: "seg1", Seq: 2, Text: "ab", TS: 2}, c.emit)
	agg.AddPartial(RawEvent{SegmentID: "seg1", Seq: 3, Text: "abc", TS: 3}, c.emit)

	stats := agg.Stats()
	if stats.LivePartials != 1 {
		t.Errorf("LivePartials = %d, want 1 (updates supersede in place)", stats.LivePartials)
	}

	snap := agg.Snapshot()
	if snap.LivePartial == nil {
		t.Fatal("Expected a live partial in snapshot")
	}
	if snap.LivePartial.LatestText != "abc" || snap.LivePartial.LatestSeq != 3 {
		t.Errorf("Live partial = %+v, want latest update", snap.LivePartial)
	}
}

func TestDuplicateFinalIdempotent(t *testing.T) {
	agg := New(Config{})
	var c collector

	agg.AddFinal(RawEvent{SegmentID: "seg1", Text: "one", TS: 1}, c.emit)
	agg.AddFinal(RawEvent{SegmentID: "seg1", Text: "one again", TS: 2}, c.emit)

	if len(c.events) != 1 {
		t.Fatalf("Duplicate final emitted: %d events, want 1", len(c.events))
	}
	stats := agg.Stats()
	if stats.DupFinals != 1 {
		t.Errorf("DupFinals = %d, want 1", stats.DupFinals)
	}
	if stats.RecentFinals != 1 {
		t.Errorf("RecentFinals = %d, want 1", stats.RecentFinals)
	}
}

func TestLatePartialDropped(t *testing.T) {
	agg := New(Config{})
	var c collector

	agg.AddFinal(RawEvent{SegmentID: "seg1", Text: "done", TS: 1}, c.emit)
	agg.AddPartial(RawEvent{SegmentID: "seg1", Seq: 9, Text: "late", TS: 2}, c.emit)

	if len(c.events) != 1 {
		t.Fatalf("Late partial emitted: %d events, want 1", len(c.events))
	}
	stats := agg.Stats()
	if stats.LateDropped != 1 {
		t.Errorf("LateDropped = %d, want 1", stats.LateDropped)
	}
	if stats.LivePartials != 0 {
		t.Errorf("LivePartials = %d, want 0", stats.LivePartials)
	}
}

func TestMaxPartialsEviction(t *testing.T) {
	agg := New(Config{MaxPartials: 3})
	var c collector

	for i := 1; i <= 5; i++ {
		agg.AddPartial(RawEvent{SegmentID: fmt.Sprintf("seg%d", i), Seq: 1, Text: "x", TS: float64(i)}, c.emit)
	}

	stats := agg.Stats()
	if stats.LivePartials != 3 {
		t.Errorf("LivePartials = %d, want 3", stats.LivePartials)
	}
	if stats.PartialsEvicted != 2 {
		t.Errorf("PartialsEvicted = %d, want 2", stats.PartialsEvicted)
	}

	// Oldest entries (seg1, seg2) were evicted; an update to seg3 still lands.
	agg.AddPartial(RawEvent{SegmentID: "seg3", Seq: 2, Text: "updated", TS: 9}, c.emit)
	if got := agg.Stats().LivePartials; got != 3 {
		t.Errorf("LivePartials after update = %d, want 3", got)
	}

	// An evicted segment re-enters as a fresh partial and evicts again.
	agg.AddPartial(RawEvent{SegmentID: "seg1", Seq: 3, Text: "back", TS: 10}, c.emit)
	if got := agg.Stats().PartialsEvicted; got != 3 {
		t.Errorf("PartialsEvicted = %d, want 3", got)
	}
}

func TestMaxRecentFinalsEvictionForgetsID(t *testing.T) {
	agg := New(Config{MaxRecentFinals: 2})
	var c collector

	agg.AddFinal(RawEvent{SegmentID: "seg1", Text: "one", TS: 1}, c.emit)
	agg.AddFinal(RawEvent{SegmentID: "seg2", Text: "two", TS: 2}, c.emit)
	agg.AddFinal(RawEvent{SegmentID: "seg3", Text: "three", TS: 3}, c.emit)

	stats := agg.Stats()
	if stats.RecentFinals != 2 {
		t.Errorf("RecentFinals = %d, want 2", stats.RecentFinals)
	}
	if stats.FinalsEvicted != 1 {
		t.Errorf("FinalsEvicted = %d, want 1", stats.FinalsEvicted)
	}

	snap := agg.Snapshot()
	if len(snap.RecentFinals) != 2 ||
		snap.RecentFinals[0].SegmentID != "seg2" ||
		snap.RecentFinals[1].SegmentID != "seg3" {
		t.Errorf("Unexpected recent finals: %+v", snap.RecentFinals)
	}

	// The evicted id was forgotten, so a very late duplicate re-finalizes.
	agg.AddFinal(RawEvent{SegmentID: "seg1", Text: "one again", TS: 4}, c.emit)
	if got := agg.Stats().DupFinals; got != 0 {
		t.Errorf("DupFinals = %d, want 0 (evicted id forgotten)", got)
	}
	if len(c.events) != 4 {
		t.Errorf("Expected 4 emitted events, got %d", len(c.events))
	}
}

func TestSnapshotIsolation(t *testing.T) {
	agg := New(Config{})
	var c collector

	agg.AddFinal(RawEvent{SegmentID: "seg1", Text: "one", TS: 1}, c.emit)
	agg.AddPartial(RawEvent{SegmentID: "seg2", Seq: 1, Text: "par", TS: 2}, c.emit)

	snap := agg.Snapshot()

	// Mutating the snapshot must not leak into aggregator state.
	snap.RecentFinals[0].Text = "tampered"
	snap.LivePartial.LatestText = "tampered"

	snap2 := agg.Snapshot()
	if snap2.RecentFinals[0].Text != "one" {
		t.Error("Snapshot aliases aggregator finals")
	}
	if snap2.LivePartial.LatestText != "par" {
		t.Error("Snapshot aliases aggregator live partial")
	}
}

func TestSnapshotAfterFinalClearsLivePartial(t *testing.T) {
	agg := New(Config{})
	var c collector

	agg.AddPartial(RawEvent{SegmentID: "seg1", Seq: 1, Text: "p", TS: 1}, c.emit)
	agg.AddFinal(RawEvent{SegmentID: "seg1", Text: "f", TS: 2}, c.emit)

	snap := agg.Snapshot()
	if snap.LivePartial != nil {
		t.Errorf("LivePartial = %+v after finalization, want nil", snap.LivePartial)
	}
}

func TestNilEmitFunc(t *testing.T) {
	agg := New(Config{})

	// Nil emit must not panic; state still updates.
	agg.AddPartial(RawEvent{SegmentID: "seg1", Seq: 1, Text: "p", TS: 1}, nil)
	agg.AddFinal(RawEvent{SegmentID: "seg1", Text: "f", TS: 2}, nil)

	stats := agg.Stats()
	if stats.GlobalSeq != 2 {
		t.Errorf("GlobalSeq = %d, want 2", stats.GlobalSeq)
	}
	if stats.RecentFinals != 1 {
		t.Errorf("RecentFinals = %d, want 1", stats.RecentFinals)
	}
}

func TestDefaults(t *testing.T) {
	agg := New(Config{})
	if agg.cfg.MaxPartials != defaultMaxPartials {
		t.Errorf("MaxPartials = %d, want %d", agg.cfg.MaxPartials, defaultMaxPartials)
	}
	if agg.cfg.MaxRecentFinals != defaultMaxRecentFinals {
		t.Errorf("MaxRecentFinals = %d, want %d", agg.cfg.MaxRecentFinals, defaultMaxRecentFinals)
	}
}

func TestTimestampDefaultsToWallClock(t *testing.T) {
	agg := New(Config{})
	var c collector

	agg.AddPartial(RawEvent{SegmentID: "seg1", Seq: 1, Text: "p"}, c.emit)
	if len(c.events) != 1 {
		t.Fatal("Expected 1 event")
	}
	if c.events[0].TS <= 0 {
		t.Errorf("TS = %f, want wall-clock fallback", c.events[0].TS)
	}
}
