package aggregator

import (
	"time"

	"github.com/Guffawaffle/LoquiLex-sub000/internal/protocol"
)

// Word is a single recognized word with timing and confidence.
type Word struct {
	Text       string  `json:"text"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Confidence float64 `json:"confidence"`
}

// RawEvent is a provisional or final recognition update as produced by the
// external ASR engine.
type RawEvent struct {
	StreamID  string  `json:"stream_id"`
	SegmentID string  `json:"segment_id"`
	Seq       int64   `json:"seq"`
	Text      string  `json:"text"`
	Words     []Word  `json:"words,omitempty"`
	TS        float64 `json:"ts"`
	EOUReason string  `json:"eou_reason,omitempty"`
	Final     bool    `json:"final,omitempty"`
}

// PartialState is the live state of one in-progress segment. Later partials
// for the same segment supersede it in place.
type PartialState struct {
	SegmentID   string  `json:"segment_id"`
	LatestSeq   int64   `json:"latest_seq"`
	LatestText  string  `json:"latest_text"`
	LatestWords []Word  `json:"latest_words,omitempty"`
	LastUpdate  float64 `json:"last_update"`
}

// FinalSegment is an immutable finalized segment appended to the bounded
// recent-finals history.
type FinalSegment struct {
	SegmentID string  `json:"segment_id"`
	Text      string  `json:"text"`
	Words     []Word  `json:"words,omitempty"`
	Timestamp float64 `json:"timestamp"`
	EOUReason string  `json:"eou_reason,omitempty"`
}

// Event is an enriched domain event emitted by the aggregator. It becomes
// the data payload of an envelope on the session stream.
type Event struct {
	Type      string  `json:"type"`
	StreamID  string  `json:"stream_id"`
	SegmentID string  `json:"segment_id"`
	Seq       uint64  `json:"seq"`
	Text      string  `json:"text"`
	Words     []Word  `json:"words,omitempty"`
	Stable    bool    `json:"stable"`
	TS        float64 `json:"ts"`
	EOUReason string  `json:"eou_reason,omitempty"`
}

// EmitFunc receives enriched events synchronously from the aggregator.
type EmitFunc func(Event)

// Config bounds the aggregator's live-partial map and final history.
type Config struct {
	MaxPartials     int
	MaxRecentFinals int
}

const (
	defaultMaxPartials     = 32
	defaultMaxRecentFinals = 128
)

// Snapshot is a point-in-time summary used to rehydrate reconnecting
// clients. It never aliases live aggregator state.
type Snapshot struct {
	RecentFinals []FinalSegment `json:"recent_finals"`
	LivePartial  *PartialState  `json:"live_partial"`
	TS           float64        `json:"ts"`
}

// Stats reports aggregator counters for monitoring.
type Stats struct {
	GlobalSeq       uint64 `json:"global_seq"`
	LivePartials    int    `json:"live_partials"`
	RecentFinals    int    `json:"recent_finals"`
	PartialsEvicted uint64 `json:"partials_evicted"`
	FinalsEvicted   uint64 `json:"finals_evicted"`
	LateDropped     uint64 `json:"late_dropped"`
	DupFinals       uint64 `json:"dup_finals"`
}

// Aggregator turns a noisy stream of provisional recognition updates into a
// deduplicated, ordered, memory-bounded event sequence. It is pure and
// synchronous: no I/O, no locking, no suspension. The owning session task
// must serialize all calls.
type Aggregator struct {
	cfg Config

	globalSeq uint64

	// Live partials keyed by segment id, with a separate FIFO of keys
	// tracking insertion order for eviction.
	partials     map[string]*PartialState
	partialOrder []string

	recentFinals []FinalSegment
	finalized    map[string]struct{}

	currentPartial *PartialState

	partialsEvicted uint64
	finalsEvicted   uint64
	lateDropped     uint64
	dupFinals       uint64
}

// New creates an aggregator with the given bounds. Non-positive bounds fall
// back to defaults.
func New(cfg Config) *Aggregator {
	if cfg.MaxPartials <= 0 {
		cfg.MaxPartials = defaultMaxPartials
	}
	if cfg.MaxRecentFinals <= 0 {
		cfg.MaxRecentFinals = defaultMaxRecentFinals
	}

	return &Aggregator{
		cfg:       cfg,
		partials:  make(map[string]*PartialState),
		finalized: make(map[string]struct{}),
	}
}

// AddPartial processes a provisional recognition update. Partials for
// already-finalized segments are dropped silently. The live-partial map is
// bounded: creating a new entry at capacity evicts the oldest entry by
// insertion order.
func (a *Aggregator) AddPartial(ev RawEvent, emit EmitFunc) {
	if _, done := a.finalized[ev.SegmentID]; done {
		// Late partial after finalization.
		a.lateDropped++
		return
	}

	a.globalSeq++

	ts := ev.TS
	if ts == 0 {
		ts = wallSeconds()
	}

	ps, exists := a.partials[ev.SegmentID]
	if !exists {
		if len(a.partials) >= a.cfg.MaxPartials {
			a.evictOldestPartial()
		}
		ps = &PartialState{SegmentID: ev.SegmentID}
		a.partials[ev.SegmentID] = ps
		a.partialOrder = append(a.partialOrder, ev.SegmentID)
	}

	ps.LatestSeq = ev.Seq
	ps.LatestText = ev.Text
	ps.LatestWords = ev.Words
	ps.LastUpdate = ts

	a.currentPartial = ps

	if emit != nil {
		emit(Event{
			Type:      protocol.TypeASRPartial,
			StreamID:  ev.StreamID,
			SegmentID: ev.SegmentID,
			Seq:       a.globalSeq,
			Text:      ev.Text,
			Words:     ev.Words,
			Stable:    false,
			TS:        ts,
		})
	}
}

// AddFinal finalizes a segment. Duplicate finals for the same segment id
// emit nothing (idempotent, not an error). Finalization removes any live
// partial for the segment and appends to the bounded recent-finals history;
// evicting an old final also forgets its id from the finalized set.
func (a *Aggregator) AddFinal(ev RawEvent, emit EmitFunc) {
	if _, done := a.finalized[ev.SegmentID]; done {
		a.dupFinals++
		return
	}

	a.globalSeq++

	ts := ev.TS
	if ts == 0 {
		ts = wallSeconds()
	}

	a.recentFinals = append(a.recentFinals, FinalSegment{
		SegmentID: ev.SegmentID,
		Text:      ev.Text,
		Words:     ev.Words,
		Timestamp: ts,
		EOUReason: ev.EOUReason,
	})
	if len(a.recentFinals) > a.cfg.MaxRecentFinals {
		evicted := a.recentFinals[0]
		a.recentFinals = a.recentFinals[1:]
		// Forget the evicted id so the finalized set stays bounded. A very
		// late duplicate final for that id would be re-accepted; bounded
		// memory wins here.
		delete(a.finalized, evicted.SegmentID)
		a.finalsEvicted++
	}

	a.finalized[ev.SegmentID] = struct{}{}

	if _, exists := a.partials[ev.SegmentID]; exists {
		delete(a.partials, ev.SegmentID)
		a.removeFromOrder(ev.SegmentID)
	}
	if a.currentPartial != nil && a.currentPartial.SegmentID == ev.SegmentID {
		a.currentPartial = nil
	}

	if emit != nil {
		emit(Event{
			Type:      protocol.TypeASRFinal,
			StreamID:  ev.StreamID,
			SegmentID: ev.SegmentID,
			Seq:       a.globalSeq,
			Text:      ev.Text,
			Words:     ev.Words,
			Stable:    true,
			TS:        ts,
			EOUReason: ev.EOUReason,
		})
	}
}

// Snapshot returns a copy of the recent finals and the current live partial.
// It never mutates aggregator state.
func (a *Aggregator) Snapshot() Snapshot {
	finals := make([]FinalSegment, len(a.recentFinals))
	copy(finals, a.recentFinals)

	var live *PartialState
	if a.currentPartial != nil {
		cp := *a.currentPartial
		live = &cp
	}

	return Snapshot{
		RecentFinals: finals,
		LivePartial:  live,
		TS:           wallSeconds(),
	}
}

// Stats returns current aggregator counters.
func (a *Aggregator) Stats() Stats {
	return Stats{
		GlobalSeq:       a.globalSeq,
		LivePartials:    len(a.partials),
		RecentFinals:    len(a.recentFinals),
		PartialsEvicted: a.partialsEvicted,
		FinalsEvicted:   a.finalsEvicted,
		LateDropped:     a.lateDropped,
		DupFinals:       a.dupFinals,
	}
}

// evictOldestPartial drops the oldest live partial by insertion order.
func (a *Aggregator) evictOldestPartial() {
	if len(a.partialOrder) == 0 {
		return
	}

	oldest := a.partialOrder[0]
	a.partialOrder = a.partialOrder[1:]
	if a.currentPartial != nil && a.currentPartial.SegmentID == oldest {
		a.currentPartial = nil
	}
	delete(a.partials, oldest)
	a.partialsEvicted++
}

// removeFromOrder deletes one key from the insertion-order FIFO.
func (a *Aggregator) removeFromOrder(segmentID string) {
	for i, id := range a.partialOrder {
		if id == segmentID {
			a.partialOrder = append(a.partialOrder[:i], a.partialOrder[i+1:]...)
			return
		}
	}
}

func wallSeconds() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Second)
}
