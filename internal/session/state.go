package session

import (
	"fmt"
	"sort"
	"time"

	"github.com/Guffawaffle/LoquiLex-sub000/internal/protocol"
)

// State holds per-session sequence, flow-control, and replay bookkeeping.
// It implements no locking: the owning Manager serializes all access, so
// sequence allocation and replay insertion are atomic with respect to each
// other.
type State struct {
	SID    string
	Epoch  int
	T0Wall time.Time
	T0Mono float64

	AckMode      string
	MaxInFlight  int
	ResumeWindow time.Duration
	MaxReplay    int

	seq        int64
	lastAckSeq int64

	replay      map[int64]*protocol.Envelope
	replayOrder []int64 // ascending insertion order, used for pruning
}

// StateConfig carries the negotiable and bounding parameters for a session.
type StateConfig struct {
	AckMode      string
	MaxInFlight  int
	ResumeWindow time.Duration
	MaxReplay    int
}

const (
	defaultMaxInFlight = 64
	defaultMaxReplay   = 512
)

// NewState creates session state for one session generation (epoch).
func NewState(sid string, epoch int, cfg StateConfig) *State {
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = defaultMaxInFlight
	}
	if cfg.MaxReplay <= 0 {
		cfg.MaxReplay = defaultMaxReplay
	}
	if cfg.AckMode == "" {
		cfg.AckMode = protocol.AckModeCumulative
	}

	return &State{
		SID:          sid,
		Epoch:        epoch,
		T0Wall:       time.Now(),
		T0Mono:       protocol.MonoNow(),
		AckMode:      cfg.AckMode,
		MaxInFlight:  cfg.MaxInFlight,
		ResumeWindow: cfg.ResumeWindow,
		MaxReplay:    cfg.MaxReplay,
		replay:       make(map[int64]*protocol.Envelope),
	}
}

// NextSeq allocates the next delivery sequence number. Sequence numbers are
// strictly increasing from 1; 0 is reserved for the welcome message.
func (s *State) NextSeq() int64 {
	s.seq++
	return s.seq
}

// CurrentSeq returns the highest sequence number allocated so far.
func (s *State) CurrentSeq() int64 {
	return s.seq
}

// LastAckSeq returns the highest acknowledged sequence number.
func (s *State) LastAckSeq() int64 {
	return s.lastAckSeq
}

// CanSend reports whether the flow-control window admits another envelope.
// Callers must not allocate a sequence number when this returns false, so
// blocked sends never create gaps in the delivered sequence space.
func (s *State) CanSend() bool {
	return s.seq-s.lastAckSeq < int64(s.MaxInFlight)
}

// ProcessAck applies a client acknowledgement according to the session's
// ack mode. In cumulative mode every buffered entry with seq <= ackSeq is
// released; in per-message mode only the exact entry is. An ackSeq beyond
// the highest delivered sequence is a protocol violation and mutates
// nothing.
func (s *State) ProcessAck(ackSeq int64) error {
	if ackSeq > s.seq {
		return fmt.Errorf("ack_seq %d exceeds highest delivered seq %d", ackSeq, s.seq)
	}

	switch s.AckMode {
	case protocol.AckModePerMessage:
		if _, ok := s.replay[ackSeq]; ok {
			delete(s.replay, ackSeq)
			s.removeFromOrder(ackSeq)
		}
		if ackSeq > s.lastAckSeq {
			s.lastAckSeq = ackSeq
		}

	default: // cumulative
		kept := s.replayOrder[:0]
		for _, seq := range s.replayOrder {
			if seq <= ackSeq {
				delete(s.replay, seq)
			} else {
				kept = append(kept, seq)
			}
		}
		s.replayOrder = kept
		if ackSeq > s.lastAckSeq {
			s.lastAckSeq = ackSeq
		}
	}

	return nil
}

// AddToReplay inserts a delivered envelope into the replay buffer and
// prunes entries that fell outside the resume window (by t_mono age) or
// that exceed the capacity bound. Returns the number of pruned entries.
func (s *State) AddToReplay(env *protocol.Envelope) int {
	if _, exists := s.replay[env.Seq]; !exists {
		s.replayOrder = append(s.replayOrder, env.Seq)
	}
	s.replay[env.Seq] = env

	pruned := 0
	cutoff := protocol.MonoNow() - s.ResumeWindow.Seconds()

	for len(s.replayOrder) > 0 {
		oldest := s.replayOrder[0]
		entry := s.replay[oldest]
		tooOld := s.ResumeWindow > 0 && entry != nil && entry.TMono < cutoff
		overCap := len(s.replayOrder) > s.MaxReplay

		if !tooOld && !overCap {
			break
		}

		delete(s.replay, oldest)
		s.replayOrder = s.replayOrder[1:]
		pruned++
	}

	return pruned
}

// ReplayAfter returns the buffered envelopes with seq > lastSeq in
// ascending order.
func (s *State) ReplayAfter(lastSeq int64) []*protocol.Envelope {
	var out []*protocol.Envelope
	for seq, env := range s.replay {
		if seq > lastSeq {
			out = append(out, env)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

// ReplaySize returns the current number of buffered envelopes.
func (s *State) ReplaySize() int {
	return len(s.replay)
}

// ResumeExpired reports whether the resume window has elapsed, measured
// from session start on the monotonic clock.
func (s *State) ResumeExpired() bool {
	if s.ResumeWindow <= 0 {
		return false
	}
	return protocol.MonoNow()-s.T0Mono > s.ResumeWindow.Seconds()
}

// removeFromOrder deletes one sequence number from the insertion-order list.
func (s *State) removeFromOrder(seq int64) {
	for i, v := range s.replayOrder {
		if v == seq {
			s.replayOrder = append(s.replayOrder[:i], s.replayOrder[i+1:]...)
			return
		}
	}
}
