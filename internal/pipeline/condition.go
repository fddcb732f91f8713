package pipeline

import "go.uber.org/atomic"

// Condition is the §3 per-pipeline connection state machine: exactly one
// of None (fresh), Waiting (socket up, handshake pending), Confirmed
// (authenticated, data I/O permitted), or Expired (terminal). Transitions
// are monotonic forward only — a pipeline never revisits a prior state.
type Condition int32

const (
	ConditionNone Condition = iota
	ConditionWaiting
	ConditionConfirmed
	ConditionExpired
)

func (c Condition) String() string {
	switch c {
	case ConditionNone:
		return "none"
	case ConditionWaiting:
		return "waiting"
	case ConditionConfirmed:
		return "confirmed"
	case ConditionExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// conditionState wraps an atomic int32 with a monotonic-only advance, so
// every caller — the handshake, the read loop, Stop — can race to move the
// pipeline toward Expired without a lock and without ever stepping
// backward.
type conditionState struct {
	v atomic.Int32
}

func (s *conditionState) get() Condition {
	return Condition(s.v.Load())
}

// advance moves the condition to to, if to is strictly greater than the
// current value. Returns whether this call performed the transition (so
// callers can fire one-shot notifications like disconnected exactly once).
func (s *conditionState) advance(to Condition) bool {
	for {
		cur := Condition(s.v.Load())
		if to <= cur {
			return false
		}
		if s.v.CompareAndSwap(int32(cur), int32(to)) {
			return true
		}
	}
}
