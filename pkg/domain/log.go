package domain

import "time"

// DefaultLogCap bounds the per-entity transition log unless overridden.
const DefaultLogCap = 100

// Outcome classifies the result of one transition attempt.
type Outcome string

const (
	OutcomeCommitted               Outcome = "committed"
	OutcomeRejectedIllegal         Outcome = "rejected_illegal"
	OutcomeRejectedGuard           Outcome = "rejected_guard"
	OutcomeRejectedVersionConflict Outcome = "rejected_version_conflict"
)

// LogEntry records one transition attempt, committed or refused.
// Entries are immutable once appended; they are only ever evicted from
// the head of the log.
type LogEntry struct {
	// Sequence is assigned by the log on append. It is strictly increasing
	// per entity and never reused, even after eviction, so external systems
	// can correlate entries across truncation.
	Sequence  uint64    `json:"sequence"`
	Timestamp time.Time `json:"timestamp"`
	Event     string    `json:"event"`
	FromState string    `json:"from_state"`
	// ToState is empty when the attempt was rejected before a target state
	// could be resolved.
	ToState string  `json:"to_state,omitempty"`
	Outcome Outcome `json:"outcome"`
	Detail  string  `json:"detail,omitempty"`
}

// TransitionLog is a bounded FIFO of LogEntry, oldest first. When the log
// is at capacity the oldest entry is evicted before the new one is
// appended. The zero value is not usable; construct with NewTransitionLog
// or let NewSnapshot do it.
type TransitionLog struct {
	Cap     int        `json:"cap"`
	NextSeq uint64     `json:"next_seq"`
	Entries []LogEntry `json:"entries"`
}

// NewTransitionLog creates an empty log with the given capacity.
// Capacities below 1 fall back to DefaultLogCap.
func NewTransitionLog(cap int) *TransitionLog {
	if cap < 1 {
		cap = DefaultLogCap
	}
	// Entries starts non-nil so an empty log serializes as [] rather than
	// null; the redis adapter's scripts rely on it being an array.
	return &TransitionLog{Cap: cap, NextSeq: 1, Entries: []LogEntry{}}
}

// Append stamps the entry with the next sequence number and appends it,
// evicting the oldest entry first if the log is at capacity. The stamped
// entry is returned.
func (l *TransitionLog) Append(entry LogEntry) LogEntry {
	entry.Sequence = l.NextSeq
	l.NextSeq++

	if len(l.Entries) >= l.Cap {
		// FIFO eviction. Shift instead of re-slice so the backing array
		// does not grow without bound.
		copy(l.Entries, l.Entries[1:])
		l.Entries = l.Entries[:len(l.Entries)-1]
	}
	l.Entries = append(l.Entries, entry)
	return entry
}

// Len returns the number of retained entries.
func (l *TransitionLog) Len() int { return len(l.Entries) }

// Snapshot returns a copy of the retained entries, oldest first.
func (l *TransitionLog) Snapshot() []LogEntry {
	out := make([]LogEntry, len(l.Entries))
	copy(out, l.Entries)
	return out
}

// Clone deep-copies the log.
func (l *TransitionLog) Clone() *TransitionLog {
	if l == nil {
		return nil
	}
	clone := &TransitionLog{Cap: l.Cap, NextSeq: l.NextSeq}
	clone.Entries = make([]LogEntry, len(l.Entries))
	copy(clone.Entries, l.Entries)
	return clone
}
