package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Action is the outcome class of a recorded decision.
type Action string

const (
	ActionAssigned Action = "assigned"
	ActionSkipped  Action = "skipped"
	ActionFailed   Action = "failed"
)

// Decision is one immutable entry in the ledger. Decisions are appended
// exactly once per attempted operation and never mutated, so the ledger can
// answer "why" questions after the fact.
type Decision struct {
	ID              string          `json:"id"`
	BlockID         string          `json:"block_id"`
	BlockDescriptor string          `json:"block_descriptor"`
	DriverID        string          `json:"driver_id,omitempty"`
	Action          Action          `json:"action"`
	Reasoning       string          `json:"reasoning"`
	Timestamp       time.Time       `json:"timestamp"`
	Checks          *CombinedResult `json:"checks,omitempty"`
}

// Ledger is an append-only list of decisions.
type Ledger struct {
	mu      sync.Mutex
	entries []Decision
}

// Append records a decision, assigning it an id and timestamp, and returns
// the stored entry.
func (l *Ledger) Append(d Decision) Decision {
	d.ID = uuid.NewString()
	d.Timestamp = time.Now().UTC()
	l.mu.Lock()
	l.entries = append(l.entries, d)
	l.mu.Unlock()
	return d
}

// Decisions returns a copy of the recorded entries in append order.
func (l *Ledger) Decisions() []Decision {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Decision, len(l.entries))
	copy(out, l.entries)
	return out
}

// Summary tallies decisions by action.
func (l *Ledger) Summary() map[Action]int {
	l.mu.Lock()
	defer l.mu.Unlock()
	sum := make(map[Action]int)
	for _, d := range l.entries {
		sum[d.Action]++
	}
	return sum
}
