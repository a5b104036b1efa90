// Package repcount turns a stream of per-frame postures into a repetition
// count. A repetition is counted on the DOWN→UP edge only, after a DOWN
// posture has been committed, so any number of TRANSITION or UNKNOWN
// frames and arbitrarily long pauses at either extreme count once.
package repcount

import (
	"sync"

	"github.com/banshee-data/stepup.report/internal/posture"
)

// Phase is the single discriminant of the counter. The committed posture
// and the armed flag are both derived from it, so they cannot disagree.
type Phase int

const (
	// AwaitingDown: committed posture UP, not armed.
	AwaitingDown Phase = iota
	// ReadyToCount: committed posture DOWN, armed for the next UP.
	ReadyToCount
)

func (p Phase) String() string {
	switch p {
	case AwaitingDown:
		return "awaiting-down"
	case ReadyToCount:
		return "ready-to-count"
	default:
		return "invalid"
	}
}

// State is a read-only view of the counter.
type State struct {
	CommittedPosture posture.State `json:"committed_posture"`
	Armed            bool          `json:"armed"`
	RepCount         int           `json:"rep_count"`
}

// Counter is the repetition state machine. The zero value is a counter
// at session start. Methods are safe for concurrent use.
type Counter struct {
	mu    sync.Mutex
	phase Phase
	reps  int
}

// New returns a counter at session start.
func New() *Counter {
	return &Counter{}
}

// Advance feeds one classified frame into the machine and reports whether
// the repetition count changed.
//
//	AwaitingDown + DOWN → ReadyToCount
//	ReadyToCount + UP   → AwaitingDown, count+1
//
// Every other input, including TRANSITION and UNKNOWN, leaves the state
// untouched.
func (c *Counter) Advance(s posture.State) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case c.phase == AwaitingDown && s == posture.StateDown:
		c.phase = ReadyToCount
	case c.phase == ReadyToCount && s == posture.StateUp:
		c.phase = AwaitingDown
		c.reps++
		return true
	}
	return false
}

// Reset returns the counter to {UP, unarmed, 0}. Idempotent.
func (c *Counter) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.phase = AwaitingDown
	c.reps = 0
}

// Phase returns the current phase.
func (c *Counter) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Count returns the number of completed repetitions.
func (c *Counter) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reps
}

// State returns a snapshot of the counter.
func (c *Counter) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return stateOf(c.phase, c.reps)
}

func stateOf(p Phase, reps int) State {
	if p == ReadyToCount {
		return State{CommittedPosture: posture.StateDown, Armed: true, RepCount: reps}
	}
	return State{CommittedPosture: posture.StateUp, Armed: false, RepCount: reps}
}

// Run feeds a whole sequence through a fresh counter and returns the
// final count.
func Run(states []posture.State) int {
	c := New()
	for _, s := range states {
		c.Advance(s)
	}
	return c.Count()
}
