package publish

import (
	"sync"

	"github.com/banshee-data/mapbridge/internal/slam"
)

// Decision is the outcome of one policy evaluation.
type Decision int

const (
	DecisionNone        Decision = 0
	DecisionIncremental Decision = 1
	DecisionFull        Decision = 2
)

// String returns the decision name used in logs and the history table.
func (d Decision) String() string {
	switch d {
	case DecisionNone:
		return "none"
	case DecisionIncremental:
		return "incremental"
	case DecisionFull:
		return "full"
	default:
		return "unknown"
	}
}

// PolicyState is a copy of the policy's counters and flags.
type PolicyState struct {
	GapCounter      int
	FullDumpPending bool
	LoopTracking    bool
	LoopClosing     bool
}

// Policy chooses between nothing, an incremental update and a full dump.
//
// A full dump always wins over an incremental update in the same cycle.
// The gap counter advances on keyframe cycles only, so the periodic
// full-dump cadence is measured in keyframes published, not raw frames.
type Policy struct {
	gap int

	mu              sync.Mutex
	gapCounter      int
	fullDumpPending bool
	loopTracking    bool
	loopClosing     bool
}

// NewPolicy creates a policy that forces a full dump after every gap
// incremental updates. A gap of 0 or less disables periodic dumps, leaving
// loop closures and explicit requests as the only triggers.
func NewPolicy(gap int) *Policy {
	if gap < 0 {
		gap = 0
	}
	return &Policy{gap: gap}
}

// Observe latches loop-closure events reported by the engine. They stay
// set until a full dump consumes them.
func (p *Policy) Observe(ev slam.LoopEvents) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loopTracking = p.loopTracking || ev.Tracking
	p.loopClosing = p.loopClosing || ev.LoopClosing
}

// RequestFullDump schedules a full dump for the next Decide call.
// It is safe to call from any goroutine.
func (p *Policy) RequestFullDump() {
	p.mu.Lock()
	p.fullDumpPending = true
	p.mu.Unlock()
}

// Decide evaluates one cycle. isKeyframe reports whether the engine
// promoted the current frame to a keyframe.
func (p *Policy) Decide(isKeyframe bool) Decision {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.gap > 0 && p.gapCounter >= p.gap {
		p.fullDumpPending = true
		p.gapCounter = 0
	}

	if p.fullDumpPending || p.loopTracking || p.loopClosing {
		p.fullDumpPending = false
		p.loopTracking = false
		p.loopClosing = false
		return DecisionFull
	}

	if isKeyframe {
		p.gapCounter++
		return DecisionIncremental
	}
	return DecisionNone
}

// State returns a copy of the current counters and flags.
func (p *Policy) State() PolicyState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PolicyState{
		GapCounter:      p.gapCounter,
		FullDumpPending: p.fullDumpPending,
		LoopTracking:    p.loopTracking,
		LoopClosing:     p.loopClosing,
	}
}
