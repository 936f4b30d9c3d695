package publish

import (
	"testing"

	"github.com/banshee-data/mapbridge/internal/slam"
)

func TestPolicy_NoGap(t *testing.T) {
	p := NewPolicy(0)

	if got := p.Decide(false); got != DecisionNone {
		t.Errorf("non-keyframe cycle = %v, want none", got)
	}
	for i := 0; i < 10; i++ {
		if got := p.Decide(true); got != DecisionIncremental {
			t.Fatalf("keyframe cycle %d = %v, want incremental", i, got)
		}
	}
	if st := p.State(); st.GapCounter != 10 {
		t.Errorf("GapCounter = %d, want 10", st.GapCounter)
	}
}

func TestPolicy_NegativeGapDisablesPeriodicDumps(t *testing.T) {
	p := NewPolicy(-5)
	for i := 0; i < 20; i++ {
		if got := p.Decide(true); got != DecisionIncremental {
			t.Fatalf("cycle %d = %v, want incremental", i, got)
		}
	}
}

func TestPolicy_GapCounterOnlyAdvancesOnKeyframes(t *testing.T) {
	p := NewPolicy(2)

	p.Decide(true)
	for i := 0; i < 5; i++ {
		p.Decide(false)
	}
	if st := p.State(); st.GapCounter != 1 {
		t.Errorf("GapCounter = %d, want 1 after one keyframe and five plain frames", st.GapCounter)
	}
}

func TestPolicy_PeriodicFullDump(t *testing.T) {
	const gap = 3
	p := NewPolicy(gap)

	for i := 0; i < gap; i++ {
		if got := p.Decide(true); got != DecisionIncremental {
			t.Fatalf("keyframe cycle %d = %v, want incremental", i, got)
		}
	}
	// After exactly T keyframe cycles the next cycle is a full dump,
	// whether or not it is a keyframe.
	if got := p.Decide(false); got != DecisionFull {
		t.Fatalf("cycle after %d keyframes = %v, want full", gap, got)
	}
	st := p.State()
	if st.GapCounter != 0 || st.FullDumpPending {
		t.Errorf("state after full dump = %+v, want counter reset and nothing pending", st)
	}

	// Cadence repeats.
	for i := 0; i < gap; i++ {
		p.Decide(true)
	}
	if got := p.Decide(true); got != DecisionFull {
		t.Errorf("second period = %v, want full", got)
	}
}

func TestPolicy_LoopFlagsConsumedOnce(t *testing.T) {
	tests := []struct {
		name string
		ev   slam.LoopEvents
	}{
		{"tracking", slam.LoopEvents{Tracking: true}},
		{"loop closing", slam.LoopEvents{LoopClosing: true}},
		{"both", slam.LoopEvents{Tracking: true, LoopClosing: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPolicy(0)
			p.Observe(tt.ev)

			if got := p.Decide(false); got != DecisionFull {
				t.Fatalf("Decide = %v, want full", got)
			}
			if st := p.State(); st.LoopTracking || st.LoopClosing || st.FullDumpPending {
				t.Errorf("flags not cleared: %+v", st)
			}
			if got := p.Decide(false); got != DecisionNone {
				t.Errorf("following cycle = %v, want none", got)
			}
		})
	}
}

func TestPolicy_FullDumpTakesPriorityOverKeyframe(t *testing.T) {
	p := NewPolicy(0)
	p.Observe(slam.LoopEvents{LoopClosing: true})

	if got := p.Decide(true); got != DecisionFull {
		t.Fatalf("Decide = %v, want full", got)
	}
	if st := p.State(); st.GapCounter != 0 {
		t.Errorf("GapCounter = %d, want 0: a full-dump cycle must not count as a keyframe cycle", st.GapCounter)
	}
}

func TestPolicy_ObserveLatchesUntilDecide(t *testing.T) {
	p := NewPolicy(0)
	p.Observe(slam.LoopEvents{Tracking: true})
	p.Observe(slam.LoopEvents{})

	if st := p.State(); !st.LoopTracking {
		t.Fatal("empty events must not clear a latched flag")
	}
	if got := p.Decide(false); got != DecisionFull {
		t.Errorf("Decide = %v, want full", got)
	}
}

func TestPolicy_RequestFullDump(t *testing.T) {
	p := NewPolicy(0)
	p.RequestFullDump()
	if got := p.Decide(true); got != DecisionFull {
		t.Errorf("Decide = %v, want full", got)
	}
	if got := p.Decide(true); got != DecisionIncremental {
		t.Errorf("next Decide = %v, want incremental", got)
	}
}

func TestDecision_String(t *testing.T) {
	for d, want := range map[Decision]string{
		DecisionNone:        "none",
		DecisionIncremental: "incremental",
		DecisionFull:        "full",
		Decision(9):         "unknown",
	} {
		if got := d.String(); got != want {
			t.Errorf("Decision(%d).String() = %q, want %q", int(d), got, want)
		}
	}
}
