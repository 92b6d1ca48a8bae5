package model

// Phase identifies one stage of the assessment pipeline.
type Phase string

const (
	Phase0  Phase = "phase0"   // intake normalization
	Phase1  Phase = "phase1"   // tiered strategic analyses
	Phase15 Phase = "phase1_5" // per-category deep dives
	Phase2  Phase = "phase2"   // prioritized recommendations
	Phase3  Phase = "phase3"   // audience narratives
	Phase4  Phase = "phase4"   // cross-dimensional synthesis
	Phase5  Phase = "phase5"   // IDM consolidation
)

// PhaseOrder lists phases in execution order.
var PhaseOrder = []Phase{Phase0, Phase1, Phase15, Phase2, Phase3, Phase4, Phase5}

// Predecessor returns the phase that must be complete before p may start.
// Phase0 has no predecessor and returns "".
func (p Phase) Predecessor() Phase {
	for i, ph := range PhaseOrder {
		if ph == p && i > 0 {
			return PhaseOrder[i-1]
		}
	}
	return ""
}

// Valid reports whether p is a known phase.
func (p Phase) Valid() bool {
	for _, ph := range PhaseOrder {
		if ph == p {
			return true
		}
	}
	return false
}

// PhaseStatus is the index-tracked completion state of a phase within a run.
type PhaseStatus string

const (
	PhaseStatusPending    PhaseStatus = "pending"
	PhaseStatusInProgress PhaseStatus = "in_progress"
	PhaseStatusComplete   PhaseStatus = "complete"
	PhaseStatusFailed     PhaseStatus = "failed"
)

// rank orders statuses along the monotonic lattice. Terminal states share
// the top rank; a transition must never decrease rank.
func (s PhaseStatus) rank() int {
	switch s {
	case PhaseStatusPending:
		return 0
	case PhaseStatusInProgress:
		return 1
	case PhaseStatusComplete, PhaseStatusFailed:
		return 2
	default:
		return -1
	}
}

// CanTransition reports whether moving from s to next is allowed without a
// force flag. Terminal states accept no further transitions; failed→
// in_progress is permitted so a failed phase can be re-run.
func (s PhaseStatus) CanTransition(next PhaseStatus) bool {
	if s == next {
		return false
	}
	if s == PhaseStatusFailed && next == PhaseStatusInProgress {
		return true
	}
	return next.rank() > s.rank()
}

// StageState is the in-memory state machine of a running orchestrator.
type StageState string

const (
	StageNotStarted    StageState = "not_started"
	StageAwaitingInput StageState = "awaiting_input"
	StageProcessing    StageState = "processing"
	StageValidating    StageState = "validating"
	StageComplete      StageState = "complete"
	StageFailed        StageState = "failed"
)
