package pipeline

import "errors"

// ErrPhaseTimeout indicates a phase exceeded its wall-clock budget. Any
// in-flight batch work is cancelled before the error surfaces.
var ErrPhaseTimeout = errors.New("pipeline: phase timeout")

// ErrConsolidation indicates an IDM input artifact was missing or failed
// validation. Consolidation never substitutes defaults for corrupt input.
var ErrConsolidation = errors.New("pipeline: consolidation input invalid")
