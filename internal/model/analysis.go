package model

import "time"

// Analysis tiers within Phase 1. Tier-1 analyses are foundational and run
// fully in parallel; Tier-2 analyses consume Tier-1 findings as context and
// start only after the whole first tier settles.
const (
	Tier1 = 1
	Tier2 = 2
)

// StrategicAnalysis is one Phase-1 analysis result.
type StrategicAnalysis struct {
	Key               string    `json:"key"`
	Tier              int       `json:"tier"`
	Summary           string    `json:"summary"`
	KeyFindings       []string  `json:"key_findings"`
	Score             float64   `json:"score"`      // [0, 100]
	Confidence        string    `json:"confidence"` // "high", "medium", "low"
	FallbackGenerated bool      `json:"fallback_generated"`
	Model             string    `json:"model,omitempty"`
	GeneratedAt       time.Time `json:"generated_at"`
}

// Phase1Results is the persisted Phase-1 artifact.
type Phase1Results struct {
	AssessmentRunID string              `json:"assessment_run_id"`
	SchemaVersion   string              `json:"schema_version"`
	Tier1Analyses   []StrategicAnalysis `json:"tier1_analyses"`
	Tier2Analyses   []StrategicAnalysis `json:"tier2_analyses"`
	GeneratedAt     time.Time           `json:"generated_at"`
}

// AnalysisByKey returns the analysis with the given key from either tier.
func (p *Phase1Results) AnalysisByKey(key string) *StrategicAnalysis {
	for i := range p.Tier1Analyses {
		if p.Tier1Analyses[i].Key == key {
			return &p.Tier1Analyses[i]
		}
	}
	for i := range p.Tier2Analyses {
		if p.Tier2Analyses[i].Key == key {
			return &p.Tier2Analyses[i]
		}
	}
	return nil
}

// CategoryAnalysis is one Phase-1.5 per-category deep dive.
type CategoryAnalysis struct {
	Category          string    `json:"category"`
	Summary           string    `json:"summary"`
	Strengths         []string  `json:"strengths"`
	Weaknesses        []string  `json:"weaknesses"`
	QuickWins         []string  `json:"quick_wins"`
	Score             float64   `json:"score"` // [0, 100]
	Confidence        string    `json:"confidence"`
	FallbackGenerated bool      `json:"fallback_generated"`
	FallbackReason    string    `json:"fallback_reason,omitempty"`
	Model             string    `json:"model,omitempty"`
	GeneratedAt       time.Time `json:"generated_at"`
}

// RecoveryRecord logs one fallback substitution for audit.
type RecoveryRecord struct {
	Category  string    `json:"category"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// RecoveryStats aggregates fallback activity for a run. It is surfaced to
// operators rather than silently absorbed.
type RecoveryStats struct {
	TotalCategories int              `json:"total_categories"`
	FallbackCount   int              `json:"fallback_count"`
	Records         []RecoveryRecord `json:"records,omitempty"`
}

// FallbackRate returns the fraction of categories served by fallbacks.
func (r RecoveryStats) FallbackRate() float64 {
	if r.TotalCategories == 0 {
		return 0
	}
	return float64(r.FallbackCount) / float64(r.TotalCategories)
}

// Phase15Output is the persisted Phase-1.5 artifact. Analyses always holds
// exactly one entry per registered category; failed analyses are
// substituted by fallbacks, never dropped.
type Phase15Output struct {
	AssessmentRunID string             `json:"assessment_run_id"`
	SchemaVersion   string             `json:"schema_version"`
	Analyses        []CategoryAnalysis `json:"analyses"`
	Recovery        RecoveryStats      `json:"recovery"`
	GeneratedAt     time.Time          `json:"generated_at"`
}

// AnalysisFor returns the category analysis for code, or nil.
func (p *Phase15Output) AnalysisFor(code string) *CategoryAnalysis {
	for i := range p.Analyses {
		if p.Analyses[i].Category == code {
			return &p.Analyses[i]
		}
	}
	return nil
}

// Recommendation is one Phase-2 prioritized recommendation.
type Recommendation struct {
	Title             string   `json:"title"`
	Category          string   `json:"category"`
	Priority          int      `json:"priority"` // 1 = highest
	Impact            string   `json:"impact"`   // "high", "medium", "low"
	Effort            string   `json:"effort"`
	Rationale         string   `json:"rationale"`
	DependsOn         []string `json:"depends_on,omitempty"`
	FallbackGenerated bool     `json:"fallback_generated"`
}

// Phase2Results is the persisted Phase-2 artifact.
type Phase2Results struct {
	AssessmentRunID string           `json:"assessment_run_id"`
	SchemaVersion   string           `json:"schema_version"`
	Recommendations []Recommendation `json:"recommendations"`
	GeneratedAt     time.Time        `json:"generated_at"`
}

// AudienceNarrative is a Phase-3 narrative targeted at one report audience.
type AudienceNarrative struct {
	Audience          string `json:"audience"` // "executive", "management", "advisor"
	Headline          string `json:"headline"`
	Body              string `json:"body"`
	FallbackGenerated bool   `json:"fallback_generated"`
}

// Phase3Output is the persisted Phase-3 artifact.
type Phase3Output struct {
	AssessmentRunID string              `json:"assessment_run_id"`
	SchemaVersion   string              `json:"schema_version"`
	Narratives      []AudienceNarrative `json:"narratives"`
	GeneratedAt     time.Time           `json:"generated_at"`
}

// RootCause is a node in the synthesis root-cause hierarchy.
type RootCause struct {
	Statement  string      `json:"statement"`
	Categories []string    `json:"categories"`
	Children   []RootCause `json:"children,omitempty"`
}

// Depth returns the depth of the hierarchy rooted at r (a leaf is 1).
func (r RootCause) Depth() int {
	max := 0
	for _, c := range r.Children {
		if d := c.Depth(); d > max {
			max = d
		}
	}
	return max + 1
}

// CascadeRisk is one cross-category risk propagation path.
type CascadeRisk struct {
	Path        []string `json:"path"` // ordered category codes
	Description string   `json:"description"`
	Severity    string   `json:"severity"`
}

// LeveragePoint is a high-impact intervention identified by synthesis.
type LeveragePoint struct {
	Title      string   `json:"title"`
	Categories []string `json:"categories"`
	Rationale  string   `json:"rationale"`
}

// ScorecardEntry is one row of the synthesis health scorecard.
type ScorecardEntry struct {
	Category string  `json:"category"`
	Score    float64 `json:"score"`
	Grade    string  `json:"grade"`
	Trend    string  `json:"trend,omitempty"`
}

// CrossDimensionalSynthesis is the Phase-4 artifact. It must pass both the
// pre-generation and post-generation gates before entering the IDM; there
// is no bypass for fallback-derived content.
type CrossDimensionalSynthesis struct {
	AssessmentRunID     string           `json:"assessment_run_id"`
	SchemaVersion       string           `json:"schema_version"`
	RootCauses          []RootCause      `json:"root_causes"`
	CascadeRisks        []CascadeRisk    `json:"cascade_risks"`
	LeveragePoints      []LeveragePoint  `json:"leverage_points"`
	Scorecard           []ScorecardEntry `json:"scorecard"`
	Narrative           string           `json:"narrative"`
	LeadershipQuestions []string         `json:"leadership_questions"`
	FallbackGenerated   bool             `json:"fallback_generated"`
	GeneratedAt         time.Time        `json:"generated_at"`
}
