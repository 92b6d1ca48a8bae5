package model

import "time"

// IDMSchemaVersion tags the consolidated model layout.
const IDMSchemaVersion = "idm-v2"

// IDMCompany is the company section of the consolidated model.
type IDMCompany struct {
	CompanyProfileID string  `json:"company_profile_id"`
	Name             string  `json:"name"`
	Domain           string  `json:"domain"`
	Industry         string  `json:"industry"`
	EmployeeCount    int     `json:"employee_count"`
	AnnualRevenueUSD float64 `json:"annual_revenue_usd,omitempty"`
}

// IDMCategory is one consolidated category view: normalized metrics plus
// the deep-dive analysis, mapped deterministically with no AI involvement.
type IDMCategory struct {
	Category          string   `json:"category"`
	CompletionRate    float64  `json:"completion_rate"`
	WeightedScore     float64  `json:"weighted_score"`
	AnalysisScore     float64  `json:"analysis_score"`
	Summary           string   `json:"summary"`
	Strengths         []string `json:"strengths"`
	Weaknesses        []string `json:"weaknesses"`
	QuickWins         []string `json:"quick_wins"`
	InsufficientData  bool     `json:"insufficient_data"`
	FallbackGenerated bool     `json:"fallback_generated"`
}

// IDM is the Insights Data Model: the canonical consolidation of Phase 0-4
// outputs and the sole input to report rendering. Immutable once emitted
// for a given run.
type IDM struct {
	SchemaVersion   string                     `json:"schema_version"`
	AssessmentRunID string                     `json:"assessment_run_id"`
	Company         IDMCompany                 `json:"company"`
	Categories      []IDMCategory              `json:"categories"`
	Strategic       []StrategicAnalysis        `json:"strategic_analyses"`
	Recommendations []Recommendation           `json:"recommendations"`
	Narratives      []AudienceNarrative        `json:"narratives"`
	Synthesis       *CrossDimensionalSynthesis `json:"synthesis"`
	Recovery        RecoveryStats              `json:"recovery"`
	GeneratedAt     time.Time                  `json:"generated_at"`
}
