package model

import (
	"encoding/json"
	"time"
)

// RawAssessment is the immutable record of a single intake submission.
// Once written for a (CompanyProfileID, AssessmentRunID) pair it is never
// overwritten; a second write is a contract violation.
type RawAssessment struct {
	CompanyProfileID  string          `json:"company_profile_id"`
	AssessmentRunID   string          `json:"assessment_run_id"`
	RawCompanyProfile json.RawMessage `json:"raw_company_profile"`
	RawQuestionnaire  json.RawMessage `json:"raw_questionnaire"`
	ContentHash       string          `json:"content_hash"`
	PayloadHash       string          `json:"payload_hash"`
	CreatedAt         time.Time       `json:"created_at"`
}

// NormalizedCompanyProfile is the validated, versioned company profile
// derived from a RawAssessment.
type NormalizedCompanyProfile struct {
	CompanyProfileID      string    `json:"company_profile_id"`
	AssessmentRunID       string    `json:"assessment_run_id"`
	TransformationVersion string    `json:"transformation_version"`
	CompanyName           string    `json:"company_name"`
	Domain                string    `json:"domain"`
	Industry              string    `json:"industry"`
	EmployeeCount         int       `json:"employee_count"`
	AnnualRevenueUSD      float64   `json:"annual_revenue_usd,omitempty"`
	YearsInBusiness       int       `json:"years_in_business,omitempty"`
	Region                string    `json:"region,omitempty"`
	CreatedAt             time.Time `json:"created_at"`
}

// QuestionResponse is a single normalized questionnaire answer.
type QuestionResponse struct {
	QuestionKey string  `json:"question_key"`
	Category    string  `json:"category"`
	Score       float64 `json:"score"`      // normalized to [0, 5]
	RawAnswer   string  `json:"raw_answer"` // original answer text
	Weight      float64 `json:"weight"`
}

// CategoryResponses aggregates a category's answers with derived metrics.
// Derived metrics are computed exactly once during normalization and
// carried forward; downstream phases never recompute them from raw data.
type CategoryResponses struct {
	Category         string             `json:"category"`
	Responses        []QuestionResponse `json:"responses"`
	ExpectedCount    int                `json:"expected_count"`
	AnsweredCount    int                `json:"answered_count"`
	CompletionRate   float64            `json:"completion_rate"`
	WeightedScore    float64            `json:"weighted_score"`
	InsufficientData bool               `json:"insufficient_data"`
}

// NormalizedQuestionnaireResponses is the validated, versioned questionnaire
// derived from a RawAssessment.
type NormalizedQuestionnaireResponses struct {
	CompanyProfileID      string              `json:"company_profile_id"`
	AssessmentRunID       string              `json:"assessment_run_id"`
	TransformationVersion string              `json:"transformation_version"`
	RegistryVersion       string              `json:"registry_version"`
	Categories            []CategoryResponses `json:"categories"`
	TotalExpected         int                 `json:"total_expected"`
	TotalAnswered         int                 `json:"total_answered"`
	CompletionRate        float64             `json:"completion_rate"`
	CreatedAt             time.Time           `json:"created_at"`
}

// CategoryByCode returns the CategoryResponses for code, or nil.
func (n *NormalizedQuestionnaireResponses) CategoryByCode(code string) *CategoryResponses {
	for i := range n.Categories {
		if n.Categories[i].Category == code {
			return &n.Categories[i]
		}
	}
	return nil
}

// AssessmentIndexEntry is the per-run bookkeeping record: which normalized
// artifacts exist, at what versions, and each phase's completion status.
type AssessmentIndexEntry struct {
	AssessmentRunID  string                `json:"assessment_run_id"`
	CompanyProfileID string                `json:"company_profile_id"`
	ArtifactKeys     map[string]string     `json:"artifact_keys"` // artifact name → storage key
	PhaseStatus      map[Phase]PhaseStatus `json:"phase_status"`
	PhaseErrors      map[Phase]string      `json:"phase_errors,omitempty"`
	Versions         map[string]string     `json:"versions"` // artifact name → version tag
	ManualReview     bool                  `json:"manual_review"`
	CreatedAt        time.Time             `json:"created_at"`
	UpdatedAt        time.Time             `json:"updated_at"`
}

// DeliverableReady reports whether the run may be handed to report
// rendering: Phase 4 complete (synthesis validated) and Phase 5 complete.
func (e *AssessmentIndexEntry) DeliverableReady() bool {
	return e.PhaseStatus[Phase4] == PhaseStatusComplete &&
		e.PhaseStatus[Phase5] == PhaseStatusComplete
}

// BatchJobStatus is the lifecycle state of a provider batch job.
type BatchJobStatus string

const (
	BatchJobSubmitted  BatchJobStatus = "submitted"
	BatchJobInProgress BatchJobStatus = "in_progress"
	BatchJobEnded      BatchJobStatus = "ended"
	BatchJobErrored    BatchJobStatus = "errored"
	BatchJobCancelled  BatchJobStatus = "cancelled"
)

// BatchJobRecord tracks a provider batch job owned by the analysis client.
type BatchJobRecord struct {
	JobID           string         `json:"job_id"`
	ProviderBatchID string         `json:"provider_batch_id"`
	AssessmentRunID string         `json:"assessment_run_id"`
	Phase           Phase          `json:"phase"`
	RequestCount    int            `json:"request_count"`
	Status          BatchJobStatus `json:"status"`
	PollAttempts    int            `json:"poll_attempts"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// AuditEvent records an operator-visible pipeline event. No error is
// swallowed without one of these.
type AuditEvent struct {
	ID              string         `json:"id"`
	AssessmentRunID string         `json:"assessment_run_id"`
	Phase           Phase          `json:"phase"`
	Kind            string         `json:"kind"`
	Context         map[string]any `json:"context,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
}
