package index

import (
	"context"
	"errors"

	"github.com/sells-group/assessment-cli/internal/model"
)

// ErrRunNotFound indicates the assessment run has no index entry.
var ErrRunNotFound = errors.New("index: run not found")

// ErrDuplicateRun indicates an index entry already exists for the run.
var ErrDuplicateRun = errors.New("index: duplicate run")

// ErrInvalidTransition indicates a phase status update that would move
// backwards along the status lattice or leave a terminal state.
var ErrInvalidTransition = errors.New("index: invalid phase status transition")

// ErrPrerequisiteNotMet indicates a phase was started before its
// predecessor completed.
var ErrPrerequisiteNotMet = errors.New("index: prerequisite phase not complete")

// Filter specifies criteria for listing index entries.
type Filter struct {
	CompanyProfileID string `json:"company_profile_id,omitempty"`
	ManualReview     *bool  `json:"manual_review,omitempty"`
	Limit            int    `json:"limit,omitempty"`
	Offset           int    `json:"offset,omitempty"`
}

// Store defines the persistence interface for the assessment index.
// Implementations persist entries whole; the typed phase-status rules
// live in Service, which serializes writers per run.
type Store interface {
	// Index entries
	CreateEntry(ctx context.Context, entry *model.AssessmentIndexEntry) error
	PutEntry(ctx context.Context, entry *model.AssessmentIndexEntry) error
	GetEntry(ctx context.Context, runID string) (*model.AssessmentIndexEntry, error)
	ListEntries(ctx context.Context, filter Filter) ([]model.AssessmentIndexEntry, error)

	// Provider batch jobs
	CreateBatchJob(ctx context.Context, rec *model.BatchJobRecord) error
	UpdateBatchJob(ctx context.Context, jobID string, status model.BatchJobStatus, pollAttempts int) error
	ListBatchJobs(ctx context.Context, runID string) ([]model.BatchJobRecord, error)

	// Audit trail
	AppendAudit(ctx context.Context, ev *model.AuditEvent) error
	ListAudit(ctx context.Context, runID string) ([]model.AuditEvent, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
