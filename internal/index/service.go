package index

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/assessment-cli/internal/model"
)

// Service layers the phase-status rules over a Store. All writers for a
// given run are serialized through a per-run mutex, so read-validate-write
// updates are safe without database-level locking.
type Service struct {
	store Store

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewService wraps store.
func NewService(store Store) *Service {
	return &Service{
		store: store,
		locks: make(map[string]*sync.Mutex),
	}
}

// Store exposes the underlying store for read-only queries.
func (s *Service) Store() Store {
	return s.store
}

func (s *Service) runLock(runID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[runID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[runID] = l
	}
	return l
}

// Register creates the index entry for a new run with every phase pending.
func (s *Service) Register(ctx context.Context, runID, companyProfileID string) (*model.AssessmentIndexEntry, error) {
	now := time.Now().UTC()
	entry := &model.AssessmentIndexEntry{
		AssessmentRunID:  runID,
		CompanyProfileID: companyProfileID,
		ArtifactKeys:     make(map[string]string),
		PhaseStatus:      make(map[model.Phase]model.PhaseStatus),
		Versions:         make(map[string]string),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	for _, p := range model.PhaseOrder {
		entry.PhaseStatus[p] = model.PhaseStatusPending
	}

	if err := s.store.CreateEntry(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// Get returns the index entry for runID.
func (s *Service) Get(ctx context.Context, runID string) (*model.AssessmentIndexEntry, error) {
	return s.store.GetEntry(ctx, runID)
}

// UpdateStatus moves a phase's status along the monotonic lattice.
// Transitions that would move backwards or leave a terminal state return
// ErrInvalidTransition unless force is set. Every accepted transition is
// recorded in the audit trail.
func (s *Service) UpdateStatus(ctx context.Context, runID string, phase model.Phase, status model.PhaseStatus, phaseErr string, force bool) error {
	if !phase.Valid() {
		return eris.Errorf("index: unknown phase %q", phase)
	}

	l := s.runLock(runID)
	l.Lock()
	defer l.Unlock()

	entry, err := s.store.GetEntry(ctx, runID)
	if err != nil {
		return err
	}

	current := entry.PhaseStatus[phase]
	if !force && !current.CanTransition(status) {
		return eris.Wrapf(ErrInvalidTransition, "run %s phase %s: %s -> %s", runID, phase, current, status)
	}

	entry.PhaseStatus[phase] = status
	if phaseErr != "" {
		if entry.PhaseErrors == nil {
			entry.PhaseErrors = make(map[model.Phase]string)
		}
		entry.PhaseErrors[phase] = phaseErr
	} else if status == model.PhaseStatusComplete {
		delete(entry.PhaseErrors, phase)
	}
	entry.UpdatedAt = time.Now().UTC()

	if err := s.store.PutEntry(ctx, entry); err != nil {
		return err
	}

	auditCtx := map[string]any{"from": string(current), "to": string(status)}
	if phaseErr != "" {
		auditCtx["error"] = phaseErr
	}
	if force {
		auditCtx["forced"] = true
	}
	if err := s.store.AppendAudit(ctx, &model.AuditEvent{
		AssessmentRunID: runID,
		Phase:           phase,
		Kind:            "phase_status_change",
		Context:         auditCtx,
	}); err != nil {
		zap.L().Warn("index: audit append failed",
			zap.String("run_id", runID),
			zap.String("phase", string(phase)),
			zap.Error(err),
		)
	}

	zap.L().Info("index: phase status",
		zap.String("run_id", runID),
		zap.String("phase", string(phase)),
		zap.String("from", string(current)),
		zap.String("to", string(status)),
	)
	return nil
}

// SetArtifact records an artifact's storage key and version on the entry.
// Callers invoke this after the artifact bytes are durably written, so a
// key present in the index always refers to an existing artifact.
func (s *Service) SetArtifact(ctx context.Context, runID, name, key, version string) error {
	l := s.runLock(runID)
	l.Lock()
	defer l.Unlock()

	entry, err := s.store.GetEntry(ctx, runID)
	if err != nil {
		return err
	}
	if entry.ArtifactKeys == nil {
		entry.ArtifactKeys = make(map[string]string)
	}
	if entry.Versions == nil {
		entry.Versions = make(map[string]string)
	}
	entry.ArtifactKeys[name] = key
	entry.Versions[name] = version
	entry.UpdatedAt = time.Now().UTC()

	return s.store.PutEntry(ctx, entry)
}

// FlagManualReview marks the run for operator attention and records why.
func (s *Service) FlagManualReview(ctx context.Context, runID string, phase model.Phase, reason string) error {
	l := s.runLock(runID)
	l.Lock()
	defer l.Unlock()

	entry, err := s.store.GetEntry(ctx, runID)
	if err != nil {
		return err
	}
	entry.ManualReview = true
	entry.UpdatedAt = time.Now().UTC()

	if err := s.store.PutEntry(ctx, entry); err != nil {
		return err
	}

	if err := s.store.AppendAudit(ctx, &model.AuditEvent{
		AssessmentRunID: runID,
		Phase:           phase,
		Kind:            "manual_review_flagged",
		Context:         map[string]any{"reason": reason},
	}); err != nil {
		zap.L().Warn("index: audit append failed",
			zap.String("run_id", runID),
			zap.Error(err),
		)
	}

	zap.L().Warn("index: run flagged for manual review",
		zap.String("run_id", runID),
		zap.String("phase", string(phase)),
		zap.String("reason", reason),
	)
	return nil
}

// CheckPrerequisite verifies the predecessor phase is complete in the
// index. Artifact presence on disk is not consulted; the index is the
// source of truth for phase completion.
func (s *Service) CheckPrerequisite(ctx context.Context, runID string, phase model.Phase) error {
	pred := phase.Predecessor()
	if pred == "" {
		return nil
	}

	entry, err := s.store.GetEntry(ctx, runID)
	if err != nil {
		return err
	}
	if entry.PhaseStatus[pred] != model.PhaseStatusComplete {
		return eris.Wrapf(ErrPrerequisiteNotMet, "run %s phase %s requires %s complete, found %s",
			runID, phase, pred, entry.PhaseStatus[pred])
	}
	return nil
}

// Audit appends an event to the run's audit trail.
func (s *Service) Audit(ctx context.Context, ev *model.AuditEvent) error {
	return s.store.AppendAudit(ctx, ev)
}
