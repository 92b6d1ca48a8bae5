package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/assessment-cli/internal/config"
	"github.com/sells-group/assessment-cli/internal/index"
	"github.com/sells-group/assessment-cli/internal/model"
	"github.com/sells-group/assessment-cli/internal/rawstore"
	"github.com/sells-group/assessment-cli/internal/registry"
	"github.com/sells-group/assessment-cli/pkg/anthropic"
)

// Schema versions stamped on phase artifacts.
const (
	phase1SchemaVersion  = "p1-v1"
	phase15SchemaVersion = "p15-v1"
	phase2SchemaVersion  = "p2-v1"
	phase3SchemaVersion  = "p3-v1"
	phase4SchemaVersion  = "p4-v1"
)

// Pipeline orchestrates assessment phases 0 through 5.
type Pipeline struct {
	cfg       *config.Config
	reg       *registry.Registry
	raw       *rawstore.Store
	artifacts *Artifacts
	idx       *index.Service
	ai        *anthropic.Submitter
}

// New creates a Pipeline with all dependencies.
func New(cfg *config.Config, reg *registry.Registry, raw *rawstore.Store, artifacts *Artifacts, idx *index.Service, ai *anthropic.Submitter) *Pipeline {
	return &Pipeline{
		cfg:       cfg,
		reg:       reg,
		raw:       raw,
		artifacts: artifacts,
		idx:       idx,
		ai:        ai,
	}
}

// phaseFunc executes one phase's work: load inputs, process, validate,
// persist artifacts, register them in the index. The runner owns status
// transitions around it.
type phaseFunc func(ctx context.Context, st *stage, entry *model.AssessmentIndexEntry) error

func (p *Pipeline) phaseFuncs() map[model.Phase]phaseFunc {
	return map[model.Phase]phaseFunc{
		model.Phase0:  p.runPhase0,
		model.Phase1:  p.runPhase1,
		model.Phase15: p.runPhase15,
		model.Phase2:  p.runPhase2,
		model.Phase3:  p.runPhase3,
		model.Phase4:  p.runPhase4,
		model.Phase5:  p.runPhase5,
	}
}

// stage tracks the in-memory state machine of one executing phase.
type stage struct {
	runID string
	phase model.Phase
	state model.StageState
	log   *zap.Logger
}

func newStage(runID string, phase model.Phase) *stage {
	return &stage{
		runID: runID,
		phase: phase,
		state: model.StageNotStarted,
		log: zap.L().With(
			zap.String("run_id", runID),
			zap.String("phase", string(phase)),
		),
	}
}

// transition advances the stage state machine; transitions are logged,
// not persisted. The index carries the durable phase status.
func (s *stage) transition(next model.StageState) {
	s.log.Debug("pipeline: stage transition",
		zap.String("from", string(s.state)),
		zap.String("to", string(next)),
	)
	s.state = next
}

// RunPhase executes a single phase for a run: prerequisite check, status
// transitions, wall-clock budget, and failure accounting. Artifacts are
// durably written before the phase is marked complete.
func (p *Pipeline) RunPhase(ctx context.Context, runID string, phase model.Phase) error {
	fn, ok := p.phaseFuncs()[phase]
	if !ok {
		return eris.Errorf("pipeline: unknown phase %q", phase)
	}

	if err := p.idx.CheckPrerequisite(ctx, runID, phase); err != nil {
		return err
	}

	entry, err := p.idx.Get(ctx, runID)
	if err != nil {
		return err
	}
	if entry.PhaseStatus[phase] == model.PhaseStatusComplete {
		zap.L().Info("pipeline: phase already complete",
			zap.String("run_id", runID),
			zap.String("phase", string(phase)),
		)
		return nil
	}

	if err := p.idx.UpdateStatus(ctx, runID, phase, model.PhaseStatusInProgress, "", false); err != nil {
		return err
	}

	st := newStage(runID, phase)
	st.transition(model.StageAwaitingInput)

	budget := p.cfg.Phases.Timeout(string(phase))
	phaseCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	start := time.Now()
	err = fn(phaseCtx, st, entry)
	duration := time.Since(start)

	if err != nil {
		err = p.classifyPhaseErr(ctx, phaseCtx, err)
		st.transition(model.StageFailed)
		// The failed status must land even when the operator cancelled the
		// run; a phase stuck at in_progress can never be re-run.
		failCtx := context.WithoutCancel(ctx)
		if statusErr := p.idx.UpdateStatus(failCtx, runID, phase, model.PhaseStatusFailed, err.Error(), false); statusErr != nil {
			st.log.Warn("pipeline: failed to record phase failure", zap.Error(statusErr))
		}
		st.log.Error("pipeline: phase failed",
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return err
	}

	st.transition(model.StageComplete)
	if err := p.idx.UpdateStatus(ctx, runID, phase, model.PhaseStatusComplete, "", false); err != nil {
		return err
	}
	st.log.Info("pipeline: phase complete", zap.Duration("duration", duration))
	return nil
}

// classifyPhaseErr maps context expiry onto the pipeline error taxonomy.
// The parent context is consulted so an operator cancel is reported as
// "cancelled" rather than a timeout.
func (p *Pipeline) classifyPhaseErr(parent, phaseCtx context.Context, err error) error {
	if errors.Is(parent.Err(), context.Canceled) {
		return eris.Wrap(err, "cancelled")
	}
	if errors.Is(phaseCtx.Err(), context.DeadlineExceeded) {
		return eris.Wrap(ErrPhaseTimeout, err.Error())
	}
	return err
}

// RunRange executes phases in order, stopping at the first failure.
func (p *Pipeline) RunRange(ctx context.Context, runID string, phases []model.Phase) error {
	for _, phase := range phases {
		if err := p.RunPhase(ctx, runID, phase); err != nil {
			return err
		}
	}
	return nil
}

// RunAll executes every phase in order.
func (p *Pipeline) RunAll(ctx context.Context, runID string) error {
	return p.RunRange(ctx, runID, model.PhaseOrder)
}

// --- artifact load helpers ---

func (p *Pipeline) loadProfile(entry *model.AssessmentIndexEntry) (*model.NormalizedCompanyProfile, error) {
	var profile model.NormalizedCompanyProfile
	key, ok := entry.ArtifactKeys[ArtifactCompanyProfile]
	if !ok {
		return nil, eris.Errorf("pipeline: run %s has no %s artifact", entry.AssessmentRunID, ArtifactCompanyProfile)
	}
	if err := p.artifacts.Read(key, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

func (p *Pipeline) loadQuestionnaire(entry *model.AssessmentIndexEntry) (*model.NormalizedQuestionnaireResponses, error) {
	var q model.NormalizedQuestionnaireResponses
	key, ok := entry.ArtifactKeys[ArtifactQuestionnaire]
	if !ok {
		return nil, eris.Errorf("pipeline: run %s has no %s artifact", entry.AssessmentRunID, ArtifactQuestionnaire)
	}
	if err := p.artifacts.Read(key, &q); err != nil {
		return nil, err
	}
	return &q, nil
}

// LoadArtifact decodes the named artifact for entry into v. It is the
// read path used by callers outside the phase functions, such as the
// deliverable endpoint.
func (p *Pipeline) LoadArtifact(entry *model.AssessmentIndexEntry, name string, v any) error {
	return p.loadArtifact(entry, name, v)
}

func (p *Pipeline) loadArtifact(entry *model.AssessmentIndexEntry, name string, v any) error {
	key, ok := entry.ArtifactKeys[name]
	if !ok {
		return eris.Errorf("pipeline: run %s has no %s artifact", entry.AssessmentRunID, name)
	}
	return p.artifacts.Read(key, v)
}

// maxArtifactAttempts bounds the attempt suffix search during a re-run.
const maxArtifactAttempts = 100

// persistArtifact writes an artifact and registers it in the index, in
// that order. The index never references bytes that do not exist. A phase
// re-run mints a fresh attempt suffix instead of patching the prior file;
// the index always points at the newest key and earlier attempts stay on
// disk.
func (p *Pipeline) persistArtifact(ctx context.Context, entry *model.AssessmentIndexEntry, name, version string, v any) error {
	var key string
	for attempt := 1; ; attempt++ {
		key = p.artifacts.Key(entry.CompanyProfileID, entry.AssessmentRunID, name, attemptVersion(version, attempt))
		err := p.artifacts.Write(key, v)
		if err == nil {
			break
		}
		if !eris.Is(err, rawstore.ErrDuplicateWrite) || attempt >= maxArtifactAttempts {
			return err
		}
	}
	if err := p.idx.SetArtifact(ctx, entry.AssessmentRunID, name, key, version); err != nil {
		return err
	}
	entry.ArtifactKeys[name] = key
	return nil
}

// attemptVersion suffixes the schema version with the re-run attempt.
// The first attempt keeps the bare version.
func attemptVersion(version string, attempt int) string {
	if attempt == 1 {
		return version
	}
	return fmt.Sprintf("%s.r%d", version, attempt)
}
