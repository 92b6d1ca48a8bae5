package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/assessment-cli/internal/model"
)

// runPhase5 consolidates every prior artifact into the integrated
// deliverable model. This phase is fully deterministic; no provider
// traffic occurs here.
func (p *Pipeline) runPhase5(ctx context.Context, st *stage, entry *model.AssessmentIndexEntry) error {
	profile, err := p.loadProfile(entry)
	if err != nil {
		return err
	}
	questionnaire, err := p.loadQuestionnaire(entry)
	if err != nil {
		return err
	}
	var p1 model.Phase1Results
	if err := p.loadArtifact(entry, ArtifactPhase1, &p1); err != nil {
		return err
	}
	var p15 model.Phase15Output
	if err := p.loadArtifact(entry, ArtifactPhase15, &p15); err != nil {
		return err
	}
	var p2 model.Phase2Results
	if err := p.loadArtifact(entry, ArtifactPhase2, &p2); err != nil {
		return err
	}
	var p3 model.Phase3Output
	if err := p.loadArtifact(entry, ArtifactPhase3, &p3); err != nil {
		return err
	}
	var syn model.CrossDimensionalSynthesis
	if err := p.loadArtifact(entry, ArtifactSynthesis, &syn); err != nil {
		return err
	}

	st.transition(model.StageProcessing)

	idm, err := Consolidate(profile, questionnaire, &p1, &p15, &p2, &p3, &syn, p.reg)
	if err != nil {
		return err
	}

	st.transition(model.StageValidating)

	if err := p.persistArtifact(ctx, entry, ArtifactIDM, model.IDMSchemaVersion, idm); err != nil {
		return err
	}

	if err := p.idx.Audit(ctx, &model.AuditEvent{
		AssessmentRunID: entry.AssessmentRunID,
		Phase:           model.Phase5,
		Kind:            "deliverable_ready",
		Context:         map[string]any{"artifact": ArtifactIDM, "schema_version": model.IDMSchemaVersion},
	}); err != nil {
		zap.L().Warn("pipeline: deliverable audit failed",
			zap.String("run_id", entry.AssessmentRunID),
			zap.Error(err),
		)
	}
	return nil
}
