package pipeline

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/assessment-cli/internal/model"
	"github.com/sells-group/assessment-cli/pkg/anthropic"
)

// runPhase4 produces the cross-dimensional synthesis. Both validation
// gates are hard stops: a run that fails either gate is marked failed and
// never reaches consolidation.
func (p *Pipeline) runPhase4(ctx context.Context, st *stage, entry *model.AssessmentIndexEntry) error {
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

	st.transition(model.StageValidating)

	pre := ValidatePreGeneration(&p15, questionnaire, p.reg, p.cfg.Thresholds)
	if err := p.auditGate(ctx, entry.AssessmentRunID, "synthesis_pre_generation_gate", pre); err != nil {
		zap.L().Warn("pipeline: gate audit failed", zap.Error(err))
	}
	if !pre.OK {
		return eris.Errorf("pipeline: pre-generation gate failed: %d missing categories, %d sufficient of %d required",
			len(pre.MissingCategories), pre.SufficientCount, p.cfg.Thresholds.MinSufficientCategories)
	}

	st.transition(model.StageProcessing)

	// Synthesis is a single large-context call on the synthesis model, not
	// a batch item.
	resp, err := p.ai.SendMessage(ctx, anthropic.MessageRequest{
		Model:     p.cfg.Anthropic.SynthesisModel,
		MaxTokens: p.cfg.Anthropic.MaxTokens,
		System:    anthropic.BuildCachedSystemBlocks(synthesisSystemPrompt),
		Messages: []anthropic.Message{
			{Role: "user", Content: buildSynthesisPrompt(profile, questionnaire, &p1, &p15, &p2)},
		},
	})
	if err != nil {
		return eris.Wrap(err, "pipeline: synthesis generation")
	}

	syn, err := parseSynthesis(resp)
	if err != nil {
		return err
	}
	syn.AssessmentRunID = entry.AssessmentRunID
	syn.SchemaVersion = phase4SchemaVersion
	syn.GeneratedAt = time.Now().UTC()
	resp.Usage.LogCost(resp.Model, string(model.Phase4))

	st.transition(model.StageValidating)

	post := ValidatePostGeneration(syn, p.cfg.Thresholds)
	if err := p.auditGate(ctx, entry.AssessmentRunID, "synthesis_post_generation_gate", post); err != nil {
		zap.L().Warn("pipeline: gate audit failed", zap.Error(err))
	}
	if !post.OK {
		return eris.Errorf("pipeline: post-generation gate failed: %s", strings.Join(post.Errors, "; "))
	}

	return p.persistArtifact(ctx, entry, ArtifactSynthesis, phase4SchemaVersion, syn)
}

// auditGate records a gate outcome in the audit trail.
func (p *Pipeline) auditGate(ctx context.Context, runID, kind string, result any) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "pipeline: marshal gate result")
	}
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return eris.Wrap(err, "pipeline: decode gate result")
	}
	return p.idx.Audit(ctx, &model.AuditEvent{
		AssessmentRunID: runID,
		Phase:           model.Phase4,
		Kind:            kind,
		Context:         payload,
	})
}
