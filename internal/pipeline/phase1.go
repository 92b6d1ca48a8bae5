package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/assessment-cli/internal/model"
	"github.com/sells-group/assessment-cli/pkg/anthropic"
)

// runPhase1 produces the 10 strategic analyses in two tiers of 5. Tier 1
// is dispatched as one provider batch; Tier 2 dispatches only after every
// Tier-1 result, including fallbacks, has settled, with the Tier-1
// findings as context.
func (p *Pipeline) runPhase1(ctx context.Context, st *stage, entry *model.AssessmentIndexEntry) error {
	profile, err := p.loadProfile(entry)
	if err != nil {
		return err
	}
	questionnaire, err := p.loadQuestionnaire(entry)
	if err != nil {
		return err
	}

	st.transition(model.StageProcessing)

	tier1, err := p.runAnalysisTier(ctx, entry, tier1Keys, model.Tier1, profile, questionnaire, nil)
	if err != nil {
		return err
	}

	// Barrier: Tier 2 sees the complete Tier-1 result set.
	tier2, err := p.runAnalysisTier(ctx, entry, tier2Keys, model.Tier2, profile, questionnaire, tier1)
	if err != nil {
		return err
	}

	st.transition(model.StageValidating)

	results := &model.Phase1Results{
		AssessmentRunID: entry.AssessmentRunID,
		SchemaVersion:   phase1SchemaVersion,
		Tier1Analyses:   tier1,
		Tier2Analyses:   tier2,
		GeneratedAt:     time.Now().UTC(),
	}
	return p.persistArtifact(ctx, entry, ArtifactPhase1, phase1SchemaVersion, results)
}

// runAnalysisTier dispatches one tier as a single batch and returns one
// analysis per key; failed or invalid items are replaced by fallbacks.
func (p *Pipeline) runAnalysisTier(ctx context.Context, entry *model.AssessmentIndexEntry, keys []string, tier int, profile *model.NormalizedCompanyProfile, questionnaire *model.NormalizedQuestionnaireResponses, tier1Context []model.StrategicAnalysis) ([]model.StrategicAnalysis, error) {
	req := anthropic.BatchRequest{}
	for _, key := range keys {
		req.Requests = append(req.Requests, anthropic.BatchRequestItem{
			CustomID: key,
			Params:   p.messageRequest(analysisSystemPrompt, buildStrategicPrompt(key, profile, questionnaire, tier1Context)),
		})
	}

	result, err := p.runBatch(ctx, entry, model.Phase1, req)
	if err != nil {
		return nil, err
	}

	analyses := make([]model.StrategicAnalysis, 0, len(keys))
	for _, key := range keys {
		resp, ok := result.Succeeded[key]
		if !ok {
			p.auditFallback(ctx, entry.AssessmentRunID, model.Phase1, key, "batch item failed")
			analyses = append(analyses, buildFallbackStrategicAnalysis(key, tier, questionnaire, "batch item failed"))
			continue
		}

		analysis, parseErr := parseStrategicAnalysis(resp, key, tier)
		if parseErr != nil {
			zap.L().Warn("pipeline: strategic analysis failed validation",
				zap.String("key", key),
				zap.Error(parseErr),
			)
			p.auditFallback(ctx, entry.AssessmentRunID, model.Phase1, key, "schema validation failed")
			analyses = append(analyses, buildFallbackStrategicAnalysis(key, tier, questionnaire, "schema validation failed"))
			continue
		}

		analysis.GeneratedAt = time.Now().UTC()
		resp.Usage.LogCost(resp.Model, string(model.Phase1))
		analyses = append(analyses, *analysis)
	}
	return analyses, nil
}

func (p *Pipeline) auditFallback(ctx context.Context, runID string, phase model.Phase, key, reason string) {
	if err := p.idx.Audit(context.WithoutCancel(ctx), &model.AuditEvent{
		AssessmentRunID: runID,
		Phase:           phase,
		Kind:            "fallback_substituted",
		Context:         map[string]any{"key": key, "reason": reason},
	}); err != nil {
		zap.L().Warn("pipeline: audit append failed",
			zap.String("run_id", runID),
			zap.Error(err),
		)
	}
}
