package pipeline

import (
	"context"
	"sort"
	"time"

	"github.com/sells-group/assessment-cli/internal/model"
	"github.com/sells-group/assessment-cli/pkg/anthropic"
)

// runPhase2 produces prioritized recommendations from the Phase 1 and
// Phase 1.5 artifacts.
func (p *Pipeline) runPhase2(ctx context.Context, st *stage, entry *model.AssessmentIndexEntry) error {
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

	st.transition(model.StageProcessing)

	req := anthropic.BatchRequest{
		Requests: []anthropic.BatchRequestItem{{
			CustomID: "recommendations",
			Params:   p.messageRequest(analysisSystemPrompt, buildRecommendationsPrompt(profile, questionnaire, &p1, &p15)),
		}},
	}
	result, err := p.runBatch(ctx, entry, model.Phase2, req)
	if err != nil {
		return err
	}

	var recommendations []model.Recommendation
	if resp, ok := result.Succeeded["recommendations"]; ok {
		recommendations, err = parseRecommendations(resp)
		if err == nil {
			resp.Usage.LogCost(resp.Model, string(model.Phase2))
		}
	}
	if recommendations == nil {
		// Deterministic substitute: one recommendation per weak category,
		// ranked by ascending analysis score.
		p.auditFallback(ctx, entry.AssessmentRunID, model.Phase2, "recommendations", "generation failed")
		recommendations = buildFallbackRecommendations(&p15)
	}

	st.transition(model.StageValidating)

	sort.SliceStable(recommendations, func(i, j int) bool {
		return recommendations[i].Priority < recommendations[j].Priority
	})

	results := &model.Phase2Results{
		AssessmentRunID: entry.AssessmentRunID,
		SchemaVersion:   phase2SchemaVersion,
		Recommendations: recommendations,
		GeneratedAt:     time.Now().UTC(),
	}
	return p.persistArtifact(ctx, entry, ArtifactPhase2, phase2SchemaVersion, results)
}
