package pipeline

import (
	"context"
	"time"

	"github.com/sells-group/assessment-cli/internal/model"
	"github.com/sells-group/assessment-cli/pkg/anthropic"
)

// runPhase3 generates one narrative per report audience. All three
// narratives are dispatched in a single provider batch; a failed item is
// replaced with a deterministic fallback so the artifact always carries
// every audience.
func (p *Pipeline) runPhase3(ctx context.Context, st *stage, entry *model.AssessmentIndexEntry) error {
	profile, err := p.loadProfile(entry)
	if err != nil {
		return err
	}
	questionnaire, err := p.loadQuestionnaire(entry)
	if err != nil {
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

	st.transition(model.StageProcessing)

	req := anthropic.BatchRequest{}
	for _, audience := range reportAudiences {
		req.Requests = append(req.Requests, anthropic.BatchRequestItem{
			CustomID: audience,
			Params:   p.messageRequest(analysisSystemPrompt, buildNarrativePrompt(audience, profile, questionnaire, &p15, &p2)),
		})
	}
	result, err := p.runBatch(ctx, entry, model.Phase3, req)
	if err != nil {
		return err
	}

	st.transition(model.StageValidating)

	narratives := make([]model.AudienceNarrative, 0, len(reportAudiences))
	for _, audience := range reportAudiences {
		resp, ok := result.Succeeded[audience]
		if !ok {
			p.auditFallback(ctx, entry.AssessmentRunID, model.Phase3, audience, "batch item failed")
			narratives = append(narratives, buildFallbackNarrative(audience, profile, &p15))
			continue
		}
		narrative, parseErr := parseNarrative(resp, audience)
		if parseErr != nil {
			p.auditFallback(ctx, entry.AssessmentRunID, model.Phase3, audience, "schema validation failed")
			narratives = append(narratives, buildFallbackNarrative(audience, profile, &p15))
			continue
		}
		resp.Usage.LogCost(resp.Model, string(model.Phase3))
		narratives = append(narratives, *narrative)
	}

	output := &model.Phase3Output{
		AssessmentRunID: entry.AssessmentRunID,
		SchemaVersion:   phase3SchemaVersion,
		Narratives:      narratives,
		GeneratedAt:     time.Now().UTC(),
	}
	return p.persistArtifact(ctx, entry, ArtifactPhase3, phase3SchemaVersion, output)
}
