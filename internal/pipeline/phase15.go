package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/assessment-cli/internal/model"
	"github.com/sells-group/assessment-cli/pkg/anthropic"
)

// runPhase15 produces one deep-dive analysis per registered category in a
// single batch. The output always carries exactly one entry per category;
// failed items are replaced by flagged fallbacks. A fallback rate at or
// above the configured threshold flags the run for manual review and
// fails the phase so it cannot advance silently.
func (p *Pipeline) runPhase15(ctx context.Context, st *stage, entry *model.AssessmentIndexEntry) error {
	profile, err := p.loadProfile(entry)
	if err != nil {
		return err
	}
	questionnaire, err := p.loadQuestionnaire(entry)
	if err != nil {
		return err
	}

	st.transition(model.StageProcessing)

	req := anthropic.BatchRequest{}
	for _, c := range p.reg.Categories {
		req.Requests = append(req.Requests, anthropic.BatchRequestItem{
			CustomID: c.Code,
			Params: p.messageRequest(analysisSystemPrompt,
				buildCategoryPrompt(c.Code, c.Name, questionnaire.CategoryByCode(c.Code), profile, questionnaire)),
		})
	}

	result, err := p.runBatch(ctx, entry, model.Phase15, req)
	if err != nil {
		return err
	}

	rec := newRecovery(len(p.reg.Categories))
	analyses := make([]model.CategoryAnalysis, 0, len(p.reg.Categories))
	for _, c := range p.reg.Categories {
		cat := questionnaire.CategoryByCode(c.Code)

		resp, ok := result.Succeeded[c.Code]
		if !ok {
			rec.record(c.Code, "batch item failed")
			p.auditFallback(ctx, entry.AssessmentRunID, model.Phase15, c.Code, "batch item failed")
			analyses = append(analyses, BuildFallbackCategoryAnalysis(c.Code, p.reg, cat, "batch item failed"))
			continue
		}

		analysis, parseErr := parseCategoryAnalysis(resp, c.Code)
		if parseErr != nil {
			zap.L().Warn("pipeline: category analysis failed validation",
				zap.String("category", c.Code),
				zap.Error(parseErr),
			)
			rec.record(c.Code, "schema validation failed")
			p.auditFallback(ctx, entry.AssessmentRunID, model.Phase15, c.Code, "schema validation failed")
			analyses = append(analyses, BuildFallbackCategoryAnalysis(c.Code, p.reg, cat, "schema validation failed"))
			continue
		}

		analysis.GeneratedAt = time.Now().UTC()
		resp.Usage.LogCost(resp.Model, string(model.Phase15))
		analyses = append(analyses, *analysis)
	}

	st.transition(model.StageValidating)

	output := &model.Phase15Output{
		AssessmentRunID: entry.AssessmentRunID,
		SchemaVersion:   phase15SchemaVersion,
		Analyses:        analyses,
		Recovery:        rec.stats,
		GeneratedAt:     time.Now().UTC(),
	}
	if err := p.persistArtifact(ctx, entry, ArtifactPhase15, phase15SchemaVersion, output); err != nil {
		return err
	}

	if rate := rec.stats.FallbackRate(); rate >= p.cfg.Thresholds.MaxFallbackRate {
		reason := fmt.Sprintf("fallback rate %.2f at or above threshold %.2f", rate, p.cfg.Thresholds.MaxFallbackRate)
		if flagErr := p.idx.FlagManualReview(ctx, entry.AssessmentRunID, model.Phase15, reason); flagErr != nil {
			zap.L().Warn("pipeline: manual review flag failed", zap.Error(flagErr))
		}
		return eris.New(reason)
	}
	return nil
}
