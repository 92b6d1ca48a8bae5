package pipeline

import (
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/assessment-cli/internal/model"
	"github.com/sells-group/assessment-cli/internal/registry"
)

// Consolidate builds the Insights Data Model from the validated phase
// artifacts. The mapping is deterministic with no AI involvement; any
// missing or invalid input fails with ErrConsolidation rather than being
// defaulted. Output is idempotent modulo GeneratedAt.
func Consolidate(
	profile *model.NormalizedCompanyProfile,
	questionnaire *model.NormalizedQuestionnaireResponses,
	p1 *model.Phase1Results,
	p15 *model.Phase15Output,
	p2 *model.Phase2Results,
	p3 *model.Phase3Output,
	syn *model.CrossDimensionalSynthesis,
	reg *registry.Registry,
) (*model.IDM, error) {
	if profile == nil || profile.CompanyProfileID == "" {
		return nil, eris.Wrap(ErrConsolidation, "company profile missing")
	}
	if questionnaire == nil || len(questionnaire.Categories) == 0 {
		return nil, eris.Wrap(ErrConsolidation, "questionnaire missing")
	}
	if p1 == nil || len(p1.Tier1Analyses)+len(p1.Tier2Analyses) == 0 {
		return nil, eris.Wrap(ErrConsolidation, "phase 1 results missing")
	}
	if p15 == nil || len(p15.Analyses) != len(reg.Categories) {
		return nil, eris.Wrapf(ErrConsolidation, "phase 1.5 output incomplete: %d analyses, expected %d",
			analysesLen(p15), len(reg.Categories))
	}
	if p2 == nil || len(p2.Recommendations) == 0 {
		return nil, eris.Wrap(ErrConsolidation, "phase 2 recommendations missing")
	}
	if p3 == nil || len(p3.Narratives) == 0 {
		return nil, eris.Wrap(ErrConsolidation, "phase 3 narratives missing")
	}
	if syn == nil || len(syn.RootCauses) == 0 {
		return nil, eris.Wrap(ErrConsolidation, "synthesis missing")
	}

	runID := profile.AssessmentRunID
	for name, got := range map[string]string{
		"questionnaire": questionnaire.AssessmentRunID,
		"phase1":        p1.AssessmentRunID,
		"phase1_5":      p15.AssessmentRunID,
		"phase2":        p2.AssessmentRunID,
		"phase3":        p3.AssessmentRunID,
		"synthesis":     syn.AssessmentRunID,
	} {
		if got != runID {
			return nil, eris.Wrapf(ErrConsolidation, "%s belongs to run %s, expected %s", name, got, runID)
		}
	}

	idm := &model.IDM{
		SchemaVersion:   model.IDMSchemaVersion,
		AssessmentRunID: runID,
		Company: model.IDMCompany{
			CompanyProfileID: profile.CompanyProfileID,
			Name:             profile.CompanyName,
			Domain:           profile.Domain,
			Industry:         profile.Industry,
			EmployeeCount:    profile.EmployeeCount,
			AnnualRevenueUSD: profile.AnnualRevenueUSD,
		},
		Strategic:       append(append([]model.StrategicAnalysis{}, p1.Tier1Analyses...), p1.Tier2Analyses...),
		Recommendations: p2.Recommendations,
		Narratives:      p3.Narratives,
		Synthesis:       syn,
		Recovery:        p15.Recovery,
		GeneratedAt:     time.Now().UTC(),
	}

	// One consolidated view per registered category, in registry order.
	for _, c := range reg.Categories {
		analysis := p15.AnalysisFor(c.Code)
		if analysis == nil {
			return nil, eris.Wrapf(ErrConsolidation, "no analysis for category %s", c.Code)
		}
		cat := questionnaire.CategoryByCode(c.Code)
		if cat == nil {
			return nil, eris.Wrapf(ErrConsolidation, "no questionnaire metrics for category %s", c.Code)
		}

		idm.Categories = append(idm.Categories, model.IDMCategory{
			Category:          c.Code,
			CompletionRate:    cat.CompletionRate,
			WeightedScore:     cat.WeightedScore,
			AnalysisScore:     analysis.Score,
			Summary:           analysis.Summary,
			Strengths:         analysis.Strengths,
			Weaknesses:        analysis.Weaknesses,
			QuickWins:         analysis.QuickWins,
			InsufficientData:  cat.InsufficientData,
			FallbackGenerated: analysis.FallbackGenerated,
		})
	}

	if err := validateIDM(idm, reg); err != nil {
		return nil, err
	}
	return idm, nil
}

func analysesLen(p15 *model.Phase15Output) int {
	if p15 == nil {
		return 0
	}
	return len(p15.Analyses)
}

// validateIDM is the final whole-model check before the IDM is emitted.
func validateIDM(idm *model.IDM, reg *registry.Registry) error {
	if idm.SchemaVersion != model.IDMSchemaVersion {
		return eris.Wrapf(ErrConsolidation, "schema version %q", idm.SchemaVersion)
	}
	if len(idm.Categories) != len(reg.Categories) {
		return eris.Wrapf(ErrConsolidation, "%d consolidated categories, expected %d",
			len(idm.Categories), len(reg.Categories))
	}
	if idm.Company.Name == "" || idm.Company.CompanyProfileID == "" {
		return eris.Wrap(ErrConsolidation, "company section incomplete")
	}
	for _, c := range idm.Categories {
		if c.Summary == "" {
			return eris.Wrapf(ErrConsolidation, "category %s has no summary", c.Category)
		}
	}
	return nil
}
