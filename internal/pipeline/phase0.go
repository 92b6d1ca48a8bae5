package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/assessment-cli/internal/model"
	"github.com/sells-group/assessment-cli/internal/normalize"
	"github.com/sells-group/assessment-cli/internal/rawstore"
)

// runPhase0 verifies the raw submission and normalizes both structures.
// Fully deterministic; no provider calls.
func (p *Pipeline) runPhase0(ctx context.Context, st *stage, entry *model.AssessmentIndexEntry) error {
	ok, err := p.raw.Verify(entry.CompanyProfileID, entry.AssessmentRunID)
	if err != nil {
		return err
	}
	if !ok {
		return eris.Wrapf(rawstore.ErrIntegrityViolation, "run %s", entry.AssessmentRunID)
	}

	raw, err := p.raw.Load(entry.CompanyProfileID, entry.AssessmentRunID)
	if err != nil {
		return err
	}

	st.transition(model.StageProcessing)

	var (
		profile       *model.NormalizedCompanyProfile
		questionnaire *model.NormalizedQuestionnaireResponses
	)
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		var gerr error
		profile, gerr = normalize.CompanyProfile(raw.RawCompanyProfile)
		return gerr
	})
	g.Go(func() error {
		var gerr error
		questionnaire, gerr = normalize.Questionnaire(raw.RawQuestionnaire, p.reg, p.cfg.Thresholds.MinAnswersFraction)
		return gerr
	})
	if err := g.Wait(); err != nil {
		return err
	}

	profile.CompanyProfileID = entry.CompanyProfileID
	profile.AssessmentRunID = entry.AssessmentRunID
	questionnaire.CompanyProfileID = entry.CompanyProfileID
	questionnaire.AssessmentRunID = entry.AssessmentRunID

	st.transition(model.StageValidating)

	if err := p.persistArtifact(ctx, entry, ArtifactCompanyProfile, normalize.TransformationVersion, profile); err != nil {
		return err
	}
	return p.persistArtifact(ctx, entry, ArtifactQuestionnaire, normalize.TransformationVersion, questionnaire)
}
