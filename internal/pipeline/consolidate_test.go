package pipeline

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/sells-group/assessment-cli/internal/model"
	"github.com/sells-group/assessment-cli/internal/registry"
)

const consolidateRunID = "run_consolidate_test"

// consolidateInputs builds a complete, valid set of phase artifacts for one run.
func consolidateInputs(reg *registry.Registry) (
	*model.NormalizedCompanyProfile,
	*model.NormalizedQuestionnaireResponses,
	*model.Phase1Results,
	*model.Phase15Output,
	*model.Phase2Results,
	*model.Phase3Output,
	*model.CrossDimensionalSynthesis,
) {
	profile := &model.NormalizedCompanyProfile{
		CompanyProfileID: "cp_acme",
		AssessmentRunID:  consolidateRunID,
		CompanyName:      "Acme Advisory",
		Domain:           "acme-advisory.example.com",
		Industry:         "professional services",
		EmployeeCount:    42,
		AnnualRevenueUSD: 8500000,
	}

	q := &model.NormalizedQuestionnaireResponses{AssessmentRunID: consolidateRunID}
	p15 := &model.Phase15Output{
		AssessmentRunID: consolidateRunID,
		Recovery:        model.RecoveryStats{TotalCategories: len(reg.Categories), FallbackCount: 1},
	}
	for i, c := range reg.Categories {
		q.Categories = append(q.Categories, model.CategoryResponses{
			Category:       c.Code,
			CompletionRate: 1.0,
			WeightedScore:  float64(50 + i),
		})
		p15.Analyses = append(p15.Analyses, model.CategoryAnalysis{
			Category:          c.Code,
			Summary:           "category summary for " + c.Code,
			Strengths:         []string{"strength"},
			Score:             float64(60 + i),
			Confidence:        "medium",
			FallbackGenerated: i == 0,
		})
	}

	p1 := &model.Phase1Results{
		AssessmentRunID: consolidateRunID,
		Tier1Analyses: []model.StrategicAnalysis{
			{Key: "market_position", Tier: model.Tier1, Summary: "s", Score: 70, Confidence: "high"},
		},
		Tier2Analyses: []model.StrategicAnalysis{
			{Key: "strategic_alignment", Tier: model.Tier2, Summary: "s", Score: 65, Confidence: "medium"},
		},
	}
	p2 := &model.Phase2Results{
		AssessmentRunID: consolidateRunID,
		Recommendations: []model.Recommendation{{Title: "Do the thing", Priority: 1}},
	}
	p3 := &model.Phase3Output{
		AssessmentRunID: consolidateRunID,
		Narratives:      []model.AudienceNarrative{{Audience: "executive", Headline: "h", Body: "b"}},
	}
	syn := &model.CrossDimensionalSynthesis{
		AssessmentRunID: consolidateRunID,
		RootCauses:      []model.RootCause{{Statement: "root"}},
		Narrative:       "narrative",
	}

	return profile, q, p1, p15, p2, p3, syn
}

func TestConsolidateBuildsIDM(t *testing.T) {
	reg := registry.MustLoad()
	profile, q, p1, p15, p2, p3, syn := consolidateInputs(reg)

	idm, err := Consolidate(profile, q, p1, p15, p2, p3, syn, reg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if idm.SchemaVersion != model.IDMSchemaVersion {
		t.Errorf("schema version = %q", idm.SchemaVersion)
	}
	if idm.AssessmentRunID != consolidateRunID {
		t.Errorf("run id = %q", idm.AssessmentRunID)
	}
	if idm.Company.Name != "Acme Advisory" || idm.Company.CompanyProfileID != "cp_acme" {
		t.Errorf("company section = %+v", idm.Company)
	}
	if len(idm.Categories) != len(reg.Categories) {
		t.Fatalf("categories = %d, want %d", len(idm.Categories), len(reg.Categories))
	}
	// Registry order is preserved and metrics merge with analysis per category.
	for i, c := range reg.Categories {
		got := idm.Categories[i]
		if got.Category != c.Code {
			t.Errorf("category[%d] = %q, want %q", i, got.Category, c.Code)
		}
		if got.WeightedScore != float64(50+i) || got.AnalysisScore != float64(60+i) {
			t.Errorf("category %s scores = %+v", c.Code, got)
		}
	}
	if !idm.Categories[0].FallbackGenerated {
		t.Error("fallback flag lost in consolidation")
	}
	if len(idm.Strategic) != 2 {
		t.Errorf("strategic analyses = %d", len(idm.Strategic))
	}
	if idm.Recovery.FallbackCount != 1 {
		t.Errorf("recovery stats lost: %+v", idm.Recovery)
	}
}

func TestConsolidateDeterministic(t *testing.T) {
	reg := registry.MustLoad()
	profile, q, p1, p15, p2, p3, syn := consolidateInputs(reg)

	first, err := Consolidate(profile, q, p1, p15, p2, p3, syn, reg)
	if err != nil {
		t.Fatal(err)
	}
	second, err := Consolidate(profile, q, p1, p15, p2, p3, syn, reg)
	if err != nil {
		t.Fatal(err)
	}

	// Idempotent modulo the generation timestamp.
	first.GeneratedAt = time.Time{}
	second.GeneratedAt = time.Time{}
	a, _ := json.Marshal(first)
	b, _ := json.Marshal(second)
	if string(a) != string(b) {
		t.Error("consolidation is not deterministic for identical inputs")
	}
}

func TestConsolidateMissingInputs(t *testing.T) {
	reg := registry.MustLoad()

	cases := []struct {
		name string
		run  func() error
	}{
		{"nil profile", func() error {
			_, q, p1, p15, p2, p3, syn := consolidateInputs(reg)
			_, err := Consolidate(nil, q, p1, p15, p2, p3, syn, reg)
			return err
		}},
		{"nil phase1", func() error {
			profile, q, _, p15, p2, p3, syn := consolidateInputs(reg)
			_, err := Consolidate(profile, q, nil, p15, p2, p3, syn, reg)
			return err
		}},
		{"incomplete phase1_5", func() error {
			profile, q, p1, p15, p2, p3, syn := consolidateInputs(reg)
			p15.Analyses = p15.Analyses[:len(p15.Analyses)-1]
			_, err := Consolidate(profile, q, p1, p15, p2, p3, syn, reg)
			return err
		}},
		{"empty recommendations", func() error {
			profile, q, p1, p15, _, p3, syn := consolidateInputs(reg)
			_, err := Consolidate(profile, q, p1, p15, &model.Phase2Results{AssessmentRunID: consolidateRunID}, p3, syn, reg)
			return err
		}},
		{"nil synthesis", func() error {
			profile, q, p1, p15, p2, p3, _ := consolidateInputs(reg)
			_, err := Consolidate(profile, q, p1, p15, p2, p3, nil, reg)
			return err
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.run()
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(err, ErrConsolidation) {
				t.Errorf("error %v is not ErrConsolidation", err)
			}
		})
	}
}

func TestConsolidateRejectsCrossRunInputs(t *testing.T) {
	reg := registry.MustLoad()
	profile, q, p1, p15, p2, p3, syn := consolidateInputs(reg)
	p2.AssessmentRunID = "run_other"

	_, err := Consolidate(profile, q, p1, p15, p2, p3, syn, reg)
	if err == nil {
		t.Fatal("expected error for mismatched run IDs")
	}
	if !errors.Is(err, ErrConsolidation) {
		t.Errorf("error %v is not ErrConsolidation", err)
	}
}
