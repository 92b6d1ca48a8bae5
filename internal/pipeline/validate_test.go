package pipeline

import (
	"strings"
	"testing"

	"github.com/sells-group/assessment-cli/internal/config"
	"github.com/sells-group/assessment-cli/internal/model"
	"github.com/sells-group/assessment-cli/internal/registry"
)

func gateThresholds() config.ThresholdsConfig {
	return config.ThresholdsConfig{
		MinAnswersFraction:      0.5,
		MinSufficientCategories: 8,
		MaxFallbackRate:         0.30,
		MinLeveragePoints:       3,
		MinNarrativeWords:       100,
	}
}

// gateFixtures builds a full-coverage Phase-1.5 output and questionnaire
// with every category sufficient.
func gateFixtures(reg *registry.Registry) (*model.Phase15Output, *model.NormalizedQuestionnaireResponses) {
	p15 := &model.Phase15Output{}
	q := &model.NormalizedQuestionnaireResponses{}
	for _, c := range reg.Categories {
		p15.Analyses = append(p15.Analyses, model.CategoryAnalysis{
			Category: c.Code,
			Summary:  "fine",
			Score:    70,
		})
		q.Categories = append(q.Categories, model.CategoryResponses{
			Category:      c.Code,
			AnsweredCount: c.Questions,
			ExpectedCount: c.Questions,
		})
	}
	return p15, q
}

func TestValidatePreGenerationPasses(t *testing.T) {
	reg := registry.MustLoad()
	p15, q := gateFixtures(reg)

	result := ValidatePreGeneration(p15, q, reg, gateThresholds())
	if !result.OK {
		t.Fatalf("expected OK, got %+v", result)
	}
	if result.SufficientCount != len(reg.Categories) {
		t.Errorf("sufficient count = %d, want %d", result.SufficientCount, len(reg.Categories))
	}
}

func TestValidatePreGenerationMissingAnalysis(t *testing.T) {
	reg := registry.MustLoad()
	p15, q := gateFixtures(reg)
	p15.Analyses = p15.Analyses[1:] // drop the first category

	result := ValidatePreGeneration(p15, q, reg, gateThresholds())
	if result.OK {
		t.Fatal("a missing analysis must fail the gate regardless of counts")
	}
	if len(result.MissingCategories) != 1 || result.MissingCategories[0] != reg.Categories[0].Code {
		t.Errorf("missing categories = %v", result.MissingCategories)
	}
}

func TestValidatePreGenerationInsufficientData(t *testing.T) {
	reg := registry.MustLoad()
	p15, q := gateFixtures(reg)
	for i := 0; i < 5; i++ {
		q.Categories[i].InsufficientData = true
	}

	result := ValidatePreGeneration(p15, q, reg, gateThresholds())
	if result.OK {
		t.Fatalf("7 sufficient of 8 required should fail: %+v", result)
	}
	if len(result.InsufficientDataCategories) != 5 {
		t.Errorf("insufficient categories = %v", result.InsufficientDataCategories)
	}
	if result.SufficientCount != len(reg.Categories)-5 {
		t.Errorf("sufficient count = %d", result.SufficientCount)
	}
}

func goodSynthesis() *model.CrossDimensionalSynthesis {
	return &model.CrossDimensionalSynthesis{
		RootCauses: []model.RootCause{{
			Statement:  "Coordination depends on informal relationships",
			Categories: []string{"operations"},
		}},
		LeveragePoints: []model.LeveragePoint{
			{Title: "Document core workflows"},
			{Title: "Introduce cash forecasting"},
			{Title: "Set a planning cadence"},
		},
		Narrative: strings.TrimSpace(strings.Repeat(
			"The company performs well on delivery but relies on informal coordination that limits scale. ", 10)),
		LeadershipQuestions: []string{"What stalls first if a key operator leaves?"},
	}
}

func TestValidatePostGenerationPasses(t *testing.T) {
	result := ValidatePostGeneration(goodSynthesis(), gateThresholds())
	if !result.OK {
		t.Fatalf("expected OK, got errors: %v", result.Errors)
	}
}

func TestValidatePostGenerationFailures(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*model.CrossDimensionalSynthesis)
		want   string
	}{
		{"no root causes", func(s *model.CrossDimensionalSynthesis) { s.RootCauses = nil }, "no root causes"},
		{"empty statement", func(s *model.CrossDimensionalSynthesis) { s.RootCauses[0].Statement = "" }, "empty statement"},
		{"few leverage points", func(s *model.CrossDimensionalSynthesis) { s.LeveragePoints = s.LeveragePoints[:2] }, "leverage points"},
		{"short narrative", func(s *model.CrossDimensionalSynthesis) { s.Narrative = "Brief." }, "narrative has"},
		{"no leadership questions", func(s *model.CrossDimensionalSynthesis) { s.LeadershipQuestions = nil }, "no leadership questions"},
		{"banned phrase", func(s *model.CrossDimensionalSynthesis) {
			s.Narrative += " As an AI, I cannot assess tone."
		}, "banned phrase"},
		{"placeholder", func(s *model.CrossDimensionalSynthesis) {
			s.Narrative += " [insert customer quote here]"
		}, "banned phrase"},
		{"markdown leak", func(s *model.CrossDimensionalSynthesis) {
			s.Narrative += " **Key point** follows."
		}, "raw formatting"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			syn := goodSynthesis()
			tc.mutate(syn)
			result := ValidatePostGeneration(syn, gateThresholds())
			if result.OK {
				t.Fatal("expected gate failure")
			}
			found := false
			for _, e := range result.Errors {
				if strings.Contains(e, tc.want) {
					found = true
				}
			}
			if !found {
				t.Errorf("errors %v do not mention %q", result.Errors, tc.want)
			}
		})
	}
}

func TestValidatePostGenerationScansAllProseFields(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*model.CrossDimensionalSynthesis)
		want   string
	}{
		{"root cause statement placeholder", func(s *model.CrossDimensionalSynthesis) {
			s.RootCauses[0].Statement = "[insert root cause here]"
		}, "root cause 0 statement"},
		{"nested root cause todo", func(s *model.CrossDimensionalSynthesis) {
			s.RootCauses[0].Children = []model.RootCause{{Statement: "TODO: trace the dependency"}}
		}, "root cause 0 child 0 statement"},
		{"leverage point title lorem", func(s *model.CrossDimensionalSynthesis) {
			s.LeveragePoints[0].Title = "Lorem ipsum dolor sit amet"
		}, "leverage point 0 title"},
		{"leverage point rationale markdown", func(s *model.CrossDimensionalSynthesis) {
			s.LeveragePoints[1].Rationale = "**Critical** for scale"
		}, "leverage point 1 rationale"},
		{"cascade risk description placeholder", func(s *model.CrossDimensionalSynthesis) {
			s.CascadeRisks = []model.CascadeRisk{{
				Path:        []string{"people", "operations"},
				Description: "[placeholder description]",
				Severity:    "high",
			}}
		}, "cascade risk 0 description"},
		{"leadership question placeholder", func(s *model.CrossDimensionalSynthesis) {
			s.LeadershipQuestions[0] = "[placeholder question]"
		}, "leadership question 0"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			syn := goodSynthesis()
			tc.mutate(syn)
			result := ValidatePostGeneration(syn, gateThresholds())
			if result.OK {
				t.Fatal("expected gate failure")
			}
			found := false
			for _, e := range result.Errors {
				if strings.Contains(e, tc.want) {
					found = true
				}
			}
			if !found {
				t.Errorf("errors %v do not mention %q", result.Errors, tc.want)
			}
		})
	}
}

func TestValidatePostGenerationNoBypassForFallback(t *testing.T) {
	syn := goodSynthesis()
	syn.FallbackGenerated = true
	syn.Narrative = "Short."

	if result := ValidatePostGeneration(syn, gateThresholds()); result.OK {
		t.Fatal("fallback-derived synthesis must face the same gate")
	}
}
