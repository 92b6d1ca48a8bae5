package pipeline

import (
	"fmt"
	"strings"

	"github.com/sells-group/assessment-cli/internal/config"
	"github.com/sells-group/assessment-cli/internal/model"
	"github.com/sells-group/assessment-cli/internal/registry"
)

// PreGenResult is the outcome of the pre-generation synthesis gate.
type PreGenResult struct {
	OK                         bool     `json:"ok"`
	MissingCategories          []string `json:"missing_categories,omitempty"`
	InsufficientDataCategories []string `json:"insufficient_data_categories,omitempty"`
	SufficientCount            int      `json:"sufficient_count"`
}

// ValidatePreGeneration checks that enough categories carry sufficient
// data before the synthesis call is made. Fallback-generated analyses
// count as present but their insufficient-data flags still apply.
func ValidatePreGeneration(p15 *model.Phase15Output, questionnaire *model.NormalizedQuestionnaireResponses, reg *registry.Registry, cfg config.ThresholdsConfig) PreGenResult {
	result := PreGenResult{}

	for _, c := range reg.Categories {
		if p15.AnalysisFor(c.Code) == nil {
			result.MissingCategories = append(result.MissingCategories, c.Code)
			continue
		}
		cat := questionnaire.CategoryByCode(c.Code)
		if cat == nil || cat.InsufficientData {
			result.InsufficientDataCategories = append(result.InsufficientDataCategories, c.Code)
			continue
		}
		result.SufficientCount++
	}

	result.OK = len(result.MissingCategories) == 0 &&
		result.SufficientCount >= cfg.MinSufficientCategories
	return result
}

// PostGenResult is the outcome of the post-generation synthesis gate.
type PostGenResult struct {
	OK     bool     `json:"ok"`
	Errors []string `json:"errors,omitempty"`
}

// bannedPhrases are placeholder fragments that must never reach a
// deliverable.
var bannedPhrases = []string{
	"as an ai",
	"i cannot",
	"i'm unable",
	"[insert",
	"[placeholder",
	"lorem ipsum",
	"todo:",
	"tbd",
	"xxx",
}

// markdownMarkers are formatting leaks; synthesis narrative is plain prose.
var markdownMarkers = []string{
	"```",
	"## ",
	"**",
	"|---",
	"- [ ]",
}

// ValidatePostGeneration applies the structural checks to a completed
// synthesis. The gate is identical for AI-generated and fallback-derived
// content; there is no bypass.
func ValidatePostGeneration(syn *model.CrossDimensionalSynthesis, cfg config.ThresholdsConfig) PostGenResult {
	var errs []string

	if len(syn.RootCauses) == 0 {
		errs = append(errs, "no root causes identified")
	}
	for i, rc := range syn.RootCauses {
		if rc.Statement == "" {
			errs = append(errs, fmt.Sprintf("root cause %d has an empty statement", i))
		}
		if rc.Depth() < 1 {
			errs = append(errs, fmt.Sprintf("root cause %d has no hierarchy", i))
		}
	}

	if len(syn.LeveragePoints) < cfg.MinLeveragePoints {
		errs = append(errs, fmt.Sprintf("%d leverage points, need at least %d",
			len(syn.LeveragePoints), cfg.MinLeveragePoints))
	}

	if words := len(strings.Fields(syn.Narrative)); words < cfg.MinNarrativeWords {
		errs = append(errs, fmt.Sprintf("narrative has %d words, need at least %d",
			words, cfg.MinNarrativeWords))
	}

	if len(syn.LeadershipQuestions) == 0 {
		errs = append(errs, "no leadership questions")
	}

	for _, f := range proseFields(syn) {
		lower := strings.ToLower(f.text)
		for _, phrase := range bannedPhrases {
			if strings.Contains(lower, phrase) {
				errs = append(errs, fmt.Sprintf("%s contains banned phrase %q", f.label, phrase))
			}
		}
		for _, marker := range markdownMarkers {
			if strings.Contains(f.text, marker) {
				errs = append(errs, fmt.Sprintf("%s contains raw formatting %q", f.label, marker))
			}
		}
	}

	return PostGenResult{OK: len(errs) == 0, Errors: errs}
}

type proseField struct {
	label string
	text  string
}

// proseFields flattens every free-text field of the synthesis for the
// contamination scans. The scorecard is numeric and carries no prose.
func proseFields(syn *model.CrossDimensionalSynthesis) []proseField {
	fields := []proseField{{"narrative", syn.Narrative}}

	var walk func(prefix string, causes []model.RootCause)
	walk = func(prefix string, causes []model.RootCause) {
		for i, rc := range causes {
			label := fmt.Sprintf("%s %d", prefix, i)
			fields = append(fields, proseField{label + " statement", rc.Statement})
			walk(label+" child", rc.Children)
		}
	}
	walk("root cause", syn.RootCauses)

	for i, lp := range syn.LeveragePoints {
		fields = append(fields,
			proseField{fmt.Sprintf("leverage point %d title", i), lp.Title},
			proseField{fmt.Sprintf("leverage point %d rationale", i), lp.Rationale},
		)
	}
	for i, cr := range syn.CascadeRisks {
		fields = append(fields, proseField{fmt.Sprintf("cascade risk %d description", i), cr.Description})
	}
	for i, q := range syn.LeadershipQuestions {
		fields = append(fields, proseField{fmt.Sprintf("leadership question %d", i), q})
	}
	return fields
}
