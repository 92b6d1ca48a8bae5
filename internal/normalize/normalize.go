// Package normalize holds the pure Phase-0 transformers that turn raw,
// loosely-typed submission payloads into versioned, validated structures.
// Transformers are referentially transparent: the same raw input at the
// same TransformationVersion always yields a deep-equal result. Derived
// metrics are computed here exactly once and carried forward.
package normalize

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/rotisserie/eris"

	"github.com/sells-group/assessment-cli/internal/identity"
	"github.com/sells-group/assessment-cli/internal/model"
	"github.com/sells-group/assessment-cli/internal/registry"
)

// TransformationVersion tags the current transformer behavior. Bump it on
// any change that alters output for the same raw input.
const TransformationVersion = "v3"

// ValidationError reports a structurally invalid or missing required field.
// Required fields are never silently defaulted.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("normalize: field %q: %s", e.Field, e.Reason)
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// rawCompanyProfile is the expected shape of the opaque profile section.
type rawCompanyProfile struct {
	Name            string   `json:"name"`
	Domain          string   `json:"domain"`
	Industry        string   `json:"industry"`
	EmployeeCount   *int     `json:"employee_count"`
	AnnualRevenue   *float64 `json:"annual_revenue_usd"`
	YearsInBusiness *int     `json:"years_in_business"`
	Region          string   `json:"region"`
}

// CompanyProfile validates and normalizes the raw company profile section.
func CompanyProfile(raw json.RawMessage) (*model.NormalizedCompanyProfile, error) {
	var rp rawCompanyProfile
	if err := json.Unmarshal(raw, &rp); err != nil {
		return nil, eris.Wrap(err, "normalize: decode company profile")
	}

	if rp.Name == "" {
		return nil, invalid("name", "required")
	}
	if rp.Domain == "" {
		return nil, invalid("domain", "required")
	}
	if rp.Industry == "" {
		return nil, invalid("industry", "required")
	}
	if rp.EmployeeCount == nil {
		return nil, invalid("employee_count", "required")
	}
	if *rp.EmployeeCount <= 0 {
		return nil, invalid("employee_count", "must be positive")
	}

	p := &model.NormalizedCompanyProfile{
		TransformationVersion: TransformationVersion,
		CompanyName:           rp.Name,
		Domain:                identity.CanonicalDomain(rp.Domain),
		Industry:              rp.Industry,
		EmployeeCount:         *rp.EmployeeCount,
	}

	// Optional fields with documented defaults: revenue and tenure default
	// to zero (meaning "not disclosed"), region to "unspecified".
	if rp.AnnualRevenue != nil {
		if *rp.AnnualRevenue < 0 {
			return nil, invalid("annual_revenue_usd", "must not be negative")
		}
		p.AnnualRevenueUSD = *rp.AnnualRevenue
	}
	if rp.YearsInBusiness != nil {
		if *rp.YearsInBusiness < 0 {
			return nil, invalid("years_in_business", "must not be negative")
		}
		p.YearsInBusiness = *rp.YearsInBusiness
	}
	p.Region = rp.Region
	if p.Region == "" {
		p.Region = "unspecified"
	}

	return p, nil
}

// rawAnswer is the expected shape of one raw questionnaire answer.
type rawAnswer struct {
	QuestionKey string   `json:"question_key"`
	Category    string   `json:"category"`
	Score       *float64 `json:"score"`
	Answer      string   `json:"answer"`
}

type rawQuestionnaire struct {
	Answers []rawAnswer `json:"answers"`
}

// Questionnaire validates and normalizes the raw questionnaire section
// against the registered category definitions. minAnswersFraction is the
// configured per-category insufficient-data threshold fraction.
func Questionnaire(raw json.RawMessage, reg *registry.Registry, minAnswersFraction float64) (*model.NormalizedQuestionnaireResponses, error) {
	var rq rawQuestionnaire
	if err := json.Unmarshal(raw, &rq); err != nil {
		return nil, eris.Wrap(err, "normalize: decode questionnaire")
	}
	if len(rq.Answers) == 0 {
		return nil, invalid("answers", "required")
	}

	seen := make(map[string]bool, len(rq.Answers))
	byCategory := make(map[string][]model.QuestionResponse)

	for i, a := range rq.Answers {
		field := fmt.Sprintf("answers[%d]", i)
		if a.QuestionKey == "" {
			return nil, invalid(field+".question_key", "required")
		}
		cat, ok := reg.Category(a.Category)
		if !ok {
			return nil, invalid(field+".category", fmt.Sprintf("unknown category %q", a.Category))
		}
		if a.Score == nil {
			return nil, invalid(field+".score", "required")
		}
		if *a.Score < 0 || *a.Score > 5 {
			return nil, invalid(field+".score", "must be in [0, 5]")
		}
		if seen[a.QuestionKey] {
			return nil, invalid(field+".question_key", fmt.Sprintf("duplicate key %q", a.QuestionKey))
		}
		seen[a.QuestionKey] = true

		byCategory[a.Category] = append(byCategory[a.Category], model.QuestionResponse{
			QuestionKey: a.QuestionKey,
			Category:    a.Category,
			Score:       *a.Score,
			RawAnswer:   a.Answer,
			Weight:      cat.Weight,
		})
	}

	out := &model.NormalizedQuestionnaireResponses{
		TransformationVersion: TransformationVersion,
		RegistryVersion:       reg.Version,
	}

	for _, cat := range reg.Categories {
		responses := byCategory[cat.Code]
		if len(responses) > cat.Questions {
			return nil, invalid("answers",
				fmt.Sprintf("category %q has %d answers, expected at most %d",
					cat.Code, len(responses), cat.Questions))
		}
		sort.Slice(responses, func(i, j int) bool {
			return responses[i].QuestionKey < responses[j].QuestionKey
		})

		cr := model.CategoryResponses{
			Category:       cat.Code,
			Responses:      responses,
			ExpectedCount:  cat.Questions,
			AnsweredCount:  len(responses),
			CompletionRate: round4(float64(len(responses)) / float64(cat.Questions)),
		}
		if len(responses) > 0 {
			sum := 0.0
			for _, r := range responses {
				sum += r.Score
			}
			// Weighted score on a 0-100 scale; the category weight is
			// applied later during scorecard assembly, not here.
			cr.WeightedScore = round4(sum / float64(len(responses)) / 5.0 * 100.0)
		}
		cr.InsufficientData = len(responses) < reg.MinAnswers(cat.Code, minAnswersFraction)

		out.Categories = append(out.Categories, cr)
		out.TotalExpected += cat.Questions
		out.TotalAnswered += len(responses)
	}

	// Answers referencing no registered category were already rejected, so
	// any count drift here is a transformer defect.
	if out.TotalAnswered != len(rq.Answers) {
		return nil, invalid("answers", "answer count failed to reconcile")
	}
	out.CompletionRate = round4(float64(out.TotalAnswered) / float64(out.TotalExpected))

	return out, nil
}

func round4(f float64) float64 {
	return math.Round(f*10000) / 10000
}
