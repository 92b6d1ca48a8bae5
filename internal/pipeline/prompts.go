package pipeline

import (
	"fmt"
	"strings"

	"github.com/sells-group/assessment-cli/internal/model"
)

// Phase-1 strategic analysis keys. Tier 1 runs fully parallel; Tier 2
// consumes the settled Tier-1 results as context.
var (
	tier1Keys = []string{
		"market_position",
		"financial_health",
		"operational_maturity",
		"growth_readiness",
		"competitive_landscape",
	}
	tier2Keys = []string{
		"strategic_alignment",
		"risk_exposure",
		"scalability",
		"innovation_capacity",
		"value_chain_integration",
	}
)

const analysisSystemPrompt = `You are a business assessment analyst. You receive a normalized company profile and questionnaire metrics and produce structured JSON analysis. Respond with a single JSON object and nothing else. Do not use markdown formatting.`

const synthesisSystemPrompt = `You are a senior business strategist producing a cross-dimensional synthesis of a completed business assessment. Respond with a single JSON object and nothing else. Do not use markdown formatting.`

// profileContext renders the normalized inputs shared by every analysis
// prompt.
func profileContext(profile *model.NormalizedCompanyProfile, questionnaire *model.NormalizedQuestionnaireResponses) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Company: %s (%s)\n", profile.CompanyName, profile.Domain)
	fmt.Fprintf(&sb, "Industry: %s\n", profile.Industry)
	fmt.Fprintf(&sb, "Employees: %d\n", profile.EmployeeCount)
	if profile.AnnualRevenueUSD > 0 {
		fmt.Fprintf(&sb, "Annual revenue (USD): %.0f\n", profile.AnnualRevenueUSD)
	}
	if profile.YearsInBusiness > 0 {
		fmt.Fprintf(&sb, "Years in business: %d\n", profile.YearsInBusiness)
	}
	fmt.Fprintf(&sb, "Region: %s\n\n", profile.Region)

	fmt.Fprintf(&sb, "Questionnaire completion: %.0f%% (%d of %d answers)\n",
		questionnaire.CompletionRate*100, questionnaire.TotalAnswered, questionnaire.TotalExpected)
	sb.WriteString("Category metrics (weighted score 0-100, completion 0-1):\n")
	for _, cat := range questionnaire.Categories {
		fmt.Fprintf(&sb, "- %s: score %.1f, completion %.2f", cat.Category, cat.WeightedScore, cat.CompletionRate)
		if cat.InsufficientData {
			sb.WriteString(" [insufficient data]")
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// buildStrategicPrompt renders the user prompt for one Phase-1 analysis.
func buildStrategicPrompt(key string, profile *model.NormalizedCompanyProfile, questionnaire *model.NormalizedQuestionnaireResponses, tier1Context []model.StrategicAnalysis) string {
	var sb strings.Builder
	sb.WriteString(profileContext(profile, questionnaire))

	if len(tier1Context) > 0 {
		sb.WriteString("\nFoundational analysis findings:\n")
		for _, a := range tier1Context {
			fmt.Fprintf(&sb, "- %s (score %.1f): %s\n", a.Key, a.Score, a.Summary)
		}
	}

	fmt.Fprintf(&sb, `
Produce the %q strategic analysis. Respond with JSON:
{"summary": "2-4 sentence summary", "key_findings": ["finding", ...], "score": 0-100, "confidence": "high"|"medium"|"low"}
`, key)
	return sb.String()
}

// buildCategoryPrompt renders the user prompt for one Phase-1.5 deep dive.
func buildCategoryPrompt(code, name string, cat *model.CategoryResponses, profile *model.NormalizedCompanyProfile, questionnaire *model.NormalizedQuestionnaireResponses) string {
	var sb strings.Builder
	sb.WriteString(profileContext(profile, questionnaire))

	fmt.Fprintf(&sb, "\nFocus category: %s (%s)\n", name, code)
	if cat != nil {
		fmt.Fprintf(&sb, "Answered %d of %d questions, weighted score %.1f.\n",
			cat.AnsweredCount, cat.ExpectedCount, cat.WeightedScore)
		for _, r := range cat.Responses {
			fmt.Fprintf(&sb, "- %s: %.1f/5 (%s)\n", r.QuestionKey, r.Score, r.RawAnswer)
		}
	}

	sb.WriteString(`
Produce a deep-dive analysis of this category. Respond with JSON:
{"summary": "2-4 sentence summary", "strengths": ["..."], "weaknesses": ["..."], "quick_wins": ["..."], "score": 0-100, "confidence": "high"|"medium"|"low"}
`)
	return sb.String()
}

// buildRecommendationsPrompt renders the Phase-2 user prompt.
func buildRecommendationsPrompt(profile *model.NormalizedCompanyProfile, questionnaire *model.NormalizedQuestionnaireResponses, p1 *model.Phase1Results, p15 *model.Phase15Output) string {
	var sb strings.Builder
	sb.WriteString(profileContext(profile, questionnaire))

	sb.WriteString("\nStrategic analyses:\n")
	for _, a := range append(append([]model.StrategicAnalysis{}, p1.Tier1Analyses...), p1.Tier2Analyses...) {
		fmt.Fprintf(&sb, "- %s (score %.1f): %s\n", a.Key, a.Score, a.Summary)
	}
	sb.WriteString("\nCategory deep dives:\n")
	for _, a := range p15.Analyses {
		fmt.Fprintf(&sb, "- %s (score %.1f): %s\n", a.Category, a.Score, a.Summary)
	}

	sb.WriteString(`
Produce prioritized recommendations across the leverage areas. Respond with JSON:
{"recommendations": [{"title": "...", "category": "category code", "priority": 1, "impact": "high"|"medium"|"low", "effort": "high"|"medium"|"low", "rationale": "...", "depends_on": []}, ...]}
Order by priority ascending; priority 1 is most urgent.
`)
	return sb.String()
}

// reportAudiences lists the Phase-3 narrative targets.
var reportAudiences = []string{"executive", "management", "advisor"}

// buildNarrativePrompt renders the Phase-3 user prompt for one audience.
func buildNarrativePrompt(audience string, profile *model.NormalizedCompanyProfile, questionnaire *model.NormalizedQuestionnaireResponses, p15 *model.Phase15Output, p2 *model.Phase2Results) string {
	var sb strings.Builder
	sb.WriteString(profileContext(profile, questionnaire))

	sb.WriteString("\nTop recommendations:\n")
	for i, r := range p2.Recommendations {
		if i >= 5 {
			break
		}
		fmt.Fprintf(&sb, "- [P%d] %s: %s\n", r.Priority, r.Title, r.Rationale)
	}
	sb.WriteString("\nCategory summaries:\n")
	for _, a := range p15.Analyses {
		fmt.Fprintf(&sb, "- %s: %s\n", a.Category, a.Summary)
	}

	fmt.Fprintf(&sb, `
Write the assessment narrative for the %q audience. Respond with JSON:
{"headline": "one-line headline", "body": "3-6 paragraph narrative, plain prose, no markdown"}
`, audience)
	return sb.String()
}

// buildSynthesisPrompt renders the Phase-4 user prompt.
func buildSynthesisPrompt(profile *model.NormalizedCompanyProfile, questionnaire *model.NormalizedQuestionnaireResponses, p1 *model.Phase1Results, p15 *model.Phase15Output, p2 *model.Phase2Results) string {
	var sb strings.Builder
	sb.WriteString(profileContext(profile, questionnaire))

	sb.WriteString("\nStrategic analyses:\n")
	for _, a := range append(append([]model.StrategicAnalysis{}, p1.Tier1Analyses...), p1.Tier2Analyses...) {
		fmt.Fprintf(&sb, "- %s (score %.1f, %s): %s\n", a.Key, a.Score, a.Confidence, a.Summary)
	}
	sb.WriteString("\nCategory deep dives:\n")
	for _, a := range p15.Analyses {
		fmt.Fprintf(&sb, "- %s (score %.1f): %s; weaknesses: %s\n",
			a.Category, a.Score, a.Summary, strings.Join(a.Weaknesses, "; "))
	}
	sb.WriteString("\nRecommendations:\n")
	for _, r := range p2.Recommendations {
		fmt.Fprintf(&sb, "- [P%d] %s (%s)\n", r.Priority, r.Title, r.Category)
	}

	sb.WriteString(`
Produce a cross-dimensional synthesis. Respond with JSON:
{
  "root_causes": [{"statement": "...", "categories": ["code"], "children": [{"statement": "...", "categories": ["code"]}]}],
  "cascade_risks": [{"path": ["code", "code"], "description": "...", "severity": "high"|"medium"|"low"}],
  "leverage_points": [{"title": "...", "categories": ["code"], "rationale": "..."}],
  "scorecard": [{"category": "code", "score": 0-100, "grade": "A"-"F", "trend": "improving"|"stable"|"declining"}],
  "narrative": "integrated narrative, plain prose, at least 150 words",
  "leadership_questions": ["question for the leadership team", ...]
}
`)
	return sb.String()
}
