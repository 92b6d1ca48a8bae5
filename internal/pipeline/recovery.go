package pipeline

import (
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/assessment-cli/internal/model"
	"github.com/sells-group/assessment-cli/internal/registry"
)

// The recovery engine builds deterministic fallback analyses from
// normalized data when an AI result is missing or fails validation. No AI
// calls are made here; output is always flagged FallbackGenerated with
// confidence "low" and every substitution is recorded for audit.

// recovery accumulates fallback substitutions for one phase run.
type recovery struct {
	stats model.RecoveryStats
}

func newRecovery(totalCategories int) *recovery {
	return &recovery{stats: model.RecoveryStats{TotalCategories: totalCategories}}
}

func (r *recovery) record(category, reason string) {
	r.stats.FallbackCount++
	r.stats.Records = append(r.stats.Records, model.RecoveryRecord{
		Category:  category,
		Reason:    reason,
		Timestamp: time.Now().UTC(),
	})
	zap.L().Warn("recovery: fallback substituted",
		zap.String("category", category),
		zap.String("reason", reason),
	)
}

// BuildFallbackCategoryAnalysis derives a category deep dive from the
// normalized questionnaire alone.
func BuildFallbackCategoryAnalysis(code string, reg *registry.Registry, cat *model.CategoryResponses, reason string) model.CategoryAnalysis {
	name := code
	if c, ok := reg.Category(code); ok {
		name = c.Name
	}

	analysis := model.CategoryAnalysis{
		Category:          code,
		Confidence:        "low",
		FallbackGenerated: true,
		FallbackReason:    reason,
		GeneratedAt:       time.Now().UTC(),
	}

	if cat == nil || cat.AnsweredCount == 0 {
		analysis.Summary = fmt.Sprintf(
			"No questionnaire data is available for %s. This assessment could not evaluate the category; treat its score as unknown rather than poor.",
			name)
		analysis.Weaknesses = []string{
			fmt.Sprintf("%s was not covered by the submitted questionnaire", name),
		}
		analysis.QuickWins = []string{
			fmt.Sprintf("Complete the %s section of the questionnaire to enable analysis", name),
		}
		return analysis
	}

	analysis.Score = cat.WeightedScore
	analysis.Summary = fmt.Sprintf(
		"%s scored %.0f out of 100 based on %d of %d answered questions. This summary was derived directly from questionnaire metrics without deeper analysis.",
		name, cat.WeightedScore, cat.AnsweredCount, cat.ExpectedCount)

	// Highest- and lowest-scoring answers stand in for strengths and
	// weaknesses. Sort copies so the artifact ordering is deterministic.
	sorted := make([]model.QuestionResponse, len(cat.Responses))
	copy(sorted, cat.Responses)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Score > sorted[j].Score })

	for i, r := range sorted {
		if i >= 2 || r.Score < 3.5 {
			break
		}
		analysis.Strengths = append(analysis.Strengths,
			fmt.Sprintf("Strong response on %s (%.1f/5)", r.QuestionKey, r.Score))
	}
	for i := len(sorted) - 1; i >= 0 && len(analysis.Weaknesses) < 2; i-- {
		r := sorted[i]
		if r.Score > 2.5 {
			break
		}
		analysis.Weaknesses = append(analysis.Weaknesses,
			fmt.Sprintf("Weak response on %s (%.1f/5)", r.QuestionKey, r.Score))
		analysis.QuickWins = append(analysis.QuickWins,
			fmt.Sprintf("Address the gap behind %s", r.QuestionKey))
	}
	if cat.InsufficientData {
		analysis.Weaknesses = append(analysis.Weaknesses,
			fmt.Sprintf("Only %d of %d questions answered; coverage is insufficient for a reliable score", cat.AnsweredCount, cat.ExpectedCount))
	}

	return analysis
}

// buildFallbackStrategicAnalysis derives a Phase-1 analysis from
// aggregate questionnaire metrics.
func buildFallbackStrategicAnalysis(key string, tier int, questionnaire *model.NormalizedQuestionnaireResponses, reason string) model.StrategicAnalysis {
	var sum, weight float64
	low := ""
	lowScore := 101.0
	for _, cat := range questionnaire.Categories {
		if cat.InsufficientData {
			continue
		}
		sum += cat.WeightedScore
		weight++
		if cat.WeightedScore < lowScore {
			lowScore = cat.WeightedScore
			low = cat.Category
		}
	}
	score := 0.0
	if weight > 0 {
		score = sum / weight
	}

	findings := []string{
		fmt.Sprintf("Overall questionnaire average is %.0f across %d categories with sufficient data", score, int(weight)),
	}
	if low != "" {
		findings = append(findings, fmt.Sprintf("Lowest-scoring category is %s at %.0f", low, lowScore))
	}

	return model.StrategicAnalysis{
		Key:  key,
		Tier: tier,
		Summary: fmt.Sprintf(
			"The %s analysis could not be generated and was substituted with questionnaire-derived metrics. The aggregate score is %.0f out of 100.",
			key, score),
		KeyFindings:       findings,
		Score:             score,
		Confidence:        "low",
		FallbackGenerated: true,
		GeneratedAt:       time.Now().UTC(),
	}
}

// buildFallbackRecommendations derives a recommendation per weak category
// from the Phase-1.5 deep dives, ranked by ascending score.
func buildFallbackRecommendations(p15 *model.Phase15Output) []model.Recommendation {
	sorted := make([]model.CategoryAnalysis, len(p15.Analyses))
	copy(sorted, p15.Analyses)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Score < sorted[j].Score })

	var recs []model.Recommendation
	for _, a := range sorted {
		if a.Score >= 70 && len(a.Weaknesses) == 0 {
			continue
		}
		rationale := fmt.Sprintf("%s scored %.0f out of 100.", a.Category, a.Score)
		if len(a.Weaknesses) > 0 {
			rationale += " " + a.Weaknesses[0] + "."
		}
		recs = append(recs, model.Recommendation{
			Title:             fmt.Sprintf("Strengthen %s", a.Category),
			Category:          a.Category,
			Priority:          len(recs) + 1,
			Impact:            "medium",
			Effort:            "medium",
			Rationale:         rationale,
			FallbackGenerated: true,
		})
	}
	if len(recs) == 0 {
		recs = append(recs, model.Recommendation{
			Title:             "Maintain current operating posture",
			Category:          "general",
			Priority:          1,
			Impact:            "low",
			Effort:            "low",
			Rationale:         "All categories scored above threshold with no recorded weaknesses.",
			FallbackGenerated: true,
		})
	}
	return recs
}

// buildFallbackNarrative renders an audience narrative from deterministic
// inputs when generation fails.
func buildFallbackNarrative(audience string, profile *model.NormalizedCompanyProfile, p15 *model.Phase15Output) model.AudienceNarrative {
	var weakest *model.CategoryAnalysis
	for i := range p15.Analyses {
		a := &p15.Analyses[i]
		if weakest == nil || a.Score < weakest.Score {
			weakest = a
		}
	}

	body := fmt.Sprintf(
		"This assessment of %s was assembled from questionnaire metrics. A full narrative could not be generated for the %s audience; the category summaries and recommendations in this report remain complete and reliable.",
		profile.CompanyName, audience)
	if weakest != nil {
		body += fmt.Sprintf(" The weakest area identified is %s with a score of %.0f out of 100.",
			weakest.Category, weakest.Score)
	}

	return model.AudienceNarrative{
		Audience:          audience,
		Headline:          fmt.Sprintf("Assessment summary for %s", profile.CompanyName),
		Body:              body,
		FallbackGenerated: true,
	}
}
