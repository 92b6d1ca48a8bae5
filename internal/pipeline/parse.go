package pipeline

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/assessment-cli/internal/model"
	"github.com/sells-group/assessment-cli/pkg/anthropic"
)

// cleanJSON strips markdown fences and extracts the JSON object.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}

// responseText concatenates the text blocks of a message response.
func responseText(resp *anthropic.MessageResponse) string {
	var sb strings.Builder
	for _, b := range resp.Content {
		if b.Type == "text" {
			sb.WriteString(b.Text)
		}
	}
	return sb.String()
}

func validConfidence(c string) bool {
	switch c {
	case "high", "medium", "low":
		return true
	}
	return false
}

// parseStrategicAnalysis decodes and schema-validates one Phase-1 result.
func parseStrategicAnalysis(resp *anthropic.MessageResponse, key string, tier int) (*model.StrategicAnalysis, error) {
	var raw struct {
		Summary     string   `json:"summary"`
		KeyFindings []string `json:"key_findings"`
		Score       float64  `json:"score"`
		Confidence  string   `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(cleanJSON(responseText(resp))), &raw); err != nil {
		return nil, eris.Wrapf(err, "parse: strategic analysis %s", key)
	}

	if raw.Summary == "" {
		return nil, eris.Errorf("parse: strategic analysis %s: empty summary", key)
	}
	if len(raw.KeyFindings) == 0 {
		return nil, eris.Errorf("parse: strategic analysis %s: no key findings", key)
	}
	if raw.Score < 0 || raw.Score > 100 {
		return nil, eris.Errorf("parse: strategic analysis %s: score %.1f out of range", key, raw.Score)
	}
	if !validConfidence(raw.Confidence) {
		return nil, eris.Errorf("parse: strategic analysis %s: invalid confidence %q", key, raw.Confidence)
	}

	return &model.StrategicAnalysis{
		Key:         key,
		Tier:        tier,
		Summary:     raw.Summary,
		KeyFindings: raw.KeyFindings,
		Score:       raw.Score,
		Confidence:  raw.Confidence,
		Model:       resp.Model,
	}, nil
}

// parseCategoryAnalysis decodes and schema-validates one Phase-1.5 result.
func parseCategoryAnalysis(resp *anthropic.MessageResponse, code string) (*model.CategoryAnalysis, error) {
	var raw struct {
		Summary    string   `json:"summary"`
		Strengths  []string `json:"strengths"`
		Weaknesses []string `json:"weaknesses"`
		QuickWins  []string `json:"quick_wins"`
		Score      float64  `json:"score"`
		Confidence string   `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(cleanJSON(responseText(resp))), &raw); err != nil {
		return nil, eris.Wrapf(err, "parse: category analysis %s", code)
	}

	if raw.Summary == "" {
		return nil, eris.Errorf("parse: category analysis %s: empty summary", code)
	}
	if raw.Score < 0 || raw.Score > 100 {
		return nil, eris.Errorf("parse: category analysis %s: score %.1f out of range", code, raw.Score)
	}
	if !validConfidence(raw.Confidence) {
		return nil, eris.Errorf("parse: category analysis %s: invalid confidence %q", code, raw.Confidence)
	}

	return &model.CategoryAnalysis{
		Category:   code,
		Summary:    raw.Summary,
		Strengths:  raw.Strengths,
		Weaknesses: raw.Weaknesses,
		QuickWins:  raw.QuickWins,
		Score:      raw.Score,
		Confidence: raw.Confidence,
		Model:      resp.Model,
	}, nil
}

// parseRecommendations decodes and schema-validates the Phase-2 result.
func parseRecommendations(resp *anthropic.MessageResponse) ([]model.Recommendation, error) {
	var raw struct {
		Recommendations []model.Recommendation `json:"recommendations"`
	}
	if err := json.Unmarshal([]byte(cleanJSON(responseText(resp))), &raw); err != nil {
		return nil, eris.Wrap(err, "parse: recommendations")
	}
	if len(raw.Recommendations) == 0 {
		return nil, eris.New("parse: recommendations: empty set")
	}
	for i, r := range raw.Recommendations {
		if r.Title == "" {
			return nil, eris.Errorf("parse: recommendation %d: empty title", i)
		}
		if r.Priority <= 0 {
			return nil, eris.Errorf("parse: recommendation %q: invalid priority %d", r.Title, r.Priority)
		}
	}
	return raw.Recommendations, nil
}

// parseNarrative decodes and schema-validates one Phase-3 result.
func parseNarrative(resp *anthropic.MessageResponse, audience string) (*model.AudienceNarrative, error) {
	var raw struct {
		Headline string `json:"headline"`
		Body     string `json:"body"`
	}
	if err := json.Unmarshal([]byte(cleanJSON(responseText(resp))), &raw); err != nil {
		return nil, eris.Wrapf(err, "parse: narrative %s", audience)
	}
	if raw.Headline == "" || raw.Body == "" {
		return nil, eris.Errorf("parse: narrative %s: missing headline or body", audience)
	}
	return &model.AudienceNarrative{
		Audience: audience,
		Headline: raw.Headline,
		Body:     raw.Body,
	}, nil
}

// parseSynthesis decodes the Phase-4 result. Structural validation is the
// post-generation gate's job; this only requires well-formed JSON.
func parseSynthesis(resp *anthropic.MessageResponse) (*model.CrossDimensionalSynthesis, error) {
	var syn model.CrossDimensionalSynthesis
	if err := json.Unmarshal([]byte(cleanJSON(responseText(resp))), &syn); err != nil {
		return nil, eris.Wrap(err, "parse: synthesis")
	}
	return &syn, nil
}
