// Package registry holds the versioned questionnaire definition: the fixed
// business-health categories, their weights, and expected question counts.
package registry

import (
	_ "embed"
	"math"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

//go:embed categories.yaml
var categoriesYAML []byte

// Category is one registered business-health dimension.
type Category struct {
	Code      string  `yaml:"code"`
	Name      string  `yaml:"name"`
	Weight    float64 `yaml:"weight"`
	Questions int     `yaml:"questions"` // expected answered-question count
}

// Registry is the loaded questionnaire definition.
type Registry struct {
	Version    string     `yaml:"version"`
	Categories []Category `yaml:"categories"`

	byCode map[string]Category
}

// Load parses the embedded category definition.
func Load() (*Registry, error) {
	var reg Registry
	if err := yaml.Unmarshal(categoriesYAML, &reg); err != nil {
		return nil, eris.Wrap(err, "registry: unmarshal categories")
	}
	if len(reg.Categories) == 0 {
		return nil, eris.New("registry: no categories defined")
	}
	reg.byCode = make(map[string]Category, len(reg.Categories))
	for _, c := range reg.Categories {
		if c.Code == "" || c.Questions <= 0 {
			return nil, eris.Errorf("registry: malformed category %q", c.Code)
		}
		reg.byCode[c.Code] = c
	}
	return &reg, nil
}

// MustLoad is Load for static initialization paths; the definition is
// embedded, so a parse failure is a build defect.
func MustLoad() *Registry {
	reg, err := Load()
	if err != nil {
		panic(err)
	}
	return reg
}

// Category returns the registered category for code.
func (r *Registry) Category(code string) (Category, bool) {
	c, ok := r.byCode[code]
	return c, ok
}

// ExpectedQuestions returns the expected answer count for code, 0 if unknown.
func (r *Registry) ExpectedQuestions(code string) int {
	return r.byCode[code].Questions
}

// TotalQuestions returns the expected answer count across all categories.
func (r *Registry) TotalQuestions() int {
	total := 0
	for _, c := range r.Categories {
		total += c.Questions
	}
	return total
}

// MinAnswers returns the per-category insufficient-data threshold: fraction
// of the category's expected questions, with a floor of 3.
func (r *Registry) MinAnswers(code string, fraction float64) int {
	c, ok := r.byCode[code]
	if !ok {
		return 0
	}
	min := int(math.Ceil(float64(c.Questions) * fraction))
	if min < 3 {
		min = 3
	}
	return min
}
