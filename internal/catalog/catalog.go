// Package catalog reads question catalogs: a top-level "quizzes" object keyed by category,
// each holding a document with a questions array. JSON and YAML are both accepted.
package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"quiz-engine/internal/domain"
)

// Catalog is a parsed catalog file.
type Catalog struct {
	Documents map[string]domain.QuizDocument
	// Skipped lists categories that had no questions array.
	Skipped []string
}

type file struct {
	Quizzes map[string]domain.QuizDocument `json:"quizzes" yaml:"quizzes"`
}

// Load reads a catalog from path. Files ending in .yaml or .yml are parsed as YAML, anything
// else as JSON.
func Load(path string) (Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, fmt.Errorf("read catalog %s: %w", path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseYAML(data)
	default:
		return ParseJSON(data)
	}
}

func ParseJSON(data []byte) (Catalog, error) {
	var f file
	if err := json.Unmarshal(data, &f); err != nil {
		return Catalog{}, fmt.Errorf("%w: %v", domain.ErrInvalidCatalog, err)
	}
	return build(f)
}

func ParseYAML(data []byte) (Catalog, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return Catalog{}, fmt.Errorf("%w: %v", domain.ErrInvalidCatalog, err)
	}
	return build(f)
}

func build(f file) (Catalog, error) {
	if f.Quizzes == nil {
		return Catalog{}, fmt.Errorf("%w: missing top-level quizzes key", domain.ErrInvalidCatalog)
	}
	c := Catalog{Documents: make(map[string]domain.QuizDocument, len(f.Quizzes))}
	for category, doc := range f.Quizzes {
		if doc.Questions == nil {
			c.Skipped = append(c.Skipped, category)
			continue
		}
		c.Documents[category] = doc
	}
	sort.Strings(c.Skipped)
	return c, nil
}

// Categories returns the catalog's categories in alphabetical order.
func (c Catalog) Categories() []string {
	out := make([]string, 0, len(c.Documents))
	for category := range c.Documents {
		out = append(out, category)
	}
	sort.Strings(out)
	return out
}

// Flatten returns every question tagged with its category, ordered by category.
func (c Catalog) Flatten() []domain.RawQuestion {
	var out []domain.RawQuestion
	for _, category := range c.Categories() {
		for _, raw := range c.Documents[category].Questions {
			raw.Category = category
			out = append(out, raw)
		}
	}
	return out
}
