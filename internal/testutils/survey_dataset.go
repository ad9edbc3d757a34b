// Package testutils provides survey datasets for tests, the one-shot CLI
// and the dataset generator: a YAML/JSON file format, loading into a
// repository, and a seeded synthetic generator.
package testutils

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-affinity/infrastructure/units"
	"github.com/ahrav/go-affinity/internal/domain"
)

// SurveyDataset is one form with its profiles and submissions.
type SurveyDataset struct {
	Metadata DatasetMetadata  `json:"metadata" yaml:"metadata" validate:"required"`
	Form     domain.Form      `json:"form" yaml:"form"`
	Profiles []domain.Profile `json:"profiles,omitempty" yaml:"profiles,omitempty" validate:"dive"`
	Answers  []domain.Answer  `json:"answers" yaml:"answers"`
}

// DatasetMetadata describes where a dataset came from.
type DatasetMetadata struct {
	Name        string `json:"name" yaml:"name" validate:"required"`
	Version     string `json:"version" yaml:"version" validate:"required"`
	Source      string `json:"source" yaml:"source" validate:"required"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Seed        int64  `json:"seed,omitempty" yaml:"seed,omitempty"`
}

// Seeder is implemented by repositories that can be populated from a
// dataset, such as memstore.Store and sqlstore.Store.
type Seeder interface {
	SaveForm(ctx context.Context, form domain.Form) error
	SaveProfile(ctx context.Context, profile domain.Profile) error
	SaveAnswer(ctx context.Context, answer domain.Answer) error
}

// LoadSurveyDataset reads a dataset from a .json, .yaml or .yml file and
// validates it.
func LoadSurveyDataset(path string) (*SurveyDataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset file: %w", err)
	}

	var dataset SurveyDataset
	if isJSON(path) {
		err = json.Unmarshal(data, &dataset)
	} else {
		err = yaml.Unmarshal(data, &dataset)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse dataset %s: %w", path, err)
	}

	if err := ValidateSurveyDataset(&dataset); err != nil {
		return nil, fmt.Errorf("dataset validation failed: %w", err)
	}
	return &dataset, nil
}

// ValidateSurveyDataset checks metadata and profiles, then runs the same
// form and submission checks the engine applies before scoring.
func ValidateSurveyDataset(dataset *SurveyDataset) error {
	if dataset == nil {
		return fmt.Errorf("dataset is nil")
	}
	if err := NewTestValidator().Struct(dataset); err != nil {
		return err
	}
	if err := units.ValidateForm(dataset.Form); err != nil {
		return err
	}
	return units.ValidateSubmissions(dataset.Form, dataset.Answers)
}

// SaveSurveyDataset writes dataset to path, choosing JSON or YAML by
// extension.
func SaveSurveyDataset(dataset *SurveyDataset, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	var (
		data []byte
		err  error
	)
	if isJSON(path) {
		data, err = json.MarshalIndent(dataset, "", "  ")
	} else {
		data, err = yaml.Marshal(dataset)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal dataset: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write dataset file: %w", err)
	}
	return nil
}

// Seed stores the dataset's form, profiles and answers in s.
func (d *SurveyDataset) Seed(ctx context.Context, s Seeder) error {
	if err := s.SaveForm(ctx, d.Form); err != nil {
		return fmt.Errorf("failed to save form %s: %w", d.Form.ID, err)
	}
	for _, p := range d.Profiles {
		if err := s.SaveProfile(ctx, p); err != nil {
			return fmt.Errorf("failed to save profile %s: %w", p.ID, err)
		}
	}
	for _, a := range d.Answers {
		if err := s.SaveAnswer(ctx, a); err != nil {
			return fmt.Errorf("failed to save answer from %s: %w", a.ProfileID, err)
		}
	}
	return nil
}

// ProfileMap indexes the dataset's profiles by ID.
func (d *SurveyDataset) ProfileMap() map[string]domain.Profile {
	out := make(map[string]domain.Profile, len(d.Profiles))
	for _, p := range d.Profiles {
		out[p.ID] = p
	}
	return out
}

// DatasetStatistics summarises a survey dataset.
type DatasetStatistics struct {
	Respondents int
	Questions   map[domain.QuestionType]int
	Skipped     int
	Responses   int
}

// ComputeDatasetStatistics counts questions by type and answered versus
// skipped responses.
func ComputeDatasetStatistics(dataset *SurveyDataset) *DatasetStatistics {
	stats := &DatasetStatistics{
		Respondents: len(dataset.Answers),
		Questions:   make(map[domain.QuestionType]int),
	}
	for _, q := range dataset.Form.Questions {
		stats.Questions[q.Type]++
	}
	for _, a := range dataset.Answers {
		for _, qa := range a.Responses {
			stats.Responses++
			if !qa.HasValue() {
				stats.Skipped++
			}
		}
	}
	return stats
}

func isJSON(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".json")
}

func yamlTagName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
	if name == "-" {
		return ""
	}
	if name == "" {
		return f.Name
	}
	return name
}
