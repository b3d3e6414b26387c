package workflow

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Suite is a YAML batch of workflow cases. Per-case values override
// the suite defaults, which in turn override the CLI/config defaults.
type Suite struct {
	Defaults SuiteDefaults `yaml:"defaults"`
	Cases    []SuiteCase   `yaml:"cases"`
}

// SuiteDefaults apply to every case that does not override them.
type SuiteDefaults struct {
	GenerationModel string `yaml:"generation_model"`
	ReflectionModel string `yaml:"reflection_model"`
	OutputDir       string `yaml:"output_dir"`
}

// SuiteCase describes one dataset + instruction pair.
type SuiteCase struct {
	Group           string `yaml:"group"`
	Name            string `yaml:"name"`
	Dataset         string `yaml:"dataset"`
	Instruction     string `yaml:"instruction"`
	GenerationModel string `yaml:"generation_model"`
	ReflectionModel string `yaml:"reflection_model"`
}

// LoadSuite reads and validates a case suite file.
func LoadSuite(path string) (*Suite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read suite: %w", err)
	}

	var suite Suite
	if err := yaml.Unmarshal(data, &suite); err != nil {
		return nil, fmt.Errorf("failed to parse suite: %w", err)
	}

	if len(suite.Cases) == 0 {
		return nil, fmt.Errorf("suite %s defines no cases", path)
	}
	for i, c := range suite.Cases {
		if c.Dataset == "" {
			return nil, fmt.Errorf("suite %s: case %d has no dataset", path, i)
		}
		if c.Name == "" {
			return nil, fmt.Errorf("suite %s: case %d (dataset %s) has no name", path, i, c.Dataset)
		}
	}

	return &suite, nil
}

// Requests expands the suite into workflow requests. The fallback
// values come from CLI flags / user config.
func (s *Suite) Requests(fallback SuiteDefaults, outputDir string, overwrite bool) []WorkflowRequest {
	pick := func(values ...string) string {
		for _, v := range values {
			if v != "" {
				return v
			}
		}
		return ""
	}

	reqs := make([]WorkflowRequest, 0, len(s.Cases))
	for _, c := range s.Cases {
		reqs = append(reqs, WorkflowRequest{
			DatasetPath:     c.Dataset,
			Instruction:     c.Instruction,
			GenerationModel: pick(c.GenerationModel, s.Defaults.GenerationModel, fallback.GenerationModel),
			ReflectionModel: pick(c.ReflectionModel, s.Defaults.ReflectionModel, fallback.ReflectionModel),
			OutputDir:       pick(s.Defaults.OutputDir, fallback.OutputDir, outputDir),
			Group:           c.Group,
			CaseLabel:       c.Name,
			Overwrite:       overwrite,
		})
	}
	return reqs
}
