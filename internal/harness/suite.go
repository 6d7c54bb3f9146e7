package harness

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// SuiteResult summarizes a directory of scenarios.
type SuiteResult struct {
	Total    int               `json:"total"`
	Passed   int               `json:"passed"`
	Failed   int               `json:"failed"`
	Failures []ScenarioFailure `json:"failures,omitempty"`
}

// ScenarioFailure is one scenario that did not pass.
type ScenarioFailure struct {
	Scenario string   `json:"scenario"`
	Path     string   `json:"path"`
	Errors   []string `json:"errors"`
}

// FindScenarioFiles returns the .yaml and .yml files under dir whose base
// name (without extension) matches filter. An empty filter matches all.
func FindScenarioFiles(dir, filter string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		if filter != "" {
			matched, err := filepath.Match(filter, strings.TrimSuffix(d.Name(), ext))
			if err != nil {
				return fmt.Errorf("invalid filter pattern: %w", err)
			}
			if !matched {
				return nil
			}
		}
		files = append(files, path)
		return nil
	})
	return files, err
}

// RunSuite loads and runs every matching scenario under dir.
func RunSuite(ctx context.Context, dir, filter string) (*SuiteResult, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("scenarios directory: %w", err)
	}
	files, err := FindScenarioFiles(dir, filter)
	if err != nil {
		return nil, err
	}

	result := &SuiteResult{}
	for _, path := range files {
		result.Total++
		name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

		scenario, err := LoadScenario(path)
		if err != nil {
			result.fail(name, path, fmt.Sprintf("failed to load scenario: %v", err))
			continue
		}
		name = scenario.Name

		run, err := Run(ctx, scenario)
		if err != nil {
			result.fail(name, path, fmt.Sprintf("scenario execution failed: %v", err))
			continue
		}
		if !run.Pass {
			result.fail(name, path, run.Errors...)
			continue
		}
		result.Passed++
	}
	return result, nil
}

func (r *SuiteResult) fail(name, path string, errs ...string) {
	r.Failed++
	r.Failures = append(r.Failures, ScenarioFailure{Scenario: name, Path: path, Errors: errs})
}
