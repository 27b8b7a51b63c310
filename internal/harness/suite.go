package harness

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// SuiteResult summarizes a directory of scenarios.
type SuiteResult struct {
	Total    int            `json:"total"`
	Passed   int            `json:"passed"`
	Failed   int            `json:"failed"`
	Failures []SuiteFailure `json:"failures,omitempty"`
}

// SuiteFailure records one scenario that did not pass.
type SuiteFailure struct {
	ScenarioPath string   `json:"scenario_path"`
	Errors       []string `json:"errors"`
}

// FindScenarios returns the .yaml and .yml files directly inside dir,
// sorted by name.
func FindScenarios(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read scenario directory: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext == ".yaml" || ext == ".yml" {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// RunSuite loads and runs every scenario in dir. Load and execution errors
// count as failures; they do not stop the suite.
func RunSuite(dir string, opts ...RunOption) (*SuiteResult, error) {
	paths, err := FindScenarios(dir)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no scenarios found in %s", dir)
	}

	result := &SuiteResult{}
	for _, path := range paths {
		result.Total++

		scenario, err := LoadScenario(path)
		if err != nil {
			result.fail(path, fmt.Sprintf("failed to load scenario: %v", err))
			continue
		}

		runResult, err := Run(scenario, opts...)
		if err != nil {
			result.fail(path, fmt.Sprintf("scenario execution failed: %v", err))
			continue
		}

		if !runResult.Pass {
			result.fail(path, runResult.Errors...)
			continue
		}
		result.Passed++
	}
	return result, nil
}

func (r *SuiteResult) fail(path string, errs ...string) {
	r.Failed++
	r.Failures = append(r.Failures, SuiteFailure{ScenarioPath: path, Errors: errs})
}
