package harness

import (
	"bytes"
	"context"
	"errors"
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

// ScenarioFailure represents one scenario that failed to load, run or pass.
type ScenarioFailure struct {
	ScenarioPath string   `json:"scenario_path"`
	Errors       []string `json:"errors"`
}

// FindScenarios returns the .yaml and .yml files under dir in lexical
// order. A non-empty filter is a filepath.Match pattern applied to the
// file name without its extension.
func FindScenarios(dir, filter string) ([]string, error) {
	if filter != "" {
		if _, err := filepath.Match(filter, ""); err != nil {
			return nil, fmt.Errorf("invalid filter pattern: %w", err)
		}
	}

	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			// Golden files live beside scenarios; never walk into them.
			if path != dir && d.Name() == "golden" {
				return filepath.SkipDir
			}
			return nil
		}

		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		if filter != "" {
			name := strings.TrimSuffix(d.Name(), ext)
			if ok, _ := filepath.Match(filter, name); !ok {
				return nil
			}
		}

		files = append(files, path)
		return nil
	})
	return files, err
}

// SuiteOptions controls golden file handling in RunSuite.
type SuiteOptions struct {
	// Update rewrites golden files instead of comparing against them.
	Update bool
}

// GoldenPath returns the golden file for a scenario file:
// golden/{name}.golden beside it.
func GoldenPath(scenarioFile string) string {
	base := filepath.Base(scenarioFile)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(filepath.Dir(scenarioFile), "golden", name+".golden")
}

// RunSuite loads and runs every scenario in paths, each in its own
// temporary directory. A scenario with a golden file must also reproduce
// its trace byte for byte; scenarios without one are checked by their
// assertions alone.
func RunSuite(ctx context.Context, paths []string, opts SuiteOptions) (*SuiteResult, error) {
	result := &SuiteResult{}

	for _, path := range paths {
		result.Total++

		errs, err := runFile(ctx, path, opts)
		if err != nil {
			return nil, err
		}
		if len(errs) > 0 {
			result.Failed++
			result.Failures = append(result.Failures, ScenarioFailure{ScenarioPath: path, Errors: errs})
			continue
		}
		result.Passed++
	}

	return result, nil
}

// runFile returns scenario errors, or an error when no scratch directory
// could be created.
func runFile(ctx context.Context, path string, opts SuiteOptions) ([]string, error) {
	scenario, err := LoadScenario(path)
	if err != nil {
		return []string{fmt.Sprintf("failed to load scenario: %v", err)}, nil
	}

	dir, err := os.MkdirTemp("", "sqlitekit-scenario-")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	res, err := Run(ctx, scenario, dir)
	if err != nil {
		return []string{fmt.Sprintf("scenario execution failed: %v", err)}, nil
	}
	errs := res.Errors
	if msg := checkGolden(path, scenario.Name, res, opts.Update); msg != "" {
		errs = append(errs, msg)
	}
	return errs, nil
}

func checkGolden(path, name string, res *Result, update bool) string {
	data, err := MarshalSnapshot(name, res)
	if err != nil {
		return fmt.Sprintf("failed to marshal trace: %v", err)
	}
	golden := GoldenPath(path)

	if update {
		if err := os.MkdirAll(filepath.Dir(golden), 0o755); err != nil {
			return fmt.Sprintf("failed to create golden directory: %v", err)
		}
		if err := os.WriteFile(golden, data, 0o644); err != nil {
			return fmt.Sprintf("failed to write golden file: %v", err)
		}
		return ""
	}

	want, err := os.ReadFile(golden)
	if errors.Is(err, fs.ErrNotExist) {
		return ""
	}
	if err != nil {
		return fmt.Sprintf("failed to read golden file: %v", err)
	}
	if !bytes.Equal(want, data) {
		return "trace does not match golden file (run with --update to regenerate)"
	}
	return ""
}
