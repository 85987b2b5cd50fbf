package harness

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// SuiteOptions controls RunSuite.
type SuiteOptions struct {
	// Filter is a glob matched against scenario file names without
	// extension. Empty runs everything.
	Filter string

	// Update rewrites golden files instead of comparing them.
	Update bool
}

// ScenarioResult is the outcome of one scenario file.
type ScenarioResult struct {
	Name          string   `json:"name"`
	File          string   `json:"file"`
	Pass          bool     `json:"pass"`
	GoldenUpdated bool     `json:"golden_updated,omitempty"`
	Errors        []string `json:"errors,omitempty"`
}

// SuiteResult summarizes a directory of scenarios.
type SuiteResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// FindScenarios returns the YAML files under dir whose base name matches
// filter, in lexical order. golden/ and modules/ directories are skipped;
// the latter holds module files that scenarios load through module_file.
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
			if path != dir && (d.Name() == "golden" || d.Name() == "modules") {
				return filepath.SkipDir
			}
			return nil
		}
		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		if filter != "" {
			name := strings.TrimSuffix(filepath.Base(path), ext)
			if ok, _ := filepath.Match(filter, name); !ok {
				return nil
			}
		}
		files = append(files, path)
		return nil
	})
	return files, err
}

// GoldenPath returns where the golden snapshot of a scenario file lives:
// a golden/ directory next to it.
func GoldenPath(scenarioFile string) string {
	base := filepath.Base(scenarioFile)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(filepath.Dir(scenarioFile), "golden", name+".golden")
}

// RunSuite runs every scenario under dir. A scenario passes when its
// expectations hold and, if a golden file exists, its snapshot matches.
func RunSuite(dir string, opts SuiteOptions) (*SuiteResult, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("scenarios directory: %w", err)
	}
	files, err := FindScenarios(dir, opts.Filter)
	if err != nil {
		return nil, err
	}

	suite := &SuiteResult{Scenarios: make([]ScenarioResult, 0, len(files))}
	for _, file := range files {
		sr := runScenarioFile(file, opts)
		suite.Scenarios = append(suite.Scenarios, sr)
		suite.Total++
		if sr.Pass {
			suite.Passed++
		} else {
			suite.Failed++
		}
	}
	return suite, nil
}

func runScenarioFile(file string, opts SuiteOptions) ScenarioResult {
	sr := ScenarioResult{Name: filepath.Base(file), File: file}
	fail := func(format string, args ...any) ScenarioResult {
		sr.Pass = false
		sr.Errors = append(sr.Errors, fmt.Sprintf(format, args...))
		return sr
	}

	scenario, err := LoadScenario(file)
	if err != nil {
		return fail("failed to load scenario: %v", err)
	}
	sr.Name = scenario.Name

	result, err := Run(scenario)
	if err != nil {
		return fail("execution failed: %v", err)
	}
	sr.Pass = result.Pass
	sr.Errors = append(sr.Errors, result.Errors...)

	snapshot, err := Snapshot(scenario, result)
	if err != nil {
		return fail("render snapshot: %v", err)
	}

	golden := GoldenPath(file)
	if opts.Update {
		if err := os.MkdirAll(filepath.Dir(golden), 0o755); err != nil {
			return fail("failed to create golden directory: %v", err)
		}
		if err := os.WriteFile(golden, snapshot, 0o644); err != nil {
			return fail("failed to write golden file: %v", err)
		}
		sr.GoldenUpdated = true
		return sr
	}

	want, err := os.ReadFile(golden)
	if errors.Is(err, fs.ErrNotExist) {
		return sr
	}
	if err != nil {
		return fail("failed to read golden file: %v", err)
	}
	if !bytes.Equal(want, snapshot) {
		return fail("report does not match golden file (run with --update to regenerate)")
	}
	return sr
}
