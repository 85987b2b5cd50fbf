package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/roach88/ignis/internal/compiler"
	"github.com/roach88/ignis/internal/engine"
	"github.com/roach88/ignis/internal/ir"
	"github.com/roach88/ignis/internal/target"
)

// DefaultEnvironment is used when a scenario names none.
const DefaultEnvironment = "test"

// FaultCrash fails the terminal journal write of an action.
const FaultCrash = "crash"

// Scenario is one end-to-end deployment test.
type Scenario struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`

	// Environment defaults to DefaultEnvironment.
	Environment string `yaml:"environment,omitempty"`

	// Exactly one of Module and ModuleFile is set. ModuleFile is resolved
	// relative to the scenario file by LoadScenario.
	Module     *compiler.Declaration `yaml:"module,omitempty"`
	ModuleFile string                `yaml:"module_file,omitempty"`

	// Concurrency defaults to 1 so execution order is reproducible.
	Concurrency int `yaml:"concurrency,omitempty"`
	MaxAttempts int `yaml:"max_attempts,omitempty"`

	// Runs execute in order against the same journal and chain.
	Runs []RunStep `yaml:"runs"`

	// Assertions are evaluated after the last run.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// RunStep is one orchestrator invocation.
type RunStep struct {
	// Faults maps action ids to a fault name for this run only.
	Faults map[string]string `yaml:"faults,omitempty"`

	// Expect is checked against the run's report. Nil checks nothing.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect describes a run's expected outcome. Empty fields are not
// checked.
type Expect struct {
	Overall string            `yaml:"overall,omitempty"`
	Actions map[string]string `yaml:"actions,omitempty"`

	// Executed is the exact list of action ids that reached the executor
	// during the run, in call order. An explicit [] asserts nothing ran.
	Executed []string `yaml:"executed,omitempty"`

	// Error is a substring of the error the run returned. When empty the
	// run must return no error.
	Error string `yaml:"error,omitempty"`
}

// Assertion validates the state left after every run.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Action is used by executed_count and journal.
	Action string `yaml:"action,omitempty"`

	// Count is used by executed_count.
	Count int `yaml:"count,omitempty"`

	// Actions is used by executed_order.
	Actions []string `yaml:"actions,omitempty"`

	// Export is used by export.
	Export string `yaml:"export,omitempty"`

	// Expect holds expected fields for journal and export (subset match).
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertExecutedCount = "executed_count"
	AssertExecutedOrder = "executed_order"
	AssertJournal       = "journal"
	AssertExport        = "export"
)

// LoadScenario reads and validates a scenario file. Unknown fields are
// rejected so typos surface as errors.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	s, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}
	if s.ModuleFile != "" && !filepath.IsAbs(s.ModuleFile) {
		s.ModuleFile = filepath.Join(filepath.Dir(path), s.ModuleFile)
	}
	if s.ModuleFile != "" {
		if _, err := os.Stat(s.ModuleFile); err != nil {
			return nil, fmt.Errorf("invalid scenario: module file: %w", err)
		}
	}
	return s, nil
}

// ParseScenario decodes and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &s, nil
}

// environment returns the deployment environment of the scenario.
func (s *Scenario) environment() string {
	if s.Environment == "" {
		return DefaultEnvironment
	}
	return s.Environment
}

func (s *Scenario) concurrency() int {
	if s.Concurrency <= 0 {
		return 1
	}
	return s.Concurrency
}

// graph builds the scenario's module.
func (s *Scenario) graph() (*ir.Graph, error) {
	decl := s.Module
	if s.ModuleFile != "" {
		var err error
		if decl, err = compiler.LoadFile(s.ModuleFile); err != nil {
			return nil, err
		}
	}
	return compiler.Build(decl)
}

var (
	runStatuses = []string{
		string(engine.OverallSuccess),
		string(engine.OverallPartialFailure),
	}
	actionStatuses = []string{
		string(engine.ActionSuccess),
		string(engine.ActionSkipped),
		string(engine.ActionFailed),
		string(engine.ActionHeld),
		string(engine.ActionCancelled),
	}
)

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if (s.Module == nil) == (s.ModuleFile == "") {
		return fmt.Errorf("exactly one of module and module_file is required")
	}
	if len(s.Runs) == 0 {
		return fmt.Errorf("runs list is required and must be non-empty")
	}
	if s.Concurrency < 0 {
		return fmt.Errorf("concurrency must be non-negative")
	}
	if s.MaxAttempts < 0 {
		return fmt.Errorf("max_attempts must be non-negative")
	}

	for i, run := range s.Runs {
		for id, fault := range run.Faults {
			if fault == FaultCrash {
				continue
			}
			if _, err := target.ParseFault(fault); err != nil {
				return fmt.Errorf("runs[%d].faults[%s]: %w", i, id, err)
			}
		}
		if run.Expect == nil {
			continue
		}
		if o := run.Expect.Overall; o != "" && !slices.Contains(runStatuses, o) {
			return fmt.Errorf("runs[%d].expect: unknown overall status %q", i, o)
		}
		for id, status := range run.Expect.Actions {
			if !slices.Contains(actionStatuses, status) {
				return fmt.Errorf("runs[%d].expect.actions[%s]: unknown status %q", i, id, status)
			}
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertExecutedCount:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for executed_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for executed_count", index)
		}
	case AssertExecutedOrder:
		if len(a.Actions) == 0 {
			return fmt.Errorf("assertions[%d]: actions list is required for executed_order", index)
		}
	case AssertJournal:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for journal", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for journal", index)
		}
	case AssertExport:
		if a.Export == "" {
			return fmt.Errorf("assertions[%d]: export is required for export", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
