package harness

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// Scenario defines one conformance case for the classification pipeline.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Operation is the failed unit of work as the classifier sees it.
	Operation OperationSpec `yaml:"operation"`

	// Error is the raw failure raised alongside the operation.
	Error ErrorSpec `yaml:"error"`

	// Threshold overrides the classifier's escalation threshold.
	// Zero means the default.
	Threshold int `yaml:"threshold,omitempty"`

	// PreviousAttempts is how many recovery attempts already ran,
	// which drives strategy selection.
	PreviousAttempts int `yaml:"previous_attempts,omitempty"`

	// Expect asserts on the pipeline output. Empty fields are not checked.
	Expect ExpectClause `yaml:"expect"`
}

// OperationSpec mirrors the operation fields the classifier reads.
type OperationSpec struct {
	ID         string `yaml:"id"`
	Type       string `yaml:"type,omitempty"`
	TableName  string `yaml:"table,omitempty"`
	RetryCount int    `yaml:"retry_count,omitempty"`
	MaxRetries int    `yaml:"max_retries,omitempty"`
}

// ErrorSpec is the raw error input.
type ErrorSpec struct {
	Code    string `yaml:"code,omitempty"`
	Message string `yaml:"message"`
}

// ExpectClause specifies expected classification and selection results.
type ExpectClause struct {
	FailureType string `yaml:"failure_type,omitempty"`
	Severity    string `yaml:"severity,omitempty"`
	Recoverable *bool  `yaml:"recoverable,omitempty"`
	Action      string `yaml:"action,omitempty"`
	Strategy    string `yaml:"strategy,omitempty"`
}

// LoadScenario reads and validates a single scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	var scenario Scenario
	if err := yaml.Unmarshal(data, &scenario); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}
	if scenario.Name == "" {
		return nil, fmt.Errorf("scenario %s: missing name", path)
	}
	if scenario.Operation.ID == "" {
		return nil, fmt.Errorf("scenario %s: missing operation.id", path)
	}
	if scenario.Error.Message == "" {
		return nil, fmt.Errorf("scenario %s: missing error.message", path)
	}
	return &scenario, nil
}

// LoadScenarioDir loads every *.yaml scenario under dir, sorted by file
// name so test order is stable.
func LoadScenarioDir(dir string) ([]*Scenario, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	scenarios := make([]*Scenario, 0, len(paths))
	for _, path := range paths {
		scenario, err := LoadScenario(path)
		if err != nil {
			return nil, err
		}
		scenarios = append(scenarios, scenario)
	}
	return scenarios, nil
}
