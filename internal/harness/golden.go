package harness

import (
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// TraceSnapshot is the golden-file rendering of a scenario run. Durations
// are formatted as strings so goldens stay readable.
type TraceSnapshot struct {
	ScenarioName      string   `json:"scenario_name"`
	FailureType       string   `json:"failure_type"`
	Severity          string   `json:"severity"`
	Recoverable       bool     `json:"recoverable"`
	RecommendedAction string   `json:"recommended_action"`
	EstimatedRecovery string   `json:"estimated_recovery"`
	Strategy          string   `json:"strategy"`
	MaxAttempts       int      `json:"max_attempts"`
	Backoff           []string `json:"backoff,omitempty"`
}

func snapshot(scenario *Scenario, result *Result) TraceSnapshot {
	snap := TraceSnapshot{
		ScenarioName:      scenario.Name,
		FailureType:       string(result.Classification.FailureType),
		Severity:          result.Classification.Severity.String(),
		Recoverable:       result.Classification.Recoverable,
		RecommendedAction: string(result.Classification.RecommendedAction),
		EstimatedRecovery: result.Classification.EstimatedRecovery.String(),
		Strategy:          result.Strategy,
		MaxAttempts:       result.MaxAttempts,
	}
	for _, delay := range result.Backoff {
		snap.Backoff = append(snap.Backoff, delay.String())
	}
	return snap
}

// RunWithGolden runs a scenario, fails the test on unmet expectations, and
// compares the pipeline snapshot against testdata/<name>.golden.
//
// Regenerate goldens with:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) {
	t.Helper()

	result := Run(scenario)
	for _, msg := range result.Errors {
		t.Errorf("%s: %s", scenario.Name, msg)
	}

	data, err := json.MarshalIndent(snapshot(scenario, result), "", "  ")
	if err != nil {
		t.Fatalf("marshal snapshot: %v", err)
	}
	data = append(data, '\n')

	g := goldie.New(t)
	g.Assert(t, scenario.Name, data)
}
