package harness

import (
	"fmt"
	"time"

	"github.com/fenwick-labs/tidelog/internal/classify"
	"github.com/fenwick-labs/tidelog/internal/model"
	"github.com/fenwick-labs/tidelog/internal/strategy"
)

// backoffPreview is how many delays of the retry schedule a result records.
const backoffPreview = 4

// Result is the pipeline output for one scenario.
type Result struct {
	Pass           bool                        `json:"pass"`
	Errors         []string                    `json:"errors,omitempty"`
	Classification model.FailureClassification `json:"classification"`
	Strategy       string                      `json:"strategy"`
	MaxAttempts    int                         `json:"max_attempts"`
	Backoff        []time.Duration             `json:"backoff,omitempty"`
}

// AddError records a validation error and marks the result failed.
func (r *Result) AddError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
	r.Pass = false
}

// Run classifies the scenario's failure, selects a strategy for it, and
// checks the expectations. Selection is side-effect free; no strategy
// executes.
func Run(scenario *Scenario) *Result {
	op := model.SyncOperation{
		ID:         scenario.Operation.ID,
		Type:       scenario.Operation.Type,
		TableName:  scenario.Operation.TableName,
		RetryCount: scenario.Operation.RetryCount,
		MaxRetries: scenario.Operation.MaxRetries,
	}
	syncErr := model.SyncError{
		Code:    scenario.Error.Code,
		Message: scenario.Error.Message,
	}

	classifier := classify.New(scenario.Threshold)
	classification := classifier.Classify(op, syncErr)

	factory := strategy.NewFactory(strategy.Deps{})
	selected := factory.Select(classification.FailureType, scenario.PreviousAttempts)

	result := &Result{
		Pass:           true,
		Classification: classification,
		Strategy:       selected.Name(),
		MaxAttempts:    selected.MaxAttempts(),
	}
	if selected.Name() == "network_retry" {
		for attempt := 0; attempt < backoffPreview; attempt++ {
			result.Backoff = append(result.Backoff, strategy.Backoff(
				strategy.DefaultBackoffBase,
				strategy.DefaultBackoffMultiplier,
				strategy.DefaultBackoffCap,
				attempt,
			))
		}
	}

	checkExpectations(scenario, result)
	return result
}

func checkExpectations(scenario *Scenario, result *Result) {
	expect := scenario.Expect
	c := result.Classification

	if expect.FailureType != "" && string(c.FailureType) != expect.FailureType {
		result.AddError("failure_type = %s, want %s", c.FailureType, expect.FailureType)
	}
	if expect.Severity != "" && c.Severity.String() != expect.Severity {
		result.AddError("severity = %s, want %s", c.Severity, expect.Severity)
	}
	if expect.Recoverable != nil && c.Recoverable != *expect.Recoverable {
		result.AddError("recoverable = %v, want %v", c.Recoverable, *expect.Recoverable)
	}
	if expect.Action != "" && string(c.RecommendedAction) != expect.Action {
		result.AddError("action = %s, want %s", c.RecommendedAction, expect.Action)
	}
	if expect.Strategy != "" && result.Strategy != expect.Strategy {
		result.AddError("strategy = %s, want %s", result.Strategy, expect.Strategy)
	}
}
