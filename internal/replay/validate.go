package replay

import (
	"context"
	"fmt"
	"time"

	"github.com/fenwick-labs/tidelog/internal/model"
)

// Pre-flight issue codes.
const (
	IssueNoEvents        = "NO_EVENTS"
	IssueMissingOptions  = "MISSING_OPTIONS"
	IssueBadFilter       = "BAD_FILTER"
	IssueHighConcurrency = "HIGH_CONCURRENCY"
)

// concurrencyCeiling is the safety threshold above which MaxConcurrency
// draws a warning.
const concurrencyCeiling = 16

// ValidateReplay dry-checks a session without executing it. Error-level
// issues make the session invalid; warnings do not block execution.
func (e *Engine) ValidateReplay(ctx context.Context, id string) (model.ValidationReport, error) {
	session, err := e.store.GetSession(ctx, id)
	if err != nil {
		return model.ValidationReport{}, err
	}

	report := model.ValidationReport{SessionID: id, Issues: []model.ValidationIssue{}}

	if session.Options.Mode == "" || session.Options.Strategy == "" {
		report.Issues = append(report.Issues, model.ValidationIssue{
			Level:   model.IssueError,
			Code:    IssueMissingOptions,
			Message: "replay options are incomplete: mode and strategy are required",
		})
	} else if err := session.Options.Validate(); err != nil {
		report.Issues = append(report.Issues, model.ValidationIssue{
			Level:   model.IssueError,
			Code:    IssueMissingOptions,
			Message: err.Error(),
		})
	}

	if err := session.Filter.Validate(); err != nil {
		report.Issues = append(report.Issues, model.ValidationIssue{
			Level:   model.IssueError,
			Code:    IssueBadFilter,
			Message: err.Error(),
		})
	} else {
		count, err := e.store.Count(ctx, session.Filter)
		if err != nil {
			return model.ValidationReport{}, fmt.Errorf("validate replay: %w", err)
		}
		if count == 0 {
			report.Issues = append(report.Issues, model.ValidationIssue{
				Level:   model.IssueWarning,
				Code:    IssueNoEvents,
				Message: "filter matches no events",
			})
		}
	}

	if session.Options.MaxConcurrency > concurrencyCeiling {
		report.Issues = append(report.Issues, model.ValidationIssue{
			Level: model.IssueWarning,
			Code:  IssueHighConcurrency,
			Message: fmt.Sprintf("max concurrency %d exceeds the safety threshold %d",
				session.Options.MaxConcurrency, concurrencyCeiling),
		})
	}

	report.Valid = true
	for _, issue := range report.Issues {
		if issue.Level == model.IssueError {
			report.Valid = false
			break
		}
	}
	return report, nil
}

// GetReplayProgress is the polling view of a session: processed counts,
// recent errors, and a throughput-based time estimate.
func (e *Engine) GetReplayProgress(ctx context.Context, id string) (model.ReplayProgress, error) {
	session, err := e.store.GetSession(ctx, id)
	if err != nil {
		return model.ReplayProgress{}, err
	}

	progress := model.ReplayProgress{
		SessionID:       id,
		Status:          session.Status,
		TotalEvents:     session.TotalEvents,
		ProcessedEvents: session.ProcessedEvents,
	}

	results, err := e.store.ListEventResults(ctx, id)
	if err != nil {
		return model.ReplayProgress{}, err
	}

	var total time.Duration
	for _, result := range results {
		total += result.Duration
		if result.Status == model.ReplayFailed && result.Error != "" {
			progress.Errors = append(progress.Errors, result.Error)
		}
	}
	if len(results) > 0 {
		progress.CurrentEvent = results[len(results)-1].EventID
		remaining := session.TotalEvents - session.ProcessedEvents
		if remaining > 0 && session.Status == model.SessionRunning {
			perEvent := total / time.Duration(len(results))
			progress.EstimatedTimeLeft = perEvent * time.Duration(remaining)
		}
	}
	return progress, nil
}
