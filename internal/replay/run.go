package replay

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fenwick-labs/tidelog/internal/model"
)

// run executes one replay session to a terminal state (or back to PENDING
// on pause). It owns the session record for the duration; any panic inside
// is caught and recorded as FAILED.
func (e *Engine) run(session model.ReplaySession, ctl *control) {
	defer e.release(session.ID)
	ctx := context.Background()

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("replay run panicked",
				zap.String("session", session.ID),
				zap.Any("panic", r))
			e.finish(ctx, session, model.SessionFailed)
		}
	}()

	events, err := e.prepareEvents(ctx, session)
	if err != nil {
		e.logger.Error("replay preparation failed",
			zap.String("session", session.ID), zap.Error(err))
		e.finish(ctx, session, model.SessionFailed)
		return
	}

	// Resume skips what an earlier run already processed.
	start := session.ProcessedEvents
	if start > len(events) {
		start = len(events)
	}

	lists := newEventLists(session.Options)
	runStart := time.Now()
	aborted := false
	for i := start; i < len(events); i++ {
		paused, cancelled := ctl.state()
		if cancelled {
			e.finish(ctx, session, model.SessionCancelled)
			return
		}
		if paused {
			session.Status = model.SessionPending
			if err := e.store.UpdateSession(ctx, session); err != nil {
				e.logger.Error("pause not recorded", zap.String("session", session.ID), zap.Error(err))
			}
			e.logger.Info("replay paused",
				zap.String("session", session.ID),
				zap.Int("processed", session.ProcessedEvents))
			return
		}

		event := events[i]
		var result model.ReplayEventResult
		if lists.excluded(event.ID) {
			result = model.ReplayEventResult{
				SessionID: session.ID,
				EventID:   event.ID,
				Status:    model.ReplaySkipped,
				Order:     i,
			}
		} else {
			result = e.replayEvent(ctx, session, event, i)
		}

		session.ProcessedEvents++
		switch result.Status {
		case model.ReplaySuccess:
			session.SucceededEvents++
		case model.ReplayFailed:
			session.FailedEvents++
		case model.ReplaySkipped:
			session.SkippedEvents++
		}

		if err := e.store.AppendEventResult(ctx, result); err != nil {
			e.logger.Error("replay result not recorded",
				zap.String("session", session.ID), zap.Error(err))
		}
		// Progress is visible to pollers between events.
		if err := e.store.UpdateSession(ctx, session); err != nil {
			e.logger.Error("progress not recorded",
				zap.String("session", session.ID), zap.Error(err))
		}

		e.maybeCheckpoint(ctx, &session)

		if result.Status == model.ReplayFailed && session.Options.StopOnError {
			aborted = true
			break
		}
	}

	if aborted {
		e.finish(ctx, session, model.SessionFailed)
		return
	}

	duration := time.Since(runStart)
	summary := &model.ReplaySummary{Duration: duration}
	if duration > 0 {
		summary.EventsPerSecond = float64(session.ProcessedEvents-start) / duration.Seconds()
	}
	if session.Options.EnableValidation {
		summary.Validation = e.checkConsistency(ctx, session)
	}
	session.Summary = summary
	e.finish(ctx, session, model.SessionCompleted)
}

// replayEvent applies one event under the session's mode. All failures
// become a recorded FAILED result; nothing propagates.
func (e *Engine) replayEvent(ctx context.Context, session model.ReplaySession, event model.ChangeEvent, order int) (result model.ReplayEventResult) {
	start := time.Now()
	result = model.ReplayEventResult{
		SessionID: session.ID,
		EventID:   event.ID,
		Status:    model.ReplaySuccess,
		Order:     order,
	}
	defer func() {
		if r := recover(); r != nil {
			result.Status = model.ReplayFailed
			result.Error = fmt.Sprintf("replay fault: %v", r)
		}
		result.Duration = time.Since(start)
	}()

	mode := session.Options.Mode
	verbose := mode == model.ModeVerbose
	if verbose {
		e.logger.Debug("replaying event",
			zap.String("session", session.ID),
			zap.String("event", event.ID),
			zap.Int("order", order))
	}

	if mode == model.ModeDryRun {
		// Simulation only: validate shape, touch nothing.
		if err := event.Validate(); err != nil {
			result.Status = model.ReplayFailed
			result.Error = err.Error()
		}
		return result
	}

	if mode == model.ModeSafe || verbose {
		if err := event.Validate(); err != nil {
			result.Status = model.ReplayFailed
			result.Error = fmt.Sprintf("validation: %v", err)
			return result
		}
		if verbose {
			e.logger.Debug("event validated", zap.String("event", event.ID))
		}
	}

	if err := e.executor.ExecuteEvent(ctx, event); err != nil {
		result.Status = model.ReplayFailed
		result.Error = err.Error()
		return result
	}
	if verbose {
		e.logger.Debug("event applied", zap.String("event", event.ID))
	}
	return result
}

// maybeCheckpoint creates a rollback point every checkpoint interval when
// rollback is enabled. Checkpoint failures are logged, never fatal.
func (e *Engine) maybeCheckpoint(ctx context.Context, session *model.ReplaySession) {
	options := session.Options
	if !options.EnableRollback || e.rollback == nil {
		return
	}
	interval := options.CheckpointInterval
	if interval <= 0 {
		interval = model.DefaultCheckpointInterval
	}
	if session.ProcessedEvents == 0 || session.ProcessedEvents%interval != 0 {
		return
	}

	name := fmt.Sprintf("replay %s @ %d", session.ID, session.ProcessedEvents)
	point, err := e.rollback.CreatePoint(ctx, name, nil)
	if err != nil {
		e.logger.Warn("replay checkpoint failed",
			zap.String("session", session.ID), zap.Error(err))
		return
	}
	if e.bus != nil {
		e.bus.RollbackPointCreated(point)
	}
	e.logger.Info("replay checkpoint",
		zap.String("session", session.ID),
		zap.Int("processed", session.ProcessedEvents),
		zap.String("point", point.ID))
}

// checkConsistency cross-checks the recorded per-event results against the
// session counters.
func (e *Engine) checkConsistency(ctx context.Context, session model.ReplaySession) *model.ConsistencyReport {
	report := &model.ConsistencyReport{Consistent: true}

	results, err := e.store.ListEventResults(ctx, session.ID)
	if err != nil {
		report.Consistent = false
		report.Discrepancies = append(report.Discrepancies,
			fmt.Sprintf("results unavailable: %v", err))
		return report
	}
	report.Checked = len(results)

	var succeeded, failed, skipped int
	for i, result := range results {
		switch result.Status {
		case model.ReplaySuccess:
			succeeded++
		case model.ReplayFailed:
			failed++
		case model.ReplaySkipped:
			skipped++
		}
		if result.Order != i {
			report.Consistent = false
			report.Discrepancies = append(report.Discrepancies,
				fmt.Sprintf("result %d has order %d", i, result.Order))
		}
	}

	if succeeded != session.SucceededEvents || failed != session.FailedEvents || skipped != session.SkippedEvents {
		report.Consistent = false
		report.Discrepancies = append(report.Discrepancies, fmt.Sprintf(
			"counter mismatch: results %d/%d/%d, session %d/%d/%d",
			succeeded, failed, skipped,
			session.SucceededEvents, session.FailedEvents, session.SkippedEvents))
	}
	return report
}

// finish moves the session to a terminal status.
func (e *Engine) finish(ctx context.Context, session model.ReplaySession, status model.SessionStatus) {
	now := time.Now().UTC()
	session.Status = status
	session.CompletedAt = &now
	if err := e.store.UpdateSession(ctx, session); err != nil {
		e.logger.Error("terminal status not recorded",
			zap.String("session", session.ID),
			zap.String("status", string(status)),
			zap.Error(err))
		return
	}
	e.logger.Info("replay finished",
		zap.String("session", session.ID),
		zap.String("status", string(status)),
		zap.Int("processed", session.ProcessedEvents),
		zap.Int("failed", session.FailedEvents))
}
