package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/fenwick-labs/tidelog/internal/model"
	"github.com/fenwick-labs/tidelog/internal/recovery"
)

// RecoveryHistory aggregates persisted recovery events. In-process stats
// live inside the recovery manager; this view is rebuilt from the log so
// it survives restarts.
type RecoveryHistory struct {
	Attempts      int              `json:"attempts"`
	Recovered     int              `json:"recovered"`
	Failed        int              `json:"failed"`
	SyncFailures  int              `json:"sync_failures"`
	ByFailureType map[string]int   `json:"by_failure_type,omitempty"`
	ByAction      map[string]int   `json:"by_action,omitempty"`
	AvgDuration   time.Duration    `json:"avg_duration"`
	SuccessRate   float64          `json:"success_rate"`
	OverallStatus string           `json:"overall_status"`
	RecentErrors  []RecoveryRecord `json:"recent_errors,omitempty"`
}

// RecoveryRecord is one recovery completion pulled from the log.
type RecoveryRecord struct {
	Timestamp   time.Time `json:"timestamp"`
	OperationID string    `json:"operation_id"`
	FailureType string    `json:"failure_type"`
	Action      string    `json:"action"`
	Error       string    `json:"error,omitempty"`
}

// NewRecoverCommand creates the recover command group.
func NewRecoverCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recover",
		Short: "Inspect recovery history",
	}
	cmd.AddCommand(newRecoverStatusCommand(rootOpts))
	cmd.AddCommand(newRecoverStatsCommand(rootOpts))
	return cmd
}

func newRecoverStatusCommand(rootOpts *RootOptions) *cobra.Command {
	var since time.Duration

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Overall recovery health from the log",
		Long: `Grade recovery health from persisted recovery events: healthy above
90% success, degraded above 70%, failed below. An idle system with no
recovery attempts is healthy.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecoverStatus(rootOpts, since, cmd)
		},
	}
	cmd.Flags().DurationVar(&since, "window", 24*time.Hour, "history window to grade")
	return cmd
}

func runRecoverStatus(opts *RootOptions, window time.Duration, cmd *cobra.Command) error {
	history, err := collectRecoveryHistory(opts, window, cmd)
	if err != nil {
		return err
	}

	if opts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), history)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Recovery status: %s\n", history.OverallStatus)
	fmt.Fprintf(w, "  attempts: %d (%d recovered, %d failed)\n",
		history.Attempts, history.Recovered, history.Failed)
	fmt.Fprintf(w, "  sync failures observed: %d\n", history.SyncFailures)
	if history.Attempts > 0 {
		fmt.Fprintf(w, "  success rate: %.0f%%\n", history.SuccessRate*100)
	}
	for _, record := range history.RecentErrors {
		fmt.Fprintf(w, "  failed: %s op=%s type=%s action=%s\n",
			record.Timestamp.UTC().Format(time.RFC3339), record.OperationID,
			record.FailureType, record.Action)
	}
	return nil
}

func newRecoverStatsCommand(rootOpts *RootOptions) *cobra.Command {
	var since time.Duration

	cmd := &cobra.Command{
		Use:           "stats",
		Short:         "Recovery statistics from the log",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecoverStats(rootOpts, since, cmd)
		},
	}
	cmd.Flags().DurationVar(&since, "window", 24*time.Hour, "history window to aggregate")
	return cmd
}

func runRecoverStats(opts *RootOptions, window time.Duration, cmd *cobra.Command) error {
	history, err := collectRecoveryHistory(opts, window, cmd)
	if err != nil {
		return err
	}

	if opts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), history)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Recovery attempts: %d\n", history.Attempts)
	fmt.Fprintf(w, "  recovered: %d\n", history.Recovered)
	fmt.Fprintf(w, "  failed: %d\n", history.Failed)
	if history.Attempts > 0 {
		fmt.Fprintf(w, "  success rate: %.0f%%\n", history.SuccessRate*100)
		fmt.Fprintf(w, "  average duration: %s\n", history.AvgDuration.Round(time.Millisecond))
	}
	if len(history.ByFailureType) > 0 {
		fmt.Fprintln(w, "\nBy failure type:")
		for typ, n := range history.ByFailureType {
			fmt.Fprintf(w, "  %-14s %d\n", typ, n)
		}
	}
	if len(history.ByAction) > 0 {
		fmt.Fprintln(w, "\nBy action:")
		for action, n := range history.ByAction {
			fmt.Fprintf(w, "  %-22s %d\n", action, n)
		}
	}
	return nil
}

// collectRecoveryHistory rebuilds recovery statistics from recovery and
// sync events within the window.
func collectRecoveryHistory(opts *RootOptions, window time.Duration, cmd *cobra.Command) (RecoveryHistory, error) {
	st, _, err := openStore(opts)
	if err != nil {
		return RecoveryHistory{}, err
	}
	defer st.Close()

	since := time.Now().UTC().Add(-window)
	events, err := st.Query(cmd.Context(), model.EventFilter{
		Types: []model.EventType{
			model.EventSyncOperation,
			model.EventRecoveryComplete,
		},
		Since: &since,
		Sort:  model.SortAscending,
	})
	if err != nil {
		return RecoveryHistory{}, WrapExitError(ExitCommandError, "query failed", err)
	}

	history := RecoveryHistory{
		ByFailureType: make(map[string]int),
		ByAction:      make(map[string]int),
		OverallStatus: recovery.StatusHealthy,
	}
	var totalDuration time.Duration

	for _, event := range events {
		switch event.Type {
		case model.EventSyncOperation:
			if success, ok := event.Data["success"].(bool); ok && !success {
				history.SyncFailures++
			}
		case model.EventRecoveryComplete:
			history.Attempts++
			if typ, ok := event.Data["failure_type"].(string); ok && typ != "" {
				history.ByFailureType[typ]++
			}
			action, _ := event.Data["action"].(string)
			if action != "" {
				history.ByAction[action]++
			}
			if ms, ok := event.Data["duration_ms"].(float64); ok {
				totalDuration += time.Duration(ms) * time.Millisecond
			}
			if success, ok := event.Data["success"].(bool); ok && success {
				history.Recovered++
				continue
			}
			history.Failed++
			record := RecoveryRecord{
				Timestamp:   event.Timestamp,
				OperationID: event.CorrelationID,
				Action:      action,
			}
			record.FailureType, _ = event.Data["failure_type"].(string)
			record.Error, _ = event.Data["error"].(string)
			history.RecentErrors = append(history.RecentErrors, record)
		}
	}

	if history.Attempts > 0 {
		history.SuccessRate = float64(history.Recovered) / float64(history.Attempts)
		history.AvgDuration = totalDuration / time.Duration(history.Attempts)
		switch {
		case history.SuccessRate > 0.9:
			history.OverallStatus = recovery.StatusHealthy
		case history.SuccessRate > 0.7:
			history.OverallStatus = recovery.StatusDegraded
		default:
			history.OverallStatus = recovery.StatusFailed
		}
	}
	if n := len(history.RecentErrors); n > 10 {
		history.RecentErrors = history.RecentErrors[n-10:]
	}
	return history, nil
}
