package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/fenwick-labs/tidelog/internal/backup"
	"github.com/fenwick-labs/tidelog/internal/config"
	"github.com/fenwick-labs/tidelog/internal/model"
	"github.com/fenwick-labs/tidelog/internal/replay"
	"github.com/fenwick-labs/tidelog/internal/store"
)

// newReplayEngine wires a replay engine over an open store using the
// configured backup directory for checkpoints.
func newReplayEngine(st *store.Store, cfg config.Config) *replay.Engine {
	backups := backup.NewLocalManager(st, cfg.BackupDir, cfg.DBPath, nil)
	rollback := backup.NewRollbackManager(st, backups, nil)
	return replay.NewEngine(cfg.Replay, replay.Deps{
		Store:    st,
		Rollback: rollback,
	})
}

// NewReplayCommand creates the replay command group.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Create and run replay sessions",
	}
	cmd.AddCommand(newReplayCreateCommand(rootOpts))
	cmd.AddCommand(newReplayStartCommand(rootOpts))
	cmd.AddCommand(newReplayStatusCommand(rootOpts))
	cmd.AddCommand(newReplayValidateCommand(rootOpts))
	cmd.AddCommand(newReplayListCommand(rootOpts))
	cmd.AddCommand(newReplayCancelCommand(rootOpts))
	return cmd
}

func newReplayCreateCommand(rootOpts *RootOptions) *cobra.Command {
	ff := &filterFlags{}
	var (
		name               string
		description        string
		mode               string
		strategy           string
		stopOnError        bool
		enableValidation   bool
		enableRollback     bool
		checkpointInterval int
		skipEvents         []string
		includeEvents      []string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a replay session",
		Long: `Create a PENDING replay session over the events matching the filter
flags. The session records its filter and options; nothing replays
until start.

Examples:
  tidelog replay create --db ./tidelog.db --name "sync audit" \
      --type sync_operation --mode dry_run
  tidelog replay create --db ./tidelog.db --name "rebuild" \
      --mode safe --strategy dependency_aware --stop-on-error`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := ff.build()
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid filter", err)
			}
			// Replay always runs oldest first regardless of the listing default.
			filter.Sort = model.SortAscending

			options := model.ReplayOptions{
				Mode:               model.ReplayMode(mode),
				Strategy:           model.ReplayStrategy(strategy),
				StopOnError:        stopOnError,
				EnableValidation:   enableValidation,
				EnableRollback:     enableRollback,
				CheckpointInterval: checkpointInterval,
				SkipEvents:         skipEvents,
				IncludeEvents:      includeEvents,
			}

			st, cfg, err := openStore(rootOpts)
			if err != nil {
				return err
			}
			defer st.Close()

			engine := newReplayEngine(st, cfg)
			id, err := engine.CreateSession(cmd.Context(), name, filter, options, description)
			if err != nil {
				return WrapExitError(ExitCommandError, "create session failed", err)
			}

			if rootOpts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), map[string]any{"session_id": id})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created session %s\n", id)
			return nil
		},
	}

	ff.register(cmd)
	cmd.Flags().StringVar(&name, "name", "", "session name (required)")
	_ = cmd.MarkFlagRequired("name")
	cmd.Flags().StringVar(&description, "description", "", "session description")
	cmd.Flags().StringVar(&mode, "mode", "safe", "replay mode (dry_run|safe|fast|verbose)")
	cmd.Flags().StringVar(&strategy, "strategy", "sequential", "replay strategy (sequential|parallel|dependency_aware|selective)")
	cmd.Flags().BoolVar(&stopOnError, "stop-on-error", false, "abort the run at the first failed event")
	cmd.Flags().BoolVar(&enableValidation, "validate-results", false, "cross-check recorded results after the run")
	cmd.Flags().BoolVar(&enableRollback, "enable-rollback", false, "create rollback checkpoints during the run")
	cmd.Flags().IntVar(&checkpointInterval, "checkpoint-interval", 0, "events between checkpoints (0 = default)")
	cmd.Flags().StringSliceVar(&skipEvents, "skip-event", nil, "event IDs to skip (repeatable)")
	cmd.Flags().StringSliceVar(&includeEvents, "include-event", nil, "restrict the run to these event IDs (repeatable)")
	return cmd
}

func newReplayStartCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start <session-id>",
		Short: "Run a pending replay session",
		Long: `Start a PENDING session and wait for it to finish, printing progress
as it runs.

Exit codes:
  0 - session completed
  1 - session failed or was cancelled
  2 - command error`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplayStart(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runReplayStart(opts *RootOptions, id string, cmd *cobra.Command) error {
	st, cfg, err := openStore(opts)
	if err != nil {
		return err
	}
	defer st.Close()

	engine := newReplayEngine(st, cfg)
	ctx := cmd.Context()
	if err := engine.StartReplay(ctx, id); err != nil {
		return WrapExitError(ExitCommandError, "start replay failed", err)
	}

	// The run is asynchronous; poll until it leaves RUNNING.
	var session model.ReplaySession
	for {
		session, err = engine.GetSession(ctx, id)
		if err != nil {
			return WrapExitError(ExitCommandError, "session lookup failed", err)
		}
		if session.Status != model.SessionRunning {
			break
		}
		if opts.Verbose && opts.Format != "json" {
			fmt.Fprintf(cmd.OutOrStdout(), "  %d/%d processed\n",
				session.ProcessedEvents, session.TotalEvents)
		}
		time.Sleep(200 * time.Millisecond)
	}

	if opts.Format == "json" {
		if err := writeJSON(cmd.OutOrStdout(), session); err != nil {
			return err
		}
	} else {
		printSession(cmd, session, opts.Verbose)
	}

	switch session.Status {
	case model.SessionCompleted, model.SessionPending:
		// PENDING here means the run was paused externally; not a failure.
		return nil
	default:
		return NewExitError(ExitFailure, fmt.Sprintf("session %s %s", id, session.Status))
	}
}

func printSession(cmd *cobra.Command, session model.ReplaySession, verbose bool) {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "%s  %-10s %s\n", session.ID, session.Status, session.Name)
	fmt.Fprintf(w, "  events: %d total, %d processed, %d succeeded, %d failed, %d skipped\n",
		session.TotalEvents, session.ProcessedEvents, session.SucceededEvents,
		session.FailedEvents, session.SkippedEvents)
	if session.Summary != nil {
		fmt.Fprintf(w, "  duration: %s (%.1f events/s)\n",
			session.Summary.Duration.Round(time.Millisecond), session.Summary.EventsPerSecond)
		if session.Summary.Validation != nil {
			fmt.Fprintf(w, "  validation: checked %d, consistent %v\n",
				session.Summary.Validation.Checked, session.Summary.Validation.Consistent)
			for _, d := range session.Summary.Validation.Discrepancies {
				fmt.Fprintf(w, "    discrepancy: %s\n", d)
			}
		}
	}
	if verbose {
		fmt.Fprintf(w, "  mode: %s, strategy: %s\n", session.Options.Mode, session.Options.Strategy)
		if session.Description != "" {
			fmt.Fprintf(w, "  description: %s\n", session.Description)
		}
	}
}

func newReplayStatusCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "status <session-id>",
		Short:         "Show a session's progress",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplayStatus(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runReplayStatus(opts *RootOptions, id string, cmd *cobra.Command) error {
	st, cfg, err := openStore(opts)
	if err != nil {
		return err
	}
	defer st.Close()

	engine := newReplayEngine(st, cfg)
	progress, err := engine.GetReplayProgress(cmd.Context(), id)
	if err != nil {
		return WrapExitError(ExitCommandError, "progress lookup failed", err)
	}

	if opts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), progress)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Session %s: %s\n", progress.SessionID, progress.Status)
	fmt.Fprintf(w, "  %d/%d processed\n", progress.ProcessedEvents, progress.TotalEvents)
	if progress.CurrentEvent != "" {
		fmt.Fprintf(w, "  last event: %s\n", progress.CurrentEvent)
	}
	if progress.EstimatedTimeLeft > 0 {
		fmt.Fprintf(w, "  estimated remaining: %s\n", progress.EstimatedTimeLeft.Round(time.Second))
	}
	for _, msg := range progress.Errors {
		fmt.Fprintf(w, "  error: %s\n", msg)
	}
	return nil
}

func newReplayValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <session-id>",
		Short: "Pre-flight check a session",
		Long: `Check a session's filter and options before running it. Warnings
(such as an empty event set) do not block execution; errors do.

Exit codes:
  0 - session is runnable (warnings allowed)
  1 - validation found blocking errors
  2 - command error`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplayValidate(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runReplayValidate(opts *RootOptions, id string, cmd *cobra.Command) error {
	st, cfg, err := openStore(opts)
	if err != nil {
		return err
	}
	defer st.Close()

	engine := newReplayEngine(st, cfg)
	report, err := engine.ValidateReplay(cmd.Context(), id)
	if err != nil {
		return WrapExitError(ExitCommandError, "validate failed", err)
	}

	if opts.Format == "json" {
		if err := writeJSON(cmd.OutOrStdout(), report); err != nil {
			return err
		}
	} else {
		w := cmd.OutOrStdout()
		for _, issue := range report.Issues {
			fmt.Fprintf(w, "%-7s [%s] %s\n", issue.Level, issue.Code, issue.Message)
		}
		if report.Valid {
			fmt.Fprintf(w, "Session %s is runnable\n", id)
		} else {
			fmt.Fprintf(w, "Session %s has blocking errors\n", id)
		}
	}

	if !report.Valid {
		return NewExitError(ExitFailure, "validation failed")
	}
	return nil
}

func newReplayListCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "list",
		Short:         "List replay sessions",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplayList(rootOpts, cmd)
		},
	}
	return cmd
}

func runReplayList(opts *RootOptions, cmd *cobra.Command) error {
	st, cfg, err := openStore(opts)
	if err != nil {
		return err
	}
	defer st.Close()

	engine := newReplayEngine(st, cfg)
	sessions, err := engine.ListSessions(cmd.Context())
	if err != nil {
		return WrapExitError(ExitCommandError, "list sessions failed", err)
	}

	if opts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), sessions)
	}

	w := cmd.OutOrStdout()
	if len(sessions) == 0 {
		fmt.Fprintln(w, "No replay sessions.")
		return nil
	}
	for _, session := range sessions {
		printSession(cmd, session, opts.Verbose)
	}
	return nil
}

func newReplayCancelCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "cancel <session-id>",
		Short:         "Cancel a pending session",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplayCancel(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runReplayCancel(opts *RootOptions, id string, cmd *cobra.Command) error {
	st, cfg, err := openStore(opts)
	if err != nil {
		return err
	}
	defer st.Close()

	engine := newReplayEngine(st, cfg)
	if err := engine.CancelReplay(cmd.Context(), id); err != nil {
		return WrapExitError(ExitCommandError, "cancel failed", err)
	}

	if opts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), map[string]any{"session_id": id, "status": "cancelled"})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Cancelled session %s\n", id)
	return nil
}
