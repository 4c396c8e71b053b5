package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/fenwick-labs/tidelog/internal/model"
)

// LogOptions holds flags for the log command.
type LogOptions struct {
	*RootOptions
	Type        string
	Severity    string
	Source      string
	ProjectID   string
	ChangeID    string
	Correlation string
	Data        string
}

// NewLogCommand creates the log command.
func NewLogCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LogOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "log",
		Short: "Append an event to the change log",
		Long: `Append a single event to the change log. Timestamps and IDs are
assigned by the logger; duplicate IDs are ignored rather than rejected.

Examples:
  tidelog log --db ./tidelog.db --type file_change --source file_watcher \
      --project proj-1 --data '{"path":"notes/todo.md","action":"modified"}'
  tidelog log --db ./tidelog.db --type system_event --severity warning \
      --source system --data '{"message":"disk filling up"}'`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLog(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Type, "type", "", "event type (required)")
	_ = cmd.MarkFlagRequired("type")
	cmd.Flags().StringVar(&opts.Severity, "severity", "info", "event severity")
	cmd.Flags().StringVar(&opts.Source, "source", "cli", "event source")
	cmd.Flags().StringVar(&opts.ProjectID, "project", "", "project ID")
	cmd.Flags().StringVar(&opts.ChangeID, "change", "", "change ID")
	cmd.Flags().StringVar(&opts.Correlation, "correlation", "", "correlation ID")
	cmd.Flags().StringVar(&opts.Data, "data", "{}", "event payload as JSON")

	return cmd
}

func runLog(opts *LogOptions, cmd *cobra.Command) error {
	severity, err := model.ParseSeverity(opts.Severity)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --severity", err)
	}
	var data map[string]any
	if err := json.Unmarshal([]byte(opts.Data), &data); err != nil {
		return WrapExitError(ExitCommandError, "invalid --data JSON", err)
	}

	st, _, err := openStore(opts.RootOptions)
	if err != nil {
		return err
	}
	defer st.Close()

	now := time.Now().UTC()
	event := &model.ChangeEvent{
		ID:            model.NewEventID(now),
		Timestamp:     now,
		Type:          model.EventType(opts.Type),
		Severity:      severity,
		Source:        opts.Source,
		ProjectID:     opts.ProjectID,
		ChangeID:      opts.ChangeID,
		CorrelationID: opts.Correlation,
		Data:          data,
	}

	id, err := st.Append(cmd.Context(), event)
	if err != nil {
		return WrapExitError(ExitCommandError, "append failed", err)
	}

	if opts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), map[string]any{"id": id})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Logged event %s\n", id)
	return nil
}
