package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/fenwick-labs/tidelog/internal/model"
)

// filterFlags holds the shared event-selection flags.
type filterFlags struct {
	Types       []string
	MinSeverity string
	Sources     []string
	ProjectIDs  []string
	ChangeIDs   []string
	Correlation string
	Since       string
	Until       string
	Limit       int
	Offset      int
	Sort        string
}

func (ff *filterFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringSliceVar(&ff.Types, "type", nil, "event types to include (repeatable)")
	cmd.Flags().StringVar(&ff.MinSeverity, "min-severity", "", "minimum severity (debug|info|warning|error|critical)")
	cmd.Flags().StringSliceVar(&ff.Sources, "source", nil, "sources to include (repeatable)")
	cmd.Flags().StringSliceVar(&ff.ProjectIDs, "project", nil, "project IDs to include (repeatable)")
	cmd.Flags().StringSliceVar(&ff.ChangeIDs, "change", nil, "change IDs to include (repeatable)")
	cmd.Flags().StringVar(&ff.Correlation, "correlation", "", "correlation ID to match")
	cmd.Flags().StringVar(&ff.Since, "since", "", "only events at or after this RFC 3339 time")
	cmd.Flags().StringVar(&ff.Until, "until", "", "only events before this RFC 3339 time")
	cmd.Flags().IntVar(&ff.Limit, "limit", 0, "maximum events to return (0 = no limit)")
	cmd.Flags().IntVar(&ff.Offset, "offset", 0, "events to skip")
	cmd.Flags().StringVar(&ff.Sort, "sort", "desc", "timestamp order (asc|desc)")
}

// build converts flag values into a validated EventFilter.
func (ff *filterFlags) build() (model.EventFilter, error) {
	filter := model.EventFilter{
		Sources:       ff.Sources,
		ProjectIDs:    ff.ProjectIDs,
		ChangeIDs:     ff.ChangeIDs,
		CorrelationID: ff.Correlation,
		Limit:         ff.Limit,
		Offset:        ff.Offset,
		Sort:          model.SortOrder(ff.Sort),
	}
	for _, raw := range ff.Types {
		filter.Types = append(filter.Types, model.EventType(raw))
	}
	if ff.MinSeverity != "" {
		sev, err := model.ParseSeverity(ff.MinSeverity)
		if err != nil {
			return model.EventFilter{}, err
		}
		filter.MinSeverity = &sev
	}
	if ff.Since != "" {
		ts, err := time.Parse(time.RFC3339, ff.Since)
		if err != nil {
			return model.EventFilter{}, fmt.Errorf("invalid --since: %w", err)
		}
		filter.Since = &ts
	}
	if ff.Until != "" {
		ts, err := time.Parse(time.RFC3339, ff.Until)
		if err != nil {
			return model.EventFilter{}, fmt.Errorf("invalid --until: %w", err)
		}
		filter.Until = &ts
	}
	if err := filter.Validate(); err != nil {
		return model.EventFilter{}, err
	}
	return filter, nil
}

// NewEventsCommand creates the events command group.
func NewEventsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Query the change log",
	}
	cmd.AddCommand(newEventsListCommand(rootOpts))
	cmd.AddCommand(newEventsSearchCommand(rootOpts))
	cmd.AddCommand(newEventsStatsCommand(rootOpts))
	cmd.AddCommand(newEventsExportCommand(rootOpts))
	cmd.AddCommand(newEventsCleanupCommand(rootOpts))
	return cmd
}

func newEventsListCommand(rootOpts *RootOptions) *cobra.Command {
	ff := &filterFlags{}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List events matching a filter",
		Long: `List change events matching a filter, newest first by default.

Examples:
  tidelog events list --db ./tidelog.db --limit 20
  tidelog events list --db ./tidelog.db --type sync_operation --min-severity warning
  tidelog events list --db ./tidelog.db --project proj-1 --since 2026-08-01T00:00:00Z`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEventsList(rootOpts, ff, cmd)
		},
	}
	ff.register(cmd)
	return cmd
}

func runEventsList(opts *RootOptions, ff *filterFlags, cmd *cobra.Command) error {
	filter, err := ff.build()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid filter", err)
	}

	st, _, err := openStore(opts)
	if err != nil {
		return err
	}
	defer st.Close()

	events, err := st.Query(cmd.Context(), filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "query failed", err)
	}

	if opts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), events)
	}
	return printEvents(cmd, events, opts.Verbose)
}

func printEvents(cmd *cobra.Command, events []model.ChangeEvent, verbose bool) error {
	w := cmd.OutOrStdout()
	if len(events) == 0 {
		fmt.Fprintln(w, "No events found.")
		return nil
	}
	for _, e := range events {
		fmt.Fprintf(w, "%s  %-8s %-18s %-16s %s\n",
			e.Timestamp.UTC().Format(time.RFC3339), e.Severity, e.Type, e.Source, e.ID)
		if verbose {
			if e.ProjectID != "" {
				fmt.Fprintf(w, "    project: %s\n", e.ProjectID)
			}
			if e.ChangeID != "" {
				fmt.Fprintf(w, "    change: %s\n", e.ChangeID)
			}
			if len(e.Data) > 0 {
				fmt.Fprintf(w, "    data: %v\n", e.Data)
			}
		}
	}
	fmt.Fprintf(w, "\n%d event(s)\n", len(events))
	return nil
}

func newEventsSearchCommand(rootOpts *RootOptions) *cobra.Command {
	ff := &filterFlags{}

	cmd := &cobra.Command{
		Use:   "search <text>",
		Short: "Full-text search over event payloads",
		Long: `Search event payloads and sources for a substring, combined with
the usual filter flags.

Example:
  tidelog events search "connection refused" --db ./tidelog.db --limit 10`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEventsSearch(rootOpts, ff, args[0], cmd)
		},
	}
	ff.register(cmd)
	return cmd
}

func runEventsSearch(opts *RootOptions, ff *filterFlags, text string, cmd *cobra.Command) error {
	if strings.TrimSpace(text) == "" {
		return NewExitError(ExitCommandError, "search text is empty")
	}
	filter, err := ff.build()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid filter", err)
	}

	st, _, err := openStore(opts)
	if err != nil {
		return err
	}
	defer st.Close()

	events, err := st.Search(cmd.Context(), text, filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "search failed", err)
	}

	if opts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), events)
	}
	return printEvents(cmd, events, opts.Verbose)
}

func newEventsStatsCommand(rootOpts *RootOptions) *cobra.Command {
	ff := &filterFlags{}

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Aggregate event statistics",
		Long: `Report event counts by type and severity plus an hourly timeline,
optionally restricted by filter flags.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEventsStats(rootOpts, ff, cmd)
		},
	}
	ff.register(cmd)
	return cmd
}

func runEventsStats(opts *RootOptions, ff *filterFlags, cmd *cobra.Command) error {
	filter, err := ff.build()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid filter", err)
	}

	st, _, err := openStore(opts)
	if err != nil {
		return err
	}
	defer st.Close()

	stats, err := st.Statistics(cmd.Context(), filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "statistics failed", err)
	}

	if opts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), stats)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Total events: %d\n", stats.TotalEvents)
	if len(stats.ByType) > 0 {
		fmt.Fprintln(w, "\nBy type:")
		for typ, n := range stats.ByType {
			fmt.Fprintf(w, "  %-20s %d\n", typ, n)
		}
	}
	if len(stats.BySeverity) > 0 {
		fmt.Fprintln(w, "\nBy severity:")
		for sev, n := range stats.BySeverity {
			fmt.Fprintf(w, "  %-20s %d\n", sev, n)
		}
	}
	if opts.Verbose && len(stats.Timeline) > 0 {
		fmt.Fprintln(w, "\nTimeline (hourly):")
		for _, bucket := range stats.Timeline {
			fmt.Fprintf(w, "  %s  %d\n", bucket.Start.UTC().Format(time.RFC3339), bucket.Count)
		}
	}
	return nil
}

func newEventsExportCommand(rootOpts *RootOptions) *cobra.Command {
	ff := &filterFlags{}
	var format, output string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export events as JSON, CSV, or SQL",
		Long: `Export matching events in a machine-readable format. Exports are
deterministic: events are emitted in timestamp order with the stored
sequence as a tie-break.

Examples:
  tidelog events export --db ./tidelog.db --export-format csv -o events.csv
  tidelog events export --db ./tidelog.db --export-format sql --type db_change`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEventsExport(rootOpts, ff, format, output, cmd)
		},
	}
	ff.register(cmd)
	cmd.Flags().StringVar(&format, "export-format", "json", "export format (json|csv|sql)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to file instead of stdout")
	return cmd
}

func runEventsExport(opts *RootOptions, ff *filterFlags, format, output string, cmd *cobra.Command) error {
	exportFormat, err := model.ParseExportFormat(format)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid export format", err)
	}
	filter, err := ff.build()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid filter", err)
	}

	st, _, err := openStore(opts)
	if err != nil {
		return err
	}
	defer st.Close()

	data, err := st.Export(cmd.Context(), filter, exportFormat)
	if err != nil {
		return WrapExitError(ExitCommandError, "export failed", err)
	}

	if output == "" {
		_, err = cmd.OutOrStdout().Write(data)
		return err
	}
	if err := os.WriteFile(output, data, 0o644); err != nil {
		return WrapExitError(ExitCommandError, "failed to write export", err)
	}
	if opts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), map[string]any{
			"path":  output,
			"bytes": len(data),
		})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Exported %d bytes to %s\n", len(data), output)
	return nil
}

func newEventsCleanupCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Apply the retention policy",
		Long: `Delete events older than their severity's retention window and
enforce the total event cap. The policy comes from the config file;
defaults apply when none is given.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEventsCleanup(rootOpts, cmd)
		},
	}
	return cmd
}

func runEventsCleanup(opts *RootOptions, cmd *cobra.Command) error {
	st, cfg, err := openStore(opts)
	if err != nil {
		return err
	}
	defer st.Close()

	removed, err := st.Cleanup(cmd.Context(), cfg.Retention)
	if err != nil {
		return WrapExitError(ExitCommandError, "cleanup failed", err)
	}

	if opts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), map[string]any{"removed": removed})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %d event(s)\n", removed)
	return nil
}
