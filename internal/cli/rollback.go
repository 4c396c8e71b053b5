package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/fenwick-labs/tidelog/internal/backup"
)

// NewRollbackCommand creates the rollback command group.
func NewRollbackCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rollback",
		Short: "Manage rollback points",
	}
	cmd.AddCommand(newRollbackCreateCommand(rootOpts))
	cmd.AddCommand(newRollbackRestoreCommand(rootOpts))
	cmd.AddCommand(newRollbackListCommand(rootOpts))
	return cmd
}

func newRollbackCreateCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		name         string
		operationIDs []string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a rollback point backed by a fresh snapshot",
		Long: `Create a rollback point.

Takes a full backup of the event store and records a named rollback point
referencing it. The point expires per the configured rollback retention
and an expired point can no longer be restored.

Examples:
  tidelog rollback create --name pre-migration
  tidelog rollback create --name risky-sync --operation op-1 --operation op-2

Exit codes:
  0  point created
  2  snapshot or store error`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRollbackCreate(rootOpts, cmd, name, operationIDs)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "rollback point name (required)")
	cmd.Flags().StringArrayVar(&operationIDs, "operation", nil, "operation ID guarded by this point (repeatable)")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func runRollbackCreate(opts *RootOptions, cmd *cobra.Command, name string, operationIDs []string) error {
	st, cfg, err := openStore(opts)
	if err != nil {
		return err
	}
	defer st.Close()

	backups := backup.NewLocalManager(st, cfg.BackupDir, cfg.DBPath, nil)
	manager := backup.NewRollbackManager(st, backups, nil)
	point, err := manager.CreatePoint(cmd.Context(), name, operationIDs)
	if err != nil {
		return WrapExitError(ExitCommandError, "create rollback point failed", err)
	}

	if opts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), point)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created rollback point %s (backup %s, expires %s)\n",
		point.ID, point.BackupID, point.ExpiresAt.UTC().Format(time.RFC3339))
	return nil
}

func newRollbackRestoreCommand(rootOpts *RootOptions) *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Restore the store from a rollback point",
		Long: `Restore the event store from a rollback point's backup.

Refuses expired points. The current store contents are replaced by the
snapshot the point references.

Examples:
  tidelog rollback restore --id rbp-0001

Exit codes:
  0  restored
  2  point missing, expired, or restore error`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRollbackRestore(rootOpts, cmd, id)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "rollback point ID (required)")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func runRollbackRestore(opts *RootOptions, cmd *cobra.Command, id string) error {
	st, cfg, err := openStore(opts)
	if err != nil {
		return err
	}
	defer st.Close()

	backups := backup.NewLocalManager(st, cfg.BackupDir, cfg.DBPath, nil)
	manager := backup.NewRollbackManager(st, backups, nil)
	if err := manager.Restore(cmd.Context(), id); err != nil {
		return WrapExitError(ExitCommandError, "restore failed", err)
	}

	if opts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), map[string]string{"restored": id})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Restored from rollback point %s\n", id)
	return nil
}

func newRollbackListCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "list",
		Short:         "List rollback points, newest first",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRollbackList(rootOpts, cmd)
		},
	}
	return cmd
}

func runRollbackList(opts *RootOptions, cmd *cobra.Command) error {
	st, _, err := openStore(opts)
	if err != nil {
		return err
	}
	defer st.Close()

	points, err := st.ListRollbackPoints(cmd.Context())
	if err != nil {
		return WrapExitError(ExitCommandError, "list rollback points failed", err)
	}

	if opts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), points)
	}

	w := cmd.OutOrStdout()
	if len(points) == 0 {
		fmt.Fprintln(w, "No rollback points.")
		return nil
	}
	now := time.Now().UTC()
	for _, point := range points {
		state := "active"
		if point.Expired(now) {
			state = "expired"
		}
		fmt.Fprintf(w, "%s  %-7s backup=%s  %s\n",
			point.CreatedAt.UTC().Format(time.RFC3339), state, point.BackupID, point.Name)
		if opts.Verbose {
			fmt.Fprintf(w, "    id: %s, expires: %s\n",
				point.ID, point.ExpiresAt.UTC().Format(time.RFC3339))
		}
	}
	return nil
}
