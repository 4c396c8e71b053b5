package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/fenwick-labs/tidelog/internal/backup"
	"github.com/fenwick-labs/tidelog/internal/model"
)

// NewBackupCommand creates the backup command group.
func NewBackupCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Manage database backups",
	}
	cmd.AddCommand(newBackupCreateCommand(rootOpts))
	cmd.AddCommand(newBackupListCommand(rootOpts))
	cmd.AddCommand(newBackupVerifyCommand(rootOpts))
	cmd.AddCommand(newBackupCleanupCommand(rootOpts))
	return cmd
}

func newBackupCreateCommand(rootOpts *RootOptions) *cobra.Command {
	var typ string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a backup snapshot",
		Long: `Snapshot the live database into the configured backup directory
with a recorded checksum.

Example:
  tidelog backup create --db ./tidelog.db --backup-type full`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBackupCreate(rootOpts, typ, cmd)
		},
	}
	cmd.Flags().StringVar(&typ, "backup-type", "full", "backup type (full|incremental)")
	return cmd
}

func runBackupCreate(opts *RootOptions, typ string, cmd *cobra.Command) error {
	backupType := model.BackupType(typ)
	switch backupType {
	case model.BackupFull, model.BackupIncremental:
	default:
		return NewExitError(ExitCommandError, fmt.Sprintf("unknown backup type %q", typ))
	}

	st, cfg, err := openStore(opts)
	if err != nil {
		return err
	}
	defer st.Close()

	manager := backup.NewLocalManager(st, cfg.BackupDir, cfg.DBPath, nil)
	info, err := manager.CreateBackup(cmd.Context(), backupType, nil)
	if err != nil {
		return WrapExitError(ExitCommandError, "backup failed", err)
	}

	if opts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), info)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created %s backup %s (%d bytes)\n",
		info.Type, info.ID, info.SizeBytes)
	return nil
}

func newBackupListCommand(rootOpts *RootOptions) *cobra.Command {
	var typ string
	var limit int

	cmd := &cobra.Command{
		Use:           "list",
		Short:         "List backups, newest first",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBackupList(rootOpts, typ, limit, cmd)
		},
	}
	cmd.Flags().StringVar(&typ, "backup-type", "", "only backups of this type")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum backups to list (0 = all)")
	return cmd
}

func runBackupList(opts *RootOptions, typ string, limit int, cmd *cobra.Command) error {
	st, cfg, err := openStore(opts)
	if err != nil {
		return err
	}
	defer st.Close()

	manager := backup.NewLocalManager(st, cfg.BackupDir, cfg.DBPath, nil)
	backups, err := manager.ListBackups(cmd.Context(), model.BackupFilter{
		Type:  model.BackupType(typ),
		Limit: limit,
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "list backups failed", err)
	}

	if opts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), backups)
	}

	w := cmd.OutOrStdout()
	if len(backups) == 0 {
		fmt.Fprintln(w, "No backups found.")
		return nil
	}
	for _, info := range backups {
		fmt.Fprintf(w, "%s  %-13s %10d bytes  %s\n",
			info.CreatedAt.UTC().Format(time.RFC3339), info.Type, info.SizeBytes, info.ID)
	}
	return nil
}

func newBackupVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify <backup-id>",
		Short: "Verify a backup's checksum",
		Long: `Recompute the backup file's checksum and compare it against the
recorded value.

Exit codes:
  0 - backup verified
  1 - checksum mismatch or missing file
  2 - command error`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBackupVerify(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runBackupVerify(opts *RootOptions, id string, cmd *cobra.Command) error {
	st, cfg, err := openStore(opts)
	if err != nil {
		return err
	}
	defer st.Close()

	manager := backup.NewLocalManager(st, cfg.BackupDir, cfg.DBPath, nil)
	if err := manager.VerifyBackup(cmd.Context(), id); err != nil {
		if opts.Format == "json" {
			_ = writeJSONError(cmd.OutOrStdout(), "E_VERIFY", "backup verification failed", err.Error())
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "Backup %s failed verification: %v\n", id, err)
		}
		return NewExitError(ExitFailure, "backup verification failed")
	}

	if opts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), map[string]any{"backup_id": id, "verified": true})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Backup %s verified\n", id)
	return nil
}

func newBackupCleanupCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "cleanup",
		Short:         "Delete backups past the retention window",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBackupCleanup(rootOpts, cmd)
		},
	}
	return cmd
}

func runBackupCleanup(opts *RootOptions, cmd *cobra.Command) error {
	st, cfg, err := openStore(opts)
	if err != nil {
		return err
	}
	defer st.Close()

	manager := backup.NewLocalManager(st, cfg.BackupDir, cfg.DBPath, nil)
	removed, err := manager.Cleanup(cmd.Context())
	if err != nil {
		return WrapExitError(ExitCommandError, "backup cleanup failed", err)
	}

	if opts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), map[string]any{"removed": removed})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %d backup(s)\n", removed)
	return nil
}
