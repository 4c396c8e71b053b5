package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/fenwick-labs/tidelog/internal/config"
	"github.com/fenwick-labs/tidelog/internal/store"
)

// RootOptions holds global flags shared by all commands.
type RootOptions struct {
	Verbose  bool
	Format   string // "json" | "text"
	Config   string // optional config file path
	Database string // overrides the configured db_path
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the tidelog CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "tidelog",
		Short: "tidelog - resilient change log and recovery core",
		Long:  "Inspect and administer the append-only change log, recovery history, backups, and replay sessions.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Config, "config", "", "path to config file (YAML)")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides config)")

	cmd.AddCommand(NewEventsCommand(opts))
	cmd.AddCommand(NewLogCommand(opts))
	cmd.AddCommand(NewReplayCommand(opts))
	cmd.AddCommand(NewRecoverCommand(opts))
	cmd.AddCommand(NewBackupCommand(opts))
	cmd.AddCommand(NewRollbackCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// loadConfig resolves the effective configuration: file (when given),
// defaults otherwise, with the --db flag taking precedence.
func loadConfig(opts *RootOptions) (config.Config, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return config.Config{}, err
	}
	if opts.Database != "" {
		cfg.DBPath = opts.Database
	}
	// A relative backup dir lives next to the database file.
	if !filepath.IsAbs(cfg.BackupDir) {
		cfg.BackupDir = filepath.Join(filepath.Dir(cfg.DBPath), cfg.BackupDir)
	}
	return cfg, nil
}

// openStore opens the configured event store. Callers own the Close.
func openStore(opts *RootOptions) (*store.Store, config.Config, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, config.Config{}, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, config.Config{}, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, cfg, nil
}
