package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/lehigh-university-libraries/calsnap/internal/storage"
)

func newMigrateCmd(flags *globalFlags) *cobra.Command {
	var dsn string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending SQLite migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			if dsn == "" {
				dsn = cfg.Storage.DSN
			}

			version, dirty, err := storage.Migrate(dsn)
			if err != nil {
				return err
			}
			if dirty {
				return fmt.Errorf("database %s is dirty at version %d", dsn, version)
			}
			slog.Info("Database schema is current", "dsn", dsn, "version", version)
			return nil
		},
	}

	cmd.Flags().StringVar(&dsn, "dsn", "", "SQLite database (default from config)")

	return cmd
}
