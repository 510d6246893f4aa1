package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/lehigh-university-libraries/calsnap/internal/config"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	logLevel   string
}

// load reads the configuration, applies global flag overrides and sets up
// the default logger.
func (g *globalFlags) load() (*config.Config, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, err
	}
	if g.logLevel != "" {
		cfg.LogLevel = g.logLevel
	}
	if err := setupLogger(cfg.LogLevel); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setupLogger(level string) error {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})))
	return nil
}

func NewRootCmd() *cobra.Command {
	flags := &globalFlags{}

	cmd := &cobra.Command{
		Use:   "calsnap",
		Short: "Turn photos of schedules into Google Calendar events",
		Long: `Calsnap reads a photographed or scanned schedule, extracts its text with OCR,
structures it into calendar events with an LLM and publishes the events you
keep to Google Calendar.

Run the HTTP API with "calsnap serve" or process single images from the command line.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()
		},
	}

	cmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "Path to a YAML config file (default calsnap.yaml when present)")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level: debug, info, warn, error")

	cmd.AddCommand(newServeCmd(flags))
	cmd.AddCommand(newProcessCmd(flags))
	cmd.AddCommand(newUploadCmd(flags))
	cmd.AddCommand(newExportCmd(flags))
	cmd.AddCommand(newMigrateCmd(flags))

	return cmd
}
