package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/lehigh-university-libraries/calsnap/internal/export"
	"github.com/lehigh-university-libraries/calsnap/internal/storage"
)

func newExportCmd(flags *globalFlags) *cobra.Command {
	var (
		scheduleID int64
		format     string
		output     string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a stored schedule's events as iCalendar or Parquet",
		Example: `  calsnap export --schedule 3 > week.ics
  calsnap export --schedule 3 --format parquet --output week.parquet`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if format != "ics" && format != "parquet" {
				return fmt.Errorf("unsupported export format: %s", format)
			}

			db, err := storage.Open(cfg.Storage.Driver, cfg.Storage.DSN)
			if err != nil {
				return err
			}
			defer db.Close()

			ctx := cmd.Context()
			if _, err := db.GetScheduleImage(ctx, scheduleID); err != nil {
				return err
			}
			events, err := db.ListExtractedEvents(ctx, scheduleID)
			if err != nil {
				return err
			}

			var w io.Writer = cmd.OutOrStdout()
			if output != "" && output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("failed to create output file: %w", err)
				}
				defer f.Close()
				w = f
			}

			if format == "parquet" {
				return export.WriteParquet(w, events)
			}
			return export.WriteICS(w, events, mustLocation(cfg))
		},
	}

	cmd.Flags().Int64Var(&scheduleID, "schedule", 0, "Schedule image id")
	cmd.Flags().StringVar(&format, "format", "ics", "Export format: ics or parquet")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default stdout)")
	_ = cmd.MarkFlagRequired("schedule")

	return cmd
}
