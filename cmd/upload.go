package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/lehigh-university-libraries/calsnap/internal/client"
	"github.com/lehigh-university-libraries/calsnap/internal/images"
	"github.com/lehigh-university-libraries/calsnap/internal/models"
)

func newUploadCmd(flags *globalFlags) *cobra.Command {
	var (
		server   string
		file     string
		format   string
		timeout  time.Duration
		interval time.Duration
		publish  bool
	)

	cmd := &cobra.Command{
		Use:   "upload",
		Short: "Upload a schedule image to a running server and wait for its events",
		Example: `  calsnap upload --server http://localhost:5000 --file week.png

  # Publish every extracted event once processing completes
  calsnap upload --file week.png --publish`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			data, name, err := images.NewFetcher(cfg.Uploads.MaxBytes).Fetch(ctx, file)
			if err != nil {
				return err
			}

			c := client.New(server)
			c.PollInterval = interval

			id, err := c.Upload(ctx, name, data)
			if err != nil {
				return err
			}
			slog.Info("Uploaded schedule image, waiting for processing", "schedule_image_id", id)

			s, err := c.WaitForSchedule(ctx, id)
			if err != nil {
				return err
			}
			if s.Schedule.ProcessingStatus == models.StatusFailed {
				return fmt.Errorf("processing of schedule %d failed", id)
			}

			out := processOutput{Status: s.Schedule.ProcessingStatus, Events: make([]models.EventDraft, len(s.Events))}
			if s.Schedule.OriginalText != nil {
				out.OriginalText = *s.Schedule.OriginalText
			}
			ids := make([]int64, len(s.Events))
			for i, e := range s.Events {
				out.Events[i] = e.Draft()
				ids[i] = e.ID
			}
			if err := writeOutput(cmd.OutOrStdout(), format, out); err != nil {
				return err
			}

			if publish && len(ids) > 0 {
				created, err := c.CreateCalendarEvents(ctx, ids)
				if err != nil {
					return err
				}
				slog.Info("Published events", "requested", len(ids), "created", len(created))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&server, "server", "http://localhost:5000", "Base URL of the calsnap server")
	cmd.Flags().StringVarP(&file, "file", "f", "", "Schedule image path or URL (png, jpeg or webp)")
	cmd.Flags().StringVar(&format, "format", "yaml", "Output format: yaml or json")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "Give up waiting after this long")
	cmd.Flags().DurationVar(&interval, "interval", client.DefaultPollInterval, "Status polling interval")
	cmd.Flags().BoolVar(&publish, "publish", false, "Publish the extracted events to Google Calendar")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}
