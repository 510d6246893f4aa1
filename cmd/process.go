package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/lehigh-university-libraries/calsnap/internal/blobstore"
	"github.com/lehigh-university-libraries/calsnap/internal/images"
	"github.com/lehigh-university-libraries/calsnap/internal/models"
	"github.com/lehigh-university-libraries/calsnap/internal/pipeline"
	"github.com/lehigh-university-libraries/calsnap/internal/storage"
)

type processOutput struct {
	Status       models.ProcessingStatus `json:"status" yaml:"status"`
	OriginalText string                  `json:"originalText,omitempty" yaml:"originalText,omitempty"`
	Events       []models.EventDraft     `json:"events" yaml:"events"`
}

func newProcessCmd(flags *globalFlags) *cobra.Command {
	var (
		file   string
		format string
	)

	cmd := &cobra.Command{
		Use:   "process",
		Short: "Extract calendar events from one schedule image",
		Long: `Runs OCR and schedule parsing on a local image or an image URL without
starting a server and prints the extracted events. Nothing is written to the
configured store.`,
		Example: `  # Print events as YAML
  calsnap process --file week.png

  # Use Ollama for both steps and print JSON
  OCR_PROVIDER=ollama PARSER_PROVIDER=ollama calsnap process --file week.jpg --format json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if format != "yaml" && format != "json" {
				return fmt.Errorf("unsupported output format: %s", format)
			}

			ctx := cmd.Context()
			data, name, err := images.NewFetcher(cfg.Uploads.MaxBytes).Fetch(ctx, file)
			if err != nil {
				return err
			}

			extractor, err := newExtractor(ctx, cfg)
			if err != nil {
				return err
			}
			parser, err := newParser(cfg)
			if err != nil {
				return err
			}

			scratch, err := os.MkdirTemp("", "calsnap-")
			if err != nil {
				return err
			}
			defer os.RemoveAll(scratch)
			blobs, err := blobstore.NewDisk(scratch)
			if err != nil {
				return err
			}

			key := blobstore.NewKey(filepath.Ext(name))
			if err := blobs.Save(ctx, key, data, blobstore.ContentType(key)); err != nil {
				return err
			}

			store := storage.NewMemory()
			img, err := store.CreateScheduleImage(ctx, nil, key)
			if err != nil {
				return err
			}

			orchestrator := pipeline.NewOrchestrator(store, blobs, extractor, parser, slog.Default())
			if err := orchestrator.Process(ctx, img.ID, key); err != nil {
				return fmt.Errorf("processing %s failed: %w", file, err)
			}

			if img, err = store.GetScheduleImage(ctx, img.ID); err != nil {
				return err
			}
			events, err := store.ListExtractedEvents(ctx, img.ID)
			if err != nil {
				return err
			}

			out := processOutput{Status: img.ProcessingStatus, Events: make([]models.EventDraft, len(events))}
			if img.OriginalText != nil {
				out.OriginalText = *img.OriginalText
			}
			for i, e := range events {
				out.Events[i] = e.Draft()
			}
			return writeOutput(cmd.OutOrStdout(), format, out)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Schedule image path or URL (png, jpeg or webp)")
	cmd.Flags().StringVar(&format, "format", "yaml", "Output format: yaml or json")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func writeOutput(w io.Writer, format string, v any) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(v)
}
