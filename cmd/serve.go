package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/lehigh-university-libraries/calsnap/internal/handlers"
	"github.com/lehigh-university-libraries/calsnap/internal/pipeline"
	"github.com/lehigh-university-libraries/calsnap/internal/session"
	"github.com/lehigh-university-libraries/calsnap/internal/storage"
)

const defaultSessionSecret = "calsnap-dev-secret"

func newServeCmd(flags *globalFlags) *cobra.Command {
	var (
		port      string
		store     string
		staticDir string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the calsnap HTTP API",
		Long: `Starts the calsnap HTTP API on the specified port.

Uploaded schedule images are processed in the background: text is extracted
with the configured OCR provider, structured into events by the parser
provider and stored for review before being published to Google Calendar.`,
		Example: `  # Start server on default port 5000
  calsnap serve

  # Start server on custom port with an in-memory store
  calsnap serve --port 3000 --store memory`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			if cmd.Flags().Changed("store") {
				cfg.Storage.Driver = store
			}
			if cmd.Flags().Changed("static-dir") {
				cfg.Server.StaticDir = staticDir
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if cfg.Session.Secret == defaultSessionSecret {
				slog.Warn("SESSION_SECRET not set, using the development secret")
			}

			ctx := cmd.Context()
			logger := slog.Default()

			db, err := storage.Open(cfg.Storage.Driver, cfg.Storage.DSN)
			if err != nil {
				return err
			}
			defer db.Close()

			blobs, err := openBlobs(ctx, cfg)
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

			orchestrator := pipeline.NewOrchestrator(db, blobs, extractor, parser, logger)
			runner := pipeline.NewRunner(orchestrator,
				pipeline.WithLogger(logger),
				pipeline.WithJobTimeout(cfg.Pipeline.JobTimeout),
				pipeline.WithObserver(logFailedJob(logger)),
			)

			handler := handlers.New(db, blobs, runner, newPublisher(cfg, logger), handlers.Options{
				MaxUploadBytes: cfg.Uploads.MaxBytes,
				StaticDir:      cfg.Server.StaticDir,
				Location:       mustLocation(cfg),
				SecureCookies:  secureCookies(cfg),
			})
			sessions := session.NewManager(db, cfg.Session.Secret, cfg.Session.TTL, secureCookies(cfg))

			addr := ":" + cfg.Server.Port
			server := &http.Server{
				Addr:              addr,
				Handler:           handler.Routes(sessions),
				ReadHeaderTimeout: 10 * time.Second,
			}

			// Start server in goroutine
			serverErr := make(chan error, 1)
			go func() {
				slog.Info("Calsnap API available", "addr", addr, "url", cfg.Server.PublicURL, "store", cfg.Storage.Driver, "ocr", cfg.OCR.Provider, "parser", cfg.Parser.Provider)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serverErr <- err
				}
			}()

			// Wait for context cancellation (Ctrl+C) or server error
			select {
			case <-ctx.Done():
				slog.Info("Shutting down server...")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Pipeline.ShutdownTimeout)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					slog.Error("Server shutdown failed", "err", err)
					return err
				}
				// in-flight jobs still need the store
				if err := runner.Shutdown(shutdownCtx); err != nil {
					slog.Error("Jobs still running at shutdown", "err", err)
					return err
				}
				slog.Info("Server stopped")
				return nil
			case err := <-serverErr:
				return err
			}
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", "5000", "Port to listen on")
	cmd.Flags().StringVar(&store, "store", "sqlite", "Record store: sqlite or memory")
	cmd.Flags().StringVar(&staticDir, "static-dir", "", "Directory with a frontend to serve at /")

	return cmd
}

// logFailedJob reports jobs that ended with an error.
func logFailedJob(logger *slog.Logger) func(*pipeline.Job) {
	return func(job *pipeline.Job) {
		if job.Err() == nil {
			return
		}
		logger.Warn("Schedule processing job failed",
			"schedule_image_id", job.ScheduleImageID,
			"duration", job.FinishedAt().Sub(job.StartedAt()),
			"err", job.Err())
	}
}
