package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/api/option"

	"github.com/lehigh-university-libraries/calsnap/internal/blobstore"
	"github.com/lehigh-university-libraries/calsnap/internal/calendar"
	"github.com/lehigh-university-libraries/calsnap/internal/config"
	"github.com/lehigh-university-libraries/calsnap/internal/gemini"
	"github.com/lehigh-university-libraries/calsnap/internal/ocr"
	"github.com/lehigh-university-libraries/calsnap/internal/ollama"
	"github.com/lehigh-university-libraries/calsnap/internal/openai"
	"github.com/lehigh-university-libraries/calsnap/internal/parsing"
	"github.com/lehigh-university-libraries/calsnap/internal/providers"
)

// newProvider builds the LLM provider registered under name.
func newProvider(cfg *config.Config, name string) (providers.Provider, error) {
	switch name {
	case "openai":
		if cfg.LLM.OpenAIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required for the openai provider")
		}
		return openai.New(cfg.LLM.OpenAIKey), nil
	case "ollama":
		return ollama.New(cfg.LLM.OllamaURL), nil
	case "gemini":
		if cfg.LLM.GeminiKey == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY is required for the gemini provider")
		}
		return gemini.New(cfg.LLM.GeminiKey), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", name)
	}
}

func newExtractor(ctx context.Context, cfg *config.Config) (ocr.Extractor, error) {
	if cfg.OCR.Provider == "vision" {
		var opts []option.ClientOption
		switch {
		case cfg.Google.CloudCredentials != "":
			opts = append(opts, option.WithCredentialsJSON([]byte(cfg.Google.CloudCredentials)))
		case cfg.Google.VisionAPIKey != "":
			opts = append(opts, option.WithAPIKey(cfg.Google.VisionAPIKey))
		}
		vision, err := ocr.NewVision(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create Vision client: %w", err)
		}
		return vision, nil
	}

	provider, err := newProvider(cfg, cfg.OCR.Provider)
	if err != nil {
		return nil, fmt.Errorf("OCR: %w", err)
	}
	model := cfg.OCR.Model
	if model == "" {
		model = cfg.DefaultModel(cfg.OCR.Provider)
	}
	return ocr.NewLLM(provider, cfg.OCR.Provider, model), nil
}

func newParser(cfg *config.Config) (*parsing.Service, error) {
	provider, err := newProvider(cfg, cfg.Parser.Provider)
	if err != nil {
		return nil, fmt.Errorf("parser: %w", err)
	}
	model := cfg.Parser.Model
	if model == "" {
		model = cfg.DefaultModel(cfg.Parser.Provider)
	}
	return parsing.NewService(provider, parsing.Options{
		Model:       model,
		Temperature: cfg.Parser.Temperature,
		SendImage:   cfg.Parser.SendImage,
		Location:    mustLocation(cfg),
	}), nil
}

func openBlobs(ctx context.Context, cfg *config.Config) (blobstore.Store, error) {
	if cfg.Uploads.Backend == "s3" {
		s3 := cfg.Uploads.S3
		store, err := blobstore.NewS3(ctx, blobstore.S3Options{
			Bucket:    s3.Bucket,
			Region:    s3.Region,
			Endpoint:  s3.Endpoint,
			AccessKey: s3.AccessKey,
			SecretKey: s3.SecretKey,
			Prefix:    s3.Prefix,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	}
	disk, err := blobstore.NewDisk(cfg.Uploads.Dir)
	if err != nil {
		return nil, err
	}
	return disk, nil
}

func newPublisher(cfg *config.Config, logger *slog.Logger) *calendar.Publisher {
	if cfg.Google.ClientID == "" || cfg.Google.ClientSecret == "" {
		logger.Warn("GOOGLE_CLIENT_ID or GOOGLE_CLIENT_SECRET not set, calendar publishing will fail")
	}
	return calendar.NewPublisher(calendar.Options{
		ClientID:     cfg.Google.ClientID,
		ClientSecret: cfg.Google.ClientSecret,
		RedirectURL:  cfg.RedirectURL(),
		CalendarID:   cfg.Google.CalendarID,
		Location:     mustLocation(cfg),
	}, logger)
}

// mustLocation returns the calendar timezone. Validate has already rejected
// unknown names.
func mustLocation(cfg *config.Config) *time.Location {
	loc, err := time.LoadLocation(cfg.Google.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func secureCookies(cfg *config.Config) bool {
	return strings.HasPrefix(cfg.Server.PublicURL, "https://")
}
