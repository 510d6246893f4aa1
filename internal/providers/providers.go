package providers

import (
	"context"
	"strings"
)

// Config represents one request to an LLM provider
type Config struct {
	Model        string
	Temperature  float64
	SystemPrompt string
	Prompt       string
	// Image is sent alongside the prompt when non-empty
	Image     []byte
	ImageMIME string
	// JSON asks the provider to constrain its answer to a JSON object
	JSON      bool
	MaxTokens int
}

// Provider defines the interface for an LLM provider
type Provider interface {
	Generate(ctx context.Context, config Config) (string, error)
}

// MIME returns the configured image MIME type, defaulting to JPEG.
func (c Config) MIME() string {
	if c.ImageMIME == "" {
		return "image/jpeg"
	}
	return c.ImageMIME
}

// ImageFormat returns the MIME subtype, e.g. "png" for "image/png".
func (c Config) ImageFormat() string {
	return strings.TrimPrefix(c.MIME(), "image/")
}
