package gemini

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/lehigh-university-libraries/calsnap/internal/providers"
	"google.golang.org/api/option"
)

// Gemini is a provider for Google Gemini
type Gemini struct {
	APIKey string
}

// New returns a new Gemini provider
func New(apiKey string) *Gemini {
	return &Gemini{APIKey: apiKey}
}

// Generate sends the prompt, and the image when present, to Gemini
func (g *Gemini) Generate(ctx context.Context, config providers.Config) (string, error) {
	if g.APIKey == "" {
		return "", fmt.Errorf("GEMINI_API_KEY not set")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(g.APIKey))
	if err != nil {
		return "", fmt.Errorf("failed to create new gemini client: %w", err)
	}
	defer client.Close()

	model := client.GenerativeModel(config.Model)
	configureModel(model, config)

	resp, err := model.GenerateContent(ctx, requestParts(config)...)
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}

	return responseText(resp)
}

func configureModel(model *genai.GenerativeModel, config providers.Config) {
	model.SetTemperature(float32(config.Temperature))
	if config.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(config.MaxTokens))
	}
	if config.SystemPrompt != "" {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(config.SystemPrompt)},
		}
	}
	if config.JSON {
		model.ResponseMIMEType = "application/json"
	}
}

func requestParts(config providers.Config) []genai.Part {
	parts := []genai.Part{}
	if len(config.Image) > 0 {
		parts = append(parts, genai.ImageData(config.ImageFormat(), config.Image))
	}
	return append(parts, genai.Text(config.Prompt))
}

// responseText joins the text parts of the first candidate.
func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("no candidates returned from Gemini")
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", fmt.Errorf("empty content returned from Gemini")
	}

	var sb strings.Builder
	for _, part := range candidate.Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("unexpected response format from Gemini")
	}
	return sb.String(), nil
}
