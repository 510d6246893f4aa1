package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/lehigh-university-libraries/calsnap/internal/providers"
)

const DefaultBaseURL = "https://api.openai.com/v1"

// OpenAI is a provider for the OpenAI chat completions API
type OpenAI struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

// New returns a new OpenAI provider
func New(apiKey string) *OpenAI {
	return &OpenAI{
		APIKey:     apiKey,
		BaseURL:    DefaultBaseURL,
		HTTPClient: &http.Client{},
	}
}

// Generate sends the prompt, and the image when present, to OpenAI
func (o *OpenAI) Generate(ctx context.Context, config providers.Config) (string, error) {
	if o.APIKey == "" {
		return "", fmt.Errorf("OPENAI_API_KEY not set")
	}

	messages := []map[string]any{}
	if config.SystemPrompt != "" {
		messages = append(messages, map[string]any{
			"role":    "system",
			"content": config.SystemPrompt,
		})
	}

	if len(config.Image) > 0 {
		dataURI := "data:" + config.MIME() + ";base64," + base64.StdEncoding.EncodeToString(config.Image)
		messages = append(messages, map[string]any{
			"role": "user",
			"content": []map[string]any{
				{
					"type": "text",
					"text": config.Prompt,
				},
				{
					"type": "image_url",
					"image_url": map[string]string{
						"url": dataURI,
					},
				},
			},
		})
	} else {
		messages = append(messages, map[string]any{
			"role":    "user",
			"content": config.Prompt,
		})
	}

	body := map[string]any{
		"model":       config.Model,
		"messages":    messages,
		"temperature": config.Temperature,
	}
	if config.MaxTokens > 0 {
		body["max_tokens"] = config.MaxTokens
	}
	if config.JSON {
		body["response_format"] = map[string]string{"type": "json_object"}
	}

	requestBody, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", o.BaseURL+"/chat/completions", bytes.NewBuffer(requestBody))
	if err != nil {
		return "", fmt.Errorf("failed to create new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.APIKey)

	client := o.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("received non-200 status code: %d - %s", resp.StatusCode, string(body))
	}

	var response struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return "", fmt.Errorf("failed to decode response body: %w", err)
	}

	if len(response.Choices) == 0 {
		return "", fmt.Errorf("no choices returned from OpenAI")
	}

	return response.Choices[0].Message.Content, nil
}
