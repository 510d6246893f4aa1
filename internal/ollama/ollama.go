package ollama

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/lehigh-university-libraries/calsnap/internal/providers"
)

const DefaultURL = "http://localhost:11434"

// Ollama is a provider for a local Ollama server
type Ollama struct {
	BaseURL    string
	HTTPClient *http.Client
}

// New returns a new Ollama provider
func New(baseURL string) *Ollama {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	return &Ollama{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{},
	}
}

// Generate sends the prompt, and the image when present, to Ollama
func (o *Ollama) Generate(ctx context.Context, config providers.Config) (string, error) {
	body := map[string]any{
		"model":  config.Model,
		"prompt": config.Prompt,
		"stream": false,
		"options": map[string]any{
			"temperature": config.Temperature,
		},
	}
	if config.SystemPrompt != "" {
		body["system"] = config.SystemPrompt
	}
	if len(config.Image) > 0 {
		body["images"] = []string{base64.StdEncoding.EncodeToString(config.Image)}
	}
	if config.JSON {
		body["format"] = "json"
	}
	if config.MaxTokens > 0 {
		body["options"].(map[string]any)["num_predict"] = config.MaxTokens
	}

	requestBody, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", o.BaseURL+"/api/generate", bytes.NewBuffer(requestBody))
	if err != nil {
		return "", fmt.Errorf("failed to create new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

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
		Response string `json:"response"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return "", fmt.Errorf("failed to decode response body: %w", err)
	}

	return response.Response, nil
}
