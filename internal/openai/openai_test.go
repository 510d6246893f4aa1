package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/lehigh-university-libraries/calsnap/internal/providers"
)

func TestGenerate(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("missing bearer token")
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"content":"{\"events\":[]}"}}]}`))
	}))
	defer srv.Close()

	o := New("sk-test")
	o.BaseURL = srv.URL

	out, err := o.Generate(context.Background(), providers.Config{
		Model:        "gpt-4o",
		Temperature:  0.1,
		SystemPrompt: "You parse schedules.",
		Prompt:       "Math 101",
		Image:        []byte("png"),
		ImageMIME:    "image/png",
		JSON:         true,
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out != `{"events":[]}` {
		t.Errorf("unexpected output %q", out)
	}

	if got["model"] != "gpt-4o" {
		t.Errorf("unexpected model %v", got["model"])
	}
	format, _ := got["response_format"].(map[string]any)
	if format["type"] != "json_object" {
		t.Errorf("expected json_object response format, got %v", got["response_format"])
	}
	messages, _ := got["messages"].([]any)
	if len(messages) != 2 {
		t.Fatalf("expected system and user messages, got %d", len(messages))
	}
	user := messages[1].(map[string]any)
	content, _ := user["content"].([]any)
	if len(content) != 2 {
		t.Fatalf("expected text and image parts, got %v", user["content"])
	}
	image := content[1].(map[string]any)["image_url"].(map[string]any)
	if url, _ := image["url"].(string); !strings.HasPrefix(url, "data:image/png;base64,") {
		t.Errorf("unexpected image url %v", image["url"])
	}
}

func TestGenerateErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{name: "non-200", status: http.StatusTooManyRequests, body: "slow down", wantErr: "429"},
		{name: "no choices", status: http.StatusOK, body: `{"choices":[]}`, wantErr: "no choices"},
		{name: "bad json", status: http.StatusOK, body: `nope`, wantErr: "decode"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			o := New("sk-test")
			o.BaseURL = srv.URL
			_, err := o.Generate(context.Background(), providers.Config{Model: "gpt-4o", Prompt: "x"})
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestGenerateRequiresKey(t *testing.T) {
	if _, err := New("").Generate(context.Background(), providers.Config{}); err == nil {
		t.Error("expected error without API key")
	}
}
