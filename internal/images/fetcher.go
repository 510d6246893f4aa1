package images

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path"
	"strings"
	"time"
)

// Fetcher loads schedule images from local paths or http(s) URLs.
type Fetcher struct {
	HTTPClient *http.Client
	// MaxBytes caps the size of a downloaded image.
	MaxBytes int64
}

// NewFetcher creates a new image fetcher
func NewFetcher(maxBytes int64) *Fetcher {
	return &Fetcher{
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		MaxBytes: maxBytes,
	}
}

// IsURL reports whether src should be downloaded rather than read from disk.
func IsURL(src string) bool {
	return strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://")
}

// Fetch returns the image bytes and a file name for src.
func (f *Fetcher) Fetch(ctx context.Context, src string) ([]byte, string, error) {
	if !IsURL(src) {
		data, err := os.ReadFile(src)
		if err != nil {
			return nil, "", fmt.Errorf("failed to read image: %w", err)
		}
		if f.MaxBytes > 0 && int64(len(data)) > f.MaxBytes {
			return nil, "", fmt.Errorf("image %s is larger than %d bytes", src, f.MaxBytes)
		}
		return data, src, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := f.HTTPClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("image URL returned status %d", resp.StatusCode)
	}

	body := io.Reader(resp.Body)
	if f.MaxBytes > 0 {
		body = io.LimitReader(resp.Body, f.MaxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read image data: %w", err)
	}
	if f.MaxBytes > 0 && int64(len(data)) > f.MaxBytes {
		return nil, "", fmt.Errorf("image at %s is larger than %d bytes", src, f.MaxBytes)
	}

	name := fileName(req.URL.Path, resp.Header.Get("Content-Type"))
	slog.Debug("Downloaded image", "url", src, "bytes", len(data), "name", name)
	return data, name, nil
}

// fileName keeps the URL's base name when it carries an image extension and
// otherwise derives one from the response type.
func fileName(urlPath, contentType string) string {
	base := path.Base(urlPath)
	switch strings.ToLower(path.Ext(base)) {
	case ".png", ".jpg", ".jpeg", ".webp":
		return base
	}
	if base == "/" || base == "." {
		base = "image"
	}
	switch strings.TrimSpace(strings.Split(contentType, ";")[0]) {
	case "image/png":
		return base + ".png"
	case "image/webp":
		return base + ".webp"
	default:
		return base + ".jpg"
	}
}
