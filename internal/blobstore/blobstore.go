// Package blobstore holds uploaded schedule images until the pipeline has
// read them.
package blobstore

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

type Store interface {
	Save(ctx context.Context, key string, data []byte, contentType string) error
	Read(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// NewKey returns a unique object key that keeps the original extension.
func NewKey(ext string) string {
	ext = strings.ToLower(ext)
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return uuid.NewString() + ext
}

// ContentType maps the key's extension to an accepted image MIME type.
func ContentType(key string) string {
	switch strings.ToLower(filepath.Ext(key)) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".webp":
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}
