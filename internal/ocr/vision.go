package ocr

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"

	"google.golang.org/api/option"
	vision "google.golang.org/api/vision/v1"

	"github.com/lehigh-university-libraries/calsnap/internal/common"
)

// Vision performs OCR with Google Cloud Vision text detection.
type Vision struct {
	svc *vision.Service
}

func NewVision(ctx context.Context, opts ...option.ClientOption) (*Vision, error) {
	svc, err := vision.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create vision service: %w", err)
	}
	return &Vision{svc: svc}, nil
}

// Extract returns the first text annotation, which holds the full text of
// the image.
func (v *Vision) Extract(ctx context.Context, image []byte, _ string) (string, error) {
	req := &vision.BatchAnnotateImagesRequest{
		Requests: []*vision.AnnotateImageRequest{
			{
				Image:    &vision.Image{Content: base64.StdEncoding.EncodeToString(image)},
				Features: []*vision.Feature{{Type: "TEXT_DETECTION"}},
			},
		},
	}

	resp, err := v.svc.Images.Annotate(req).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("%w: vision annotate: %w", common.ErrExternalService, err)
	}
	if len(resp.Responses) == 0 {
		return "", common.ErrEmptyText
	}

	r := resp.Responses[0]
	if r.Error != nil && r.Error.Message != "" {
		return "", fmt.Errorf("%w: vision: %s", common.ErrExternalService, r.Error.Message)
	}
	if len(r.TextAnnotations) == 0 {
		return "", common.ErrEmptyText
	}

	text := r.TextAnnotations[0].Description
	slog.Info("Extracted OCR text", "provider", "vision", "length", len(text))
	return finish(text)
}
