package providers

import "testing"

func TestConfigImageFormat(t *testing.T) {
	tests := []struct {
		mime       string
		wantMIME   string
		wantFormat string
	}{
		{"", "image/jpeg", "jpeg"},
		{"image/png", "image/png", "png"},
		{"image/webp", "image/webp", "webp"},
	}
	for _, tt := range tests {
		c := Config{ImageMIME: tt.mime}
		if got := c.MIME(); got != tt.wantMIME {
			t.Errorf("MIME(%q) = %q, want %q", tt.mime, got, tt.wantMIME)
		}
		if got := c.ImageFormat(); got != tt.wantFormat {
			t.Errorf("ImageFormat(%q) = %q, want %q", tt.mime, got, tt.wantFormat)
		}
	}
}
