package media

import (
	"bytes"
	"context"
	"image/color"
	"image/jpeg"
	"path/filepath"
	"testing"

	"media-catalog/internal/logging"

	"github.com/davidbyttow/govips/v2/vips"
)

// govips cannot be restarted after Shutdown, so no test here calls
// ShutdownVips.

func TestVipsThreshold(t *testing.T) {
	tests := []struct {
		level logging.Level
		want  vips.LogLevel
	}{
		{logging.LevelDebug, vips.LogLevelInfo},
		{logging.LevelInfo, vips.LogLevelWarning},
		{logging.LevelWarn, vips.LogLevelCritical},
		{logging.LevelError, vips.LogLevelError},
	}
	for _, tt := range tests {
		if got := vipsThreshold(tt.level); got != tt.want {
			t.Errorf("vipsThreshold(%v) = %v, want %v", tt.level, got, tt.want)
		}
	}
}

func TestInitVipsIdempotency(t *testing.T) {
	if err := InitVips(); err != nil {
		t.Skipf("libvips not available in test environment: %v", err)
	}
	if err := InitVips(); err != nil {
		t.Errorf("second InitVips() call failed: %v", err)
	}
	if !IsVipsAvailable() {
		t.Error("IsVipsAvailable() should be true after InitVips")
	}
}

func TestVipsConverter(t *testing.T) {
	if err := InitVips(); err != nil || !IsVipsAvailable() {
		t.Skip("libvips not available in test environment")
	}

	src := writeFile(t, filepath.Join(t.TempDir(), "in.jpg"), jpegBytes(t, solidImage(300, 200, color.RGBA{200, 50, 50, 255})))

	data, err := VipsConverter{}.ConvertToJPEG(context.Background(), src, ConvertedQuality)
	if err != nil {
		t.Fatalf("ConvertToJPEG() error = %v", err)
	}
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("output is not a JPEG: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 300 || b.Dy() != 200 {
		t.Errorf("output size = %dx%d, want 300x200", b.Dx(), b.Dy())
	}

	if _, err := (VipsConverter{}).ConvertToJPEG(context.Background(), filepath.Join(t.TempDir(), "missing.heic"), 90); err == nil {
		t.Error("ConvertToJPEG() of a missing file should fail")
	}
}
