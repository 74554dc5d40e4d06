package media

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"media-catalog/internal/logging"
	"media-catalog/internal/metrics"

	"github.com/davidbyttow/govips/v2/vips"
)

var (
	vipsInitialized bool
	vipsInitMutex   sync.Mutex
	vipsAvailable   bool
)

// InitVips starts libvips once per process. vips messages are routed through
// the application logger at a threshold derived from LOG_LEVEL.
func InitVips() error {
	vipsInitMutex.Lock()
	defer vipsInitMutex.Unlock()

	if vipsInitialized {
		return nil
	}

	threshold := vipsThreshold(logging.GetLevel())
	vips.LoggingSettings(func(domain string, level vips.LogLevel, msg string) {
		if level > threshold {
			return
		}
		switch {
		case level <= vips.LogLevelCritical:
			logging.Error("[%s] %s", domain, msg)
		case level == vips.LogLevelWarning:
			logging.Warn("[%s] %s", domain, msg)
		default:
			logging.Debug("[%s] %s", domain, msg)
		}
	}, threshold)

	// Conversions run on the worker pool, so vips itself stays single-threaded.
	vips.Startup(&vips.Config{
		ConcurrencyLevel: 1,
		MaxCacheMem:      50 * 1024 * 1024,
		MaxCacheSize:     100,
	})

	vipsInitialized = true
	vipsAvailable = true
	logging.Info("libvips initialized (version: %s)", vips.Version)
	return nil
}

// vipsThreshold maps the application level onto the least severe vips level
// still shown. Lower vips levels are more severe.
func vipsThreshold(level logging.Level) vips.LogLevel {
	switch level {
	case logging.LevelDebug:
		return vips.LogLevelInfo
	case logging.LevelWarn:
		return vips.LogLevelCritical
	case logging.LevelError:
		return vips.LogLevelError
	default:
		return vips.LogLevelWarning
	}
}

// ShutdownVips releases libvips. govips cannot be restarted afterwards.
func ShutdownVips() {
	vipsInitMutex.Lock()
	defer vipsInitMutex.Unlock()

	if vipsInitialized {
		vips.Shutdown()
		vipsInitialized = false
		vipsAvailable = false
		logging.Info("libvips shutdown complete")
	}
}

// IsVipsAvailable returns whether libvips is initialized and available
func IsVipsAvailable() bool {
	vipsInitMutex.Lock()
	defer vipsInitMutex.Unlock()
	return vipsAvailable
}

// VipsConverter converts raw images with libvips. It only works for formats
// the linked libvips was built to load.
type VipsConverter struct{}

// ConvertToJPEG implements RawConverter.
func (VipsConverter) ConvertToJPEG(ctx context.Context, src string, quality int) ([]byte, error) {
	if !IsVipsAvailable() {
		return nil, errors.New("libvips not available")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	defer func() {
		metrics.GeneratorExternalToolDuration.WithLabelValues("vips").Observe(time.Since(start).Seconds())
	}()

	ref, err := vips.LoadImageFromFile(src, vips.NewImportParams())
	if err != nil {
		return nil, fmt.Errorf("vips failed to load image: %w", err)
	}
	defer ref.Close()

	if err := ref.AutoRotate(); err != nil {
		logging.Debug("vips auto-rotate failed for %s: %v", src, err)
	}

	data, _, err := ref.ExportJpeg(&vips.JpegExportParams{
		Quality:        quality,
		OptimizeCoding: true,
	})
	if err != nil {
		return nil, fmt.Errorf("vips export failed: %w", err)
	}
	return data, nil
}
