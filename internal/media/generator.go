package media

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"media-catalog/internal/filesystem"
	"media-catalog/internal/logging"
	"media-catalog/internal/mediatypes"
	"media-catalog/internal/metrics"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
)

const (
	// ThumbnailQuality is the JPEG quality of every thumbnail.
	ThumbnailQuality = 85

	// ConvertedQuality is the JPEG quality of converted full-size copies.
	ConvertedQuality = 95
)

// Config controls where derivatives go and how large thumbnails are.
// Converter, Frames and Prober default to ffmpeg (with libvips in front for
// raw conversion once InitVips has succeeded).
type Config struct {
	ThumbnailDir string
	ConvertedDir string
	Width        int
	Height       int

	Converter RawConverter
	Frames    FrameExtractor
	Prober    VideoProber
}

// Result is what a successful Process produced.
type Result struct {
	Kind          mediatypes.Kind
	MimeType      string
	ThumbnailPath string
	ConvertedPath string
	Metadata      map[string]string
}

// Files lists the derivative files the result refers to.
func (r *Result) Files() []string {
	files := []string{r.ThumbnailPath}
	if r.ConvertedPath != "" {
		files = append(files, r.ConvertedPath)
	}
	return files
}

// Discard deletes the result's files. Used when the catalog turns out to
// already hold the source.
func (r *Result) Discard() {
	removeFiles(r.Files())
}

// Generator turns one source file into its derivatives. It holds no per-call
// state and is safe for concurrent use.
type Generator struct {
	config    Config
	converter RawConverter
	frames    FrameExtractor
	prober    VideoProber
	retry     filesystem.RetryConfig
}

// NewGenerator validates the configuration and creates the output
// directories.
func NewGenerator(config Config) (*Generator, error) {
	if config.Width <= 0 || config.Height <= 0 {
		return nil, fmt.Errorf("invalid thumbnail box %dx%d", config.Width, config.Height)
	}
	for _, dir := range []string{config.ThumbnailDir, config.ConvertedDir} {
		if dir == "" {
			return nil, errors.New("thumbnail and converted directories are required")
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	g := &Generator{
		config:    config,
		converter: config.Converter,
		frames:    config.Frames,
		prober:    config.Prober,
		retry:     filesystem.DefaultRetryConfig(),
	}

	ff := NewFFmpeg()
	if g.converter == nil {
		if IsVipsAvailable() {
			g.converter = ConverterChain{VipsConverter{}, ff}
		} else {
			g.converter = ff
		}
	}
	if g.frames == nil {
		g.frames = ff
	}
	if g.prober == nil {
		g.prober = ff
	}

	logging.Debug("Generator: thumbnails %dx%d into %s, conversions into %s",
		config.Width, config.Height, config.ThumbnailDir, config.ConvertedDir)
	return g, nil
}

// Process classifies src and writes its thumbnail, plus a converted JPEG for
// raw images. On error nothing it wrote is left on disk and the error is a
// *GenerationError.
func (g *Generator) Process(ctx context.Context, src string) (*Result, error) {
	start := time.Now()
	kind := mediatypes.KindUnknown

	result, err := g.process(ctx, src, &kind)

	status := "success"
	if err != nil {
		status = FailureReason(err)
		logging.Debug("Generation failed for %s: %v", src, err)
	}
	metrics.GeneratorRunsTotal.WithLabelValues(kind.String(), status).Inc()
	metrics.GeneratorDuration.WithLabelValues(kind.String()).Observe(time.Since(start).Seconds())

	return result, err
}

func (g *Generator) process(ctx context.Context, src string, kind *mediatypes.Kind) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, failed(src, err)
	}

	header, err := g.readHeader(src)
	if err != nil {
		return nil, err
	}

	ext := mediatypes.Ext(src)
	*kind = mediatypes.Classify(ext, header)
	if *kind == mediatypes.KindUnknown {
		return nil, unsupported(src, fmt.Errorf("unrecognized content for extension %q", ext))
	}

	stem := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
	id := uuid.NewString()[:8]
	result := &Result{
		Kind:          *kind,
		MimeType:      mediatypes.MimeType(ext),
		ThumbnailPath: filepath.Join(g.config.ThumbnailDir, fmt.Sprintf("%s_%s_thumb.jpg", stem, id)),
	}

	var written []string
	fail := func(e *GenerationError) (*Result, error) {
		removeFiles(written)
		return nil, e
	}

	var img image.Image
	switch *kind {
	case mediatypes.KindStill:
		img, err = g.decodeStill(src)
	case mediatypes.KindAnimated:
		img, err = decodeFirstFrame(src)
	case mediatypes.KindVideo:
		img, err = g.frames.ExtractFrame(ctx, src)
	case mediatypes.KindRaw:
		result.ConvertedPath = filepath.Join(g.config.ConvertedDir, fmt.Sprintf("%s_%s_converted.jpg", stem, id))
		img, err = g.convertRaw(ctx, src, result.ConvertedPath)
		if err == nil {
			written = append(written, result.ConvertedPath)
		}
	}
	if err != nil {
		var genErr *GenerationError
		if errors.As(err, &genErr) {
			return fail(genErr)
		}
		return fail(failed(src, err))
	}

	thumb := imaging.Fit(flatten(img), g.config.Width, g.config.Height, imaging.Lanczos)
	err = writeFileAtomic(result.ThumbnailPath, func(w io.Writer) error {
		return jpeg.Encode(w, thumb, &jpeg.Options{Quality: ThumbnailQuality})
	})
	if err != nil {
		return fail(failed(src, fmt.Errorf("failed to write thumbnail: %w", err)))
	}
	written = append(written, result.ThumbnailPath)

	result.Metadata = g.extractMetadata(ctx, *kind, src, result.ConvertedPath)
	return result, nil
}

// readHeader checks that src is a readable, non-empty regular file and
// returns its first bytes for content sniffing.
func (g *Generator) readHeader(src string) ([]byte, error) {
	info, err := filesystem.StatWithRetry(src, g.retry)
	if err != nil {
		return nil, unavailable(src, err)
	}
	if !info.Mode().IsRegular() {
		return nil, unavailable(src, errors.New("not a regular file"))
	}
	if info.Size() == 0 {
		return nil, unavailable(src, errors.New("file is empty"))
	}

	f, err := filesystem.OpenWithRetry(src, g.retry)
	if err != nil {
		return nil, unavailable(src, err)
	}
	defer f.Close()

	header := make([]byte, mediatypes.HeaderSize)
	n, err := io.ReadFull(f, header)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, unavailable(src, err)
	}
	return header[:n], nil
}

// convertRaw writes a full-size JPEG of src to dst and returns it decoded for
// thumbnailing, so the thumbnail never comes from the raw bytes.
func (g *Generator) convertRaw(ctx context.Context, src, dst string) (image.Image, error) {
	data, err := g.converter.ConvertToJPEG(ctx, src, ConvertedQuality)
	if err != nil {
		return nil, failed(src, fmt.Errorf("conversion failed: %w", err))
	}

	err = writeFileAtomic(dst, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
	if err != nil {
		return nil, failed(src, fmt.Errorf("failed to write converted copy: %w", err))
	}

	img, err := imaging.Open(dst, imaging.AutoOrientation(true))
	if err != nil {
		removeFiles([]string{dst})
		return nil, failed(src, fmt.Errorf("converted copy is not decodable: %w", err))
	}
	return img, nil
}

// writeFileAtomic writes through a temp file in the destination directory and
// renames it into place, so readers never see a partial derivative.
func writeFileAtomic(dst string, write func(w io.Writer) error) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".tmp-"+filepath.Base(dst)+"-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			os.Remove(tmp.Name())
		}
	}()

	if err = write(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dst)
}

func removeFiles(paths []string) {
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			logging.Warn("Failed to remove derivative %s: %v", p, err)
		}
	}
}
