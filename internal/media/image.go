package media

import (
	"fmt"
	"image"
	"image/color"
	"image/gif"
	"math"
	"os"

	"media-catalog/internal/logging"

	// Image format decoders
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const (
	// MaxImageDimension is the largest width or height decoded at full size.
	// Larger stills are downscaled before thumbnailing.
	MaxImageDimension = 8192

	// MaxImagePixels bounds the decoded pixel count of a still. 40MP is about
	// 160MB as NRGBA.
	MaxImagePixels = 40_000_000
)

// ImageDimensions holds image width and height
type ImageDimensions struct {
	Width  int
	Height int
}

// GetImageDimensions reads the dimensions from the image header without
// decoding pixels.
func GetImageDimensions(path string) (*ImageDimensions, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	config, _, err := image.DecodeConfig(file)
	if err != nil {
		return nil, err
	}
	return &ImageDimensions{Width: config.Width, Height: config.Height}, nil
}

// decodeStill opens a still image with EXIF orientation applied, downscaling
// anything beyond the dimension or pixel limits.
func (g *Generator) decodeStill(path string) (image.Image, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	b := img.Bounds()
	w, h := constrainedSize(b.Dx(), b.Dy(), MaxImageDimension, MaxImagePixels)
	if w != b.Dx() || h != b.Dy() {
		logging.Debug("Constraining large image %s from %dx%d to %dx%d", path, b.Dx(), b.Dy(), w, h)
		img = imaging.Resize(img, w, h, imaging.Lanczos)
	}
	return img, nil
}

// constrainedSize scales (w, h) down, preserving aspect ratio, until neither
// side exceeds maxDimension and the area does not exceed maxPixels.
func constrainedSize(w, h, maxDimension, maxPixels int) (int, int) {
	if w > maxDimension || h > maxDimension {
		if w > h {
			h = h * maxDimension / w
			w = maxDimension
		} else {
			w = w * maxDimension / h
			h = maxDimension
		}
	}
	if w*h > maxPixels {
		scale := math.Sqrt(float64(maxPixels) / float64(w*h))
		w = int(float64(w) * scale)
		h = int(float64(h) * scale)
	}
	return max(w, 1), max(h, 1)
}

// decodeFirstFrame returns only the first frame of an animated image.
func decodeFirstFrame(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, err := gif.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode first frame: %w", err)
	}
	return img, nil
}

type opaquer interface {
	Opaque() bool
}

// flatten composites img onto an opaque white background. Images that are
// already fully opaque are returned unchanged.
func flatten(img image.Image) image.Image {
	if o, ok := img.(opaquer); ok && o.Opaque() {
		return img
	}
	b := img.Bounds()
	bg := imaging.New(b.Dx(), b.Dy(), color.White)
	return imaging.Overlay(bg, img, image.Pt(0, 0), 1.0)
}
