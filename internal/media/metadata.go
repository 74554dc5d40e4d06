package media

import (
	"context"
	"os"

	"media-catalog/internal/logging"
	"media-catalog/internal/mediatypes"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/tiff"
)

// maxTagBytes caps undefined-type EXIF payloads kept as metadata. Larger
// blobs are usually embedded previews or vendor data.
const maxTagBytes = 256

// extractMetadata never fails: anything unreadable yields an empty map.
func (g *Generator) extractMetadata(ctx context.Context, kind mediatypes.Kind, src, converted string) map[string]string {
	switch kind {
	case mediatypes.KindVideo:
		tags, err := g.prober.ProbeTags(ctx, src)
		if err != nil {
			logging.Debug("No container tags for %s: %v", src, err)
			return map[string]string{}
		}
		return tags
	case mediatypes.KindRaw:
		tags := readExif(src)
		if len(tags) == 0 && converted != "" {
			tags = readExif(converted)
		}
		return tags
	default:
		return readExif(src)
	}
}

type exifWalker map[string]string

func (w exifWalker) Walk(name exif.FieldName, tag *tiff.Tag) error {
	if name == exif.MakerNote {
		return nil
	}

	switch tag.Format() {
	case tiff.StringVal:
		v, err := tag.StringVal()
		if err != nil {
			return nil
		}
		w[string(name)] = v
	case tiff.UndefVal:
		if len(tag.Val) > maxTagBytes {
			return nil
		}
		w[string(name)] = tag.String()
	default:
		w[string(name)] = tag.String()
	}
	return nil
}

// readExif returns the EXIF tags of path as strings.
func readExif(path string) map[string]string {
	tags := exifWalker{}

	f, err := os.Open(path)
	if err != nil {
		return tags
	}
	defer f.Close()

	x, err := exif.Decode(f)
	if err != nil {
		logging.Debug("No EXIF data in %s: %v", path, err)
		return tags
	}
	if err := x.Walk(tags); err != nil {
		logging.Debug("Partial EXIF data in %s: %v", path, err)
	}
	return tags
}
