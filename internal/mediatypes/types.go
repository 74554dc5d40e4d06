package mediatypes

import (
	"path/filepath"
	"sort"
	"strings"
)

// Kind is the closed classification of a source file. Each kind has exactly
// one derived-asset handler.
type Kind int

const (
	// KindUnknown is not a supported media file.
	KindUnknown Kind = iota
	// KindStill is a single-frame raster image.
	KindStill
	// KindAnimated is a multi-frame image; only its first frame is used.
	KindAnimated
	// KindVideo is a video container; its first readable frame is used.
	KindVideo
	// KindRaw is an image that browsers cannot display and must be converted
	// to JPEG before a thumbnail is taken (HEIC/HEIF).
	KindRaw
)

func (k Kind) String() string {
	switch k {
	case KindStill:
		return "still"
	case KindAnimated:
		return "animated"
	case KindVideo:
		return "video"
	case KindRaw:
		return "raw"
	default:
		return "unknown"
	}
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) Kind {
	switch s {
	case "still":
		return KindStill
	case "animated":
		return KindAnimated
	case "video":
		return KindVideo
	case "raw":
		return KindRaw
	default:
		return KindUnknown
	}
}

// extensionKinds is every extension the generator has a handler for.
var extensionKinds = map[string]Kind{
	".jpg":  KindStill,
	".jpeg": KindStill,
	".png":  KindStill,
	".webp": KindStill,
	".bmp":  KindStill,
	".tif":  KindStill,
	".tiff": KindStill,
	".gif":  KindAnimated,
	".mp4":  KindVideo,
	".m4v":  KindVideo,
	".mov":  KindVideo,
	".mkv":  KindVideo,
	".webm": KindVideo,
	".avi":  KindVideo,
	".heic": KindRaw,
	".heif": KindRaw,
	".avif": KindRaw,
}

var mimeTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
	".bmp":  "image/bmp",
	".tif":  "image/tiff",
	".tiff": "image/tiff",
	".gif":  "image/gif",
	".mp4":  "video/mp4",
	".m4v":  "video/x-m4v",
	".mov":  "video/quicktime",
	".mkv":  "video/x-matroska",
	".webm": "video/webm",
	".avi":  "video/x-msvideo",
	".heic": "image/heic",
	".heif": "image/heif",
	".avif": "image/avif",
}

// DefaultExtensions is the supported set used when none is configured.
const DefaultExtensions = ".jpg,.jpeg,.png,.gif,.webp,.heic,.heif,.mp4"

// Ext returns the lowercased extension of path, including the dot.
func Ext(path string) string {
	return strings.ToLower(filepath.Ext(path))
}

// KindForExtension classifies by extension alone.
func KindForExtension(ext string) Kind {
	return extensionKinds[strings.ToLower(ext)]
}

// MimeType returns the MIME type for an extension, or application/octet-stream.
func MimeType(ext string) string {
	if mime, ok := mimeTypes[strings.ToLower(ext)]; ok {
		return mime
	}
	return "application/octet-stream"
}

// ExtensionSet is the configured set of extensions the scanner and watcher
// accept. Keys are lowercase with a leading dot.
type ExtensionSet map[string]struct{}

// ParseExtensions builds a set from a comma separated list such as
// ".jpg, png,.HEIC". Extensions without a handler are dropped and returned
// separately so the caller can warn about them.
func ParseExtensions(list string) (ExtensionSet, []string) {
	set := make(ExtensionSet)
	var ignored []string
	for _, part := range strings.Split(list, ",") {
		ext := strings.ToLower(strings.TrimSpace(part))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		if _, ok := extensionKinds[ext]; !ok {
			ignored = append(ignored, ext)
			continue
		}
		set[ext] = struct{}{}
	}
	return set, ignored
}

// Matches reports whether path has a supported extension.
func (s ExtensionSet) Matches(path string) bool {
	_, ok := s[Ext(path)]
	return ok
}

// Sorted returns the extensions in lexical order.
func (s ExtensionSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for ext := range s {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}
