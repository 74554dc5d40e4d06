package mediatypes

import "bytes"

// Container is the format identified from a file's leading bytes.
type Container string

const (
	ContainerUnknown Container = "unknown"
	ContainerJPEG    Container = "jpeg"
	ContainerPNG     Container = "png"
	ContainerGIF     Container = "gif"
	ContainerWebP    Container = "webp"
	ContainerBMP     Container = "bmp"
	ContainerTIFF    Container = "tiff"
	ContainerHEIF    Container = "heif"
	ContainerAVIF    Container = "avif"
	ContainerISOBMFF Container = "mp4" // ftyp box with a video brand
	ContainerEBML    Container = "ebml"
	ContainerRIFFAVI Container = "avi"
)

// HeaderSize is how many bytes Sniff wants to see.
const HeaderSize = 32

// Sniff identifies the container from magic bytes.
func Sniff(header []byte) Container {
	switch {
	case len(header) >= 3 && header[0] == 0xFF && header[1] == 0xD8 && header[2] == 0xFF:
		return ContainerJPEG
	case bytes.HasPrefix(header, []byte{0x89, 'P', 'N', 'G'}):
		return ContainerPNG
	case bytes.HasPrefix(header, []byte("GIF8")):
		return ContainerGIF
	case len(header) >= 12 && bytes.HasPrefix(header, []byte("RIFF")) && string(header[8:12]) == "WEBP":
		return ContainerWebP
	case len(header) >= 12 && bytes.HasPrefix(header, []byte("RIFF")) && string(header[8:12]) == "AVI ":
		return ContainerRIFFAVI
	case bytes.HasPrefix(header, []byte("BM")):
		return ContainerBMP
	case bytes.HasPrefix(header, []byte("II*\x00")), bytes.HasPrefix(header, []byte("MM\x00*")):
		return ContainerTIFF
	case bytes.HasPrefix(header, []byte{0x1A, 0x45, 0xDF, 0xA3}):
		return ContainerEBML
	case len(header) >= 12 && string(header[4:8]) == "ftyp":
		switch string(header[8:12]) {
		case "heic", "heix", "hevc", "hevx", "mif1", "msf1":
			return ContainerHEIF
		case "avif", "avis":
			return ContainerAVIF
		}
		return ContainerISOBMFF
	}
	return ContainerUnknown
}

// Classify combines the extension with the sniffed container. The content
// wins when it clearly disagrees with the extension, so an iPhone HEIC saved
// as .jpg is still converted and a GIF named .png still takes the first-frame
// path. An unrecognized header leaves the extension's verdict in place.
func Classify(ext string, header []byte) Kind {
	byExt := KindForExtension(ext)

	switch Sniff(header) {
	case ContainerHEIF, ContainerAVIF:
		return KindRaw
	case ContainerGIF:
		return KindAnimated
	case ContainerJPEG, ContainerPNG, ContainerWebP, ContainerBMP, ContainerTIFF:
		return KindStill
	case ContainerISOBMFF, ContainerEBML, ContainerRIFFAVI:
		if byExt == KindRaw {
			// Some HEIF writers use an mp4-ish brand; trust the extension.
			return KindRaw
		}
		return KindVideo
	}
	return byExt
}
