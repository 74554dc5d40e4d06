package mediatypes

import "testing"

func ftyp(brand string) []byte {
	return append([]byte{0, 0, 0, 0x18, 'f', 't', 'y', 'p'}, []byte(brand+"\x00\x00\x00\x00")...)
}

func TestSniff(t *testing.T) {
	tests := []struct {
		name   string
		header []byte
		want   Container
	}{
		{"jpeg", []byte{0xFF, 0xD8, 0xFF, 0xE0}, ContainerJPEG},
		{"png", []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1A, '\n'}, ContainerPNG},
		{"gif", []byte("GIF89a"), ContainerGIF},
		{"webp", []byte("RIFF\x00\x00\x00\x00WEBPVP8 "), ContainerWebP},
		{"avi", []byte("RIFF\x00\x00\x00\x00AVI LIST"), ContainerRIFFAVI},
		{"bmp", []byte("BM\x00\x00"), ContainerBMP},
		{"tiff little endian", []byte("II*\x00"), ContainerTIFF},
		{"tiff big endian", []byte("MM\x00*"), ContainerTIFF},
		{"heic", ftyp("heic"), ContainerHEIF},
		{"mif1", ftyp("mif1"), ContainerHEIF},
		{"avif", ftyp("avif"), ContainerAVIF},
		{"mp4", ftyp("isom"), ContainerISOBMFF},
		{"mkv", []byte{0x1A, 0x45, 0xDF, 0xA3, 0x01}, ContainerEBML},
		{"empty", nil, ContainerUnknown},
		{"text", []byte("hello world"), ContainerUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Sniff(tt.header); got != tt.want {
				t.Errorf("Sniff() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		ext    string
		header []byte
		want   Kind
	}{
		{"jpeg as jpeg", ".jpg", []byte{0xFF, 0xD8, 0xFF}, KindStill},
		{"heic named jpg", ".jpg", ftyp("heic"), KindRaw},
		{"gif named png", ".png", []byte("GIF89a"), KindAnimated},
		{"mp4", ".mp4", ftyp("isom"), KindVideo},
		{"heic with video brand", ".heic", ftyp("isom"), KindRaw},
		{"unreadable header keeps extension", ".heic", nil, KindRaw},
		{"unknown extension unknown content", ".txt", []byte("plain"), KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.ext, tt.header); got != tt.want {
				t.Errorf("Classify(%q) = %v, want %v", tt.ext, got, tt.want)
			}
		})
	}
}
