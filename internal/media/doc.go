// Package media produces the derivative files of a cataloged source: a JPEG
// thumbnail for every supported file and a full-size JPEG conversion for raw
// camera images.
//
// Stills are decoded with imaging, animated images contribute their first
// frame, videos a frame extracted by ffmpeg. Raw files are converted by
// libvips when it is initialized and by ffmpeg otherwise, and the thumbnail is
// cut from the converted copy. EXIF tags (goexif) or container tags (ffprobe)
// are attached as string metadata.
//
// Derivatives are written under unique names and renamed into place, so a
// failed or concurrent generation never leaves partial files behind.
package media
