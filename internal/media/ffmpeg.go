package media

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"media-catalog/internal/logging"
	"media-catalog/internal/metrics"
)

// RawConverter turns a raw image into JPEG bytes.
type RawConverter interface {
	ConvertToJPEG(ctx context.Context, src string, quality int) ([]byte, error)
}

// FrameExtractor decodes the first readable frame of a video.
type FrameExtractor interface {
	ExtractFrame(ctx context.Context, src string) (image.Image, error)
}

// VideoProber reads container-level tags from a video.
type VideoProber interface {
	ProbeTags(ctx context.Context, src string) (map[string]string, error)
}

// ConverterChain tries each converter in order and returns the first
// success.
type ConverterChain []RawConverter

// ConvertToJPEG implements RawConverter.
func (c ConverterChain) ConvertToJPEG(ctx context.Context, src string, quality int) ([]byte, error) {
	var errs []error
	for _, conv := range c {
		data, err := conv.ConvertToJPEG(ctx, src, quality)
		if err == nil {
			return data, nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return nil, errors.New("no converter configured")
	}
	return nil, errors.Join(errs...)
}

// FFmpeg shells out to ffmpeg and ffprobe.
type FFmpeg struct {
	ffmpegPath  string
	ffprobePath string
	timeout     time.Duration
}

// NewFFmpeg resolves the binaries from PATH. Missing binaries only surface
// as errors when a video or raw file is processed.
func NewFFmpeg() *FFmpeg {
	f := &FFmpeg{ffmpegPath: "ffmpeg", ffprobePath: "ffprobe", timeout: 60 * time.Second}
	if p, err := exec.LookPath("ffmpeg"); err == nil {
		f.ffmpegPath = p
	}
	if p, err := exec.LookPath("ffprobe"); err == nil {
		f.ffprobePath = p
	}
	return f
}

// ExtractFrame implements FrameExtractor. It seeks one second in to skip
// black lead-in frames and falls back to the very first frame for clips
// shorter than that.
func (f *FFmpeg) ExtractFrame(ctx context.Context, src string) (image.Image, error) {
	out, err := f.frameAt(ctx, src, "00:00:01")
	if err != nil {
		logging.Debug("Seeked frame extraction failed for %s, retrying from start: %v", src, err)
		out, err = f.frameAt(ctx, src, "")
	}
	if err != nil {
		return nil, err
	}

	img, _, err := image.Decode(bytes.NewReader(out))
	if err != nil {
		return nil, fmt.Errorf("failed to decode ffmpeg output: %w", err)
	}
	return img, nil
}

// ConvertToJPEG implements RawConverter. ffmpeg's mjpeg qscale runs from 2
// (best) to 31; quality is mapped linearly onto it.
func (f *FFmpeg) ConvertToJPEG(ctx context.Context, src string, quality int) ([]byte, error) {
	qscale := 2 + (100-min(max(quality, 1), 100))*29/99
	return f.run(ctx, "ffmpeg", f.ffmpegPath,
		"-v", "error",
		"-i", src,
		"-frames:v", "1",
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-q:v", strconv.Itoa(qscale),
		"-",
	)
}

func (f *FFmpeg) frameAt(ctx context.Context, src, offset string) ([]byte, error) {
	args := []string{"-v", "error"}
	if offset != "" {
		args = append(args, "-ss", offset)
	}
	args = append(args, "-i", src, "-vframes", "1", "-f", "image2pipe", "-vcodec", "png", "-")
	return f.run(ctx, "ffmpeg", f.ffmpegPath, args...)
}

type probeOutput struct {
	Format struct {
		FormatName string            `json:"format_name"`
		Duration   string            `json:"duration"`
		Tags       map[string]string `json:"tags"`
	} `json:"format"`
	Streams []struct {
		CodecType string `json:"codec_type"`
		CodecName string `json:"codec_name"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
	} `json:"streams"`
}

// ProbeTags implements VideoProber.
func (f *FFmpeg) ProbeTags(ctx context.Context, src string) (map[string]string, error) {
	out, err := f.run(ctx, "ffprobe", f.ffprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		src,
	)
	if err != nil {
		return nil, err
	}

	return parseProbe(out)
}

// parseProbe flattens ffprobe JSON into format tags plus duration, container
// and the first video stream's codec and size.
func parseProbe(out []byte) (map[string]string, error) {
	var probe probeOutput
	if err := json.Unmarshal(out, &probe); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	tags := make(map[string]string, len(probe.Format.Tags)+5)
	for k, v := range probe.Format.Tags {
		tags[k] = v
	}
	if probe.Format.Duration != "" {
		tags["duration"] = probe.Format.Duration
	}
	if probe.Format.FormatName != "" {
		tags["format"] = probe.Format.FormatName
	}
	for _, s := range probe.Streams {
		if s.CodecType == "video" {
			tags["codec"] = s.CodecName
			tags["width"] = strconv.Itoa(s.Width)
			tags["height"] = strconv.Itoa(s.Height)
			break
		}
	}
	return tags, nil
}

func (f *FFmpeg) run(ctx context.Context, tool, path string, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	start := time.Now()
	defer func() {
		metrics.GeneratorExternalToolDuration.WithLabelValues(tool).Observe(time.Since(start).Seconds())
	}()

	cmd := exec.CommandContext(ctx, path, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s failed: %w, stderr: %s", tool, err, strings.TrimSpace(stderr.String()))
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("%s produced no output", tool)
	}

	logging.Debug("%s output size: %d bytes", tool, stdout.Len())
	return stdout.Bytes(), nil
}
