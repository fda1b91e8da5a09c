package clients

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"

	"github.com/livepeer/dubworker/errors"
	"github.com/livepeer/dubworker/pipeline"
	"github.com/livepeer/dubworker/registry"
	"github.com/livepeer/dubworker/subprocess"
	"github.com/livepeer/dubworker/video"
)

// FFmpegRenderer shells out to ffmpeg the same way the
// subprocess package wraps its media tools: exec.CommandContext plus
// streamed stdout/stderr logging. It implements pipeline.Renderer, doing
// S3's audio extraction, S7's burn-in/watermark and S8's container
// verification (grounded on video.FFProbe's ffmpeg/ffprobe-subprocess idiom).
type FFmpegRenderer struct {
	Prober video.Prober
}

func NewFFmpegRenderer(prober video.Prober) *FFmpegRenderer {
	return &FFmpegRenderer{Prober: prober}
}

// Trim cuts sourcePath down to [startTime, endTime) (hh:mm:ss, either may
// be empty) without re-encoding, mirroring EditOps.Cut's ffmpeg idiom.
// Run at acquire time (§4.6.6) so every later stage operates on an
// already-bounded source.
func (f *FFmpegRenderer) Trim(ctx context.Context, requestID, sourcePath, startTime, endTime, destPath string) error {
	args := []string{"-y", "-i", sourcePath}
	if startTime != "" {
		args = append(args, "-ss", startTime)
	}
	if endTime != "" {
		args = append(args, "-to", endTime)
	}
	args = append(args, "-c", "copy", destPath)

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	if err := subprocess.LogOutputs(cmd); err != nil {
		return errors.NewTaskError(errors.RenderError, fmt.Sprintf("preparing ffmpeg trim: %v", err), err)
	}
	if err := cmd.Run(); err != nil {
		return errors.NewTaskError(errors.RenderError, fmt.Sprintf("trimming %s: %v", filepath.Base(sourcePath), err), err)
	}
	return nil
}

func (f *FFmpegRenderer) ExtractAudio(ctx context.Context, requestID, sourcePath, destWavPath string) error {
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-y", "-i", sourcePath,
		"-vn", "-ac", "1", "-ar", "16000", "-f", "wav",
		destWavPath,
	)
	if err := subprocess.LogOutputs(cmd); err != nil {
		return errors.NewTaskError(errors.AudioExtractionError, fmt.Sprintf("preparing ffmpeg audio extraction: %v", err), err)
	}
	if err := cmd.Run(); err != nil {
		return errors.NewTaskError(errors.AudioExtractionError, fmt.Sprintf("extracting audio from %s: %v", filepath.Base(sourcePath), err), err)
	}
	return nil
}

func (f *FFmpegRenderer) BurnIn(ctx context.Context, requestID string, opts pipeline.BurnInOptions) error {
	filters := fmt.Sprintf("subtitles=%s", ffmpegEscapePath(opts.SubtitlePath))

	args := []string{"-y", "-i", opts.SourcePath}
	if opts.WatermarkPath != "" {
		args = append(args, "-i", opts.WatermarkPath)
		overlayXY := watermarkOverlayExpr(opts.WatermarkPos)
		filters = fmt.Sprintf(
			"[1:v]scale=iw*%s:-1,format=rgba,colorchannelmixer=aa=%.2f[wm];[0:v][wm]overlay=%s,subtitles=%s",
			watermarkScaleFraction(opts.WatermarkSize), float64(opts.WatermarkOpac)/100.0, overlayXY, ffmpegEscapePath(opts.SubtitlePath),
		)
	}

	args = append(args,
		"-filter_complex", filters,
		"-c:a", "copy",
		opts.DestPath,
	)
	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	if err := subprocess.LogOutputs(cmd); err != nil {
		return errors.NewTaskError(errors.RenderError, fmt.Sprintf("preparing ffmpeg burn-in: %v", err), err)
	}
	if err := cmd.Run(); err != nil {
		return errors.NewTaskError(errors.RenderError, fmt.Sprintf("burning in subtitles: %v", err), err)
	}
	return nil
}

func (f *FFmpegRenderer) VerifyContainer(ctx context.Context, requestID, path string) (registry.SourceMetadata, error) {
	meta, err := f.Prober.Probe(ctx, requestID, path)
	if err != nil {
		return registry.SourceMetadata{}, errors.NewTaskError(errors.FormatError, fmt.Sprintf("verifying rendered container %s: %v", filepath.Base(path), err), err)
	}
	return meta, nil
}

func ffmpegEscapePath(path string) string {
	// ffmpeg's filtergraph parser treats ':' as an option separator, so
	// colons (and the escaping backslash itself) must be escaped even on
	// paths that are otherwise filesystem-safe.
	out := make([]byte, 0, len(path))
	for i := 0; i < len(path); i++ {
		c := path[i]
		if c == ':' || c == '\\' || c == '\'' {
			out = append(out, '\\')
		}
		out = append(out, c)
	}
	return "'" + string(out) + "'"
}

// watermarkScaleFraction maps the closed config.WatermarkSizes set to the
// fraction of frame width the logo is scaled to.
func watermarkScaleFraction(size string) string {
	switch size {
	case "small":
		return "0.10"
	case "medium":
		return "0.18"
	case "large":
		return "0.28"
	default:
		return "0.10"
	}
}

func watermarkOverlayExpr(position string) string {
	switch position {
	case "top-left":
		return "10:10"
	case "top-right":
		return "main_w-overlay_w-10:10"
	case "bottom-left":
		return "10:main_h-overlay_h-10"
	case "center":
		return "(main_w-overlay_w)/2:(main_h-overlay_h)/2"
	default: // bottom-right
		return "main_w-overlay_w-10:main_h-overlay_h-10"
	}
}
