package clients

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/livepeer/dubworker/errors"
	"github.com/livepeer/dubworker/subprocess"
)

// EditOps implements the synchronous edit operations from §4.1/§4.6
// [ADDED] (cut, embed-subtitles, merge, add-logo). Unlike the Pipeline
// Engine's stages, these run inline in the HTTP handler goroutine, bounded
// by the request context, and never touch the broker. Grounded on the same
// ffmpeg exec.CommandContext + subprocess.LogOutputs idiom as
// FFmpegRenderer.
type EditOps struct{}

func NewEditOps() *EditOps {
	return &EditOps{}
}

// Cut trims sourcePath to [startTime, endTime) (hh:mm:ss) without
// re-encoding when possible.
func (e *EditOps) Cut(ctx context.Context, requestID, sourcePath, startTime, endTime, destPath string) error {
	args := []string{"-y", "-i", sourcePath, "-ss", startTime}
	if endTime != "" {
		args = append(args, "-to", endTime)
	}
	args = append(args, "-c", "copy", destPath)

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	if err := subprocess.LogOutputs(cmd); err != nil {
		return errors.NewTaskError(errors.RenderError, fmt.Sprintf("preparing ffmpeg cut: %v", err), err)
	}
	if err := cmd.Run(); err != nil {
		return errors.NewTaskError(errors.RenderError, fmt.Sprintf("cutting %s: %v", filepath.Base(sourcePath), err), err)
	}
	return nil
}

// EmbedSubtitles muxes an SRT track into the container as a soft (selectable)
// subtitle stream, as opposed to BurnIn which rasterizes it into the video.
func (e *EditOps) EmbedSubtitles(ctx context.Context, requestID, sourcePath, subtitlePath, destPath string) error {
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-y", "-i", sourcePath, "-i", subtitlePath,
		"-map", "0", "-map", "1",
		"-c", "copy", "-c:s", "mov_text",
		destPath,
	)
	if err := subprocess.LogOutputs(cmd); err != nil {
		return errors.NewTaskError(errors.RenderError, fmt.Sprintf("preparing ffmpeg subtitle embed: %v", err), err)
	}
	if err := cmd.Run(); err != nil {
		return errors.NewTaskError(errors.RenderError, fmt.Sprintf("embedding subtitles into %s: %v", filepath.Base(sourcePath), err), err)
	}
	return nil
}

// Merge concatenates sourcePaths (same codec/container) via the ffmpeg
// concat demuxer, which requires a file list on disk next to the output.
func (e *EditOps) Merge(ctx context.Context, requestID string, sourcePaths []string, destPath string) error {
	listPath := destPath + ".concat.txt"
	f, err := os.Create(listPath)
	if err != nil {
		return errors.NewTaskError(errors.RenderError, fmt.Sprintf("creating concat list: %v", err), err)
	}
	for _, p := range sourcePaths {
		if _, err := fmt.Fprintf(f, "file '%s'\n", ffmpegEscapeConcatEntry(p)); err != nil {
			f.Close()
			os.Remove(listPath)
			return errors.NewTaskError(errors.RenderError, fmt.Sprintf("writing concat list: %v", err), err)
		}
	}
	f.Close()
	defer os.Remove(listPath)

	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-y", "-f", "concat", "-safe", "0", "-i", listPath,
		"-c", "copy", destPath,
	)
	if err := subprocess.LogOutputs(cmd); err != nil {
		return errors.NewTaskError(errors.RenderError, fmt.Sprintf("preparing ffmpeg merge: %v", err), err)
	}
	if err := cmd.Run(); err != nil {
		return errors.NewTaskError(errors.RenderError, fmt.Sprintf("merging %d sources: %v", len(sourcePaths), err), err)
	}
	return nil
}

// AddLogo overlays a watermark image without touching subtitles, sharing
// the scale/position/opacity helpers BurnIn uses.
func (e *EditOps) AddLogo(ctx context.Context, requestID, sourcePath, logoPath, destPath, position, size string, opacity int) error {
	overlayXY := watermarkOverlayExpr(position)
	filter := fmt.Sprintf(
		"[1:v]scale=iw*%s:-1,format=rgba,colorchannelmixer=aa=%.2f[wm];[0:v][wm]overlay=%s",
		watermarkScaleFraction(size), float64(opacity)/100.0, overlayXY,
	)

	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-y", "-i", sourcePath, "-i", logoPath,
		"-filter_complex", filter,
		"-c:a", "copy",
		destPath,
	)
	if err := subprocess.LogOutputs(cmd); err != nil {
		return errors.NewTaskError(errors.RenderError, fmt.Sprintf("preparing ffmpeg logo overlay: %v", err), err)
	}
	if err := cmd.Run(); err != nil {
		return errors.NewTaskError(errors.RenderError, fmt.Sprintf("overlaying logo on %s: %v", filepath.Base(sourcePath), err), err)
	}
	return nil
}

func ffmpegEscapeConcatEntry(path string) string {
	out := make([]byte, 0, len(path))
	for i := 0; i < len(path); i++ {
		if path[i] == '\'' {
			out = append(out, '\'', '\\', '\'', '\'')
			continue
		}
		out = append(out, path[i])
	}
	return string(out)
}
