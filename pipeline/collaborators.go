package pipeline

import (
	"context"

	"github.com/livepeer/dubworker/registry"
)

// ProgressFunc reports bytes copied so far and the total (if known), used
// by Downloader.Download to drive S1's byte-counter progress.
type ProgressFunc func(copied, total int64)

// Downloader is the media-download tool collaborator for S1 (§1's
// Non-goals table names it; §4.6 uses it). Implemented by
// clients.HTTPDownloader.
type Downloader interface {
	Download(ctx context.Context, requestID, url, destPath string, onProgress ProgressFunc) (int64, error)
}

// BurnInOptions carries the S7 render parameters (§4.6 Stage table, §4.4's
// Watermark spec).
type BurnInOptions struct {
	SourcePath    string
	SubtitlePath  string
	DestPath      string
	WatermarkPath string
	WatermarkPos  string
	WatermarkSize string
	WatermarkOpac int
}

// Renderer is the media-processing tool collaborator for S1/S3/S7/S8.
// Implemented by clients.FFmpegRenderer.
type Renderer interface {
	Trim(ctx context.Context, requestID, sourcePath, startTime, endTime, destPath string) error
	ExtractAudio(ctx context.Context, requestID, sourcePath, destWavPath string) error
	BurnIn(ctx context.Context, requestID string, opts BurnInOptions) error
	VerifyContainer(ctx context.Context, requestID, path string) (registry.SourceMetadata, error)
}

// SubtitleEmitter writes segments to an SRT file at destPath. Implemented
// by subtitles.Emit via a small adapter at wiring time (main.go), since
// subtitles.Emit takes an io.Writer rather than a path.
type SubtitleEmitter func(segments []Segment, targetLang, destPath string) error
