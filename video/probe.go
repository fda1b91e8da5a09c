// Package video adapts the media-processing collaborator (ffprobe/ffmpeg)
// for source probing (§4.3) and container verification (§4.6 S8).
package video

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/livepeer/dubworker/log"
	"github.com/livepeer/dubworker/registry"
	ffprobe "gopkg.in/vansante/go-ffprobe.v2"
)

var unsupportedVideoCodecs = []string{"mjpeg", "jpeg", "png"}

// Prober extracts `source_metadata` from a local file path or remote URL
// (§4.3). For uploads the probe runs synchronously in the Intake API; for
// remote URLs it runs inside the Pipeline Engine after download.
type Prober interface {
	Probe(ctx context.Context, requestID, target string) (registry.SourceMetadata, error)
}

type FFProbe struct {
	// IgnoreErrMessages lists warning substrings that are safe to retry
	// past at a quieter loglevel rather than fail outright.
	IgnoreErrMessages []string
}

func (p FFProbe) Probe(ctx context.Context, requestID, target string) (registry.SourceMetadata, error) {
	meta, err := p.runProbe(ctx, target, "-loglevel", "error")
	if err == nil {
		return meta, nil
	}

	errMsg := strings.ToLower(err.Error())
	for _, ignoreMsg := range p.IgnoreErrMessages {
		if strings.Contains(errMsg, ignoreMsg) {
			log.Log(requestID, "ignoring probe warning, retrying at fatal loglevel", "err", err)
			return p.runProbe(ctx, target, "-loglevel", "fatal")
		}
	}
	return registry.SourceMetadata{}, err
}

func (p FFProbe) runProbe(ctx context.Context, target string, ffprobeOptions ...string) (registry.SourceMetadata, error) {
	var data *ffprobe.ProbeData
	operation := func() error {
		probeCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
		defer cancel()
		var err error
		data, err = ffprobe.ProbeURL(probeCtx, target, ffprobeOptions...)
		return err
	}

	backOff := backoff.NewExponentialBackOff()
	backOff.InitialInterval = 500 * time.Millisecond
	backOff.MaxInterval = 2 * time.Second
	backOff.MaxElapsedTime = 0
	if err := backoff.Retry(operation, backoff.WithMaxRetries(backOff, 3)); err != nil {
		return registry.SourceMetadata{}, fmt.Errorf("probing %s: %w", target, err)
	}
	return parseProbeOutput(target, data)
}

func parseProbeOutput(target string, probeData *ffprobe.ProbeData) (registry.SourceMetadata, error) {
	if probeData.Format == nil {
		return registry.SourceMetadata{}, errors.New("probe format information missing")
	}

	videoStream := probeData.FirstVideoStream()
	if videoStream == nil {
		return registry.SourceMetadata{}, errors.New("no video stream found")
	}
	for _, codec := range unsupportedVideoCodecs {
		if strings.EqualFold(videoStream.CodecName, codec) {
			return registry.SourceMetadata{}, fmt.Errorf("unsupported video codec %s", videoStream.CodecName)
		}
	}

	size, err := strconv.ParseInt(probeData.Format.Size, 10, 64)
	if err != nil {
		if info, statErr := os.Stat(target); statErr == nil {
			size = info.Size()
		}
	}

	duration, err := strconv.ParseFloat(videoStream.Duration, 64)
	if err != nil || duration == 0 {
		duration = probeData.Format.DurationSeconds
	}
	if duration <= 0 {
		return registry.SourceMetadata{}, errors.New("zero-duration media")
	}

	fps, err := parseFps(videoStream.AvgFrameRate)
	if err != nil {
		return registry.SourceMetadata{}, fmt.Errorf("parsing avg frame rate: %w", err)
	}
	if fps == 0 {
		if fps, err = parseFps(videoStream.RFrameRate); err != nil {
			return registry.SourceMetadata{}, fmt.Errorf("parsing real frame rate: %w", err)
		}
	}

	bitRateValue := videoStream.BitRate
	if bitRateValue == "" {
		bitRateValue = probeData.Format.BitRate
	}
	var bitRate int64
	if bitRateValue != "" {
		bitRate, _ = strconv.ParseInt(bitRateValue, 10, 64)
	}

	var codecA string
	if audio := probeData.FirstAudioStream(); audio != nil {
		codecA = audio.CodecName
	}

	return registry.SourceMetadata{
		DurationS: duration,
		Width:     videoStream.Width,
		Height:    videoStream.Height,
		FPS:       fps,
		CodecV:    videoStream.CodecName,
		CodecA:    codecA,
		SizeBytes: size,
		BitRate:   bitRate,
		MIME:      probeData.Format.FormatName,
		Ext:       strings.TrimPrefix(strings.ToLower(target[strings.LastIndex(target, ".")+1:]), "."),
	}, nil
}

func parseFps(framerate string) (float64, error) {
	if framerate == "" {
		return 0, nil
	}
	parts := strings.SplitN(framerate, "/", 2)
	if len(parts) < 2 {
		return strconv.ParseFloat(framerate, 64)
	}
	num, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("parsing frame rate numerator: %w", err)
	}
	den, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("parsing frame rate denominator: %w", err)
	}
	if den == 0 {
		if num == 0 {
			return 0, nil
		}
		return 0, errors.New("invalid frame rate denominator 0")
	}
	return float64(num) / float64(den), nil
}
