// Package clients implements the out-of-scope collaborators the pipeline
// engine talks to: the media-download tool (S1), the transcription and
// translation model runtimes (S4/S5), and the media-processing tool used
// for audio extraction, burn-in/watermark and container verification
// (S3/S7/S8). Uses the same retryablehttp-wrapped HTTP client
// pattern (clients.callback_client.go, clients.object_store_client.go).
package clients

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/livepeer/dubworker/log"
	"github.com/livepeer/dubworker/metrics"
	"github.com/livepeer/dubworker/pipeline"
)

// HTTPDownloader fetches over plain HTTP(S) with retry/backoff, grounded on
// the retryablehttp client construction idiom in NewPeriodicCallbackClient.
// It implements pipeline.Downloader.
type HTTPDownloader struct {
	client *retryablehttp.Client
}

func NewHTTPDownloader() *HTTPDownloader {
	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.RetryWaitMin = 1 * time.Second
	client.RetryWaitMax = 10 * time.Second
	client.CheckRetry = metrics.HttpRetryHook
	client.Logger = log.NewRetryableHTTPLogger()
	return &HTTPDownloader{client: client}
}

func (d *HTTPDownloader) Download(ctx context.Context, requestID, url, destPath string, onProgress pipeline.ProgressFunc) (int64, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("building download request: %w", err)
	}

	resp, err := metrics.MonitorRequest(metrics.Default.DownloadClient, d.client.StandardClient(), req.Request)
	if err != nil {
		return 0, fmt.Errorf("downloading source: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return 0, fmt.Errorf("downloading source: unexpected status %s", resp.Status)
	}

	out, err := os.OpenFile(destPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, fmt.Errorf("creating destination file: %w", err)
	}
	defer out.Close()

	total := resp.ContentLength
	var copied int64
	buf := make([]byte, 256*1024)
	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := out.Write(buf[:n]); werr != nil {
				return copied, fmt.Errorf("writing downloaded bytes: %w", werr)
			}
			copied += int64(n)
			if onProgress != nil {
				onProgress(copied, total)
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return copied, fmt.Errorf("reading download body: %w", rerr)
		}
	}

	log.Log(requestID, "download complete", "bytes", copied, "url", url)
	return copied, nil
}
