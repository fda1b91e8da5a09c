package clients

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/livepeer/dubworker/errors"
	"github.com/livepeer/dubworker/log"
	"github.com/livepeer/dubworker/metrics"
	"github.com/livepeer/dubworker/pipeline"
	"github.com/livepeer/dubworker/subprocess"
)

// cueLine is one line of the resident model's JSONL stdout protocol:
// {"index":0,"start":0.0,"end":1.2,"text":"...","lang":"en"} for a segment,
// or {"detected_lang":"en"} once, before the first segment.
type cueLine struct {
	Index        int     `json:"index"`
	Start        float64 `json:"start"`
	End          float64 `json:"end"`
	Text         string  `json:"text"`
	Lang         string  `json:"lang"`
	DetectedLang string  `json:"detected_lang"`
}

// LocalModel runs a resident local speech-to-text model as a subprocess
// (§4.6.2's "LocalModel{size}" variant, §9) and streams its JSONL output
// into pipeline.Segment values as they arrive, so S5 can begin translating
// before S4 finishes (§4.6's streaming-overlap requirement).
type LocalModel struct {
	Size   pipeline.ModelSize
	Binary string
	// ModelDir holds the on-disk model weights for Size; passed to Binary
	// as -model-dir so a swapped binary only needs to point at new weights.
	ModelDir string
}

func NewLocalModel(size pipeline.ModelSize, binary, modelDir string) *LocalModel {
	return &LocalModel{Size: size, Binary: binary, ModelDir: modelDir}
}

func (m *LocalModel) Name() string { return "local:" + string(m.Size) }

func (m *LocalModel) Transcribe(ctx context.Context, audioPath, hintedLang string) (<-chan pipeline.Segment, <-chan string, <-chan error) {
	segments := make(chan pipeline.Segment, 32)
	detected := make(chan string, 1)
	errc := make(chan error, 1)

	args := []string{"-model-dir", m.ModelDir, "-audio", audioPath}
	if hintedLang != "" {
		args = append(args, "-lang", hintedLang)
	}
	cmd := exec.CommandContext(ctx, m.Binary, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		errc <- errors.NewTaskError(errors.TranscriptionError, fmt.Sprintf("opening model stdout: %v", err), err)
		close(segments)
		close(detected)
		close(errc)
		return segments, detected, errc
	}
	if err := subprocess.LogStderr(cmd); err != nil {
		errc <- errors.NewTaskError(errors.TranscriptionError, fmt.Sprintf("opening model stderr: %v", err), err)
		close(segments)
		close(detected)
		close(errc)
		return segments, detected, errc
	}
	if err := cmd.Start(); err != nil {
		errc <- errors.NewTaskError(errors.TranscriptionError, fmt.Sprintf("starting %s model: %v", m.Size, err), err)
		close(segments)
		close(detected)
		close(errc)
		return segments, detected, errc
	}

	go func() {
		defer close(segments)
		defer close(detected)
		defer close(errc)

		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		detectedSent := false
		for scanner.Scan() {
			var cue cueLine
			if err := json.Unmarshal(scanner.Bytes(), &cue); err != nil {
				continue
			}
			if cue.DetectedLang != "" && !detectedSent {
				detected <- cue.DetectedLang
				detectedSent = true
				continue
			}
			select {
			case segments <- pipeline.Segment{Index: cue.Index, Start: cue.Start, End: cue.End, Text: cue.Text, Lang: cue.Lang}:
			case <-ctx.Done():
				_ = cmd.Process.Kill()
				errc <- ctx.Err()
				return
			}
		}

		if err := cmd.Wait(); err != nil {
			errc <- errors.NewTaskError(errors.TranscriptionError, fmt.Sprintf("%s model exited: %v", m.Size, err), err)
			return
		}
		if scanErr := scanner.Err(); scanErr != nil {
			errc <- errors.NewTaskError(errors.TranscriptionError, fmt.Sprintf("reading model output: %v", scanErr), scanErr)
		}
	}()

	return segments, detected, errc
}

// RemoteApi is the §4.6.2/§9 remote transcription variant: a single batch
// HTTP call to a hosted speech-to-text service, adapted to the streaming
// Transcriber contract by replaying the whole response as segments.
type RemoteApi struct {
	Endpoint string
	APIKey   string
	client   *retryablehttp.Client
}

func NewRemoteApi(endpoint, apiKey string) *RemoteApi {
	client := retryablehttp.NewClient()
	client.RetryMax = 2
	client.RetryWaitMin = 500 * time.Millisecond
	client.RetryWaitMax = 5 * time.Second
	client.CheckRetry = metrics.HttpRetryHook
	client.Logger = log.NewRetryableHTTPLogger()
	return &RemoteApi{Endpoint: endpoint, APIKey: apiKey, client: client}
}

func (r *RemoteApi) Name() string { return "remote-api" }

type remoteTranscribeResponse struct {
	DetectedLang string             `json:"detected_lang"`
	Segments     []pipeline.Segment `json:"segments"`
}

func (r *RemoteApi) Transcribe(ctx context.Context, audioPath, hintedLang string) (<-chan pipeline.Segment, <-chan string, <-chan error) {
	segments := make(chan pipeline.Segment, 32)
	detected := make(chan string, 1)
	errc := make(chan error, 1)

	go func() {
		defer close(segments)
		defer close(detected)
		defer close(errc)

		f, err := os.Open(audioPath)
		if err != nil {
			errc <- errors.NewTaskError(errors.TranscriptionError, fmt.Sprintf("opening audio for upload: %v", err), err)
			return
		}
		defer f.Close()

		req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, r.Endpoint, f)
		if err != nil {
			errc <- errors.NewTaskError(errors.TranscriptionError, fmt.Sprintf("building transcribe request: %v", err), err)
			return
		}
		req.Header.Set("Authorization", "Bearer "+r.APIKey)
		req.Header.Set("Content-Type", "audio/wav")
		if hintedLang != "" {
			req.Header.Set("X-Hinted-Lang", hintedLang)
		}

		resp, err := metrics.MonitorRequest(metrics.Default.TranscribeClient, r.client.StandardClient(), req.Request)
		if err != nil {
			errc <- errors.NewTaskError(errors.TranscriptionError, fmt.Sprintf("calling remote transcription api: %v", err), err)
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 {
			errc <- errors.NewTaskError(errors.TranscriptionError, "remote transcription api returned status "+strconv.Itoa(resp.StatusCode), nil)
			return
		}

		var parsed remoteTranscribeResponse
		if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
			errc <- errors.NewTaskError(errors.TranscriptionError, fmt.Sprintf("decoding remote transcription response: %v", err), err)
			return
		}

		if parsed.DetectedLang != "" {
			detected <- parsed.DetectedLang
		}
		for _, seg := range parsed.Segments {
			select {
			case segments <- seg:
			case <-ctx.Done():
				errc <- ctx.Err()
				return
			}
		}
	}()

	return segments, detected, errc
}
