package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"github.com/julienschmidt/httprouter"
	"github.com/livepeer/dubworker/broker"
	"github.com/livepeer/dubworker/config"
	"github.com/livepeer/dubworker/errors"
	"github.com/livepeer/dubworker/log"
	"github.com/livepeer/dubworker/metrics"
	"github.com/livepeer/dubworker/progress"
	"github.com/livepeer/dubworker/registry"
	"github.com/livepeer/dubworker/requests"
	"github.com/xeipuuv/gojsonschema"
)

// remoteRequestBody mirrors POST /remote's JSON body (§4.1).
type remoteRequestBody struct {
	URL                string             `json:"url"`
	SourceLang         string             `json:"source_lang"`
	TargetLang         string             `json:"target_lang"`
	BurnIn             bool               `json:"burn_in"`
	TranscribeModel    string             `json:"transcribe_model"`
	TranslationService string             `json:"translation_service"`
	Watermark          registry.Watermark `json:"watermark"`
	StartTime          string             `json:"start_time"`
	EndTime            string             `json:"end_time"`
}

func (b remoteRequestBody) userChoices() registry.UserChoices {
	return registry.UserChoices{
		SourceLang:         b.SourceLang,
		TargetLang:         b.TargetLang,
		TranscribeModel:    b.TranscribeModel,
		TranslationService: b.TranslationService,
		BurnIn:             b.BurnIn,
		Watermark:          b.Watermark,
	}
}

// submitResponse is the `202` envelope from §6: `{task_id, state, progress,
// user_choices, initial_request, file_metadata?}`.
type submitResponse struct {
	TaskID         string                   `json:"task_id"`
	State          registry.State           `json:"state"`
	Progress       progress.Snapshot        `json:"progress"`
	UserChoices    registry.UserChoices     `json:"user_choices"`
	InitialRequest registry.InitialRequest  `json:"initial_request"`
	FileMetadata   *registry.SourceMetadata `json:"file_metadata,omitempty"`
}

func initialProgressSnapshot(uc registry.UserChoices) progress.Snapshot {
	wt := progress.NewWeightTable()
	if uc.TargetLang == "" {
		wt.Disable("translate")
	}
	if !uc.BurnIn {
		wt.Disable("burn_in")
	}
	return progress.Snapshot{OverallPercent: 0, Steps: wt.Weights()}
}

func writeSubmitResponse(w http.ResponseWriter, rec *registry.TaskRecord, fileMeta *registry.SourceMetadata) {
	resp := submitResponse{
		TaskID:         rec.TaskID,
		State:          rec.State,
		Progress:       initialProgressSnapshot(rec.UserChoices),
		UserChoices:    rec.UserChoices,
		InitialRequest: rec.InitialRequest,
		FileMetadata:   fileMeta,
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(resp)
}

// Remote implements POST /remote (§4.1, §6).
func (h *Collection) Remote() httprouter.Handle {
	schema := inputSchemasCompiled["Remote"]
	return func(w http.ResponseWriter, req *http.Request, _ httprouter.Params) {
		h.submitURLBased(w, req, schema, registry.KindRemoteURL, "remote")
	}
}

// DownloadOnly implements POST /download-only: same URL validation, a
// shorter pipeline that stops after the acquire stage, and its own (higher)
// rate limit bucket configured at the router level (§4.1).
func (h *Collection) DownloadOnly() httprouter.Handle {
	schema := inputSchemasCompiled["DownloadOnly"]
	return func(w http.ResponseWriter, req *http.Request, _ httprouter.Params) {
		h.submitURLBased(w, req, schema, registry.KindDownloadOnly, "download-only")
	}
}

func (h *Collection) submitURLBased(w http.ResponseWriter, req *http.Request, schema *gojsonschema.Schema, kind registry.RequestKind, endpoint string) {
	requestID := requests.GetRequestId(req)
	start := config.Clock.GetTime()
	status := http.StatusAccepted
	defer func() {
		metrics.Default.SubmitRequestCount.WithLabelValues(endpoint, fmt.Sprint(status)).Inc()
		metrics.Default.SubmitRequestDurationSec.WithLabelValues(endpoint, fmt.Sprint(status)).Observe(config.Clock.GetTime().Sub(start).Seconds())
	}()

	payload, err := io.ReadAll(req.Body)
	if err != nil {
		status = http.StatusInternalServerError
		errors.WriteHTTPInternalServerError(w, "cannot read request body", err)
		return
	}
	result, err := schema.Validate(gojsonschema.NewBytesLoader(payload))
	if err != nil {
		status = http.StatusInternalServerError
		errors.WriteHTTPInternalServerError(w, "cannot validate request body", err)
		return
	}
	if !result.Valid() {
		status = http.StatusBadRequest
		errors.WriteHTTPBadBodySchema(endpoint, w, result.Errors())
		return
	}

	var body remoteRequestBody
	if err := json.Unmarshal(payload, &body); err != nil {
		status = http.StatusBadRequest
		errors.WriteHTTPBadRequest(w, "invalid request payload", err)
		return
	}

	if err := validateSourceURL(h.Cli.AllowedSourceHosts, body.URL); err != nil {
		status = http.StatusBadRequest
		errors.WriteHTTPBadRequest(w, "invalid url", err)
		return
	}
	uc := body.userChoices()
	if kind == registry.KindRemoteURL {
		if err := validateUserChoices(uc); err != nil {
			status = http.StatusBadRequest
			errors.WriteHTTPBadRequest(w, "invalid user choices", err)
			return
		}
	}
	if err := validateTimeRange(body.StartTime, body.EndTime); err != nil {
		status = http.StatusBadRequest
		errors.WriteHTTPBadRequest(w, "invalid time range", err)
		return
	}

	log.AddContext(requestID, "source", body.URL, "endpoint", endpoint)

	rec := &registry.TaskRecord{
		TaskID: config.NewTaskID(),
		InitialRequest: registry.InitialRequest{
			Kind:      kind,
			URL:       body.URL,
			StartTime: body.StartTime,
			EndTime:   body.EndTime,
		},
		UserChoices: uc,
	}
	if err := h.Registry.Create(req.Context(), rec); err != nil {
		status = http.StatusServiceUnavailable
		errors.WriteHTTPServiceUnavailable(w, "task registry unavailable", 5)
		return
	}
	if err := h.enqueue(req, rec.TaskID); err != nil {
		status = http.StatusServiceUnavailable
		errors.WriteHTTPServiceUnavailable(w, "could not enqueue task", 5)
		return
	}

	writeSubmitResponse(w, rec, nil)
}

// enqueue shields /remote, /upload and /download-only from an unbounded
// queue per §5's backpressure requirement: once depth exceeds the
// configured threshold, new submissions are rejected rather than queued.
func (h *Collection) enqueue(req *http.Request, taskID string) error {
	if h.Cli.MaxQueueDepth > 0 {
		depth, err := h.Broker.QueueDepth(broker.ProcessingQueue)
		if err == nil && depth > h.Cli.MaxQueueDepth {
			return fmt.Errorf("processing queue depth %d exceeds max %d", depth, h.Cli.MaxQueueDepth)
		}
	}
	return h.Broker.Enqueue(req.Context(), broker.ProcessingQueue, taskID)
}

// Upload implements POST /upload (§4.1): multipart media file plus the same
// parameter set plus an optional logo, probed synchronously before enqueue.
func (h *Collection) Upload() httprouter.Handle {
	return func(w http.ResponseWriter, req *http.Request, _ httprouter.Params) {
		requestID := requests.GetRequestId(req)
		start := config.Clock.GetTime()
		status := http.StatusAccepted
		defer func() {
			metrics.Default.SubmitRequestCount.WithLabelValues("upload", fmt.Sprint(status)).Inc()
			metrics.Default.SubmitRequestDurationSec.WithLabelValues("upload", fmt.Sprint(status)).Observe(config.Clock.GetTime().Sub(start).Seconds())
		}()

		maxSize := h.Cli.MaxFileSizeBytes
		if maxSize <= 0 {
			maxSize = config.MaxInputFileSizeBytes
		}
		req.Body = http.MaxBytesReader(w, req.Body, maxSize)
		if err := req.ParseMultipartForm(32 << 20); err != nil {
			status = http.StatusRequestEntityTooLarge
			errors.WriteHTTPPayloadTooLarge(w, "upload exceeds the maximum allowed size", err)
			return
		}
		defer req.MultipartForm.RemoveAll()

		file, header, err := req.FormFile("file")
		if err != nil {
			status = http.StatusBadRequest
			errors.WriteHTTPBadRequest(w, "missing multipart field \"file\"", err)
			return
		}
		defer file.Close()

		ext := filepath.Ext(header.Filename)
		if !allowedUploadExtensions[ext] {
			status = http.StatusBadRequest
			errors.WriteHTTPUnsupportedMediaType(w, fmt.Sprintf("unsupported file extension %q", ext), nil)
			return
		}

		taskID := config.NewTaskID()
		sanitized := config.SanitizeFilename(taskID + ext)
		intakePath := filepath.Join(h.Cli.IntakeDir, sanitized)

		if err := saveMultipartFile(file, intakePath); err != nil {
			status = http.StatusInternalServerError
			errors.WriteHTTPInternalServerError(w, "could not store uploaded file", err)
			return
		}

		log.AddContext(requestID, "filename", sanitized)

		meta, err := h.Prober.Probe(req.Context(), requestID, intakePath)
		if err != nil {
			os.Remove(intakePath)
			status = http.StatusBadRequest
			errors.WriteHTTPUnsupportedMediaType(w, "could not probe uploaded media", err)
			return
		}

		uc := registry.UserChoices{
			SourceLang:         req.FormValue("source_lang"),
			TargetLang:         req.FormValue("target_lang"),
			TranscribeModel:    req.FormValue("transcribe_model"),
			TranslationService: req.FormValue("translation_service"),
			BurnIn:             req.FormValue("burn_in") == "true",
		}
		if logoRef, err := h.saveOptionalLogo(req); err != nil {
			os.Remove(intakePath)
			status = http.StatusBadRequest
			errors.WriteHTTPBadRequest(w, "invalid logo upload", err)
			return
		} else if logoRef != "" {
			uc.Watermark = registry.Watermark{
				Enabled:  true,
				Position: req.FormValue("watermark_position"),
				Size:     req.FormValue("watermark_size"),
				Opacity:  formValueInt(req, "watermark_opacity", 100),
				LogoRef:  logoRef,
			}
		}
		if err := validateUserChoices(uc); err != nil {
			os.Remove(intakePath)
			status = http.StatusBadRequest
			errors.WriteHTTPBadRequest(w, "invalid user choices", err)
			return
		}
		startTime, endTime := req.FormValue("start_time"), req.FormValue("end_time")
		if err := validateTimeRange(startTime, endTime); err != nil {
			os.Remove(intakePath)
			status = http.StatusBadRequest
			errors.WriteHTTPBadRequest(w, "invalid time range", err)
			return
		}

		rec := &registry.TaskRecord{
			TaskID: taskID,
			InitialRequest: registry.InitialRequest{
				Kind:      registry.KindUpload,
				Filename:  sanitized,
				StartTime: startTime,
				EndTime:   endTime,
			},
			UserChoices:    uc,
			SourceMetadata: &meta,
		}
		if err := h.Registry.Create(req.Context(), rec); err != nil {
			os.Remove(intakePath)
			status = http.StatusServiceUnavailable
			errors.WriteHTTPServiceUnavailable(w, "task registry unavailable", 5)
			return
		}
		if err := h.enqueue(req, rec.TaskID); err != nil {
			status = http.StatusServiceUnavailable
			errors.WriteHTTPServiceUnavailable(w, "could not enqueue task", 5)
			return
		}

		writeSubmitResponse(w, rec, &meta)
	}
}

func (h *Collection) saveOptionalLogo(req *http.Request) (string, error) {
	file, header, err := req.FormFile("logo")
	if err == http.ErrMissingFile {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	defer file.Close()

	ext := filepath.Ext(header.Filename)
	if !allowedLogoExtensions[ext] {
		return "", fmt.Errorf("unsupported logo extension %q", ext)
	}
	content, err := io.ReadAll(io.LimitReader(file, 16<<20))
	if err != nil {
		return "", err
	}
	asset, _, err := h.Assets.SaveLogo(content, ext)
	if err != nil {
		return "", err
	}
	return asset.Path, nil
}

func saveMultipartFile(src multipart.File, destPath string) error {
	out, err := os.OpenFile(destPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, src)
	return err
}

func formValueInt(req *http.Request, name string, def int) int {
	v := req.FormValue(name)
	if v == "" {
		return def
	}
	var n int
	if _, err := fmt.Sscanf(v, "%d", &n); err != nil {
		return def
	}
	return n
}
