package handlers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/livepeer/dubworker/config"
	"github.com/livepeer/dubworker/errors"
	"github.com/livepeer/dubworker/log"
	"github.com/livepeer/dubworker/requests"
)

// editOpTimeout bounds the synchronous edit endpoints (§4.6 [ADDED]): these
// run inline in the request goroutine rather than going through the broker,
// so they need their own deadline independent of worker soft/hard limits.
const editOpTimeout = 10 * time.Minute

// streamResult writes path back to the client directly. Edit operations are
// explicitly synchronous-request/synchronous-response (§4.6), unlike the
// pipeline's published artifacts, so the "never stream large bytes" rule for
// §6's async download endpoints does not apply here.
func streamResult(w http.ResponseWriter, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", "attachment; filename=\""+filepath.Base(path)+"\"")
	_, err = io.Copy(w, f)
	return err
}

// editWorkspace opens a scratch workspace for one synchronous edit request
// and returns a cleanup func; grounded on the same Store.NewWorkspace /
// DestroyWorkspace pair the Pipeline Engine uses per task, reused here for a
// single request instead of a queued task.
func (h *Collection) editWorkspace() (dir string, cleanup func(), err error) {
	dir, err = h.Store.NewWorkspace(config.NewWorkspaceID())
	if err != nil {
		return "", nil, err
	}
	return dir, func() { h.Store.DestroyWorkspace(dir) }, nil
}

func (h *Collection) saveUploadedMedia(req *http.Request, field, destDir string) (string, error) {
	file, header, err := req.FormFile(field)
	if err != nil {
		return "", err
	}
	defer file.Close()

	ext := filepath.Ext(header.Filename)
	if !allowedUploadExtensions[ext] {
		return "", fmt.Errorf("unsupported file extension %q", ext)
	}
	dest := filepath.Join(destDir, config.SanitizeFilename(header.Filename))
	if err := saveMultipartFile(file, dest); err != nil {
		return "", err
	}
	return dest, nil
}

func (h *Collection) parseEditMultipart(w http.ResponseWriter, req *http.Request) bool {
	maxSize := h.Cli.MaxFileSizeBytes
	if maxSize <= 0 {
		maxSize = config.MaxInputFileSizeBytes
	}
	req.Body = http.MaxBytesReader(w, req.Body, maxSize)
	if err := req.ParseMultipartForm(32 << 20); err != nil {
		errors.WriteHTTPPayloadTooLarge(w, "request exceeds the maximum allowed size", err)
		return false
	}
	return true
}

// Cut implements POST /cut (§4.6 [ADDED]): trims a single uploaded media
// file to [start_time, end_time).
func (h *Collection) Cut() httprouter.Handle {
	return func(w http.ResponseWriter, req *http.Request, _ httprouter.Params) {
		requestID := requests.GetRequestId(req)
		if !h.parseEditMultipart(w, req) {
			return
		}
		defer req.MultipartForm.RemoveAll()

		startTime, endTime := req.FormValue("start_time"), req.FormValue("end_time")
		if startTime == "" {
			errors.WriteHTTPBadRequest(w, "start_time is required", nil)
			return
		}
		if endTime != "" {
			if err := validateTimeRange(startTime, endTime); err != nil {
				errors.WriteHTTPBadRequest(w, "invalid time range", err)
				return
			}
		}

		dir, cleanup, err := h.editWorkspace()
		if err != nil {
			errors.WriteHTTPInternalServerError(w, "could not allocate scratch workspace", err)
			return
		}
		defer cleanup()

		source, err := h.saveUploadedMedia(req, "file", dir)
		if err != nil {
			errors.WriteHTTPBadRequest(w, "invalid media upload", err)
			return
		}

		log.AddContext(requestID, "op", "cut", "filename", filepath.Base(source))

		dest := filepath.Join(dir, "cut"+filepath.Ext(source))
		ctx, cancel := context.WithTimeout(req.Context(), editOpTimeout)
		defer cancel()
		if err := h.EditOps.Cut(ctx, requestID, source, startTime, endTime, dest); err != nil {
			errors.WriteHTTPInternalServerError(w, "cut failed", err)
			return
		}
		if err := streamResult(w, dest); err != nil {
			log.LogError(requestID, "streaming cut result", err)
		}
	}
}

// EmbedSubtitles implements POST /embed-subtitles (§4.6 [ADDED]): muxes an
// uploaded SRT track into an uploaded media file as a soft subtitle stream.
func (h *Collection) EmbedSubtitles() httprouter.Handle {
	return func(w http.ResponseWriter, req *http.Request, _ httprouter.Params) {
		requestID := requests.GetRequestId(req)
		if !h.parseEditMultipart(w, req) {
			return
		}
		defer req.MultipartForm.RemoveAll()

		dir, cleanup, err := h.editWorkspace()
		if err != nil {
			errors.WriteHTTPInternalServerError(w, "could not allocate scratch workspace", err)
			return
		}
		defer cleanup()

		source, err := h.saveUploadedMedia(req, "file", dir)
		if err != nil {
			errors.WriteHTTPBadRequest(w, "invalid media upload", err)
			return
		}
		subFile, subHeader, err := req.FormFile("subtitles")
		if err != nil {
			errors.WriteHTTPBadRequest(w, "missing multipart field \"subtitles\"", err)
			return
		}
		defer subFile.Close()
		subPath := filepath.Join(dir, config.SanitizeFilename(subHeader.Filename))
		if err := saveMultipartFile(subFile, subPath); err != nil {
			errors.WriteHTTPInternalServerError(w, "could not store subtitle upload", err)
			return
		}

		log.AddContext(requestID, "op", "embed-subtitles", "filename", filepath.Base(source))

		dest := filepath.Join(dir, "embedded"+filepath.Ext(source))
		ctx, cancel := context.WithTimeout(req.Context(), editOpTimeout)
		defer cancel()
		if err := h.EditOps.EmbedSubtitles(ctx, requestID, source, subPath, dest); err != nil {
			errors.WriteHTTPInternalServerError(w, "embedding subtitles failed", err)
			return
		}
		if err := streamResult(w, dest); err != nil {
			log.LogError(requestID, "streaming embed-subtitles result", err)
		}
	}
}

// Merge implements POST /merge (§4.6 [ADDED]): concatenates two or more
// uploaded media files, in form-field order, into one output.
func (h *Collection) Merge() httprouter.Handle {
	return func(w http.ResponseWriter, req *http.Request, _ httprouter.Params) {
		requestID := requests.GetRequestId(req)
		if !h.parseEditMultipart(w, req) {
			return
		}
		defer req.MultipartForm.RemoveAll()

		dir, cleanup, err := h.editWorkspace()
		if err != nil {
			errors.WriteHTTPInternalServerError(w, "could not allocate scratch workspace", err)
			return
		}
		defer cleanup()

		files := req.MultipartForm.File["files"]
		if len(files) < 2 {
			errors.WriteHTTPBadRequest(w, "merge requires at least two files in the \"files\" field", nil)
			return
		}

		var ext string
		sources := make([]string, 0, len(files))
		for i, header := range files {
			fileExt := filepath.Ext(header.Filename)
			if !allowedUploadExtensions[fileExt] {
				errors.WriteHTTPBadRequest(w, fmt.Sprintf("unsupported file extension %q", fileExt), nil)
				return
			}
			if ext == "" {
				ext = fileExt
			}
			f, err := header.Open()
			if err != nil {
				errors.WriteHTTPBadRequest(w, "invalid media upload", err)
				return
			}
			dest := filepath.Join(dir, fmt.Sprintf("part-%02d%s", i, fileExt))
			err = saveMultipartFile(f, dest)
			f.Close()
			if err != nil {
				errors.WriteHTTPInternalServerError(w, "could not store media upload", err)
				return
			}
			sources = append(sources, dest)
		}

		log.AddContext(requestID, "op", "merge", "count", fmt.Sprint(len(sources)))

		dest := filepath.Join(dir, "merged"+ext)
		ctx, cancel := context.WithTimeout(req.Context(), editOpTimeout)
		defer cancel()
		if err := h.EditOps.Merge(ctx, requestID, sources, dest); err != nil {
			errors.WriteHTTPInternalServerError(w, "merge failed", err)
			return
		}
		if err := streamResult(w, dest); err != nil {
			log.LogError(requestID, "streaming merge result", err)
		}
	}
}

// AddLogo implements POST /add-logo (§4.6 [ADDED]): overlays an uploaded
// logo image onto an uploaded media file without touching subtitles.
func (h *Collection) AddLogo() httprouter.Handle {
	return func(w http.ResponseWriter, req *http.Request, _ httprouter.Params) {
		requestID := requests.GetRequestId(req)
		if !h.parseEditMultipart(w, req) {
			return
		}
		defer req.MultipartForm.RemoveAll()

		position := req.FormValue("position")
		size := req.FormValue("size")
		opacity := formValueInt(req, "opacity", 100)
		if !config.WatermarkPositions[position] {
			errors.WriteHTTPBadRequest(w, fmt.Sprintf("invalid watermark position %q", position), nil)
			return
		}
		if !config.WatermarkSizes[size] {
			errors.WriteHTTPBadRequest(w, fmt.Sprintf("invalid watermark size %q", size), nil)
			return
		}
		if opacity < 0 || opacity > 100 {
			errors.WriteHTTPBadRequest(w, "opacity must be between 0 and 100", nil)
			return
		}

		dir, cleanup, err := h.editWorkspace()
		if err != nil {
			errors.WriteHTTPInternalServerError(w, "could not allocate scratch workspace", err)
			return
		}
		defer cleanup()

		source, err := h.saveUploadedMedia(req, "file", dir)
		if err != nil {
			errors.WriteHTTPBadRequest(w, "invalid media upload", err)
			return
		}
		logoFile, logoHeader, err := req.FormFile("logo")
		if err != nil {
			errors.WriteHTTPBadRequest(w, "missing multipart field \"logo\"", err)
			return
		}
		defer logoFile.Close()
		logoExt := filepath.Ext(logoHeader.Filename)
		if !allowedLogoExtensions[logoExt] {
			errors.WriteHTTPBadRequest(w, fmt.Sprintf("unsupported logo extension %q", logoExt), nil)
			return
		}
		logoPath := filepath.Join(dir, "logo"+logoExt)
		if err := saveMultipartFile(logoFile, logoPath); err != nil {
			errors.WriteHTTPInternalServerError(w, "could not store logo upload", err)
			return
		}

		log.AddContext(requestID, "op", "add-logo", "filename", filepath.Base(source))

		dest := filepath.Join(dir, "logoed"+filepath.Ext(source))
		ctx, cancel := context.WithTimeout(req.Context(), editOpTimeout)
		defer cancel()
		if err := h.EditOps.AddLogo(ctx, requestID, source, logoPath, dest, position, size, opacity); err != nil {
			errors.WriteHTTPInternalServerError(w, "add-logo failed", err)
			return
		}
		if err := streamResult(w, dest); err != nil {
			log.LogError(requestID, "streaming add-logo result", err)
		}
	}
}
