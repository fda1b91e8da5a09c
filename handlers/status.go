package handlers

import (
	"encoding/json"
	"net/http"
	"path/filepath"

	"github.com/julienschmidt/httprouter"
	"github.com/livepeer/dubworker/config"
	"github.com/livepeer/dubworker/errors"
	"github.com/livepeer/dubworker/registry"
)

// statusResponse is the Task Record envelope from §3/§6: `{task_id, state,
// progress, result?, error?, user_choices, initial_request,
// source_metadata?}`, extended with single-use download tokens for any
// published result files (§4.1's "status includes references to
// artifacts; the client presents a token... to /download-with-token").
type statusResponse struct {
	TaskID         string                    `json:"task_id"`
	State          registry.State            `json:"state"`
	Progress       interface{}               `json:"progress,omitempty"`
	Result         *registry.Result          `json:"result,omitempty"`
	Error          interface{}               `json:"error,omitempty"`
	UserChoices    registry.UserChoices      `json:"user_choices"`
	InitialRequest registry.InitialRequest   `json:"initial_request"`
	SourceMetadata *registry.SourceMetadata  `json:"source_metadata,omitempty"`
	DownloadTokens map[string]string         `json:"download_tokens,omitempty"`
}

// Status implements GET /status/{task_id} (§4.1). Exempt from rate
// limiting at the router level.
func (h *Collection) Status() httprouter.Handle {
	return func(w http.ResponseWriter, req *http.Request, ps httprouter.Params) {
		taskID := ps.ByName("task_id")

		rec, err := h.Registry.Get(req.Context(), taskID)
		if err != nil {
			if errors.IsObjectNotFound(err) {
				errors.WriteHTTPNotFound(w, "task not found", err)
				return
			}
			errors.WriteHTTPInternalServerError(w, "could not load task", err)
			return
		}

		resp := statusResponse{
			TaskID:         rec.TaskID,
			State:          rec.State,
			Result:         rec.Result,
			UserChoices:    rec.UserChoices,
			InitialRequest: rec.InitialRequest,
			SourceMetadata: rec.SourceMetadata,
		}
		if rec.ProgressSnap != nil {
			resp.Progress = rec.ProgressSnap
		}
		if rec.Error != nil {
			resp.Error = rec.Error
		}
		if rec.State == registry.Success && rec.Result != nil {
			resp.DownloadTokens = h.issueDownloadTokens(req, rec.Result.Files)
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}
}

// issueDownloadTokens mints a short-lived single-use token per published
// file, keyed by the same name used in the `result.files` object, so the
// client can redeem it at GET /download-with-token/{token} (§4.5).
func (h *Collection) issueDownloadTokens(req *http.Request, files registry.ResultFiles) map[string]string {
	ttl := h.Cli.DownloadTokenTTL
	if ttl <= 0 {
		ttl = config.DefaultDownloadTokenTTL
	}

	tokens := make(map[string]string, 4)
	for name, path := range map[string]string{
		"original_subs":   files.OriginalSubs,
		"translated_subs": files.TranslatedSubs,
		"subtitled_video": files.SubtitledVideo,
		"downloaded_file": files.DownloadedFile,
	} {
		if path == "" {
			continue
		}
		token, err := h.Tokens.Issue(req.Context(), filepath.Base(path), ttl)
		if err != nil {
			continue
		}
		tokens[name] = token
	}
	return tokens
}
