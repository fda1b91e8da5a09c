package handlers

import (
	"encoding/json"
	"net/http"
	"sort"

	"github.com/julienschmidt/httprouter"
	"github.com/livepeer/dubworker/config"
)

// Languages implements GET /languages (§6): serves the closed-set language
// table shared between transcription, translation and the UI's own locale
// picker.
func (h *Collection) Languages() httprouter.Handle {
	return func(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
		writeJSON(w, map[string]interface{}{"languages": config.Languages})
	}
}

// Models implements GET /models (§6): the closed set of transcription model
// tags, plus the default model and one deployment-wide flag saying whether
// downgrade-on-overload is permitted.
func (h *Collection) Models() httprouter.Handle {
	return func(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
		tags := sortedKeys(config.TranscribeModelTags)
		writeJSON(w, map[string]interface{}{
			"models":                tags,
			"default":               h.Cli.DefaultModel,
			"downgrade_on_overload": h.Cli.AllowModelDowngrade,
		})
	}
}

// TranslationServices implements GET /translation-services (§6): the closed
// set of translation service tags.
func (h *Collection) TranslationServices() httprouter.Handle {
	return func(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
		writeJSON(w, map[string]interface{}{"services": sortedKeys(config.TranslationServiceTags)})
	}
}

// Features implements GET /features (§6): static capability flags so
// clients can hide form controls the deployment has disabled, rather than
// discovering them via a failed submission.
func (h *Collection) Features() httprouter.Handle {
	return func(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
		writeJSON(w, map[string]interface{}{
			"remote_download_enabled": h.Cli.EnableRemoteDownload,
			"model_downgrade_allowed": h.Cli.AllowModelDowngrade,
			"watermark_positions":     sortedKeys(config.WatermarkPositions),
			"watermark_sizes":         sortedKeys(config.WatermarkSizes),
			"max_file_size_bytes":     h.Cli.MaxFileSizeBytes,
		})
	}
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
