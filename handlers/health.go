package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"os/exec"
	"time"

	"github.com/julienschmidt/httprouter"
)

const healthCheckTimeout = 5 * time.Second

// Health implements GET /health (§4.1): plain liveness, exempt from auth and
// rate limiting so a load balancer can poll it cheaply.
func (h *Collection) Health() httprouter.Handle {
	return func(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
		writeJSON(w, map[string]string{"status": "ok"})
	}
}

// HealthDeps implements GET /health/deps (§4.1 [ADDED]): probes the Task
// Registry, the Broker, and the ffmpeg/ffprobe binaries on PATH, returning
// 503 if any dependency is unreachable.
func (h *Collection) HealthDeps() httprouter.Handle {
	return func(w http.ResponseWriter, req *http.Request, _ httprouter.Params) {
		ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
		defer cancel()

		deps := map[string]string{}
		ok := true

		if err := h.Registry.Ping(ctx); err != nil {
			deps["registry"] = err.Error()
			ok = false
		} else {
			deps["registry"] = "ok"
		}

		if err := h.Broker.Ping(ctx); err != nil {
			deps["broker"] = err.Error()
			ok = false
		} else {
			deps["broker"] = "ok"
		}

		if _, err := exec.LookPath("ffmpeg"); err != nil {
			deps["ffmpeg"] = err.Error()
			ok = false
		} else {
			deps["ffmpeg"] = "ok"
		}
		if _, err := exec.LookPath("ffprobe"); err != nil {
			deps["ffprobe"] = err.Error()
			ok = false
		} else {
			deps["ffprobe"] = "ok"
		}

		status := http.StatusOK
		if !ok {
			status = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"ok": ok, "dependencies": deps})
	}
}
