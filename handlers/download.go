package handlers

import (
	"net/http"
	"os"
	"path/filepath"

	"github.com/julienschmidt/httprouter"
	"github.com/livepeer/dubworker/errors"
)

// internalRedirectHeader is read by the front proxy (e.g. nginx's
// X-Accel-Redirect / an equivalent internal-redirect directive), which is
// responsible for actually streaming the bytes. The application itself
// never reads the artifact into memory or writes it to the response body
// (§6: "the application never streams large bytes itself").
const internalRedirectHeader = "X-Accel-Redirect"

// internalArtifactsLocation is the proxy-internal path prefix configured to
// alias onto the published artifacts directory.
const internalArtifactsLocation = "/internal-artifacts/"

func serveViaFrontProxy(w http.ResponseWriter, path string) {
	w.Header().Set(internalRedirectHeader, internalArtifactsLocation+filepath.Base(path))
	w.Header().Set("Content-Disposition", "attachment; filename=\""+filepath.Base(path)+"\"")
	w.WriteHeader(http.StatusOK)
}

// Download implements GET /download/{filename} (§6): resolves a published
// artifact filename and delegates the actual byte stream to the front
// proxy. Requires the same bearer token as other non-exempt endpoints.
func (h *Collection) Download() httprouter.Handle {
	return func(w http.ResponseWriter, req *http.Request, ps httprouter.Params) {
		path, err := h.Store.ResolvePublished(ps.ByName("filename"))
		if err != nil {
			errors.WriteHTTPBadRequest(w, "invalid filename", err)
			return
		}
		if _, err := os.Stat(path); err != nil {
			errors.WriteHTTPNotFound(w, "artifact not found", err)
			return
		}
		serveViaFrontProxy(w, path)
	}
}

// DownloadWithToken implements GET /download-with-token/{token} (§4.5,
// §6): redeems a single-use token minted by Status() for an artifact key,
// then delegates to the front proxy exactly as Download does.
func (h *Collection) DownloadWithToken() httprouter.Handle {
	return func(w http.ResponseWriter, req *http.Request, ps httprouter.Params) {
		artifactKey, err := h.Tokens.Redeem(req.Context(), ps.ByName("token"))
		if err != nil {
			errors.WriteHTTPUnauthorized(w, "invalid or expired download token", err)
			return
		}
		path, err := h.Store.ResolvePublished(artifactKey)
		if err != nil {
			errors.WriteHTTPBadRequest(w, "invalid artifact reference", err)
			return
		}
		if _, err := os.Stat(path); err != nil {
			errors.WriteHTTPNotFound(w, "artifact not found", err)
			return
		}
		serveViaFrontProxy(w, path)
	}
}
