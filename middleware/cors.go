package middleware

import (
	"net/http"

	"github.com/julienschmidt/httprouter"
)

// AllowCORS builds a CORS middleware against a configured allow-list of
// origins. Unlike a bare wildcard, a matched origin is always echoed back
// verbatim (never "*") so that Access-Control-Allow-Credentials can be set
// safely alongside it — wildcard origin MUST NOT coexist with credentials
// (§4.1, §9).
func AllowCORS(allowedOrigins []string) func(httprouter.Handle) httprouter.Handle {
	wildcard := false
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o == "*" {
			wildcard = true
			continue
		}
		allowed[o] = true
	}

	return func(next httprouter.Handle) httprouter.Handle {
		handler := func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
			origin := r.Header.Get("Origin")
			w.Header().Set("Vary", "Origin")

			switch {
			case origin != "" && allowed[origin]:
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			case wildcard:
				// Wildcard fallback never carries credentials.
				w.Header().Set("Access-Control-Allow-Origin", "*")
			}

			w.Header().Set("Access-Control-Allow-Headers", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, HEAD, POST, PUT, DELETE, OPTIONS")

			if r.Method == http.MethodOptions {
				w.Header().Set("Content-Length", "0")
				w.WriteHeader(http.StatusOK)
				return
			}

			next(w, r, ps)
		}
		return handler
	}
}
