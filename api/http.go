package api

import (
	"context"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/livepeer/dubworker/config"
	"github.com/livepeer/dubworker/handlers"
	"github.com/livepeer/dubworker/log"
	"github.com/livepeer/dubworker/middleware"
)

// ListenAndServe starts the Intake API's HTTP server and blocks until ctx is
// cancelled, then drains in-flight requests before returning.
func ListenAndServe(ctx context.Context, cli config.Cli, h *handlers.Collection) error {
	router := NewRouter(cli, h)
	server := http.Server{Addr: cli.HTTPAddress, Handler: router}
	ctx, cancel := context.WithCancel(ctx)

	log.LogNoRequestID(
		"Starting intake API",
		"version", config.Version,
		"host", cli.HTTPAddress,
	)

	var err error
	go func() {
		err = server.ListenAndServe()
		cancel()
	}()

	<-ctx.Done()
	if err != nil && err != http.ErrServerClosed {
		return err
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	return server.Shutdown(shutdownCtx)
}

// NewRouter wires every endpoint from §4.1/§6 with its middleware stack.
// Four categories share a chain composition:
//
//   - processing (submit/edit): auth + CORS + logging + the default rate
//     limit bucket.
//   - download-only: auth + CORS + logging + a separate, looser rate limit
//     bucket (§4.1: "its own (higher) rate limit bucket").
//   - exempt (status, download, metadata): auth + CORS + logging, no rate
//     limit, so polling clients are never throttled.
//   - public (health, download-with-token, preflight): CORS + logging only,
//     no auth and no rate limit, so load balancers and token holders need
//     no bearer token.
func NewRouter(cli config.Cli, h *handlers.Collection) *httprouter.Router {
	router := httprouter.New()

	withLogging := middleware.LogRequest()
	withCORS := middleware.AllowCORS(cli.AllowedOrigins)
	withAuth := func(next httprouter.Handle) httprouter.Handle {
		return middleware.IsAuthorized(cli.APIToken, next)
	}

	submitLimiter := middleware.NewRateLimiter(60, 10)
	downloadLimiter := middleware.NewRateLimiter(300, 50)

	processing := func(next httprouter.Handle) httprouter.Handle {
		return withLogging(withCORS(withAuth(submitLimiter.Limit()(next))))
	}
	downloadOnly := func(next httprouter.Handle) httprouter.Handle {
		return withLogging(withCORS(withAuth(downloadLimiter.Limit()(next))))
	}
	exempt := func(next httprouter.Handle) httprouter.Handle {
		return withLogging(withCORS(withAuth(next)))
	}
	public := func(next httprouter.Handle) httprouter.Handle {
		return withLogging(withCORS(next))
	}

	// Submission.
	router.POST("/remote", processing(h.Remote()))
	router.POST("/upload", processing(h.Upload()))
	router.POST("/download-only", downloadOnly(h.DownloadOnly()))

	// Synchronous edit operations (§4.6 [ADDED]).
	router.POST("/cut", processing(h.Cut()))
	router.POST("/embed-subtitles", processing(h.EmbedSubtitles()))
	router.POST("/merge", processing(h.Merge()))
	router.POST("/add-logo", processing(h.AddLogo()))

	// Status and artifact retrieval.
	router.GET("/status/:task_id", exempt(h.Status()))
	router.GET("/download/:filename", exempt(h.Download()))
	router.GET("/download-with-token/:token", public(h.DownloadWithToken()))

	// Metadata (§6).
	router.GET("/languages", exempt(h.Languages()))
	router.GET("/models", exempt(h.Models()))
	router.GET("/translation-services", exempt(h.TranslationServices()))
	router.GET("/features", exempt(h.Features()))

	// Health (§4.1 [ADDED]).
	router.GET("/health", public(h.Health()))
	router.GET("/health/deps", public(h.HealthDeps()))

	// httprouter answers OPTIONS itself unless a route is registered for
	// it, which would skip the CORS middleware and send browsers a
	// preflight response with no Access-Control-Allow-* headers. Registering
	// an explicit OPTIONS handler per path routes preflights through
	// withCORS, which already special-cases http.MethodOptions.
	preflight := public(func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {})
	for _, path := range []string{
		"/remote", "/upload", "/download-only",
		"/cut", "/embed-subtitles", "/merge", "/add-logo",
		"/status/:task_id", "/download/:filename", "/download-with-token/:token",
		"/languages", "/models", "/translation-services", "/features",
		"/health", "/health/deps",
	} {
		router.OPTIONS(path, preflight)
	}

	return router
}
