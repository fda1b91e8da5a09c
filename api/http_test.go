package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/livepeer/dubworker/config"
	"github.com/livepeer/dubworker/handlers"
	"github.com/stretchr/testify/require"
)

func testCollection(apiToken string) *handlers.Collection {
	return &handlers.Collection{
		Cli: config.Cli{APIToken: apiToken, AllowedOrigins: []string{"https://example.com"}},
	}
}

func TestHealthEndpointIsPublic(t *testing.T) {
	router := NewRouter(config.Cli{APIToken: "secret"}, testCollection("secret"))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
}

func TestProcessingEndpointRequiresAuth(t *testing.T) {
	router := NewRouter(config.Cli{APIToken: "secret"}, testCollection("secret"))

	req := httptest.NewRequest(http.MethodPost, "/upload", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestStatusEndpointPreflightEchoesAllowedOrigin(t *testing.T) {
	router := NewRouter(config.Cli{APIToken: "secret", AllowedOrigins: []string{"https://example.com"}}, testCollection("secret"))

	// A CORS preflight short-circuits in the CORS middleware itself, before
	// the auth layer or the real handler (and its collaborators) run.
	req := httptest.NewRequest(http.MethodOptions, "/status/some-task-id", nil)
	req.Header.Set("Origin", "https://example.com")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "https://example.com", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestDownloadWithTokenEndpointIsRegistered(t *testing.T) {
	router := NewRouter(config.Cli{APIToken: "secret"}, testCollection("secret"))

	handle, _, found := router.Lookup(http.MethodGet, "/download-with-token/bogus-token")
	require.True(t, found)
	require.NotNil(t, handle)
}
