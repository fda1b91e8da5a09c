package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/require"
)

func TestRateLimiterAllowsBurstThenRejects(t *testing.T) {
	rl := NewRateLimiter(60, 1) // 1 req/sec steady-state, burst of 1
	handler := rl.Limit()(func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/remote", nil)
	req.RemoteAddr = "1.2.3.4:1111"

	w1 := httptest.NewRecorder()
	handler(w1, req, nil)
	require.Equal(t, http.StatusOK, w1.Code)

	w2 := httptest.NewRecorder()
	handler(w2, req, nil)
	require.Equal(t, http.StatusTooManyRequests, w2.Code)
	require.NotEmpty(t, w2.Header().Get("Retry-After"))
}

func TestRateLimiterTracksAddressesIndependently(t *testing.T) {
	rl := NewRateLimiter(60, 1)
	handler := rl.Limit()(func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		w.WriteHeader(http.StatusOK)
	})

	req1 := httptest.NewRequest(http.MethodPost, "/remote", nil)
	req1.RemoteAddr = "1.1.1.1:1"
	req2 := httptest.NewRequest(http.MethodPost, "/remote", nil)
	req2.RemoteAddr = "2.2.2.2:2"

	w1 := httptest.NewRecorder()
	handler(w1, req1, nil)
	require.Equal(t, http.StatusOK, w1.Code)

	w2 := httptest.NewRecorder()
	handler(w2, req2, nil)
	require.Equal(t, http.StatusOK, w2.Code)
}
