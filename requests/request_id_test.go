package requests

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetRequestIdGeneratesWhenAbsent(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/status/abc", nil)
	id := GetRequestId(req)
	require.NotEmpty(t, id)
	require.Equal(t, id, req.Header.Get(requestIDParam))
}

func TestGetRequestIdReusesExistingHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/status/abc", nil)
	req.Header.Set(requestIDParam, "caller-supplied-id")
	require.Equal(t, "caller-supplied-id", GetRequestId(req))
}

func TestGetRequestIdIsStableAcrossCalls(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/status/abc", nil)
	first := GetRequestId(req)
	second := GetRequestId(req)
	require.Equal(t, first, second)
}
