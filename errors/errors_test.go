package errors

import (
	"fmt"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsObjectNotFound(t *testing.T) {
	err := NewObjectNotFoundError("foo", fmt.Errorf("bar"))
	require.True(t, IsObjectNotFound(err))
	require.True(t, IsUnretriable(err))
}

func TestUnretriable(t *testing.T) {
	err := Unretriable(fmt.Errorf("bar"))
	require.True(t, IsUnretriable(err))
}

func TestNewTaskErrorDefaultsRecoverableFromCode(t *testing.T) {
	err := NewTaskError(DownloadFailed, "could not reach host", fmt.Errorf("dial tcp: timeout"))
	require.True(t, err.Recoverable)
	require.NotEmpty(t, err.UserMessage)
	require.Contains(t, err.Error(), "DownloadFailed")

	err2 := NewTaskError(SubtitleEmitError, "write failed", nil)
	require.False(t, err2.Recoverable)
}

func TestTaskErrorWithRecoverableOverride(t *testing.T) {
	err := NewTaskError(DownloadFailed, "retries exhausted", nil).WithRecoverable(false)
	require.False(t, err.Recoverable)
}

func TestWriteHTTPTooManyRequestsSetsRetryAfter(t *testing.T) {
	w := httptest.NewRecorder()
	apiErr := WriteHTTPTooManyRequests(w, "slow down", 30)
	require.Equal(t, 429, apiErr.Status)
	require.Equal(t, "30", w.Header().Get("Retry-After"))
	require.Equal(t, RateLimited, apiErr.Code)
}
