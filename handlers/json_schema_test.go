package handlers

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xeipuuv/gojsonschema"
)

func TestRemoteSchemaAcceptsMinimalPayload(t *testing.T) {
	result, err := inputSchemasCompiled["Remote"].Validate(gojsonschema.NewStringLoader(`{"url": "https://example.com/v.mp4"}`))
	require.NoError(t, err)
	require.True(t, result.Valid())
}

func TestRemoteSchemaRejectsMissingURL(t *testing.T) {
	result, err := inputSchemasCompiled["Remote"].Validate(gojsonschema.NewStringLoader(`{"burn_in": true}`))
	require.NoError(t, err)
	require.False(t, result.Valid())
}

func TestRemoteSchemaRejectsUnknownFields(t *testing.T) {
	result, err := inputSchemasCompiled["Remote"].Validate(gojsonschema.NewStringLoader(`{"url": "https://example.com/v.mp4", "bogus_field": 1}`))
	require.NoError(t, err)
	require.False(t, result.Valid())
}

func TestDownloadOnlySchemaAcceptsURLAndTimeRange(t *testing.T) {
	result, err := inputSchemasCompiled["DownloadOnly"].Validate(gojsonschema.NewStringLoader(
		`{"url": "https://example.com/v.mp4", "start_time": "00:00:01", "end_time": "00:00:05"}`,
	))
	require.NoError(t, err)
	require.True(t, result.Valid())
}
