package broker

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEnvelopeRoundTripsJSON(t *testing.T) {
	env := Envelope{TaskID: "task-123"}
	blob, err := json.Marshal(env)
	require.NoError(t, err)

	var decoded Envelope
	require.NoError(t, json.Unmarshal(blob, &decoded))
	require.Equal(t, env.TaskID, decoded.TaskID)
}
