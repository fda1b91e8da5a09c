package subtitles

import (
	"strings"
	"testing"

	"github.com/livepeer/dubworker/pipeline"
	"github.com/stretchr/testify/require"
)

func TestEmitFormatsTimestampsAndSequentialIndices(t *testing.T) {
	segments := []pipeline.Segment{
		{Index: 0, Start: 0, End: 1.5, Text: "hello"},
		{Index: 1, Start: 61.25, End: 62, Text: "world"},
	}
	var buf strings.Builder
	require.NoError(t, Emit(&buf, segments, "en"))

	out := buf.String()
	require.Contains(t, out, "1\n00:00:00,000 --> 00:00:01,500\nhello\n\n")
	require.Contains(t, out, "2\n00:01:01,250 --> 00:01:02,000\nworld\n\n")
}

func TestEmitWrapsRTLTargetLanguages(t *testing.T) {
	segments := []pipeline.Segment{{Index: 0, Start: 0, End: 1, Text: "שלום"}}
	var buf strings.Builder
	require.NoError(t, Emit(&buf, segments, "he"))
	require.NotEqual(t, "שלום", strings.Split(buf.String(), "\n")[2])
}

func TestParseRoundTripsEmittedSRT(t *testing.T) {
	segments := []pipeline.Segment{
		{Index: 0, Start: 0, End: 1.5, Text: "hello"},
		{Index: 1, Start: 61.25, End: 62, Text: "world"},
	}
	var buf strings.Builder
	require.NoError(t, Emit(&buf, segments, "en"))

	parsed, err := Parse(strings.NewReader(buf.String()))
	require.NoError(t, err)
	require.Len(t, parsed, 2)
	require.Equal(t, "hello", parsed[0].Text)
	require.InDelta(t, 61.25, parsed[1].Start, 0.001)
	require.InDelta(t, 62.0, parsed[1].End, 0.001)
}

func TestParseRejectsMalformedTimestampLine(t *testing.T) {
	_, err := Parse(strings.NewReader("1\nnot-a-timestamp\nhello\n\n"))
	require.Error(t, err)
}
