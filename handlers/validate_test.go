package handlers

import (
	"testing"

	"github.com/livepeer/dubworker/registry"
	"github.com/stretchr/testify/require"
)

func TestValidateSourceURLRejectsBadScheme(t *testing.T) {
	err := validateSourceURL(nil, "ftp://example.com/video.mp4")
	require.Error(t, err)
}

func TestValidateSourceURLEnforcesAllowList(t *testing.T) {
	require.NoError(t, validateSourceURL([]string{"example.com"}, "https://example.com/v.mp4"))
	require.Error(t, validateSourceURL([]string{"example.com"}, "https://evil.example.org/v.mp4"))
}

func TestValidateSourceURLEmptyAllowListAcceptsAnyHost(t *testing.T) {
	require.NoError(t, validateSourceURL(nil, "https://anything.example.org/v.mp4"))
}

func TestValidateUserChoicesRejectsUnknownLanguage(t *testing.T) {
	err := validateUserChoices(registry.UserChoices{SourceLang: "xx"})
	require.Error(t, err)
}

func TestValidateUserChoicesRejectsAutoTargetLang(t *testing.T) {
	err := validateUserChoices(registry.UserChoices{TargetLang: "auto"})
	require.Error(t, err)
}

func TestValidateUserChoicesAcceptsFullySpecified(t *testing.T) {
	uc := registry.UserChoices{
		SourceLang:         "auto",
		TargetLang:         "es",
		TranscribeModel:    "medium",
		TranslationService: "free",
		Watermark: registry.Watermark{
			Enabled:  true,
			Position: "bottom-right",
			Size:     "small",
			Opacity:  80,
		},
	}
	require.NoError(t, validateUserChoices(uc))
}

func TestValidateUserChoicesRejectsOutOfRangeOpacity(t *testing.T) {
	uc := registry.UserChoices{
		Watermark: registry.Watermark{Enabled: true, Position: "center", Size: "medium", Opacity: 150},
	}
	require.Error(t, validateUserChoices(uc))
}

func TestValidateTimeRangeRequiresBothOrNeither(t *testing.T) {
	require.NoError(t, validateTimeRange("", ""))
	require.Error(t, validateTimeRange("00:00:01", ""))
	require.Error(t, validateTimeRange("", "00:00:01"))
}

func TestValidateTimeRangeRejectsStartAfterEnd(t *testing.T) {
	require.Error(t, validateTimeRange("00:01:00", "00:00:30"))
}

func TestValidateTimeRangeAcceptsWellFormedRange(t *testing.T) {
	require.NoError(t, validateTimeRange("00:00:05", "00:01:00"))
}

func TestParseHHMMSSRejectsMalformedInput(t *testing.T) {
	_, err := parseHHMMSS("not-a-time")
	require.Error(t, err)
}
