package handlers

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/livepeer/dubworker/config"
	"github.com/livepeer/dubworker/registry"
)

// validateSourceURL checks a remote/download-only URL's shape against the
// allowed-host policy (§4.1). An empty allow-list means the operator has
// not configured one; in that case every http(s) URL is accepted, which
// callers should treat as "policy not enforced" rather than "all hosts
// vetted".
func validateSourceURL(allowedHosts []string, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("malformed url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("url scheme must be http or https")
	}
	if u.Host == "" {
		return fmt.Errorf("url must have a host")
	}
	if len(allowedHosts) == 0 {
		return nil
	}
	host := u.Hostname()
	for _, allowed := range allowedHosts {
		if strings.EqualFold(host, allowed) {
			return nil
		}
	}
	return fmt.Errorf("host %q is not in the allowed source host list", host)
}

// validateUserChoices checks language codes, model/service tags and
// watermark fields against the closed sets from §6.
func validateUserChoices(uc registry.UserChoices) error {
	if !config.IsValidSourceLang(uc.SourceLang) {
		return fmt.Errorf("unrecognized source_lang %q", uc.SourceLang)
	}
	if !config.IsValidTargetLang(uc.TargetLang) {
		return fmt.Errorf("unrecognized target_lang %q", uc.TargetLang)
	}
	if uc.TranscribeModel != "" && !config.TranscribeModelTags[uc.TranscribeModel] {
		return fmt.Errorf("unrecognized transcribe_model %q", uc.TranscribeModel)
	}
	if uc.TargetLang != "" && uc.TranslationService != "" && !config.TranslationServiceTags[uc.TranslationService] {
		return fmt.Errorf("unrecognized translation_service %q", uc.TranslationService)
	}
	if uc.Watermark.Enabled {
		if uc.Watermark.Position != "" && !config.WatermarkPositions[uc.Watermark.Position] {
			return fmt.Errorf("unrecognized watermark position %q", uc.Watermark.Position)
		}
		if uc.Watermark.Size != "" && !config.WatermarkSizes[uc.Watermark.Size] {
			return fmt.Errorf("unrecognized watermark size %q", uc.Watermark.Size)
		}
		if uc.Watermark.Opacity < 0 || uc.Watermark.Opacity > 100 {
			return fmt.Errorf("watermark opacity %d out of range 0..100", uc.Watermark.Opacity)
		}
	}
	return nil
}

// validateTimeRange parses and cross-checks optional start/end times
// against §4.6.6: both present, both well-formed hh:mm:ss, start<end.
func validateTimeRange(startTime, endTime string) error {
	if startTime == "" && endTime == "" {
		return nil
	}
	if startTime == "" || endTime == "" {
		return fmt.Errorf("start_time and end_time must both be present or both absent")
	}
	start, err := parseHHMMSS(startTime)
	if err != nil {
		return fmt.Errorf("invalid start_time: %w", err)
	}
	end, err := parseHHMMSS(endTime)
	if err != nil {
		return fmt.Errorf("invalid end_time: %w", err)
	}
	if start >= end {
		return fmt.Errorf("start_time must be before end_time")
	}
	return nil
}

func parseHHMMSS(s string) (time.Duration, error) {
	var h, m, sec int
	if _, err := fmt.Sscanf(s, "%d:%d:%d", &h, &m, &sec); err != nil {
		return 0, fmt.Errorf("expected hh:mm:ss, got %q", s)
	}
	if m < 0 || m > 59 || sec < 0 || sec > 59 || h < 0 {
		return 0, fmt.Errorf("time component out of range in %q", s)
	}
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(sec)*time.Second, nil
}

// allowedUploadExtensions is the extension allow-list enforced on /upload
// (§4.1).
var allowedUploadExtensions = map[string]bool{
	".mp4": true, ".mov": true, ".mkv": true, ".webm": true,
	".avi": true, ".m4v": true, ".mp3": true, ".wav": true, ".m4a": true,
}

var allowedLogoExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".webp": true,
}
