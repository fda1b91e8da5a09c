package config

// Language is one row of the closed, shared-between-client-and-server
// language table (§6).
type Language struct {
	Code             string `json:"code"`
	Name             string `json:"name"`
	NativeName       string `json:"native_name"`
	RTL              bool   `json:"rtl"`
	HasUITranslation bool   `json:"has_ui_translation"`
}

// Languages is the closed set of language codes the core recognizes (§6).
// `auto` is a pseudo-code meaning "detect from audio" and is valid only as
// a source_lang, never as a target_lang.
var Languages = []Language{
	{Code: "auto", Name: "Detect language", NativeName: "Detect language", HasUITranslation: true},
	{Code: "en", Name: "English", NativeName: "English", HasUITranslation: true},
	{Code: "es", Name: "Spanish", NativeName: "Español", HasUITranslation: true},
	{Code: "fr", Name: "French", NativeName: "Français", HasUITranslation: true},
	{Code: "de", Name: "German", NativeName: "Deutsch", HasUITranslation: true},
	{Code: "it", Name: "Italian", NativeName: "Italiano", HasUITranslation: false},
	{Code: "pt", Name: "Portuguese", NativeName: "Português", HasUITranslation: false},
	{Code: "ru", Name: "Russian", NativeName: "Русский", HasUITranslation: false},
	{Code: "zh", Name: "Chinese", NativeName: "中文", HasUITranslation: false},
	{Code: "ja", Name: "Japanese", NativeName: "日本語", HasUITranslation: false},
	{Code: "ko", Name: "Korean", NativeName: "한국어", HasUITranslation: false},
	{Code: "hi", Name: "Hindi", NativeName: "हिन्दी", HasUITranslation: false},
	{Code: "tr", Name: "Turkish", NativeName: "Türkçe", HasUITranslation: false},
	{Code: "pl", Name: "Polish", NativeName: "Polski", HasUITranslation: false},
	{Code: "nl", Name: "Dutch", NativeName: "Nederlands", HasUITranslation: false},
	{Code: "sv", Name: "Swedish", NativeName: "Svenska", HasUITranslation: false},
	{Code: "ar", Name: "Arabic", NativeName: "العربية", RTL: true, HasUITranslation: true},
	{Code: "he", Name: "Hebrew", NativeName: "עברית", RTL: true, HasUITranslation: false},
	{Code: "fa", Name: "Persian", NativeName: "فارسی", RTL: true, HasUITranslation: false},
	{Code: "ur", Name: "Urdu", NativeName: "اردو", RTL: true, HasUITranslation: false},
}

var languageCodeSet = buildLanguageCodeSet()

func buildLanguageCodeSet() map[string]bool {
	set := make(map[string]bool, len(Languages))
	for _, l := range Languages {
		set[l.Code] = true
	}
	return set
}

// IsValidLanguageCode checks a code against the closed set (§4.1's
// "validates language codes against a closed set" requirement). The empty
// string is valid wherever the caller treats it as "unset"/"transcription
// only"; callers enforce that distinction themselves.
func IsValidLanguageCode(code string) bool {
	return languageCodeSet[code]
}

// IsValidSourceLang additionally accepts the empty string (unset); "auto"
// is accepted because it is a row of the language table.
func IsValidSourceLang(code string) bool {
	if code == "" {
		return true
	}
	return IsValidLanguageCode(code)
}

// IsValidTargetLang rejects "auto" and empty is allowed (transcription-only).
func IsValidTargetLang(code string) bool {
	if code == "" {
		return true
	}
	if code == "auto" {
		return false
	}
	return IsValidLanguageCode(code)
}

// TranscribeModelTags is the closed set of transcription model tags (§6).
var TranscribeModelTags = map[string]bool{
	"tiny": true, "base": true, "small": true, "medium": true, "large": true,
	"remote-api": true,
}

// TranslationServiceTags is the closed set of translation service tags (§6).
var TranslationServiceTags = map[string]bool{
	"free": true,
	"paid": true,
}

// WatermarkPositions is the closed set of watermark placements (§6).
var WatermarkPositions = map[string]bool{
	"top-left": true, "top-right": true, "bottom-left": true, "bottom-right": true, "center": true,
}

// WatermarkSizes is the closed set of watermark size tags (§6).
var WatermarkSizes = map[string]bool{
	"small": true, "medium": true, "large": true,
}
