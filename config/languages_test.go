package config

import "testing"

func TestIsValidSourceLangAllowsAutoAndEmpty(t *testing.T) {
	for _, code := range []string{"", "auto", "en", "es"} {
		if !IsValidSourceLang(code) {
			t.Errorf("expected %q to be a valid source_lang", code)
		}
	}
	if IsValidSourceLang("xx") {
		t.Error("expected unrecognized code to be rejected")
	}
}

func TestIsValidTargetLangRejectsAuto(t *testing.T) {
	if IsValidTargetLang("auto") {
		t.Error("target_lang must not accept \"auto\"")
	}
	if !IsValidTargetLang("") {
		t.Error("empty target_lang means \"no translation\" and must be accepted")
	}
	if !IsValidTargetLang("fr") {
		t.Error("expected fr to be a valid target_lang")
	}
}

func TestIsValidLanguageCodeMatchesTable(t *testing.T) {
	for _, lang := range Languages {
		if !IsValidLanguageCode(lang.Code) {
			t.Errorf("language table entry %q rejected by IsValidLanguageCode", lang.Code)
		}
	}
	if IsValidLanguageCode("not-a-real-code") {
		t.Error("expected unknown code to be rejected")
	}
}

func TestTranscribeModelAndTranslationServiceTags(t *testing.T) {
	for _, tag := range []string{"tiny", "base", "small", "medium", "large", "remote-api"} {
		if !TranscribeModelTags[tag] {
			t.Errorf("expected %q to be a recognized transcribe_model tag", tag)
		}
	}
	if TranscribeModelTags["huge"] {
		t.Error("expected unrecognized model tag to be absent")
	}

	for _, tag := range []string{"free", "paid"} {
		if !TranslationServiceTags[tag] {
			t.Errorf("expected %q to be a recognized translation_service tag", tag)
		}
	}
}
