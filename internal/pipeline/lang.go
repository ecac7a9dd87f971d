package pipeline

// ttsLangCodes maps translate targets to the synthesis language codes the
// TTS providers expect.
var ttsLangCodes = map[string]string{
	"id": "id-ID",
	"en": "en-US",
	"ja": "ja-JP",
	"ko": "ko-KR",
	"zh": "cmn-CN",
	"es": "es-ES",
	"fr": "fr-FR",
	"de": "de-DE",
	"pt": "pt-BR",
	"ru": "ru-RU",
}

// langCode resolves the TTS language for a translate target, falling back to
// the configured default for unknown targets.
func langCode(target, fallback string) string {
	if code, ok := ttsLangCodes[target]; ok {
		return code
	}
	return fallback
}
