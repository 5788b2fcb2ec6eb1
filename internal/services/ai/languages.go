package ai

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// supportedCodes are the language codes offered to translation callers
var supportedCodes = []string{
	"af", "ar", "bg", "bn", "ca", "cs", "cy", "da", "de", "el", "en", "es",
	"et", "fa", "fi", "fr", "gu", "he", "hi", "hr", "hu", "id", "is", "it",
	"ja", "kn", "ko", "lt", "lv", "mk", "ml", "mr", "ne", "nl", "no", "pl",
	"pt", "ro", "ru", "sk", "sl", "sq", "sr", "sv", "sw", "ta", "te", "th",
	"tl", "tr", "uk", "ur", "vi", "zh", "zh-cn", "zh-tw",
}

// nameOverrides pins names the CLDR tables render differently
var nameOverrides = map[string]string{
	"tl":    "Filipino",
	"zh-cn": "Chinese (Simplified)",
	"zh-tw": "Chinese (Traditional)",
}

// SupportedLanguages maps each supported code to its English name
func SupportedLanguages() map[string]string {
	out := make(map[string]string, len(supportedCodes))
	for _, code := range supportedCodes {
		out[code] = LanguageName(code)
	}
	return out
}

// LanguageName renders a language code as an English name for prompts.
// Codes that do not parse are returned unchanged so free-form names such as
// "French" pass through.
func LanguageName(code string) string {
	key := strings.ToLower(strings.TrimSpace(code))
	if name, ok := nameOverrides[key]; ok {
		return name
	}
	tag, err := language.Parse(key)
	if err != nil {
		return code
	}
	if name := display.English.Languages().Name(tag); name != "" {
		return name
	}
	return code
}
