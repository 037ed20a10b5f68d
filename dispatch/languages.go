package dispatch

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

var languageCodes = map[string]string{
	"english":    "en",
	"spanish":    "es",
	"french":     "fr",
	"german":     "de",
	"italian":    "it",
	"portuguese": "pt",
	"russian":    "ru",
	"japanese":   "ja",
	"korean":     "ko",
	"chinese":    "zh-cn",
	"arabic":     "ar",
	"hindi":      "hi",
	"dutch":      "nl",
}

var languageNames = func() map[string]string {
	m := make(map[string]string, len(languageCodes))
	for name, code := range languageCodes {
		m[code] = name
	}
	m["zh"] = "chinese"
	return m
}()

// Language resolves a matched language token to a display name and code.
// Unknown tokens are passed through as the name with an empty code.
func Language(token string) (name, code string) {
	t := strings.ToLower(strings.TrimSpace(token))
	if c, ok := languageCodes[t]; ok {
		return title(t), c
	}
	if n, ok := languageNames[t]; ok {
		return title(n), t
	}
	return title(t), ""
}

func title(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
