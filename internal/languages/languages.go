// Package languages holds the fixed set of locales offered for both the
// source and target selectors.
package languages

// Language pairs a locale code with its display name.
type Language struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

var supported = []Language{
	{Code: "en-US", Name: "English (US)"},
	{Code: "en-GB", Name: "English (UK)"},
	{Code: "es-ES", Name: "Spanish"},
	{Code: "fr-FR", Name: "French"},
	{Code: "de-DE", Name: "German"},
	{Code: "it-IT", Name: "Italian"},
	{Code: "pt-BR", Name: "Portuguese (Brazil)"},
	{Code: "ru-RU", Name: "Russian"},
	{Code: "ja-JP", Name: "Japanese"},
	{Code: "ko-KR", Name: "Korean"},
	{Code: "zh-CN", Name: "Chinese (Simplified)"},
	{Code: "ar-SA", Name: "Arabic"},
	{Code: "hi-IN", Name: "Hindi"},
	{Code: "nl-NL", Name: "Dutch"},
	{Code: "tr-TR", Name: "Turkish"},
}

var byCode = func() map[string]string {
	m := make(map[string]string, len(supported))
	for _, l := range supported {
		m[l.Code] = l.Name
	}
	return m
}()

// All returns the supported languages in display order.
func All() []Language {
	return append([]Language(nil), supported...)
}

// Supported reports whether code is one of the offered locales.
func Supported(code string) bool {
	_, ok := byCode[code]
	return ok
}

// Name returns the display name for code.
func Name(code string) (string, bool) {
	name, ok := byCode[code]
	return name, ok
}
