package recognition

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// FallbackLocale is used when neither the host nor the configuration names one
const FallbackLocale = "en-US"

// Language is an entry of the language picker
type Language struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// ValidateLanguage rejects empty or unparseable BCP 47 tags
func ValidateLanguage(code string) error {
	code = strings.TrimSpace(code)
	if code == "" {
		return fmt.Errorf("%w: empty", ErrInvalidLanguage)
	}
	if _, err := language.Parse(code); err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidLanguage, code, err)
	}
	return nil
}

// DisplayName names a tag in its own language ("français (France)" for
// fr-FR), falling back to the code itself.
func DisplayName(code string) string {
	tag, err := language.Parse(code)
	if err != nil {
		return code
	}
	if name := display.Self.Name(tag); name != "" {
		return name
	}
	return code
}

// AvailableLanguages turns the host's locale preferences into picker
// entries, keeping preference order and dropping duplicates. With no
// preferences at all the list holds only fallback.
func AvailableLanguages(locales []string, fallback string) []Language {
	if fallback == "" {
		fallback = FallbackLocale
	}

	seen := make(map[string]bool, len(locales))
	languages := make([]Language, 0, len(locales))
	for _, code := range locales {
		code = strings.TrimSpace(code)
		if code == "" || seen[code] {
			continue
		}
		seen[code] = true
		languages = append(languages, Language{Code: code, Name: DisplayName(code)})
	}

	if len(languages) == 0 {
		languages = append(languages, Language{Code: fallback, Name: DisplayName(fallback)})
	}
	return languages
}
