// Package text picks the translation of a translated string to show a rider.
package text

import (
	"strings"

	"github.com/jamespfennell/gtfsrt"
	"golang.org/x/text/language"
)

// ErrNoTranslationAvailable is returned when no translation matches and none is untagged.
var ErrNoTranslationAvailable = gtfsrt.ErrNoTranslationAvailable

// Resolve returns the text of the best translation. In order of preference this is the first
// translation in the requested language, then the first in the default language, then the first
// without a language.
//
// Language tags are compared in canonical form, so "en-us" matches "en-US". Tags that cannot be
// parsed are compared as case-insensitive strings.
func Resolve(ts *gtfsrt.TranslatedString, requested, defaultLang string) (string, error) {
	if ts == nil {
		return "", ErrNoTranslationAvailable
	}
	for _, want := range []string{requested, defaultLang} {
		if want == "" {
			continue
		}
		for _, t := range ts.Translations {
			if t.Language != nil && Match(*t.Language, want) {
				return t.Text, nil
			}
		}
	}
	for _, t := range ts.Translations {
		if t.Language == nil || *t.Language == "" {
			return t.Text, nil
		}
	}
	return "", ErrNoTranslationAvailable
}

// ResolveOr is like Resolve but returns fallback instead of an error.
func ResolveOr(ts *gtfsrt.TranslatedString, requested, defaultLang, fallback string) string {
	s, err := Resolve(ts, requested, defaultLang)
	if err != nil {
		return fallback
	}
	return s
}

// Match reports whether two language tags denote the same language.
func Match(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	ta, errA := language.Parse(a)
	tb, errB := language.Parse(b)
	if errA != nil || errB != nil {
		return strings.EqualFold(a, b)
	}
	return ta == tb
}
