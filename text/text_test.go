package text_test

import (
	"errors"
	"testing"

	"github.com/jamespfennell/gtfsrt"
	"github.com/jamespfennell/gtfsrt/text"
)

func ptr[T any](t T) *T {
	return &t
}

func translated(pairs ...string) *gtfsrt.TranslatedString {
	ts := &gtfsrt.TranslatedString{}
	for i := 0; i < len(pairs); i += 2 {
		t := gtfsrt.Translation{Text: pairs[i]}
		if pairs[i+1] != "" {
			t.Language = ptr(pairs[i+1])
		}
		ts.Translations = append(ts.Translations, t)
	}
	return ts
}

func TestResolve(t *testing.T) {
	greeting := translated("hello", "en", "bonjour", "fr", "hola", "")
	for _, tc := range []struct {
		name        string
		ts          *gtfsrt.TranslatedString
		requested   string
		defaultLang string
		want        string
		wantErr     error
	}{
		{name: "requested", ts: greeting, requested: "fr", defaultLang: "en", want: "bonjour"},
		{name: "default", ts: greeting, requested: "de", defaultLang: "en", want: "hello"},
		{name: "untagged", ts: greeting, requested: "de", defaultLang: "it", want: "hola"},
		{name: "canonical tag", ts: translated("howdy", "en-us"), requested: "en-US", want: "howdy"},
		{name: "case insensitive", ts: greeting, requested: "FR", want: "bonjour"},
		{name: "region does not match base", ts: translated("howdy", "en-US"), requested: "en", wantErr: text.ErrNoTranslationAvailable},
		{name: "unparsable tags", ts: translated("x", "not a tag"), requested: "NOT A TAG", want: "x"},
		{name: "first match wins", ts: translated("one", "en", "two", "en"), requested: "en", want: "one"},
		{name: "nothing matches", ts: translated("hallo", "de"), requested: "fr", defaultLang: "en", wantErr: text.ErrNoTranslationAvailable},
		{name: "empty", ts: &gtfsrt.TranslatedString{}, requested: "en", wantErr: text.ErrNoTranslationAvailable},
		{name: "nil", requested: "en", wantErr: text.ErrNoTranslationAvailable},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got, err := text.Resolve(tc.ts, tc.requested, tc.defaultLang)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("Resolve() err = %v, want %v", err, tc.wantErr)
			}
			if got != tc.want {
				t.Errorf("Resolve() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestResolveOr(t *testing.T) {
	if got := text.ResolveOr(translated("hallo", "de"), "fr", "", "n/a"); got != "n/a" {
		t.Errorf("ResolveOr() = %q, want n/a", got)
	}
	if got := text.ResolveOr(translated("hallo", "de"), "de", "", "n/a"); got != "hallo" {
		t.Errorf("ResolveOr() = %q, want hallo", got)
	}
}

func TestErrorIsShared(t *testing.T) {
	if !errors.Is(text.ErrNoTranslationAvailable, gtfsrt.ErrNoTranslationAvailable) {
		t.Errorf("text.ErrNoTranslationAvailable is not gtfsrt.ErrNoTranslationAvailable")
	}
}
