package matcher

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var (
	// Branding and packaging phrases that OCR picks up around the actual
	// recipe title. Applied after lowercasing, whole words only.
	reNoisePhrase = regexp.MustCompile(`\b(?:hello|fresh|grab your|meal kit|meat kit|kit)\b`)

	reNonAlnum   = regexp.MustCompile(`[^a-z0-9\s]+`)
	reMultiSpace = regexp.MustCompile(`\s+`)
)

var stopwords = map[string]struct{}{
	"and":  {},
	"with": {},
	"the":  {},
	"for":  {},
	"your": {},
}

// stripDiacritics removes combining marks after NFD decomposition, so
// "jalapeño" and "jalapeno" tokenize identically.
func stripDiacritics(s string) string {
	decomp := norm.NFD.String(s)
	var b strings.Builder
	b.Grow(len(decomp))
	for _, r := range decomp {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Normalize lowercases a title, folds unicode compatibility forms, removes
// branding noise and everything outside [a-z0-9 ], and collapses whitespace.
//
// OCR character repair ('0'↔'O', '1'↔'l') is deliberately not done here; that
// belongs to the extraction layer, and the disambiguation prompt tells the
// model about the common substitutions. A token like "ch1cken" survives.
func Normalize(title string) string {
	s := norm.NFKC.String(title)
	s = stripDiacritics(s)
	s = strings.ToLower(s)
	s = reNoisePhrase.ReplaceAllString(s, " ")
	s = reNonAlnum.ReplaceAllString(s, " ")
	s = reMultiSpace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// ExtractKeywords tokenizes the normalized title and keeps distinct tokens of
// three or more characters that are not stopwords. An empty or all-noise
// title yields an empty set.
func ExtractKeywords(title string) map[string]struct{} {
	words := strings.Fields(Normalize(title))
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		if len(w) < 3 {
			continue
		}
		if _, stop := stopwords[w]; stop {
			continue
		}
		out[w] = struct{}{}
	}
	return out
}
