// Package normalizer cleans raw card-statement descriptions into readable
// expense titles. Statement processors embed terminal ids, reference codes,
// and processor prefixes that mean nothing to the user.
package normalizer

import (
	"regexp"
	"strings"
)

// Processor prefixes like "SQ *" (Square) or "TST*" (Toast) precede the
// actual merchant name.
var processorPrefix = regexp.MustCompile(`(?i)^(SQ|TST|PY|PP|IC|CKE)\s*\*\s*`)

var (
	referenceCode = regexp.MustCompile(`\s*\*[A-Z0-9-]{4,}\b`)
	storeNumber   = regexp.MustCompile(`\s+#?\d{4,}$`)
	trailingDate  = regexp.MustCompile(`\s+\d{1,2}/\d{1,2}/?$`)
	multiSpace    = regexp.MustCompile(`\s+`)
)

// CleanTitle strips statement noise and title-cases shouting descriptions.
// Must be applied identically to incoming rows and to titles already
// persisted from earlier statement imports, or duplicate keys drift.
func CleanTitle(raw string) string {
	out := strings.TrimSpace(raw)
	out = processorPrefix.ReplaceAllString(out, "")
	out = referenceCode.ReplaceAllString(out, "")
	out = storeNumber.ReplaceAllString(out, "")
	out = trailingDate.ReplaceAllString(out, "")
	out = multiSpace.ReplaceAllString(out, " ")
	out = strings.TrimSpace(out)
	if out == "" {
		return strings.TrimSpace(raw)
	}
	if isShouting(out) {
		out = titleCase(out)
	}
	return out
}

// isShouting reports whether the text has letters and none of them are
// lowercase, the usual shape of card-network descriptions.
func isShouting(s string) bool {
	hasLetter := false
	for _, r := range s {
		if r >= 'a' && r <= 'z' {
			return false
		}
		if r >= 'A' && r <= 'Z' {
			hasLetter = true
		}
	}
	return hasLetter
}

func titleCase(s string) string {
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
