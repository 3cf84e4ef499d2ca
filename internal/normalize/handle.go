package normalize

import (
	"strings"
	"unicode"
)

// NormalizeHandleForMatching canonicalizes a raw sender handle (phone
// number or email address, however it arrived from a source) into the
// form identity and event-matching code keys on: "tel:+<digits>" or
// "mailto:<lowercase address>".
//
// Unicode format characters (category Cf, e.g. bidi control marks) are
// stripped first so visually identical handles collected from different
// sources normalize the same way.
func NormalizeHandleForMatching(raw string) string {
	stripped := stripFormatChars(raw)

	lower := strings.ToLower(stripped)
	if strings.Contains(stripped, "@") || strings.HasPrefix(lower, "mailto:") {
		addr := strings.TrimPrefix(lower, "mailto:")
		return "mailto:" + addr
	}

	var digits strings.Builder
	hasPlus := false
	for _, r := range stripped {
		switch {
		case r == '+':
			hasPlus = true
		case unicode.IsDigit(r):
			digits.WriteRune(r)
		}
	}
	d := digits.String()

	switch {
	case hasPlus:
		return "tel:+" + d
	case len(d) == 10:
		return "tel:+1" + d
	case d != "":
		return "tel:+" + d
	default:
		return "tel:+"
	}
}

// stripFormatChars removes Unicode category Cf runes (bidi marks, zero
// width joiners, and similar invisible formatting characters) that
// sources sometimes embed around phone numbers.
func stripFormatChars(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.Is(unicode.Cf, r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
