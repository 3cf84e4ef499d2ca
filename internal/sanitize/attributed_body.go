package sanitize

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	keyingPrefixes = []*regexp.Regexp{
		regexp.MustCompile(`__?kIM[A-Za-z0-9_]+`),
		regexp.MustCompile(`\bNS[A-Za-z0-9_]+\b`),
		regexp.MustCompile(`\bat_\d+_[A-F0-9-]+\b`),
		regexp.MustCompile(`com\.apple\.[\w.-]+`),
		regexp.MustCompile(`\$\w+`),
	}
	printableRun = regexp.MustCompile(`[^\x00-\x1f\x7f]{2,}`)

	archiverClassNames = []string{
		"archiver", "NSDictionary", "NSString", "Coder", "root", "MessageAttachment",
	}
)

// DecodeAttributedBody recovers a best-effort plain-text body from a
// chat.db attributedBody blob when the message's text column is null.
// It lossily decodes as UTF-8, strips NULs and the object-replacement
// character, strips Apple's internal archiver keying tokens, and
// returns the longest surviving printable run containing at least one
// letter. Returns "" if nothing survives.
func DecodeAttributedBody(blob []byte) string {
	if len(blob) == 0 {
		return ""
	}
	s := string(blob)
	s = strings.ReplaceAll(s, "\x00", " ")
	s = strings.ReplaceAll(s, "￼", " ")

	for _, re := range keyingPrefixes {
		s = re.ReplaceAllString(s, " ")
	}

	var best string
	for _, candidate := range printableRun.FindAllString(s, -1) {
		candidate = strings.TrimSpace(candidate)
		if !containsLetter(candidate) {
			continue
		}
		if containsAny(candidate, archiverClassNames) {
			continue
		}
		if len(candidate) > len(best) {
			best = candidate
		}
	}
	return best
}

func containsLetter(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

func containsAny(s string, substrs []string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
