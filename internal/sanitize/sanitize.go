// Package sanitize implements the view-time-only text and attachment
// cleanup rules. Nothing here is ever applied to a stored event; it
// runs only when rendering a view.
package sanitize

import (
	"regexp"
	"strings"
)

var (
	strayLeadingCharBeforeURL = regexp.MustCompile(`\b([A-Za-z*])(https?://)`)
	lowercaseTtps             = regexp.MustCompile(`\b[tT]tps://`)
	urlPattern                = regexp.MustCompile(`https?://\S+`)
)

// CleanURLs strips a single stray leading letter immediately preceding
// http(s)://, repairs ttps:// / Ttps:// typos back to https://, and
// removes the WHttpURL/ trailing sentinel some sources emit.
func CleanURLs(text string) string {
	if text == "" {
		return text
	}
	t := text
	t = strings.ReplaceAll(t, "WHttpURL/", "")
	t = strayLeadingCharBeforeURL.ReplaceAllString(t, "$2")
	t = lowercaseTtps.ReplaceAllString(t, "https://")
	return t
}

// HasURL reports whether text contains an http(s) URL.
func HasURL(text string) bool {
	return urlPattern.MatchString(text)
}

// ShouldSuppressAttachment reports whether an attachment should be
// dropped from a rendered view: the message text contains a URL and the
// attachment's name is an Apple rich-link plugin payload, which
// duplicates the URL already present in the text.
func ShouldSuppressAttachment(messageText, attachmentName string) bool {
	if !HasURL(messageText) {
		return false
	}
	return strings.HasSuffix(attachmentName, ".pluginPayloadAttachment")
}
