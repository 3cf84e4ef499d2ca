package sanitize

import "testing"

func TestCleanURLs(t *testing.T) {
	cases := map[string]string{
		"check Khttps://example.com/x":  "check https://example.com/x",
		"see ttps://example.com":        "see https://example.com",
		"see Ttps://example.com":        "see https://example.com",
		"link WHttpURL/https://a.com/y": "link https://a.com/y",
		"plain text, no url here":       "plain text, no url here",
	}
	for in, want := range cases {
		if got := CleanURLs(in); got != want {
			t.Errorf("CleanURLs(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestHasURL(t *testing.T) {
	if !HasURL("check out http://example.com") {
		t.Error("expected HasURL to find http url")
	}
	if HasURL("no links here") {
		t.Error("expected HasURL to be false")
	}
}

func TestShouldSuppressAttachment(t *testing.T) {
	if !ShouldSuppressAttachment("look: https://example.com", "preview.pluginPayloadAttachment") {
		t.Error("expected suppression when text has url and name is a plugin payload")
	}
	if ShouldSuppressAttachment("no url here", "preview.pluginPayloadAttachment") {
		t.Error("should not suppress when text has no url")
	}
	if ShouldSuppressAttachment("https://example.com", "photo.jpg") {
		t.Error("should not suppress non-plugin-payload attachments")
	}
}

func TestDecodeAttributedBody(t *testing.T) {
	blob := []byte("__kIMMessagePartAttributeName\x00NSDictionary$classNamecom.apple.foo.bar Hello there friend ￼")
	got := DecodeAttributedBody(blob)
	if got != "Hello there friend" {
		t.Errorf("DecodeAttributedBody = %q, want %q", got, "Hello there friend")
	}
}

func TestDecodeAttributedBodyEmpty(t *testing.T) {
	if got := DecodeAttributedBody(nil); got != "" {
		t.Errorf("expected empty string for nil blob, got %q", got)
	}
	if got := DecodeAttributedBody([]byte("\x00\x01\x02")); got != "" {
		t.Errorf("expected empty string for unprintable blob, got %q", got)
	}
}
