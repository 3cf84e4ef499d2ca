package email

import (
	"bytes"
	"encoding/base64"
	"html"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"regexp"
	"strings"
)

// pickBody walks msg's MIME structure and returns its preferred body
// text: a text/plain part if one exists, else a stripped text/html
// part, recursing into nested multipart/alternative and
// multipart/mixed parts the way a mail client's part-picker does.
func pickBody(msg *mail.Message) string {
	contentType := msg.Header.Get("Content-Type")
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = "text/plain"
	}

	if !strings.HasPrefix(mediaType, "multipart/") {
		data, _ := io.ReadAll(io.LimitReader(msg.Body, maxBodyBytes))
		data = decodeTransferEncoding(data, msg.Header.Get("Content-Transfer-Encoding"))
		if strings.HasPrefix(mediaType, "text/html") {
			return strings.TrimSpace(stripHTML(string(data)))
		}
		return strings.TrimSpace(string(data))
	}

	boundary := params["boundary"]
	if boundary == "" {
		data, _ := io.ReadAll(io.LimitReader(msg.Body, maxBodyBytes))
		return strings.TrimSpace(string(data))
	}

	plain, htmlPart := walkMultipart(msg.Body, boundary)
	if plain != "" {
		return plain
	}
	if htmlPart != "" {
		return strings.TrimSpace(stripHTML(htmlPart))
	}
	return ""
}

// walkMultipart returns the first text/plain and first text/html part
// bodies found anywhere in the part tree rooted at r, recursing into
// nested multipart parts (e.g. multipart/mixed wrapping a
// multipart/alternative).
func walkMultipart(r io.Reader, boundary string) (plain, htmlPart string) {
	mr := multipart.NewReader(r, boundary)
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}

		ct := part.Header.Get("Content-Type")
		mediaType, params, err := mime.ParseMediaType(ct)
		if err != nil {
			mediaType = "text/plain"
		}

		if strings.HasPrefix(mediaType, "multipart/") {
			if nestedBoundary := params["boundary"]; nestedBoundary != "" {
				p, h := walkMultipart(part, nestedBoundary)
				if plain == "" {
					plain = p
				}
				if htmlPart == "" {
					htmlPart = h
				}
			}
			continue
		}

		data, _ := io.ReadAll(io.LimitReader(part, maxBodyBytes))
		data = decodeTransferEncoding(data, part.Header.Get("Content-Transfer-Encoding"))

		switch {
		case plain == "" && strings.HasPrefix(mediaType, "text/plain"):
			plain = strings.TrimSpace(string(data))
		case htmlPart == "" && strings.HasPrefix(mediaType, "text/html"):
			htmlPart = string(data)
		}
	}
	return plain, htmlPart
}

// decodeTransferEncoding reverses base64/quoted-printable encoding.
// An unrecognized or absent encoding (including "7bit"/"8bit") passes
// data through unchanged.
func decodeTransferEncoding(data []byte, cte string) []byte {
	switch strings.ToLower(strings.TrimSpace(cte)) {
	case "base64":
		stripped := bytes.Join(bytes.Fields(data), nil)
		decoded, err := base64.StdEncoding.DecodeString(string(stripped))
		if err != nil {
			return data
		}
		return decoded
	case "quoted-printable":
		decoded, err := io.ReadAll(quotedprintable.NewReader(bytes.NewReader(data)))
		if err != nil {
			return data
		}
		return decoded
	default:
		return data
	}
}

var (
	htmlTagRE    = regexp.MustCompile(`(?is)<(script|style)[^>]*>.*?</\s*\w+\s*>`)
	htmlBlockRE  = regexp.MustCompile(`(?i)<\s*(br|/p|/div|/tr|/li)\s*/?>`)
	htmlAnyTagRE = regexp.MustCompile(`(?s)<[^>]*>`)
)

// stripHTML reduces an HTML body to plain text: script/style blocks
// are dropped, block-level closing tags become newlines, every
// remaining tag is removed, and entities are unescaped.
func stripHTML(s string) string {
	s = htmlTagRE.ReplaceAllString(s, "")
	s = htmlBlockRE.ReplaceAllString(s, "\n")
	s = htmlAnyTagRE.ReplaceAllString(s, "")
	s = html.UnescapeString(s)

	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, line := range lines {
		out = append(out, strings.TrimSpace(line))
	}
	return strings.Join(out, "\n")
}
