package email

import (
	"io"
	"net/mail"
	"sort"
	"strings"
	"time"
)

func mailReadMessage(r io.Reader) (*mail.Message, error) {
	return mail.ReadMessage(r)
}

func parseDate(s string) (time.Time, error) {
	return mail.ParseDate(s)
}

// firstAddress returns the lowercased address of the first entry in a
// From-style header, falling back to the raw trimmed header on a
// parse failure.
func firstAddress(header string) string {
	addrs, err := mail.ParseAddressList(header)
	if err == nil && len(addrs) > 0 {
		return strings.ToLower(strings.TrimSpace(addrs[0].Address))
	}
	return strings.ToLower(strings.TrimSpace(header))
}

// addressList aggregates every address found across the given headers
// (From/To/Cc, typically) into a deduplicated, sorted participant
// list.
func addressList(headers ...string) []string {
	seen := make(map[string]struct{})
	for _, h := range headers {
		h = strings.TrimSpace(h)
		if h == "" {
			continue
		}
		addrs, err := mail.ParseAddressList(h)
		if err != nil {
			continue
		}
		for _, a := range addrs {
			if a == nil {
				continue
			}
			addr := strings.ToLower(strings.TrimSpace(a.Address))
			if addr != "" {
				seen[addr] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(seen))
	for a := range seen {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}
