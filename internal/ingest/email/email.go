// Package email reads a directory of .eml files and produces MESSAGE
// events, one per file. It uses the standard library's net/mail for
// RFC 5322 header parsing.
package email

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/Napageneral/unify/internal/event"
	"github.com/Napageneral/unify/internal/hlc"
)

const maxBodyBytes = 2 * 1024 * 1024

// ReadDir reads every *.eml file directly inside dir (no recursion)
// and returns one MESSAGE event per file, sorted by the message's Date
// header. Files that fail to parse are skipped, not fatal.
func ReadDir(dir, personDID string, clock *hlc.Clock) ([]event.Event, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("email: read dir %s: %w", dir, err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(strings.ToLower(e.Name()), ".eml") {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)

	var out []event.Event
	for _, path := range paths {
		ev, ok, err := readEML(path, personDID, clock)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, ev)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].TimeEvent.Before(out[j].TimeEvent) })
	return out, nil
}

func readEML(path, personDID string, clock *hlc.Clock) (event.Event, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return event.Event{}, false, fmt.Errorf("email: open %s: %w", path, err)
	}
	defer f.Close()

	msg, err := mailReadMessage(f)
	if err != nil {
		return event.Event{}, false, nil
	}

	h := msg.Header
	subject := decodeHeader(h.Get("Subject"))

	when := time.Now()
	if t, err := parseDate(h.Get("Date")); err == nil {
		when = t
	}

	from := firstAddress(h.Get("From"))
	participants := addressList(h.Get("From"), h.Get("To"), h.Get("Cc"))

	text := pickBody(msg)
	if subject != "" {
		if text != "" {
			text = subject + "\n\n" + text
		} else {
			text = subject
		}
	}

	messageID := strings.TrimSpace(h.Get("Message-ID"))
	threadRoot := event.EmailThreadRoot(h.Get("References"), h.Get("In-Reply-To"), messageID)
	conversationID := event.EmailConversationID(threadRoot)

	eventID := stripAngles(messageID)
	if eventID == "" {
		eventID = "email:" + filepath.Base(path)
	}

	return event.Event{
		EventID:      eventID,
		Kind:         event.KindMessage,
		PersonDID:    personDID,
		Source:       event.Source{Service: "email", ID: eventID, Sender: from},
		TimeEvent:    when,
		TimeObserved: time.Now(),
		HLC:          clock.Now(),
		Security:     event.Security{E2E: false, BridgeMode: event.BridgeNone},
		Provenance:   []string{"email.eml " + filepath.Base(path)},
		Body:         &event.Body{Text: text, Format: "plain"},
		Rel: &event.Rel{
			ConversationID: conversationID,
			Participants:   participants,
			InReplyTo:      stripAngles(strings.TrimSpace(h.Get("In-Reply-To"))),
			MessageID:      stripAngles(messageID),
		},
	}, true, nil
}

func decodeHeader(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if decoded, err := (&mime.WordDecoder{}).DecodeHeader(s); err == nil {
		return decoded
	}
	return s
}

func stripAngles(s string) string {
	s = strings.TrimPrefix(s, "<")
	s = strings.TrimSuffix(s, ">")
	return s
}
