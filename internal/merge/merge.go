// Package merge folds a time-windowed stream of events into an ordered
// sequence of transcript items: MESSAGE events become items, EDIT/
// DELETE/REACTION/READ_RECEIPT/targeted-ATTACHMENT events mutate an
// earlier item looked up by a forward-reference index, and CALL/
// standalone-ATTACHMENT/MEMBERSHIP events become items of their own.
package merge

import (
	"sort"
	"time"

	"github.com/Napageneral/unify/internal/event"
	"github.com/Napageneral/unify/internal/hlc"
	"github.com/Napageneral/unify/internal/normalize"
	"github.com/Napageneral/unify/internal/sanitize"
)

// TrustBadge describes how much confidence a rendered item's
// provenance warrants.
type TrustBadge string

const (
	TrustE2EPreserved    TrustBadge = "E2E_PRESERVED"
	TrustLocallyDecrypted TrustBadge = "LOCALLY_DECRYPTED"
	TrustServerBridged   TrustBadge = "SERVER_BRIDGED"
	TrustPlain           TrustBadge = "PLAIN"
	TrustUnknown         TrustBadge = "UNKNOWN"
)

func badgeFor(e event.Event) TrustBadge {
	switch e.Source.Service {
	case "imessage":
		return TrustLocallyDecrypted
	case "email":
		return TrustPlain
	default:
		return TrustUnknown
	}
}

// Item is one user-visible transcript entry: a message, a call, a
// standalone attachment, or a membership change.
type Item struct {
	EventID        string
	Timestamp      time.Time
	Who            string
	Kind           string // "message", "call", "attachment", "membership"
	Text           string
	Attachments    []event.Attachment
	Rel            *event.Rel
	ConversationID string
	TrustBadge     TrustBadge
	Provenance     []string
	Reactions      []string
	Tombstone      *event.Tombstone
	Via            []string

	// CALL
	Direction  event.CallDirection
	DurationMS *int64

	// READ_RECEIPT
	ReadAt time.Time

	// MEMBERSHIP
	Action event.MembershipAction
	Handle string
}

// Options configures an optional step of the fold.
type Options struct {
	// IncludeReactions controls whether REACTION events attach to
	// their target; disabling it is useful for lightweight summaries.
	IncludeReactions bool
	// ViaCollapse enables step 3: cross-channel dedup by fingerprint.
	ViaCollapse bool
}

// DefaultOptions includes reactions and leaves via-collapse off, the
// conservative default a plain conversation render uses.
func DefaultOptions() Options {
	return Options{IncludeReactions: true}
}

// Fold sorts events by the merge key and folds them into transcript
// items. It never errors on a missing EDIT/DELETE/REACTION/READ_RECEIPT
// target: the target may simply be outside the caller's time window.
func Fold(events []event.Event, opts Options) []*Item {
	sorted := make([]event.Event, len(events))
	copy(sorted, events)
	SortEventsByMergeKey(sorted)

	var items []*Item
	index := make(map[string]*Item)
	fingerprints := make(map[string]*Item)

	for _, ev := range sorted {
		switch ev.Kind {
		case event.KindMessage:
			if opts.ViaCollapse {
				text := ""
				if ev.Body != nil {
					text = ev.Body.Text
				}
				sender := normalize.NormalizeHandleForMatching(ev.Source.Sender)
				key := FingerprintKey(sanitize.CleanURLs(text), ev.TimeEvent, sender)
				route := ev.Source.Route
				if route == "" {
					route = ev.Source.Service
				}
				if retained, dup := fingerprints[key]; dup {
					if route != "" && !containsString(retained.Via, route) {
						retained.Via = append(retained.Via, route)
					}
					for _, p := range ev.Provenance {
						if !containsString(retained.Provenance, p) {
							retained.Provenance = append(retained.Provenance, p)
						}
					}
					index[ev.EventID] = retained
					continue
				}
				item := newMessageItem(ev)
				if route != "" {
					item.Via = []string{route}
				}
				items = append(items, item)
				index[ev.EventID] = item
				fingerprints[key] = item
				continue
			}
			item := newMessageItem(ev)
			items = append(items, item)
			index[ev.EventID] = item

		case event.KindEdit:
			target, ok := index[ev.TargetEventID]
			if !ok {
				continue
			}
			if text, present := ev.Patch["text"]; present {
				if s, ok := text.(string); ok {
					target.Text = s
				}
			}

		case event.KindDelete:
			target, ok := index[ev.TargetEventID]
			if !ok {
				continue
			}
			if ev.Tombstone != nil {
				target.Tombstone = ev.Tombstone
			} else {
				target.Tombstone = &event.Tombstone{Reason: "deleted"}
			}

		case event.KindReaction:
			if !opts.IncludeReactions {
				continue
			}
			target, ok := index[ev.TargetEventID]
			if !ok {
				continue
			}
			if !containsString(target.Reactions, ev.Reaction) {
				target.Reactions = append(target.Reactions, ev.Reaction)
			}

		case event.KindReadReceipt:
			target, ok := index[ev.TargetEventID]
			if !ok {
				continue
			}
			if ev.ReadAt.After(target.ReadAt) {
				target.ReadAt = ev.ReadAt
			}

		case event.KindAttachment:
			if ev.TargetEventID != "" {
				if target, ok := index[ev.TargetEventID]; ok {
					if len(ev.Attachments) > 0 {
						target.Attachments = append(target.Attachments, ev.Attachments...)
					}
					continue
				}
			}
			items = append(items, newAttachmentItem(ev))

		case event.KindCall:
			items = append(items, newCallItem(ev))

		case event.KindMembership:
			items = append(items, newMembershipItem(ev))
		}
	}

	return items
}

func newMessageItem(ev event.Event) *Item {
	text := ""
	if ev.Body != nil {
		text = ev.Body.Text
	}
	convID := ""
	if ev.Rel != nil {
		convID = ev.Rel.ConversationID
	}
	return &Item{
		EventID:        ev.EventID,
		Timestamp:      ev.TimeEvent,
		Who:            ev.Source.Sender,
		Kind:           "message",
		Text:           text,
		Attachments:    ev.Attachments,
		Rel:            ev.Rel,
		ConversationID: convID,
		TrustBadge:     badgeFor(ev),
		Provenance:     ev.Provenance,
		Reactions:      []string{},
	}
}

func newCallItem(ev event.Event) *Item {
	return &Item{
		EventID:     ev.EventID,
		Timestamp:   ev.TimeEvent,
		Who:         ev.Source.Sender,
		Kind:        "call",
		TrustBadge:  badgeFor(ev),
		Provenance:  ev.Provenance,
		Direction:   ev.Direction,
		DurationMS:  ev.DurationMS,
	}
}

// newAttachmentItem builds an item for a standalone ATTACHMENT event
// (one with no resolvable target): ingestion collaborators carry the
// attachment's own name/mime/uri as the event's single-element
// Attachments slice.
func newAttachmentItem(ev event.Event) *Item {
	return &Item{
		EventID:     ev.EventID,
		Timestamp:   ev.TimeEvent,
		Who:         ev.Source.Sender,
		Kind:        "attachment",
		Attachments: ev.Attachments,
		TrustBadge:  badgeFor(ev),
		Provenance:  ev.Provenance,
	}
}

func newMembershipItem(ev event.Event) *Item {
	return &Item{
		EventID:    ev.EventID,
		Timestamp:  ev.TimeEvent,
		Who:        ev.Source.Sender,
		Kind:       "membership",
		TrustBadge: badgeFor(ev),
		Provenance: ev.Provenance,
		Action:     ev.Action,
		Handle:     ev.Handle,
	}
}

// SortEventsByMergeKey sorts events in place by
// (hlc.wall, hlc.counter, time_event, event_id). A malformed HLC falls
// back to (0, 0) rather than dropping the event or erroring, so a
// corrupt clock degrades ordering instead of data. Shared by the fold
// engine and the voice manuscript view, which sorts per-conversation
// buckets of raw MESSAGE events the same way before windowing.
func SortEventsByMergeKey(events []event.Event) {
	type keyed struct {
		wall, counter int64
		timeISO       string
		eventID       string
		idx           int
	}
	keys := make([]keyed, len(events))
	for i, ev := range events {
		wall, counter, _, err := hlc.Parse(ev.HLC)
		if err != nil {
			wall, counter = 0, 0
		}
		keys[i] = keyed{
			wall:    wall,
			counter: counter,
			timeISO: ev.TimeEvent.Format("2006-01-02T15:04:05.000000000Z07:00"),
			eventID: ev.EventID,
			idx:     i,
		}
	}
	sort.SliceStable(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.wall != b.wall {
			return a.wall < b.wall
		}
		if a.counter != b.counter {
			return a.counter < b.counter
		}
		if a.timeISO != b.timeISO {
			return a.timeISO < b.timeISO
		}
		return a.eventID < b.eventID
	})

	out := make([]event.Event, len(events))
	for i, k := range keys {
		out[i] = events[k.idx]
	}
	copy(events, out)
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
