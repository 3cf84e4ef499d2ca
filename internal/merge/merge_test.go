package merge

import (
	"testing"
	"time"

	"github.com/Napageneral/unify/internal/event"
)

func baseEvent(id string, kind event.Kind, h string, at time.Time) event.Event {
	return event.Event{
		EventID:      id,
		Kind:         kind,
		PersonDID:    "did:person:1",
		Source:       event.Source{Service: "imessage", Sender: "+14109256693"},
		TimeEvent:    at,
		TimeObserved: at,
		HLC:          h,
		Provenance:   []string{},
	}
}

func TestFoldEditAppliesPatch(t *testing.T) {
	at := time.Now()
	m := baseEvent("m2", event.KindMessage, "1000:0:local", at)
	m.Body = &event.Body{Text: "hello"}

	e := baseEvent("e1", event.KindEdit, "1000:1:local", at.Add(time.Second))
	e.TargetEventID = "m2"
	e.Patch = map[string]any{"text": "hello edited"}

	items := Fold([]event.Event{m, e}, DefaultOptions())
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	if items[0].Text != "hello edited" {
		t.Fatalf("expected edited text, got %q", items[0].Text)
	}
}

func TestFoldDeleteTombstones(t *testing.T) {
	at := time.Now()
	m := baseEvent("m1", event.KindMessage, "1000:0:local", at)
	m.Body = &event.Body{Text: "hi"}

	d := baseEvent("d1", event.KindDelete, "1000:1:local", at.Add(time.Second))
	d.TargetEventID = "m1"
	d.Tombstone = &event.Tombstone{Reason: "deleted"}

	items := Fold([]event.Event{m, d}, DefaultOptions())
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	if items[0].Tombstone == nil || items[0].Tombstone.Reason != "deleted" {
		t.Fatalf("expected tombstone reason 'deleted', got %+v", items[0].Tombstone)
	}
}

func TestFoldReactionsNoDuplicateItems(t *testing.T) {
	at := time.Now()
	m := baseEvent("m1", event.KindMessage, "1000:0:local", at)
	m.Body = &event.Body{Text: "lol"}

	r := baseEvent("r1", event.KindReaction, "1000:1:local", at.Add(time.Second))
	r.TargetEventID = "m1"
	r.Reaction = "love"

	items := Fold([]event.Event{m, r}, DefaultOptions())
	if len(items) != 1 {
		t.Fatalf("expected 1 item (no duplicate for the reaction), got %d", len(items))
	}
	if len(items[0].Reactions) != 1 || items[0].Reactions[0] != "love" {
		t.Fatalf("expected reactions=[love], got %v", items[0].Reactions)
	}
}

func TestFoldReplyPreservesInReplyTo(t *testing.T) {
	at := time.Now()
	original := baseEvent("m1", event.KindMessage, "1000:0:local", at)
	original.Body = &event.Body{Text: "original"}

	reply := baseEvent("m2", event.KindMessage, "1000:1:local", at.Add(time.Second))
	reply.Body = &event.Body{Text: "reply"}
	reply.Rel = &event.Rel{InReplyTo: "m1"}

	items := Fold([]event.Event{original, reply}, DefaultOptions())
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[1].Rel == nil || items[1].Rel.InReplyTo != "m1" {
		t.Fatalf("expected reply's rel.in_reply_to to point at m1, got %+v", items[1].Rel)
	}
}

func TestFoldTargetMissingDroppedSilently(t *testing.T) {
	at := time.Now()
	r := baseEvent("r1", event.KindReaction, "1000:0:local", at)
	r.TargetEventID = "does-not-exist"
	r.Reaction = "love"

	items := Fold([]event.Event{r}, DefaultOptions())
	if len(items) != 0 {
		t.Fatalf("expected no items for an orphan reaction, got %d", len(items))
	}
}

func TestFoldStableOrderUnderEqualTimeEvent(t *testing.T) {
	at := time.Now()
	a := baseEvent("a", event.KindMessage, "1000:1:local", at)
	a.Body = &event.Body{Text: "a"}
	b := baseEvent("b", event.KindMessage, "1000:0:local", at)
	b.Body = &event.Body{Text: "b"}

	// Append order is (b, a); HLC reflects that append order.
	items := Fold([]event.Event{b, a}, DefaultOptions())
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0].EventID != "b" || items[1].EventID != "a" {
		t.Fatalf("expected order b,a per HLC tiebreak, got %s,%s", items[0].EventID, items[1].EventID)
	}
}

func TestFoldMalformedHLCFallsBackToZero(t *testing.T) {
	at := time.Now()
	a := baseEvent("a", event.KindMessage, "not-an-hlc", at)
	a.Body = &event.Body{Text: "a"}
	b := baseEvent("b", event.KindMessage, "0:0:local", at)
	b.Body = &event.Body{Text: "b"}

	items := Fold([]event.Event{a, b}, DefaultOptions())
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
}

func TestFoldViaCollapseMergesRoutes(t *testing.T) {
	// Both copies fall inside one 120-second fingerprint bucket.
	at := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	a := baseEvent("a", event.KindMessage, "1000:0:local", at)
	a.Source.Route = "imessage:sms"
	a.Body = &event.Body{Text: "Hello"}

	b := baseEvent("b", event.KindMessage, "1000:1:local", at.Add(30*time.Second))
	b.Source.Route = "imessage:imessage"
	b.Body = &event.Body{Text: "Hello"}

	items := Fold([]event.Event{a, b}, Options{IncludeReactions: true, ViaCollapse: true})
	if len(items) != 1 {
		t.Fatalf("expected via-collapse to merge into 1 item, got %d", len(items))
	}
	via := items[0].Via
	if len(via) != 2 {
		t.Fatalf("expected 2 routes in via list, got %v", via)
	}
}

func TestFoldRunTwiceIsDeterministic(t *testing.T) {
	at := time.Now()
	a := baseEvent("a", event.KindMessage, "1000:0:local", at)
	a.Body = &event.Body{Text: "a"}
	b := baseEvent("b", event.KindMessage, "1000:1:local", at.Add(time.Second))
	b.Body = &event.Body{Text: "b"}
	events := []event.Event{b, a}

	first := Fold(events, DefaultOptions())
	second := Fold(events, DefaultOptions())
	if len(first) != len(second) {
		t.Fatalf("expected identical lengths, got %d and %d", len(first), len(second))
	}
	for i := range first {
		if first[i].EventID != second[i].EventID || first[i].Text != second[i].Text {
			t.Fatalf("expected identical output on repeat fold at index %d", i)
		}
	}
}
