package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/Napageneral/unify/internal/event"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "events.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleMessage(id, personDID, text string, at time.Time) event.Event {
	return event.Event{
		EventID:      id,
		Kind:         event.KindMessage,
		PersonDID:    personDID,
		Source:       event.Source{Service: "imessage", ID: id, Sender: "+14109256693"},
		TimeEvent:    at,
		TimeObserved: at,
		HLC:          "1000:0:local",
		Security:     event.Security{BridgeMode: event.BridgeOnDevice},
		Body:         &event.Body{Text: text},
		Rel:          &event.Rel{ConversationID: "imessage:chat:abc", Participants: []string{"+14109256693"}},
	}
}

func TestAppendAndContains(t *testing.T) {
	s := openTestStore(t)
	at := time.Now()

	ok, err := s.Contains("m1")
	if err != nil {
		t.Fatalf("Contains: %v", err)
	}
	if ok {
		t.Fatal("expected Contains to be false before append")
	}

	if err := s.Append(sampleMessage("m1", "did:person:1", "hello", at)); err != nil {
		t.Fatalf("Append: %v", err)
	}

	ok, err = s.Contains("m1")
	if err != nil {
		t.Fatalf("Contains: %v", err)
	}
	if !ok {
		t.Fatal("expected Contains to be true after append")
	}
}

func TestAppendIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	at := time.Now()

	if err := s.Append(sampleMessage("m1", "did:person:1", "hello", at)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := s.Append(sampleMessage("m1", "did:person:1", "hello", at)); err != nil {
		t.Fatalf("Append (second time): %v", err)
	}

	events, err := s.IterEvents("did:person:1", nil, nil)
	if err != nil {
		t.Fatalf("IterEvents: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event after duplicate append, got %d", len(events))
	}
}

func TestIterEventsOrdersByTimeEvent(t *testing.T) {
	s := openTestStore(t)
	base := time.Now()

	if err := s.Append(sampleMessage("m2", "did:person:1", "second", base.Add(time.Minute))); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := s.Append(sampleMessage("m1", "did:person:1", "first", base)); err != nil {
		t.Fatalf("Append: %v", err)
	}

	events, err := s.IterEvents("did:person:1", nil, nil)
	if err != nil {
		t.Fatalf("IterEvents: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].EventID != "m1" || events[1].EventID != "m2" {
		t.Fatalf("expected order m1,m2, got %s,%s", events[0].EventID, events[1].EventID)
	}
}

func TestIterEventsFiltersByWindow(t *testing.T) {
	s := openTestStore(t)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	if err := s.Append(sampleMessage("m1", "did:person:1", "early", base)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := s.Append(sampleMessage("m2", "did:person:1", "late", base.AddDate(0, 1, 0))); err != nil {
		t.Fatalf("Append: %v", err)
	}

	since := base.AddDate(0, 0, 15)
	events, err := s.IterEvents("did:person:1", &since, nil)
	if err != nil {
		t.Fatalf("IterEvents: %v", err)
	}
	if len(events) != 1 || events[0].EventID != "m2" {
		t.Fatalf("expected only m2 after since filter, got %+v", events)
	}
}

func TestIterByConversation(t *testing.T) {
	s := openTestStore(t)
	at := time.Now()

	if err := s.Append(sampleMessage("m1", "did:person:1", "hi", at)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := s.Append(sampleMessage("m2", "did:person:2", "there", at.Add(time.Second))); err != nil {
		t.Fatalf("Append: %v", err)
	}

	events, err := s.IterByConversation("imessage:chat:abc")
	if err != nil {
		t.Fatalf("IterByConversation: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events sharing a conversation, got %d", len(events))
	}
}
