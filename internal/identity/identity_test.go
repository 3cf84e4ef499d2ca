package identity

import (
	"path/filepath"
	"testing"

	"github.com/Napageneral/unify/internal/event"
)

func TestRegistryUpsertUnionMerges(t *testing.T) {
	reg, _ := OpenRegistry(filepath.Join(t.TempDir(), "people.json"))

	reg.Upsert("p1", "Alice", []string{"+14109256693"})
	p := reg.Upsert("p1", "Alice", []string{"alice@example.com"})

	if len(p.Handles) != 2 {
		t.Fatalf("expected 2 handles after union-merge, got %v", p.Handles)
	}
}

func TestRegistrySaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "people.json")
	reg, _ := OpenRegistry(path)
	reg.Upsert("p1", "Alice", []string{"+14109256693"})
	if err := reg.Save(); err != nil {
		t.Fatalf("save: %v", err)
	}

	reloaded, err := OpenRegistry(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	key, p, ok := reloaded.Lookup("+1 (410) 925-6693")
	if !ok || key != "p1" || p.Label != "Alice" {
		t.Fatalf("expected to find Alice at p1, got key=%q ok=%v p=%+v", key, ok, p)
	}
}

func TestRegistryLookupByLabel(t *testing.T) {
	reg, _ := OpenRegistry(filepath.Join(t.TempDir(), "people.json"))
	reg.Upsert("p1", "Bob", []string{"+14109256693"})

	_, p, ok := reg.Lookup("bob")
	if !ok || p.Label != "Bob" {
		t.Fatalf("expected case-insensitive label match, got ok=%v p=%+v", ok, p)
	}
}

func TestExpandHandlesFallsBackToSeed(t *testing.T) {
	reg, _ := OpenRegistry(filepath.Join(t.TempDir(), "people.json"))

	name, handles, origin, err := ExpandHandles(reg, "+14109256693", ContactSources{})
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if origin != "seed" {
		t.Fatalf("expected origin=seed, got %q", origin)
	}
	if len(handles) != 1 || handles[0] != "tel:+14109256693" {
		t.Fatalf("expected canonical handle, got %v", handles)
	}
	if name != "+14109256693" {
		t.Fatalf("expected label to default to seed, got %q", name)
	}
}

func TestExpandHandlesIsIdempotent(t *testing.T) {
	reg, _ := OpenRegistry(filepath.Join(t.TempDir(), "people.json"))

	first, _, _, _ := ExpandHandles(reg, "+14109256693", ContactSources{})
	second, _, origin, _ := ExpandHandles(reg, "+14109256693", ContactSources{})

	if first != second {
		t.Fatalf("expected repeated expansion to return same label, got %q then %q", first, second)
	}
	if origin != "registry" {
		t.Fatalf("expected second expansion to resolve via registry, got %q", origin)
	}
}

func TestExpandHandlesUsesPlatformLookup(t *testing.T) {
	reg, _ := OpenRegistry(filepath.Join(t.TempDir(), "people.json"))
	platform := func(handle string) (string, bool) {
		if handle == "+14109256693" {
			return "Carol", true
		}
		return "", false
	}

	name, _, origin, err := ExpandHandles(reg, "+14109256693", ContactSources{Platform: platform})
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if origin != "macos" || name != "Carol" {
		t.Fatalf("expected platform resolution to Carol, got name=%q origin=%q", name, origin)
	}
}

type fakeEventSource struct {
	messages []event.Event
}

func (f *fakeEventSource) AllByKind(kind event.Kind) ([]event.Event, error) {
	if kind != event.KindMessage {
		return nil, nil
	}
	return f.messages, nil
}

func TestResolvePersonSingleWinner(t *testing.T) {
	reg, _ := OpenRegistry(filepath.Join(t.TempDir(), "people.json"))
	src := &fakeEventSource{messages: []event.Event{
		{PersonDID: "did:person:1", Kind: event.KindMessage, Source: event.Source{Sender: "+14109256693"}},
		{PersonDID: "did:person:1", Kind: event.KindMessage, Source: event.Source{Sender: "+14109256693"}},
		{PersonDID: "did:person:2", Kind: event.KindMessage, Source: event.Source{Sender: "+19995551234"}},
	}}

	did, evidence, err := ResolvePerson(src, reg, "+14109256693", ContactSources{})
	if err != nil {
		t.Fatalf("expected a single winner, got error: %v", err)
	}
	if did != "did:person:1" {
		t.Fatalf("expected did:person:1, got %q", did)
	}
	if evidence["did:person:1"] != 2 {
		t.Fatalf("expected evidence count 2, got %d", evidence["did:person:1"])
	}
}

func TestResolvePersonMatchesDenormalizedSender(t *testing.T) {
	reg, _ := OpenRegistry(filepath.Join(t.TempDir(), "people.json"))
	src := &fakeEventSource{messages: []event.Event{
		{PersonDID: "did:person:1", Kind: event.KindMessage, Source: event.Source{Sender: "+1 (410) 925-6693"}},
		{PersonDID: "did:person:2", Kind: event.KindMessage, Source: event.Source{Sender: "+19995551234"}},
	}}

	did, evidence, err := ResolvePerson(src, reg, "+14109256693", ContactSources{})
	if err != nil {
		t.Fatalf("expected a single winner for a denormalized sender, got error: %v", err)
	}
	if did != "did:person:1" {
		t.Fatalf("expected did:person:1, got %q", did)
	}
	if evidence["did:person:1"] != 1 {
		t.Fatalf("expected evidence count 1, got %d", evidence["did:person:1"])
	}
}

func TestResolvePersonAmbiguousNoEvidence(t *testing.T) {
	reg, _ := OpenRegistry(filepath.Join(t.TempDir(), "people.json"))
	src := &fakeEventSource{}

	_, _, err := ResolvePerson(src, reg, "+14109256693", ContactSources{})
	if err == nil {
		t.Fatalf("expected an ambiguity error for no evidence")
	}
	var ambErr *AmbiguousPersonError
	if !asAmbiguous(err, &ambErr) {
		t.Fatalf("expected *AmbiguousPersonError, got %T: %v", err, err)
	}
	if len(ambErr.Evidence) != 0 {
		t.Fatalf("expected empty evidence, got %v", ambErr.Evidence)
	}
}

func TestResolvePersonAmbiguousMultipleWinners(t *testing.T) {
	reg, _ := OpenRegistry(filepath.Join(t.TempDir(), "people.json"))
	src := &fakeEventSource{messages: []event.Event{
		{PersonDID: "did:person:1", Kind: event.KindMessage, Rel: &event.Rel{Participants: []string{"+14109256693"}}},
		{PersonDID: "did:person:2", Kind: event.KindMessage, Source: event.Source{Sender: "+14109256693"}},
	}}

	_, evidence, err := ResolvePerson(src, reg, "+14109256693", ContactSources{})
	if err == nil {
		t.Fatalf("expected an ambiguity error for multiple winners")
	}
	if len(evidence) != 2 {
		t.Fatalf("expected 2 candidates, got %v", evidence)
	}
}

func asAmbiguous(err error, target **AmbiguousPersonError) bool {
	if e, ok := err.(*AmbiguousPersonError); ok {
		*target = e
		return true
	}
	return false
}
