package identity

import (
	"fmt"
	"sort"

	"github.com/Napageneral/unify/internal/event"
	"github.com/Napageneral/unify/internal/normalize"
	"github.com/Napageneral/unify/internal/store"
)

// EventSource is the subset of *store.Store that person resolution
// needs; a narrow interface keeps the package testable without a real
// SQLite file.
type EventSource interface {
	AllByKind(kind event.Kind) ([]event.Event, error)
}

var _ EventSource = (*store.Store)(nil)

// AmbiguousPersonError reports that resolution found zero or more than
// one person_did with positive evidence. It is not fatal: callers
// surface it to the operator, who narrows the seed or picks a winner
// from Evidence directly.
type AmbiguousPersonError struct {
	Seed     string
	Evidence map[string]int
}

func (e *AmbiguousPersonError) Error() string {
	if len(e.Evidence) == 0 {
		return fmt.Sprintf("identity: no person found for handle %q", e.Seed)
	}
	return fmt.Sprintf("identity: handle %q matches %d persons, need exactly one", e.Seed, len(e.Evidence))
}

// ResolvePerson expands seed into its full handle set, then counts
// MESSAGE events whose sender or participant list matches any handle
// variant. Exactly one person_did with positive evidence resolves;
// zero or more than one returns an *AmbiguousPersonError carrying the
// full evidence map so the caller can disambiguate.
func ResolvePerson(src EventSource, reg *Registry, seed string, sources ContactSources) (personDID string, evidence map[string]int, err error) {
	_, handles, _, err := ExpandHandles(reg, seed, sources)
	if err != nil {
		return "", nil, err
	}

	canonicalSet := make(map[string]struct{}, len(handles))
	for _, h := range handles {
		canonicalSet[normalize.NormalizeHandleForMatching(h)] = struct{}{}
	}
	evidence = make(map[string]int)

	messages, err := src.AllByKind(event.KindMessage)
	if err != nil {
		return "", nil, fmt.Errorf("identity: resolve person: %w", err)
	}

	for _, ev := range messages {
		if ev.PersonDID == "" {
			continue
		}
		if _, ok := canonicalSet[normalize.NormalizeHandleForMatching(ev.Source.Sender)]; ok {
			evidence[ev.PersonDID]++
			continue
		}
		if ev.Rel != nil {
			for _, p := range ev.Rel.Participants {
				if _, ok := canonicalSet[normalize.NormalizeHandleForMatching(p)]; ok {
					evidence[ev.PersonDID]++
					break
				}
			}
		}
	}

	var winners []string
	for did, c := range evidence {
		if c > 0 {
			winners = append(winners, did)
		}
	}
	sort.Strings(winners)

	if len(winners) == 1 {
		return winners[0], evidence, nil
	}
	return "", evidence, &AmbiguousPersonError{Seed: seed, Evidence: evidence}
}
