package identity

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/Napageneral/unify/internal/normalize"
)

// ContactSources aggregates the optional external contact sources an
// expansion can draw on: a vCard export, a CSV export, and a
// platform-specific lookup collaborator. Any of the three may be left
// unset (an empty path or a nil lookup).
type ContactSources struct {
	VCardPath string
	CSVPath   string
	Platform  PlatformLookup
}

// ExpandHandles resolves a seed handle (a raw phone number, email
// address, or existing label) to its full handle set and display name,
// trying each resolution step in order and persisting whatever it
// finds into the registry before returning:
//
//  1. an existing registry entry, matched by canonical handle or label
//  2. external vCard/CSV contact sources, aggregated by display name
//  3. an optional platform contacts lookup (e.g. macOS Contacts)
//  4. the seed as its own single-handle entity
//
// Every step persists idempotently: calling ExpandHandles twice with
// the same seed and sources produces the same registry state.
func ExpandHandles(reg *Registry, seed string, sources ContactSources) (displayName string, handles []string, origin string, err error) {
	if _, person, ok := reg.Lookup(seed); ok {
		return person.Label, person.Handles, "registry", nil
	}

	if name, set, ok, err := lookupContactSources(seed, sources); err != nil {
		return "", nil, "", err
	} else if ok {
		p := reg.Upsert(newPersonID(), name, set)
		if err := reg.Save(); err != nil {
			return "", nil, "", err
		}
		return p.Label, p.Handles, "contacts", nil
	}

	if sources.Platform != nil {
		if name, ok := sources.Platform(seed); ok && name != "" {
			p := reg.Upsert(newPersonID(), name, []string{seed})
			if err := reg.Save(); err != nil {
				return "", nil, "", err
			}
			return p.Label, p.Handles, "macos", nil
		}
	}

	p := reg.Upsert(newPersonID(), seed, []string{seed})
	if err := reg.Save(); err != nil {
		return "", nil, "", err
	}
	return p.Label, p.Handles, "seed", nil
}

// newPersonID generates the opaque registry key a brand new person is
// created under, so two contacts that happen to share a display name
// (or a seed that happens to collide with a canonical handle string)
// never get folded into the same record. Once created, a person is
// found again through Registry.Lookup's handle/label match, never by
// re-deriving this id.
func newPersonID() string {
	return uuid.NewString()
}

// lookupContactSources loads the configured vCard/CSV sources (when
// paths are non-empty) and checks whether any aggregated handle set
// contains the seed's canonical form.
func lookupContactSources(seed string, sources ContactSources) (name string, handles []string, ok bool, err error) {
	canonicalSeed := normalize.NormalizeHandleForMatching(seed)
	byHandle := make(map[string]string)

	if sources.VCardPath != "" {
		m, err := LoadVCard(sources.VCardPath)
		if err != nil {
			return "", nil, false, fmt.Errorf("identity: load vcard: %w", err)
		}
		for h, n := range m {
			byHandle[h] = n
		}
	}
	if sources.CSVPath != "" {
		m, err := LoadCSV(sources.CSVPath)
		if err != nil {
			return "", nil, false, fmt.Errorf("identity: load csv: %w", err)
		}
		for h, n := range m {
			byHandle[h] = n
		}
	}
	if len(byHandle) == 0 {
		return "", nil, false, nil
	}

	byName := aggregateByDisplayName(byHandle)
	for n, set := range byName {
		for _, h := range set {
			if h == canonicalSeed {
				return n, set, true, nil
			}
		}
	}
	return "", nil, false, nil
}
