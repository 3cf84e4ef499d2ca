// Package identity resolves raw handles into stable counterparty
// identities: canonicalization, handle-set expansion against a people
// registry and external contact sources, and evidence-based person
// disambiguation against the event log.
package identity

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Napageneral/unify/internal/normalize"
)

// Person is one entry in the people registry: a display label and the
// set of canonical handles known to belong to the same counterparty.
type Person struct {
	Label   string   `json:"label"`
	Handles []string `json:"handles"`
}

// Registry is the whole-file JSON people registry described in the
// specification's external-interfaces section. It is read and
// rewritten in full on every mutation; concurrent writers are not
// supported, matching the single-writer model the rest of the system
// assumes.
type Registry struct {
	path   string
	people map[string]Person
}

// OpenRegistry loads the registry file at path, treating a missing file
// as an empty registry.
func OpenRegistry(path string) (*Registry, error) {
	r := &Registry{path: path, people: make(map[string]Person)}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return r, nil
		}
		return nil, fmt.Errorf("identity: read registry %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &r.people); err != nil {
		return nil, fmt.Errorf("identity: parse registry %s: %w", path, err)
	}
	return r, nil
}

// Save writes the registry back to disk with keys in sorted order, so
// repeated saves of unchanged content produce byte-identical files.
func (r *Registry) Save() error {
	if dir := filepath.Dir(r.path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("identity: create registry directory: %w", err)
		}
	}

	keys := make([]string, 0, len(r.people))
	for k := range r.people {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	buf := []byte("{\n")
	for i, k := range keys {
		p := r.people[k]
		sort.Strings(p.Handles)
		entry, err := json.MarshalIndent(p, "  ", "  ")
		if err != nil {
			return fmt.Errorf("identity: marshal registry entry %s: %w", k, err)
		}
		keyJSON, err := json.Marshal(k)
		if err != nil {
			return fmt.Errorf("identity: marshal registry key %s: %w", k, err)
		}
		buf = append(buf, []byte(fmt.Sprintf("  %s: %s", keyJSON, entry))...)
		if i != len(keys)-1 {
			buf = append(buf, ',')
		}
		buf = append(buf, '\n')
	}
	buf = append(buf, '}', '\n')

	if err := os.WriteFile(r.path, buf, 0600); err != nil {
		return fmt.Errorf("identity: write registry %s: %w", r.path, err)
	}
	return nil
}

// PersonDID builds the opaque counterparty identifier a registry key
// resolves to once persisted.
func PersonDID(registryKey string) string {
	return "did:person:" + registryKey
}

// Lookup finds a person record whose canonical handle set or label
// (case-insensitive) matches the given seed.
func (r *Registry) Lookup(seed string) (key string, person Person, ok bool) {
	canonical := normalize.NormalizeHandleForMatching(seed)
	for k, p := range r.people {
		for _, h := range p.Handles {
			if h == canonical {
				return k, p, true
			}
		}
		if strings.EqualFold(p.Label, seed) {
			return k, p, true
		}
	}
	return "", Person{}, false
}

// Upsert union-merges handles into the person keyed by key, creating
// the entry if it does not exist. Registry writes are always
// union-merges, never replacements.
func (r *Registry) Upsert(key string, label string, handles []string) Person {
	existing, ok := r.people[key]
	if !ok {
		existing = Person{Label: label}
	}
	if existing.Label == "" {
		existing.Label = label
	}

	set := make(map[string]struct{}, len(existing.Handles)+len(handles))
	for _, h := range existing.Handles {
		set[h] = struct{}{}
	}
	for _, h := range handles {
		set[normalize.NormalizeHandleForMatching(h)] = struct{}{}
	}

	merged := make([]string, 0, len(set))
	for h := range set {
		merged = append(merged, h)
	}
	sort.Strings(merged)
	existing.Handles = merged

	r.people[key] = existing
	return existing
}
