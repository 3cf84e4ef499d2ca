// Package store persists the event log in a single-writer SQLite
// database: one wide events table, materialized columns for hot
// filters, and the full event serialized as JSON for everything else.
package store

import (
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Napageneral/unify/internal/event"
)

//go:embed schema.sql
var schemaSQL string

// Store is the append-only event log.
type Store struct {
	db *sql.DB
}

// Open creates the parent directory (mode 0700) if needed, opens the
// SQLite file, applies pragmas for a single-writer workload, and
// ensures the schema exists.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("store: create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}

	// SQLite behaves best with a single connection per process; this
	// also matches the single-writer model the event store assumes.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 30000",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: %s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Append upserts an event by event_id (INSERT OR REPLACE semantics),
// making re-ingestion of the same source row idempotent.
func (s *Store) Append(e event.Event) error {
	conversationID := ""
	if e.Rel != nil {
		conversationID = e.Rel.ConversationID
	}

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("store: marshal event %s: %w", e.EventID, err)
	}

	_, err = s.db.Exec(`
		INSERT OR REPLACE INTO events(
			event_id, kind, person_did, service, source_id, conversation_id,
			time_event, time_observed, hlc, e2e, bridge_mode, event_json
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)
	`,
		e.EventID,
		string(e.Kind),
		e.PersonDID,
		e.Source.Service,
		e.Source.ID,
		conversationID,
		e.TimeEvent.Format(time.RFC3339Nano),
		e.TimeObserved.Format(time.RFC3339Nano),
		e.HLC,
		boolToInt(e.Security.E2E),
		string(e.Security.BridgeMode),
		string(data),
	)
	if err != nil {
		return fmt.Errorf("store: append %s: %w", e.EventID, err)
	}
	return nil
}

// Contains reports whether an event with the given id has been
// appended.
func (s *Store) Contains(eventID string) (bool, error) {
	var one int
	err := s.db.QueryRow("SELECT 1 FROM events WHERE event_id = ?", eventID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("store: contains %s: %w", eventID, err)
	}
	return true, nil
}

// IterEvents returns every event for a person within the optional
// [since, until] window, ordered by time_event ascending. The store
// applies no semantic ordering beyond that; the merge engine imposes
// the HLC-based total order.
func (s *Store) IterEvents(personDID string, since, until *time.Time) ([]event.Event, error) {
	query := "SELECT event_json FROM events WHERE person_did = ?"
	args := []any{personDID}
	if since != nil {
		query += " AND time_event >= ?"
		args = append(args, since.Format(time.RFC3339Nano))
	}
	if until != nil {
		query += " AND time_event <= ?"
		args = append(args, until.Format(time.RFC3339Nano))
	}
	query += " ORDER BY time_event"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: iter_events person=%s: %w", personDID, err)
	}
	defer rows.Close()

	var out []event.Event
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("store: scan event row: %w", err)
		}
		var e event.Event
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, fmt.Errorf("store: unmarshal event row: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate rows: %w", err)
	}
	return out, nil
}

// IterByConversation returns every event for a conversation id,
// ordered by time_event ascending, regardless of person_did. Used by
// the conversation view, which renders a room rather than a single
// counterparty's events.
func (s *Store) IterByConversation(conversationID string) ([]event.Event, error) {
	rows, err := s.db.Query(
		"SELECT event_json FROM events WHERE conversation_id = ? ORDER BY time_event",
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("store: iter_by_conversation %s: %w", conversationID, err)
	}
	defer rows.Close()

	var out []event.Event
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("store: scan event row: %w", err)
		}
		var e event.Event
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, fmt.Errorf("store: unmarshal event row: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate rows: %w", err)
	}
	return out, nil
}

// AllByKind returns every event of the given kind across all persons,
// ordered by time_event ascending. Used by evidence-gathering queries
// (person resolution) that need to scan senders/participants rather
// than filter by a single person_did or conversation_id.
func (s *Store) AllByKind(kind event.Kind) ([]event.Event, error) {
	rows, err := s.db.Query(
		"SELECT event_json FROM events WHERE kind = ? ORDER BY time_event",
		string(kind),
	)
	if err != nil {
		return nil, fmt.Errorf("store: all_by_kind %s: %w", kind, err)
	}
	defer rows.Close()

	var out []event.Event
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("store: scan event row: %w", err)
		}
		var e event.Event
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, fmt.Errorf("store: unmarshal event row: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate rows: %w", err)
	}
	return out, nil
}

// DistinctPersons returns every person_did present in the event log.
func (s *Store) DistinctPersons() ([]string, error) {
	rows, err := s.db.Query("SELECT DISTINCT person_did FROM events")
	if err != nil {
		return nil, fmt.Errorf("store: distinct_persons: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var did string
		if err := rows.Scan(&did); err != nil {
			return nil, fmt.Errorf("store: scan person_did: %w", err)
		}
		out = append(out, did)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate rows: %w", err)
	}
	return out, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
