// Package calls reads a macOS call.db (CallHistory.storedata-derived
// SQLite export) and produces CALL events. It never writes to call.db:
// every query opens the database read-only, matching the imessage
// package's convention.
package calls

import (
	"database/sql"
	"fmt"
	"os"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Napageneral/unify/internal/event"
	"github.com/Napageneral/unify/internal/hlc"
	"github.com/Napageneral/unify/internal/normalize"
)

// ReadCallDB opens the call.db at path read-only and returns one CALL
// event per row, in call.db's own date order. Each event's HLC is
// stamped by clock at read time. call.db has no conversation grouping:
// calls are 1:1 by construction.
func ReadCallDB(path, personDID string, clock *hlc.Clock) ([]event.Event, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=ro", path))
	if err != nil {
		return nil, fmt.Errorf("calls: open %s: %w", path, err)
	}
	defer db.Close()

	rows, err := db.Query(`
		SELECT ROWID, address, date, COALESCE(duration, 0), COALESCE(flags, 0)
		FROM call
		ORDER BY date
	`)
	if err != nil {
		return nil, fmt.Errorf("calls: query call: %w", err)
	}
	defer rows.Close()

	var out []event.Event
	for rows.Next() {
		var (
			rowID    int64
			address  string
			date     int64
			duration int64
			flags    int64
		)
		if err := rows.Scan(&rowID, &address, &date, &duration, &flags); err != nil {
			fmt.Fprintf(os.Stderr, "calls: skipping malformed call row: %v\n", err)
			continue
		}

		when := normalize.AppleTimestampToLocal(&date)
		out = append(out, newCallEvent(rowID, personDID, address, when, duration, flags, clock))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("calls: iterate call rows: %w", err)
	}
	return out, nil
}

func newCallEvent(rowID int64, personDID, address string, when time.Time, duration, flags int64, clock *hlc.Clock) event.Event {
	eventID := fmt.Sprintf("call:%d", rowID)
	durationMS := duration * 1000
	return event.Event{
		EventID:      eventID,
		Kind:         event.KindCall,
		PersonDID:    personDID,
		Source:       event.Source{Service: "facetime", ID: eventID, Sender: address},
		TimeEvent:    when,
		TimeObserved: time.Now(),
		HLC:          clock.Now(),
		Security:     event.Security{E2E: false, BridgeMode: event.BridgeOnDevice},
		Provenance:   []string{"calls.call"},
		Direction:    callDirection(flags),
		DurationMS:   &durationMS,
	}
}

// callDirection maps call.db's flags column to a direction. 1 is
// outgoing, 2 is incoming, 3 is missed; anything else defaults to
// incoming, matching an unanswered-but-logged edge case.
func callDirection(flags int64) event.CallDirection {
	switch flags {
	case 1:
		return event.CallOut
	case 2:
		return event.CallIn
	case 3:
		return event.CallMissed
	default:
		return event.CallIn
	}
}
