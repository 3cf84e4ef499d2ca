package imessage

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/Napageneral/unify/internal/event"
	"github.com/Napageneral/unify/internal/hlc"
)

func newTestChatDB(t *testing.T) (*sql.DB, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chat.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	schema := []string{
		`CREATE TABLE handle (ROWID INTEGER PRIMARY KEY, id TEXT)`,
		`CREATE TABLE chat (ROWID INTEGER PRIMARY KEY, chat_identifier TEXT)`,
		`CREATE TABLE chat_handle_join (chat_id INTEGER, handle_id INTEGER)`,
		`CREATE TABLE chat_message_join (chat_id INTEGER, message_id INTEGER)`,
		`CREATE TABLE attachment (ROWID INTEGER PRIMARY KEY, transfer_name TEXT, filename TEXT, mime_type TEXT)`,
		`CREATE TABLE message_attachment_join (message_id INTEGER, attachment_id INTEGER)`,
		`CREATE TABLE message (
			ROWID INTEGER PRIMARY KEY,
			guid TEXT,
			text TEXT,
			attributedBody BLOB,
			date INTEGER,
			is_from_me INTEGER,
			handle_id INTEGER,
			associated_message_guid TEXT,
			associated_message_type INTEGER,
			group_action_type INTEGER
		)`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("exec %q: %v", stmt, err)
		}
	}
	return db, path
}

func TestReadChatDBMessagesAndReactions(t *testing.T) {
	db, path := newTestChatDB(t)

	mustExec(t, db, `INSERT INTO handle (ROWID, id) VALUES (1, '+14109256693')`)
	mustExec(t, db, `INSERT INTO chat (ROWID, chat_identifier) VALUES (1, 'chat-guid-1')`)
	mustExec(t, db, `INSERT INTO chat_handle_join (chat_id, handle_id) VALUES (1, 1)`)

	mustExec(t, db, `INSERT INTO message (ROWID, guid, text, date, is_from_me, handle_id) VALUES (1, 'm1', 'hello there', 100000000000000000, 0, 1)`)
	mustExec(t, db, `INSERT INTO chat_message_join (chat_id, message_id) VALUES (1, 1)`)

	mustExec(t, db, `INSERT INTO message (ROWID, guid, date, is_from_me, handle_id, associated_message_guid, associated_message_type) VALUES (2, 'r1', 100000000001000000, 0, 1, 'p:0/m1', 2000)`)
	mustExec(t, db, `INSERT INTO chat_message_join (chat_id, message_id) VALUES (1, 2)`)

	clock := hlc.New("test-node")
	events, err := ReadChatDB(path, "did:person:1", clock)
	if err != nil {
		t.Fatalf("read chat.db: %v", err)
	}

	var messages, reactions int
	for _, ev := range events {
		switch ev.Kind {
		case event.KindMessage:
			messages++
			if ev.Body.Text != "hello there" {
				t.Fatalf("expected message text 'hello there', got %q", ev.Body.Text)
			}
			if ev.Rel.ConversationID != "imessage:chat:chat-guid-1" {
				t.Fatalf("expected conversation id imessage:chat:chat-guid-1, got %q", ev.Rel.ConversationID)
			}
		case event.KindReaction:
			reactions++
			if ev.TargetEventID != "m1" {
				t.Fatalf("expected reaction target m1, got %q", ev.TargetEventID)
			}
			if ev.Reaction != "❤️" {
				t.Fatalf("expected heart reaction, got %q", ev.Reaction)
			}
		}
	}
	if messages != 1 || reactions != 1 {
		t.Fatalf("expected 1 message and 1 reaction, got %d and %d", messages, reactions)
	}
}

func TestReadChatDBGroupAction(t *testing.T) {
	db, path := newTestChatDB(t)
	mustExec(t, db, `INSERT INTO handle (ROWID, id) VALUES (1, '+14109256693')`)
	mustExec(t, db, `INSERT INTO chat (ROWID, chat_identifier) VALUES (1, 'chat-guid-1')`)
	mustExec(t, db, `INSERT INTO message (ROWID, guid, date, is_from_me, handle_id, group_action_type) VALUES (1, 'g1', 100000000000000000, 0, 1, 1)`)
	mustExec(t, db, `INSERT INTO chat_message_join (chat_id, message_id) VALUES (1, 1)`)

	clock := hlc.New("test-node")
	events, err := ReadChatDB(path, "did:person:1", clock)
	if err != nil {
		t.Fatalf("read chat.db: %v", err)
	}
	if len(events) != 1 || events[0].Kind != event.KindMembership {
		t.Fatalf("expected 1 membership event, got %+v", events)
	}
	if events[0].Action != event.MembershipAdded {
		t.Fatalf("expected added action, got %v", events[0].Action)
	}
}

func mustExec(t *testing.T, db *sql.DB, query string) {
	t.Helper()
	if _, err := db.Exec(query); err != nil {
		t.Fatalf("exec %q: %v", query, err)
	}
}
