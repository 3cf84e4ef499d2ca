// Package imessage reads a macOS chat.db (the iMessage/SMS store) and
// produces the tagged events the rest of the system consumes. It never
// writes to chat.db: every query opens the database read-only.
package imessage

import (
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Napageneral/unify/internal/event"
	"github.com/Napageneral/unify/internal/hlc"
	"github.com/Napageneral/unify/internal/normalize"
	"github.com/Napageneral/unify/internal/sanitize"
)

// ReadChatDB opens the chat.db at path read-only and returns every
// MESSAGE, REACTION, and MEMBERSHIP event it contains, in chat.db's
// own date order. Each event's HLC is stamped by clock at read time.
func ReadChatDB(path, personDID string, clock *hlc.Clock) ([]event.Event, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=ro", path))
	if err != nil {
		return nil, fmt.Errorf("imessage: open %s: %w", path, err)
	}
	defer db.Close()

	handles, err := readHandles(db)
	if err != nil {
		return nil, err
	}
	chatParticipants, chatIdentifiers, err := readChats(db, handles)
	if err != nil {
		return nil, err
	}
	attachmentsByMessage, err := readAttachments(db)
	if err != nil {
		return nil, err
	}

	rows, err := db.Query(`
		SELECT
			m.ROWID, m.guid, m.text, m.attributedBody, m.date, m.is_from_me,
			m.handle_id, m.associated_message_guid, COALESCE(m.associated_message_type, 0),
			COALESCE(m.group_action_type, 0),
			COALESCE(cmj.chat_id, -1)
		FROM message m
		LEFT JOIN chat_message_join cmj ON cmj.message_id = m.ROWID
		ORDER BY m.date
	`)
	if err != nil {
		return nil, fmt.Errorf("imessage: query messages: %w", err)
	}
	defer rows.Close()

	var out []event.Event
	for rows.Next() {
		var (
			rowID           int64
			guid            string
			text            sql.NullString
			attributedBody  []byte
			date            int64
			isFromMe        bool
			handleID        sql.NullInt64
			assocGUID       sql.NullString
			assocType       int64
			groupActionType int64
			chatID          int64
		)
		if err := rows.Scan(&rowID, &guid, &text, &attributedBody, &date, &isFromMe,
			&handleID, &assocGUID, &assocType, &groupActionType, &chatID); err != nil {
			fmt.Fprintf(os.Stderr, "imessage: skipping malformed message row: %v\n", err)
			continue
		}

		sender := "me"
		if !isFromMe && handleID.Valid {
			sender = handles[handleID.Int64]
		}

		when := normalize.AppleTimestampToLocal(&date)
		conversationID := ""
		if chatIdentifier, ok := chatIdentifiers[chatID]; ok {
			conversationID = event.IMessageConversationID(chatIdentifier)
		}
		participants := chatParticipants[chatID]

		switch {
		case groupActionType != 0:
			out = append(out, newMembershipEvent(guid, personDID, sender, when, conversationID, groupActionType, clock))

		case assocGUID.Valid && assocGUID.String != "" && isReactionType(assocType):
			emoji := reactionEmoji(text, assocType)
			if emoji == "" {
				continue
			}
			out = append(out, newReactionEvent(guid, personDID, sender, when, targetGUIDFromAssociation(assocGUID.String), emoji, clock))

		default:
			body := ""
			if text.Valid {
				body = text.String
			} else if len(attributedBody) > 0 {
				body = sanitize.DecodeAttributedBody(attributedBody)
			}
			ev := newMessageEvent(guid, personDID, sender, when, conversationID, participants, body, attachmentsByMessage[rowID], clock)
			if assocType == 1000 && assocGUID.Valid && assocGUID.String != "" {
				ev.Rel.InReplyTo = targetGUIDFromAssociation(assocGUID.String)
			}
			out = append(out, ev)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("imessage: iterate message rows: %w", err)
	}
	return out, nil
}

func readHandles(db *sql.DB) (map[int64]string, error) {
	rows, err := db.Query("SELECT ROWID, id FROM handle")
	if err != nil {
		return nil, fmt.Errorf("imessage: query handles: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]string)
	for rows.Next() {
		var rowID int64
		var id string
		if err := rows.Scan(&rowID, &id); err != nil {
			return nil, fmt.Errorf("imessage: scan handle row: %w", err)
		}
		out[rowID] = id
	}
	return out, rows.Err()
}

func readChats(db *sql.DB, handles map[int64]string) (participants map[int64][]string, identifiers map[int64]string, err error) {
	identifiers = make(map[int64]string)
	rows, err := db.Query("SELECT ROWID, chat_identifier FROM chat")
	if err != nil {
		return nil, nil, fmt.Errorf("imessage: query chats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var rowID int64
		var chatIdentifier string
		if err := rows.Scan(&rowID, &chatIdentifier); err != nil {
			return nil, nil, fmt.Errorf("imessage: scan chat row: %w", err)
		}
		identifiers[rowID] = chatIdentifier
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	participants = make(map[int64][]string)
	joinRows, err := db.Query("SELECT chat_id, handle_id FROM chat_handle_join")
	if err != nil {
		return nil, nil, fmt.Errorf("imessage: query chat_handle_join: %w", err)
	}
	defer joinRows.Close()

	for joinRows.Next() {
		var chatID, handleID int64
		if err := joinRows.Scan(&chatID, &handleID); err != nil {
			return nil, nil, fmt.Errorf("imessage: scan chat_handle_join row: %w", err)
		}
		if h, ok := handles[handleID]; ok {
			participants[chatID] = append(participants[chatID], h)
		}
	}
	return participants, identifiers, joinRows.Err()
}

func readAttachments(db *sql.DB) (map[int64][]event.Attachment, error) {
	rows, err := db.Query(`
		SELECT maj.message_id, COALESCE(a.transfer_name, a.filename, ''), COALESCE(a.mime_type, ''), COALESCE(a.filename, '')
		FROM message_attachment_join maj
		JOIN attachment a ON a.ROWID = maj.attachment_id
	`)
	if err != nil {
		return nil, fmt.Errorf("imessage: query attachments: %w", err)
	}
	defer rows.Close()

	out := make(map[int64][]event.Attachment)
	for rows.Next() {
		var messageID int64
		var name, mime, uri string
		if err := rows.Scan(&messageID, &name, &mime, &uri); err != nil {
			return nil, fmt.Errorf("imessage: scan attachment row: %w", err)
		}
		out[messageID] = append(out[messageID], event.Attachment{Name: name, MIME: mime, URI: uri})
	}
	return out, rows.Err()
}

func newMessageEvent(guid, personDID, sender string, when time.Time, conversationID string, participants []string, text string, attachments []event.Attachment, clock *hlc.Clock) event.Event {
	return event.Event{
		EventID:      guid,
		Kind:         event.KindMessage,
		PersonDID:    personDID,
		Source:       event.Source{Service: "imessage", ID: guid, Sender: sender},
		TimeEvent:    when,
		TimeObserved: time.Now(),
		HLC:          clock.Now(),
		Security:     event.Security{E2E: false, BridgeMode: event.BridgeOnDevice},
		Provenance:   []string{"imessage.message"},
		Body:         &event.Body{Text: text, Format: "plain"},
		Rel:          &event.Rel{ConversationID: conversationID, Participants: participants},
		Attachments:  attachments,
	}
}

func newReactionEvent(guid, personDID, sender string, when time.Time, targetEventID, emoji string, clock *hlc.Clock) event.Event {
	return event.Event{
		EventID:       guid,
		Kind:          event.KindReaction,
		PersonDID:     personDID,
		Source:        event.Source{Service: "imessage", ID: guid, Sender: sender},
		TimeEvent:     when,
		TimeObserved:  time.Now(),
		HLC:           clock.Now(),
		Security:      event.Security{E2E: false, BridgeMode: event.BridgeOnDevice},
		Provenance:    []string{"imessage.reaction"},
		TargetEventID: targetEventID,
		Reaction:      emoji,
	}
}

func newMembershipEvent(guid, personDID, sender string, when time.Time, conversationID string, groupActionType int64, clock *hlc.Clock) event.Event {
	return event.Event{
		EventID:      guid,
		Kind:         event.KindMembership,
		PersonDID:    personDID,
		Source:       event.Source{Service: "imessage", ID: guid, Sender: sender},
		TimeEvent:    when,
		TimeObserved: time.Now(),
		HLC:          clock.Now(),
		Security:     event.Security{E2E: false, BridgeMode: event.BridgeOnDevice},
		Provenance:   []string{"imessage.membership"},
		Rel:          &event.Rel{ConversationID: conversationID},
		Action:       groupActionLabel(groupActionType),
		Handle:       sender,
	}
}

func isReactionType(assocType int64) bool {
	return assocType >= 2000 && assocType <= 2006
}

// reactionEmoji maps the legacy associated_message_type range to an
// emoji when the message carries no literal reaction text. Only types
// 2000-2005 have a fallback emoji; any other type without text yields
// "" and the row is skipped. Tapback-removal types (3000-3005) are not
// reaction types here (see isReactionType) and are read as ordinary
// MESSAGE rows.
func reactionEmoji(text sql.NullString, assocType int64) string {
	if text.Valid && text.String != "" {
		return text.String
	}
	switch assocType {
	case 2000:
		return "❤️"
	case 2001:
		return "👍"
	case 2002:
		return "👎"
	case 2003:
		return "😂"
	case 2004:
		return "‼️"
	case 2005:
		return "❓"
	default:
		return ""
	}
}

// targetGUIDFromAssociation strips the "p:0/" or "bp:" style prefix
// iMessage puts on associated_message_guid, leaving the bare GUID a
// REACTION's target_event_id refers to.
func targetGUIDFromAssociation(raw string) string {
	if idx := strings.LastIndex(raw, "/"); idx >= 0 {
		return raw[idx+1:]
	}
	if idx := strings.Index(raw, ":"); idx >= 0 {
		return raw[idx+1:]
	}
	return raw
}

func groupActionLabel(groupActionType int64) event.MembershipAction {
	switch groupActionType {
	case 1:
		return event.MembershipAdded
	case 3:
		return event.MembershipRemoved
	default:
		return event.MembershipUnknown
	}
}
