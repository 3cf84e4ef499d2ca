// Package event defines the tagged event envelope every ingestion
// collaborator produces and every downstream component (store, merge
// engine, views) consumes.
package event

import "time"

// Kind discriminates the event variants.
type Kind string

const (
	KindMessage     Kind = "MESSAGE"
	KindEdit        Kind = "EDIT"
	KindDelete      Kind = "DELETE"
	KindReaction    Kind = "REACTION"
	KindAttachment  Kind = "ATTACHMENT"
	KindReadReceipt Kind = "READ_RECEIPT"
	KindCall        Kind = "CALL"
	KindMembership  Kind = "MEMBERSHIP"
)

// BridgeMode describes how end-to-end the delivery path for an event
// was.
type BridgeMode string

const (
	BridgeOnDevice BridgeMode = "ON_DEVICE"
	BridgeRelay    BridgeMode = "RELAY"
	BridgeDirect   BridgeMode = "DIRECT"
	BridgeNone     BridgeMode = "NONE"
)

// Source describes where an event originated.
type Source struct {
	Service     string `json:"service"`
	ID          string `json:"id"`
	Sender      string `json:"sender"`
	Route       string `json:"route,omitempty"`
	ChatGUID    string `json:"chat_guid,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
}

// Security carries the end-to-end and bridge-mode metadata for an
// event's delivery path.
type Security struct {
	E2E        bool       `json:"e2e"`
	BridgeMode BridgeMode `json:"bridge_mode"`
}

// Tombstone marks an event (almost always a MESSAGE folded by a DELETE)
// as removed at the source.
type Tombstone struct {
	Reason string `json:"reason"`
}

// Body is a MESSAGE event's text payload.
type Body struct {
	Text   string `json:"text"`
	Format string `json:"format,omitempty"`
}

// Attachment describes a file attached to a MESSAGE, or a standalone
// ATTACHMENT event.
type Attachment struct {
	Name string `json:"name"`
	MIME string `json:"mime,omitempty"`
	URI  string `json:"uri,omitempty"`
}

// Rel carries a MESSAGE's relationship to its conversation and any
// message it replies to.
type Rel struct {
	ConversationID string   `json:"conversation_id,omitempty"`
	Participants   []string `json:"participants"`
	InReplyTo      string   `json:"in_reply_to,omitempty"`
	MessageID      string   `json:"message_id,omitempty"`
}

// CallDirection is the direction of a CALL event.
type CallDirection string

const (
	CallIn      CallDirection = "in"
	CallOut     CallDirection = "out"
	CallMissed  CallDirection = "missed"
)

// MembershipAction is the kind of roster change a MEMBERSHIP event
// records.
type MembershipAction string

const (
	MembershipAdded   MembershipAction = "added"
	MembershipRemoved MembershipAction = "removed"
	MembershipUnknown MembershipAction = "unknown"
)

// Event is the tagged union of every variant. Only the fields relevant
// to Kind are populated; this mirrors the specification's explicit
// preference for a single discriminated struct over a deep class
// hierarchy, since dispatch throughout the merge engine is one switch
// on Kind.
type Event struct {
	EventID      string     `json:"event_id"`
	Kind         Kind       `json:"kind"`
	PersonDID    string     `json:"person_did"`
	Source       Source     `json:"source"`
	TimeEvent    time.Time  `json:"time_event"`
	TimeObserved time.Time  `json:"time_observed"`
	HLC          string     `json:"hlc"`
	Security     Security   `json:"security"`
	Provenance   []string   `json:"provenance"`
	Tombstone    *Tombstone `json:"tombstone,omitempty"`

	// MESSAGE
	Body        *Body        `json:"body,omitempty"`
	Rel         *Rel         `json:"rel,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`

	// EDIT
	TargetEventID string         `json:"target_event_id,omitempty"`
	Patch         map[string]any `json:"patch,omitempty"`

	// REACTION
	Reaction string `json:"reaction,omitempty"`

	// CALL
	Direction  CallDirection `json:"direction,omitempty"`
	DurationMS *int64        `json:"duration_ms,omitempty"`

	// READ_RECEIPT
	ReadAt time.Time `json:"read_at,omitempty"`

	// MEMBERSHIP
	Action MembershipAction `json:"action,omitempty"`
	Handle string           `json:"handle,omitempty"`
}
