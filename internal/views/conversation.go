// Package views renders the merged event log into user-facing
// transcripts: a plain conversation view (grouped by counterparty or
// by room) and the voice manuscript (a single speaker's authored lines
// plus surrounding context, across every conversation they appear in).
package views

import (
	"sort"
	"time"

	"github.com/Napageneral/unify/internal/event"
	"github.com/Napageneral/unify/internal/merge"
	"github.com/Napageneral/unify/internal/normalize"
	"github.com/Napageneral/unify/internal/sanitize"
	"github.com/Napageneral/unify/internal/store"
)

// ResolveDisplay maps a raw sender handle (and, when present, the
// event's own display name) to a human-readable label. Callers
// typically back it with an identity.Registry lookup; nil falls back
// to the raw sender string.
type ResolveDisplay func(handle, eventDisplayName string) string

// ConversationOptions configures GetConversation.
type ConversationOptions struct {
	Since, Until        *time.Time
	IncludeReactions    bool
	ViaCollapse         bool
	HidePluginPayload   bool
	ResolveDisplay      ResolveDisplay
}

// DefaultConversationOptions mirrors the conservative defaults used
// when no flags are passed: reactions included, via-collapse off,
// plugin-payload attachments suppressed.
func DefaultConversationOptions() ConversationOptions {
	return ConversationOptions{IncludeReactions: true, HidePluginPayload: true}
}

// GetConversation loads a person's events, folds them, and returns the
// resulting items in merge order (merge.SortEventsByMergeKey: HLC
// first, then time_event, then event_id). This is the object-output
// counterpart of RenderMarkdown/ListChats: callers needing JSON output
// consume these items directly.
func GetConversation(s *store.Store, personDID string, opts ConversationOptions) ([]*merge.Item, error) {
	events, err := s.IterEvents(personDID, opts.Since, opts.Until)
	if err != nil {
		return nil, err
	}
	items := merge.Fold(events, merge.Options{IncludeReactions: opts.IncludeReactions, ViaCollapse: opts.ViaCollapse})
	applyViewSanitization(items, opts.HidePluginPayload)
	return items, nil
}

// ChatSummary describes one conversation room for list_chats-style
// output.
type ChatSummary struct {
	ConversationID string
	Count          int
	Participants   []string
}

// ListChats groups a person's items by conversation_id and summarizes
// each room: message count and the resolved participant list.
func ListChats(items []*merge.Item, resolve ResolveDisplay) []ChatSummary {
	byConv := make(map[string][]*merge.Item)
	for _, it := range items {
		byConv[it.ConversationID] = append(byConv[it.ConversationID], it)
	}

	var out []ChatSummary
	for cid, group := range byConv {
		if cid == "" {
			continue
		}
		participants := participantSet(group)
		names := make([]string, 0, len(participants))
		for _, p := range participants {
			if resolve != nil {
				names = append(names, resolve(p, ""))
			} else {
				names = append(names, p)
			}
		}
		sort.Strings(names)
		out = append(out, ChatSummary{ConversationID: cid, Count: len(group), Participants: names})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ConversationID < out[j].ConversationID })
	return out
}

// RenderMarkdownOptions configures RenderMarkdown.
type RenderMarkdownOptions struct {
	ShowHandles       bool
	HidePluginPayload bool
	ViaCollapse       bool
	ResolveDisplay    ResolveDisplay
}

// RenderMarkdown renders a single conversation's items as a flat
// Markdown transcript: one line per item, reactions appended inline.
// Unlike the voice manuscript, every item in the conversation is kept;
// there is no authored/context filtering.
func RenderMarkdown(items []*merge.Item, opts RenderMarkdownOptions) string {
	sorted := make([]*merge.Item, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Timestamp.Before(sorted[j].Timestamp) })

	var lines []string
	for _, it := range sorted {
		lines = append(lines, renderLine(it, opts.ShowHandles, opts.HidePluginPayload, opts.ResolveDisplay))
	}
	return joinLines(lines)
}

func renderLine(it *merge.Item, showHandles, hidePluginPayload bool, resolve ResolveDisplay) string {
	who := it.Who
	if resolve != nil {
		who = resolve(it.Who, "")
	}
	if showHandles && it.Who != "" {
		norm := normalize.NormalizeHandleForMatching(it.Who)
		who = who + " (" + norm + ")"
	}

	text := it.Text
	attachments := it.Attachments
	if hidePluginPayload && sanitize.HasURL(text) {
		attachments = filterPluginPayload(attachments, text)
	}

	line := it.Timestamp.Format("2006-01-02 15:04") + " — " + who + ": " + text
	for _, a := range attachments {
		line += " [attachment: " + a.Name + "]"
	}
	for _, r := range it.Reactions {
		line += " (reacted: " + r + ")"
	}
	if it.Tombstone != nil {
		line += " [deleted]"
	}
	if len(it.Via) > 0 {
		line += " (via " + joinComma(it.Via) + ")"
	}
	return line
}

func applyViewSanitization(items []*merge.Item, hidePluginPayload bool) {
	for _, it := range items {
		it.Text = sanitize.CleanURLs(it.Text)
		if hidePluginPayload && sanitize.HasURL(it.Text) {
			it.Attachments = filterPluginPayload(it.Attachments, it.Text)
		}
	}
}

func filterPluginPayload(attachments []event.Attachment, text string) []event.Attachment {
	var kept []event.Attachment
	for _, a := range attachments {
		if sanitize.ShouldSuppressAttachment(text, a.Name) {
			continue
		}
		kept = append(kept, a)
	}
	return kept
}

func participantSet(items []*merge.Item) []string {
	seen := make(map[string]struct{})
	for _, it := range items {
		if it.Rel == nil {
			continue
		}
		for _, p := range it.Rel.Participants {
			seen[p] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	return out
}

func joinLines(lines []string) string {
	out := ""
	for i, l := range lines {
		if i > 0 {
			out += "\n"
		}
		out += l
	}
	return out
}

func joinComma(items []string) string {
	sorted := make([]string, len(items))
	copy(sorted, items)
	sort.Strings(sorted)
	out := ""
	for i, s := range sorted {
		if i > 0 {
			out += ", "
		}
		out += s
	}
	return out
}
