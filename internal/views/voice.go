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

// VoiceOptions configures RenderVoiceManuscript.
type VoiceOptions struct {
	Since, Until      *time.Time
	Context           int
	QuotesOnly        bool
	ShowHandles       bool
	ViaCollapse       bool
	HidePluginPayload bool
	ResolveDisplay    ResolveDisplay
}

// DefaultVoiceOptions mirrors the conservative defaults: 2 lines of
// context around each authored message, plugin-payload attachments
// hidden, via-collapse off.
func DefaultVoiceOptions() VoiceOptions {
	return VoiceOptions{Context: 2, HidePluginPayload: true}
}

// RenderVoiceManuscript renders every MESSAGE a speaker authored
// (identified by membership in handles) across every conversation
// they appear in, plus opts.Context lines before/after each authored
// message, as a single Markdown document: one "## Room" section per
// conversation, authored lines bolded, rooms ordered by their first
// kept message.
func RenderVoiceManuscript(s *store.Store, personDID, displayName string, handles []string, opts VoiceOptions) (string, error) {
	events, err := s.IterEvents(personDID, opts.Since, opts.Until)
	if err != nil {
		return "", err
	}

	handleSet := make(map[string]struct{}, len(handles))
	for _, h := range handles {
		handleSet[normalize.NormalizeHandleForMatching(h)] = struct{}{}
	}

	buckets := make(map[string][]event.Event)
	for _, ev := range events {
		if ev.Kind != event.KindMessage {
			continue
		}
		cid := ""
		if ev.Rel != nil {
			cid = ev.Rel.ConversationID
		}
		buckets[cid] = append(buckets[cid], ev)
	}

	type roomBlock struct {
		firstTime time.Time
		lines     []string
	}
	var blocks []roomBlock
	var overallStart, overallEnd time.Time

	for cid, bucketEvents := range buckets {
		sorted := make([]event.Event, len(bucketEvents))
		copy(sorted, bucketEvents)
		merge.SortEventsByMergeKey(sorted)

		var authoredIdx []int
		for i, ev := range sorted {
			if _, ok := handleSet[normalize.NormalizeHandleForMatching(ev.Source.Sender)]; ok {
				authoredIdx = append(authoredIdx, i)
			}
		}
		if len(authoredIdx) == 0 {
			continue
		}

		keepIdx := selectKeepIndices(authoredIdx, len(sorted), opts.Context, opts.QuotesOnly)
		authoredSet := make(map[int]struct{}, len(authoredIdx))
		for _, i := range authoredIdx {
			authoredSet[i] = struct{}{}
		}

		kept := make([]event.Event, 0, len(keepIdx))
		keptIdx := make([]int, 0, len(keepIdx))
		for _, i := range sortedInts(keepIdx) {
			kept = append(kept, sorted[i])
			keptIdx = append(keptIdx, i)
		}

		var keptVia [][]string
		if opts.ViaCollapse {
			kept, keptIdx, keptVia = viaCollapseBucket(kept, keptIdx)
		}

		participants := make(map[string]struct{})
		for _, ev := range sorted {
			if ev.Rel != nil {
				for _, p := range ev.Rel.Participants {
					participants[p] = struct{}{}
				}
			}
		}
		participantNames := make([]string, 0, len(participants))
		for p := range participants {
			if opts.ResolveDisplay != nil {
				participantNames = append(participantNames, opts.ResolveDisplay(p, ""))
			} else {
				participantNames = append(participantNames, p)
			}
		}
		sort.Strings(participantNames)

		roomName := cid
		if len(sorted) > 0 && sorted[0].Source.DisplayName != "" {
			roomName = sorted[0].Source.DisplayName
		}

		lines := []string{"## Room: " + roomName, "Participants: " + joinComma(participantNames), ""}
		var firstKeptTime time.Time
		for n, ev := range kept {
			idx := keptIdx[n]
			_, authored := authoredSet[idx]
			var via []string
			if keptVia != nil {
				via = keptVia[n]
			}
			lines = append(lines, renderVoiceLine(ev, authored, opts.ShowHandles, opts.HidePluginPayload, via, opts.ResolveDisplay))
			if firstKeptTime.IsZero() || ev.TimeEvent.Before(firstKeptTime) {
				firstKeptTime = ev.TimeEvent
			}
			if overallStart.IsZero() || ev.TimeEvent.Before(overallStart) {
				overallStart = ev.TimeEvent
			}
			if overallEnd.IsZero() || ev.TimeEvent.After(overallEnd) {
				overallEnd = ev.TimeEvent
			}
		}
		lines = append(lines, "")
		if firstKeptTime.IsZero() && len(sorted) > 0 {
			firstKeptTime = sorted[0].TimeEvent
		}
		blocks = append(blocks, roomBlock{firstTime: firstKeptTime, lines: lines})
	}

	sort.Slice(blocks, func(i, j int) bool { return blocks[i].firstTime.Before(blocks[j].firstTime) })

	sortedHandles := make([]string, len(handles))
	copy(sortedHandles, handles)
	sort.Strings(sortedHandles)

	rangeStart, rangeEnd := "unknown", "unknown"
	if !overallStart.IsZero() && !overallEnd.IsZero() {
		rangeStart = overallStart.Format("2006-01-02")
		rangeEnd = overallEnd.Format("2006-01-02")
	}

	all := []string{
		"# Voice: " + displayName,
		"Handles: " + joinComma(sortedHandles) + "   Range: " + rangeStart + " → " + rangeEnd,
		"",
	}
	for _, b := range blocks {
		all = append(all, b.lines...)
	}
	return joinLines(all), nil
}

func renderVoiceLine(ev event.Event, authored, showHandles, hidePluginPayload bool, via []string, resolve ResolveDisplay) string {
	sender := ev.Source.Sender
	who := sender
	if resolve != nil {
		who = resolve(sender, ev.Source.DisplayName)
	}
	if showHandles && sender != "" {
		who = who + " (" + normalize.NormalizeHandleForMatching(sender) + ")"
	}

	text := ""
	if ev.Body != nil {
		text = sanitize.CleanURLs(ev.Body.Text)
	}
	attachments := ev.Attachments
	if hidePluginPayload && sanitize.HasURL(text) {
		attachments = filterPluginPayload(attachments, text)
	}

	whoFmt := who
	if authored {
		whoFmt = "**" + who + "**"
	}

	line := ev.TimeEvent.Format("2006-01-02 15:04") + " — " + whoFmt + ": " + text
	for _, a := range attachments {
		line += " [attachment: " + a.Name + "]"
	}
	if len(via) > 0 {
		line += " (via " + joinComma(via) + ")"
	}
	return line
}

// selectKeepIndices returns the set of event indices to keep: exactly
// the authored indices when quotesOnly, otherwise the union of
// [i-context, i+context] windows around each authored index, merging
// adjacent/overlapping ranges.
func selectKeepIndices(authoredIdx []int, total, context int, quotesOnly bool) map[int]struct{} {
	keep := make(map[int]struct{})
	if quotesOnly {
		for _, i := range authoredIdx {
			keep[i] = struct{}{}
		}
		return keep
	}

	type rng struct{ start, end int }
	ranges := make([]rng, 0, len(authoredIdx))
	for _, i := range authoredIdx {
		s := i - context
		if s < 0 {
			s = 0
		}
		e := i + context
		if e > total-1 {
			e = total - 1
		}
		ranges = append(ranges, rng{s, e})
	}
	sort.Slice(ranges, func(i, j int) bool { return ranges[i].start < ranges[j].start })

	merged := make([]rng, 0, len(ranges))
	for _, r := range ranges {
		if len(merged) == 0 || r.start > merged[len(merged)-1].end+1 {
			merged = append(merged, r)
			continue
		}
		if r.end > merged[len(merged)-1].end {
			merged[len(merged)-1].end = r.end
		}
	}
	for _, r := range merged {
		for i := r.start; i <= r.end; i++ {
			keep[i] = struct{}{}
		}
	}
	return keep
}

func sortedInts(set map[int]struct{}) []int {
	out := make([]int, 0, len(set))
	for i := range set {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

// viaCollapseBucket folds events that share a cross-channel
// fingerprint (same text, sender, and a 120-second time bucket) down
// to the first occurrence, recording every other occurrence's route
// onto that occurrence's via list rather than silently discarding it.
func viaCollapseBucket(events []event.Event, idx []int) (outEvents []event.Event, outIdx []int, outVia [][]string) {
	seen := make(map[string]int)
	for n, ev := range events {
		text := ""
		if ev.Body != nil {
			text = sanitize.CleanURLs(ev.Body.Text)
		}
		sender := normalize.NormalizeHandleForMatching(ev.Source.Sender)
		key := merge.FingerprintKey(text, ev.TimeEvent, sender)
		route := ev.Source.Route
		if route == "" {
			route = ev.Source.Service
		}
		if pos, dup := seen[key]; dup {
			if route != "" && !containsString(outVia[pos], route) {
				outVia[pos] = append(outVia[pos], route)
			}
			continue
		}
		seen[key] = len(outEvents)
		outEvents = append(outEvents, ev)
		outIdx = append(outIdx, idx[n])
		outVia = append(outVia, nil)
	}
	return outEvents, outIdx, outVia
}

func containsString(haystack []string, needle string) bool {
	for _, h := range haystack {
		if h == needle {
			return true
		}
	}
	return false
}
