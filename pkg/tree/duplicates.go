package tree

import (
	"fmt"

	"github.com/Slach/systemlogs-timeline/pkg/classify"
	"github.com/Slach/systemlogs-timeline/pkg/logentry"
)

// noisyClientEvents collapse by event type alone, whatever page they fired on.
var noisyClientEvents = map[string]struct{}{
	"ad_impression": {},
	"ad_visible":    {},
	"interaction":   {},
	"scroll":        {},
	"focus":         {},
	"blur":          {},
	"heartbeat":     {},
}

const duplicateTextPrefix = 50

// DuplicateKey derives the key under which adjacent entries collapse. The user id is part of
// every key so that only one user's repeats are merged.
func DuplicateKey(e logentry.LogEntry) string {
	user := e.UserKey()
	switch e.Source {
	case logentry.SourceAPI:
		method := e.Raw.Str("method")
		if method == "" {
			method = "GET"
		}
		return fmt.Sprintf("api:%s:%s:%s", user, method, classify.APIPath(e.Raw))
	case logentry.SourceLogsTable:
		return fmt.Sprintf("log:%s:%s:%s", user, e.Type, e.Subtype)
	case logentry.SourceClient:
		event := ClientEventType(e)
		if _, ok := noisyClientEvents[event]; ok {
			return fmt.Sprintf("client:%s:%s", user, event)
		}
		return fmt.Sprintf("client:%s:%s:%s", user, event, classify.PageURL(e.Raw))
	}

	level := e.Level
	if level == "" {
		level = "info"
	}
	text := []rune(e.Text)
	if len(text) > duplicateTextPrefix {
		text = text[:duplicateTextPrefix]
	}
	return fmt.Sprintf("%s:%s:%s:%s", e.Source, user, level, string(text))
}

// ClientEventType is the telemetry event name of a client entry.
func ClientEventType(e logentry.LogEntry) string {
	if ev := e.Raw.Str("event_type"); ev != "" {
		return ev
	}
	return e.Type
}

// runs splits entries into maximal runs of equal duplicate keys in a single pass.
func runs(entries []logentry.LogEntry) []DuplicateRun {
	var out []DuplicateRun
	var current *DuplicateRun
	for _, e := range entries {
		key := DuplicateKey(e)
		if current != nil && current.Key == key {
			current.Entries = append(current.Entries, e)
			current.Count++
			continue
		}
		if current != nil {
			out = append(out, *current)
		}
		current = &DuplicateRun{Key: key, Count: 1, Entries: []logentry.LogEntry{e}}
	}
	if current != nil {
		out = append(out, *current)
	}
	return out
}

// CollapseRuns groups adjacent entries with equal duplicate keys. A run of one is emitted as Single.
// Order is preserved and entries that are not adjacent never merge.
func CollapseRuns(entries []logentry.LogEntry) []ChildNode {
	rs := runs(entries)
	if len(rs) == 0 {
		return nil
	}
	out := make([]ChildNode, 0, len(rs))
	for _, r := range rs {
		if r.Count == 1 {
			out = append(out, Single{Log: r.Entries[0]})
			continue
		}
		out = append(out, r)
	}
	return out
}

// Singles wraps every entry as its own child, for when duplicate collapsing is off.
func Singles(entries []logentry.LogEntry) []ChildNode {
	if len(entries) == 0 {
		return nil
	}
	out := make([]ChildNode, 0, len(entries))
	for _, e := range entries {
		out = append(out, Single{Log: e})
	}
	return out
}

// CollapseFlat collapses a flat entry list for the list view. With collapse off every entry
// becomes its own run of one.
func CollapseFlat(entries []logentry.LogEntry, collapse bool) []DuplicateRun {
	if collapse {
		return runs(entries)
	}
	out := make([]DuplicateRun, 0, len(entries))
	for _, e := range entries {
		out = append(out, DuplicateRun{Key: DuplicateKey(e), Count: 1, Entries: []logentry.LogEntry{e}})
	}
	return out
}
