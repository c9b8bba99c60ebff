package models

import (
	"encoding/json"
	"maps"
	"slices"
	"time"

	"github.com/Slach/systemlogs-timeline/pkg/classify"
	"github.com/Slach/systemlogs-timeline/pkg/logentry"
	"github.com/Slach/systemlogs-timeline/pkg/timerange"
	"github.com/Slach/systemlogs-timeline/pkg/tree"
)

// Direction is the sort order requested from the log service.
type Direction string

const (
	// Backward returns newest entries first.
	Backward Direction = "backward"
	// Forward returns oldest entries first.
	Forward Direction = "forward"
)

// Filter holds every criterion of the current query plus the display-only toggles.
// Zero ids and empty strings mean "no filter".
type Filter struct {
	Sources   []logentry.Source
	Types     []string
	Subtypes  []string
	Levels    []string
	Search    string
	TimeRange string
	// Until is the upper bound of the first page; zero means open-ended.
	Until time.Time

	UserID    int64
	GroupID   int64
	MessageID int64
	TraceID   string
	SessionID string
	IPAddress string
	Email     string

	Direction Direction

	// Display only: changing these never triggers a fetch.
	ShowPolling        bool
	AppSource          classify.AppSource
	CollapseDuplicates bool
}

// DefaultFilter is the filter of a fresh session.
func DefaultFilter() Filter {
	return Filter{
		Sources:            slices.Clone(logentry.DefaultSources),
		TimeRange:          timerange.DefaultWindow,
		Direction:          Backward,
		AppSource:          classify.AppBoth,
		CollapseDuplicates: true,
	}
}

// State is one immutable snapshot of a browsing session. Reduce produces the next snapshot;
// nothing mutates a State in place, so a snapshot can be read without locking.
type State struct {
	Filter Filter

	// List backs the flat view; Summaries back the tree view.
	List      []logentry.LogEntry
	Summaries []logentry.TraceSummary

	// TraceChildren is the trace cache. A present key means "loaded", even when empty.
	TraceChildren map[string][]logentry.LogEntry
	LoadingTraces map[string]bool

	// Expanded holds trace ids and page-load group keys.
	Expanded        map[string]bool
	ExpandedDetails map[string]bool

	Loading       bool
	Error         string
	HasMore       bool
	LastTimestamp time.Time
	Stats         json.RawMessage

	// Generation increases on every Clear. Results fetched for an older generation are discarded.
	Generation uint64
}

// NewState returns the state of a fresh session using the given filter.
func NewState(filter Filter) State {
	return State{
		Filter:  filter,
		HasMore: true,
	}
}

// Cached reports whether trace detail for traceID is in the cache.
func (s State) Cached(traceID string) bool {
	_, ok := s.TraceChildren[traceID]
	return ok
}

// IsLoading reports whether a detail fetch for traceID is in flight.
func (s State) IsLoading(traceID string) bool {
	return s.LoadingTraces[traceID]
}

// IsExpanded reports whether a trace or page-load group is expanded.
func (s State) IsExpanded(key string) bool {
	return s.Expanded[key]
}

// IsDetailsExpanded reports whether the raw details of an entry are shown.
func (s State) IsDetailsExpanded(id string) bool {
	return s.ExpandedDetails[id]
}

// TreeInput exposes the parts of the state the tree assembler reads.
func (s State) TreeInput() tree.Input {
	return tree.Input{
		Summaries:          s.Summaries,
		TraceChildren:      s.TraceChildren,
		LoadingTraces:      s.LoadingTraces,
		Expanded:           s.Expanded,
		ShowPolling:        s.Filter.ShowPolling,
		AppSource:          s.Filter.AppSource,
		CollapseDuplicates: s.Filter.CollapseDuplicates,
	}
}

// Tree assembles the presentation tree. Without summaries it falls back to grouping the flat list.
func (s State) Tree() []tree.Node {
	if len(s.Summaries) > 0 {
		return tree.Assemble(s.TreeInput())
	}
	return tree.AssembleFlat(s.List, s.Expanded)
}

// CollapsedLogs is the flat list with adjacent duplicates collapsed when enabled.
func (s State) CollapsedLogs() []tree.DuplicateRun {
	return tree.CollapseFlat(s.List, s.Filter.CollapseDuplicates)
}

// EntityIDs are the distinct ids referenced by loaded entries, in first-seen order.
type EntityIDs struct {
	UserIDs    []int64
	GroupIDs   []int64
	MessageIDs []int64
}

type idSet struct {
	seen map[int64]struct{}
	ids  []int64
}

func (s *idSet) add(id int64) {
	if id == 0 {
		return
	}
	if s.seen == nil {
		s.seen = make(map[int64]struct{})
	}
	if _, ok := s.seen[id]; ok {
		return
	}
	s.seen[id] = struct{}{}
	s.ids = append(s.ids, id)
}

// EntityIDs collects the users, groups and messages referenced by the flat list, the summaries
// and the cached trace detail in a single pass, for batch lookups.
func (s State) EntityIDs() EntityIDs {
	var users, groups, messages idSet
	collect := func(e logentry.LogEntry) {
		users.add(e.UserID)
		users.add(e.ByUserID)
		groups.add(e.GroupID)
		messages.add(e.MessageID)
	}

	for _, e := range s.List {
		collect(e)
	}
	for _, summary := range s.Summaries {
		collect(summary.FirstLog)
	}
	for _, traceID := range slices.Sorted(maps.Keys(s.TraceChildren)) {
		for _, e := range s.TraceChildren[traceID] {
			collect(e)
		}
	}
	return EntityIDs{UserIDs: users.ids, GroupIDs: groups.ids, MessageIDs: messages.ids}
}

// LogsBySession buckets the flat list by session id; entries without one go under "no-session".
func (s State) LogsBySession() map[string][]logentry.LogEntry {
	return bucket(s.List, func(e logentry.LogEntry) string {
		if e.SessionID == "" {
			return "no-session"
		}
		return e.SessionID
	})
}

// LogsByTrace buckets the flat list by trace id; entries without one go under "no-trace".
func (s State) LogsByTrace() map[string][]logentry.LogEntry {
	return bucket(s.List, func(e logentry.LogEntry) string {
		if e.TraceID == "" {
			return "no-trace"
		}
		return e.TraceID
	})
}

func bucket(entries []logentry.LogEntry, key func(logentry.LogEntry) string) map[string][]logentry.LogEntry {
	groups := make(map[string][]logentry.LogEntry)
	for _, e := range entries {
		k := key(e)
		groups[k] = append(groups[k], e)
	}
	return groups
}
