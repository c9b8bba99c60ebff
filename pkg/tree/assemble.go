package tree

import (
	"cmp"
	"slices"

	"github.com/Slach/systemlogs-timeline/pkg/classify"
	"github.com/Slach/systemlogs-timeline/pkg/logentry"
)

// Input is everything a tree build reads. Assemble never modifies it.
type Input struct {
	Summaries     []logentry.TraceSummary
	TraceChildren map[string][]logentry.LogEntry
	LoadingTraces map[string]bool
	// Expanded holds both trace ids and page-load group keys.
	Expanded           map[string]bool
	ShowPolling        bool
	AppSource          classify.AppSource
	CollapseDuplicates bool
}

// Assemble projects summaries and cached trace detail onto presentation nodes.
// Summaries hidden by the polling or app source filter are dropped before grouping.
func Assemble(in Input) []Node {
	nodes := make([]Node, 0, len(in.Summaries))
	for _, s := range in.Summaries {
		if !classify.Visible(s.FirstLog, in.ShowPolling, in.AppSource) {
			continue
		}
		if s.Standalone() {
			nodes = append(nodes, Standalone{Log: s.FirstLog})
			continue
		}

		group := TraceGroup{
			TraceID:        s.TraceID,
			Parent:         s.FirstLog,
			ChildCount:     s.ChildCount,
			Sources:        s.Sources,
			RouteSummary:   s.RouteSummary,
			FirstTimestamp: s.FirstTimestamp,
			LastTimestamp:  s.LastTimestamp,
			Expanded:       in.Expanded[s.TraceID],
			Loading:        in.LoadingTraces[s.TraceID],
		}
		if children, ok := in.TraceChildren[s.TraceID]; ok && group.Expanded {
			group.Children = buildChildren(WithoutEntry(children, s.FirstLog.ID), in.CollapseDuplicates)
		}
		nodes = append(nodes, group)
	}
	return GroupPageLoads(nodes, in.Expanded)
}

func buildChildren(entries []logentry.LogEntry, collapse bool) []ChildNode {
	if collapse {
		return CollapseRuns(entries)
	}
	return Singles(entries)
}

// WithoutEntry returns entries minus the one with the given id, keeping order.
func WithoutEntry(entries []logentry.LogEntry, id logentry.FlexString) []logentry.LogEntry {
	out := make([]logentry.LogEntry, 0, len(entries))
	for _, e := range entries {
		if e.ID != id {
			out = append(out, e)
		}
	}
	return out
}

func sourcePriority(s logentry.Source) int {
	switch s {
	case logentry.SourceClient:
		return 0
	case logentry.SourceAPI:
		return 1
	}
	return 2
}

// AssembleFlat builds a tree from a flat entry list when no summaries are loaded. Trace-less
// entries come first in list order, then one group per trace in first-seen order. Inside a
// trace, client entries sort before api entries before the rest, then by time; the first client
// entry (or the first entry) heads the group.
func AssembleFlat(entries []logentry.LogEntry, expanded map[string]bool) []Node {
	var out []Node
	var order []string
	byTrace := make(map[string][]logentry.LogEntry)

	for _, e := range entries {
		if e.TraceID == "" {
			out = append(out, Standalone{Log: e})
			continue
		}
		if _, seen := byTrace[e.TraceID]; !seen {
			order = append(order, e.TraceID)
		}
		byTrace[e.TraceID] = append(byTrace[e.TraceID], e)
	}

	for _, traceID := range order {
		logs := slices.Clone(byTrace[traceID])
		slices.SortStableFunc(logs, func(a, b logentry.LogEntry) int {
			if c := cmp.Compare(sourcePriority(a.Source), sourcePriority(b.Source)); c != 0 {
				return c
			}
			return a.Timestamp.Compare(b.Timestamp)
		})

		parentIdx := slices.IndexFunc(logs, func(e logentry.LogEntry) bool {
			return e.Source == logentry.SourceClient
		})
		if parentIdx < 0 {
			parentIdx = 0
		}
		parent := logs[parentIdx]
		rest := slices.Delete(slices.Clone(logs), parentIdx, parentIdx+1)

		group := TraceGroup{
			TraceID:    traceID,
			Parent:     parent,
			ChildCount: len(logs),
			Expanded:   expanded[traceID],
		}
		group.FirstTimestamp, group.LastTimestamp = DuplicateRun{Entries: logs}.Span()
		seen := make(map[logentry.Source]bool)
		for _, e := range logs {
			if !seen[e.Source] {
				seen[e.Source] = true
				group.Sources = append(group.Sources, e.Source)
			}
		}
		if group.Expanded {
			group.Children = Singles(rest)
		}
		out = append(out, group)
	}
	return out
}
