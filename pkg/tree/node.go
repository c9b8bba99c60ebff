// Package tree turns trace summaries and fetched trace detail into the ordered list of
// presentation nodes the console renders.
package tree

import (
	"time"

	"github.com/Slach/systemlogs-timeline/pkg/logentry"
)

// Node is a top-level presentation node: Standalone, TraceGroup or PageLoadGroup.
type Node interface {
	isNode()
}

// ChildNode is a node inside an expanded TraceGroup: Single or DuplicateRun.
type ChildNode interface {
	isChild()
}

// Standalone is an entry that belongs to no trace.
type Standalone struct {
	Log logentry.LogEntry
}

// TraceGroup is one trace, headed by its representative entry. Children is empty
// unless the group is expanded and its detail has been fetched.
type TraceGroup struct {
	TraceID        string
	Parent         logentry.LogEntry
	ChildCount     int
	Sources        []logentry.Source
	RouteSummary   string
	FirstTimestamp time.Time
	LastTimestamp  time.Time
	Expanded       bool
	Loading        bool
	Children       []ChildNode
}

// PageLoadGroup wraps two or more consecutive nodes produced by one page-load burst.
type PageLoadGroup struct {
	GroupKey       string
	FirstTimestamp time.Time
	LastTimestamp  time.Time
	ChildCount     int
	Expanded       bool
	Children       []Node
}

// Single is a child entry with no adjacent duplicate.
type Single struct {
	Log logentry.LogEntry
}

// DuplicateRun is a maximal run of adjacent entries sharing a duplicate key.
type DuplicateRun struct {
	Key     string
	Count   int
	Entries []logentry.LogEntry
}

func (Standalone) isNode()    {}
func (TraceGroup) isNode()    {}
func (PageLoadGroup) isNode() {}
func (Single) isChild()       {}
func (DuplicateRun) isChild() {}

// First is the entry shown for the whole run.
func (r DuplicateRun) First() logentry.LogEntry {
	if len(r.Entries) == 0 {
		return logentry.LogEntry{}
	}
	return r.Entries[0]
}

// Span returns the earliest and latest timestamps in the run.
func (r DuplicateRun) Span() (time.Time, time.Time) {
	var first, last time.Time
	for _, e := range r.Entries {
		if first.IsZero() || e.Timestamp.Before(first) {
			first = e.Timestamp
		}
		if last.IsZero() || e.Timestamp.After(last) {
			last = e.Timestamp
		}
	}
	return first, last
}

// Representative returns the log entry that stands for a node when it is collapsed.
func Representative(n Node) (logentry.LogEntry, bool) {
	switch t := n.(type) {
	case Standalone:
		return t.Log, true
	case TraceGroup:
		return t.Parent, true
	case PageLoadGroup:
		if len(t.Children) > 0 {
			return Representative(t.Children[0])
		}
	}
	return logentry.LogEntry{}, false
}

// ChildEntries flattens a child node back into the entries it covers.
func ChildEntries(c ChildNode) []logentry.LogEntry {
	switch t := c.(type) {
	case Single:
		return []logentry.LogEntry{t.Log}
	case DuplicateRun:
		return t.Entries
	}
	return nil
}

func nodeSpan(n Node) (time.Time, time.Time) {
	switch t := n.(type) {
	case Standalone:
		return t.Log.Timestamp, t.Log.Timestamp
	case TraceGroup:
		first, last := t.FirstTimestamp, t.LastTimestamp
		if first.IsZero() {
			first = t.Parent.Timestamp
		}
		if last.IsZero() {
			last = first
		}
		return first, last
	case PageLoadGroup:
		return t.FirstTimestamp, t.LastTimestamp
	}
	return time.Time{}, time.Time{}
}
