package models

import (
	"encoding/json"
	"maps"
	"slices"
	"time"

	"github.com/Slach/systemlogs-timeline/pkg/classify"
	"github.com/Slach/systemlogs-timeline/pkg/logentry"
)

// Event is a state transition. Events are applied with Reduce.
type Event interface {
	apply(s State) State
}

// Reduce returns the state that results from applying ev to s. s itself is left untouched.
func Reduce(s State, ev Event) State {
	if ev == nil {
		return s
	}
	return ev.apply(s)
}

// Clear drops every fetched result, the trace cache and expansion state, and starts a new generation.
type Clear struct{}

func (Clear) apply(s State) State {
	return clearResults(s)
}

func clearResults(s State) State {
	s.List = nil
	s.Summaries = nil
	s.TraceChildren = nil
	s.LoadingTraces = nil
	s.Expanded = nil
	s.HasMore = true
	s.LastTimestamp = time.Time{}
	s.Stats = nil
	s.Error = ""
	// A fetch still in flight belongs to the old generation and will be dropped.
	s.Loading = false
	s.Generation++
	return s
}

// withFilter applies a query-affecting filter change and clears cached results.
func withFilter(s State, mutate func(f *Filter)) State {
	mutate(&s.Filter)
	return clearResults(s)
}

// SetSources changes the source set without clearing; the next explicit fetch picks it up.
type SetSources struct{ Sources []logentry.Source }

func (e SetSources) apply(s State) State {
	s.Filter.Sources = slices.Clone(e.Sources)
	return s
}

type SetTypes struct{ Types []string }

func (e SetTypes) apply(s State) State {
	return withFilter(s, func(f *Filter) { f.Types = slices.Clone(e.Types) })
}

type SetSubtypes struct{ Subtypes []string }

func (e SetSubtypes) apply(s State) State {
	return withFilter(s, func(f *Filter) { f.Subtypes = slices.Clone(e.Subtypes) })
}

type SetLevels struct{ Levels []string }

func (e SetLevels) apply(s State) State {
	return withFilter(s, func(f *Filter) { f.Levels = slices.Clone(e.Levels) })
}

type SetSearch struct{ Search string }

func (e SetSearch) apply(s State) State {
	return withFilter(s, func(f *Filter) { f.Search = e.Search })
}

type SetTimeRange struct{ TimeRange string }

func (e SetTimeRange) apply(s State) State {
	return withFilter(s, func(f *Filter) { f.TimeRange = e.TimeRange })
}

// SetUntil bounds the first page from above; zero means "now".
type SetUntil struct{ Until time.Time }

func (e SetUntil) apply(s State) State {
	return withFilter(s, func(f *Filter) { f.Until = e.Until })
}

type SetUserFilter struct{ UserID int64 }

func (e SetUserFilter) apply(s State) State {
	return withFilter(s, func(f *Filter) { f.UserID = e.UserID })
}

type SetGroupFilter struct{ GroupID int64 }

func (e SetGroupFilter) apply(s State) State {
	return withFilter(s, func(f *Filter) { f.GroupID = e.GroupID })
}

type SetMessageFilter struct{ MessageID int64 }

func (e SetMessageFilter) apply(s State) State {
	return withFilter(s, func(f *Filter) { f.MessageID = e.MessageID })
}

type SetTraceFilter struct{ TraceID string }

func (e SetTraceFilter) apply(s State) State {
	return withFilter(s, func(f *Filter) { f.TraceID = e.TraceID })
}

type SetSessionFilter struct{ SessionID string }

func (e SetSessionFilter) apply(s State) State {
	return withFilter(s, func(f *Filter) { f.SessionID = e.SessionID })
}

type SetIPFilter struct{ IPAddress string }

func (e SetIPFilter) apply(s State) State {
	return withFilter(s, func(f *Filter) { f.IPAddress = e.IPAddress })
}

type SetEmailFilter struct{ Email string }

func (e SetEmailFilter) apply(s State) State {
	return withFilter(s, func(f *Filter) { f.Email = e.Email })
}

type SetDirection struct{ Direction Direction }

func (e SetDirection) apply(s State) State {
	return withFilter(s, func(f *Filter) { f.Direction = e.Direction })
}

// SetShowPolling only changes what is displayed.
type SetShowPolling struct{ Show bool }

func (e SetShowPolling) apply(s State) State {
	s.Filter.ShowPolling = e.Show
	return s
}

// SetAppSource only changes what is displayed.
type SetAppSource struct{ AppSource classify.AppSource }

func (e SetAppSource) apply(s State) State {
	s.Filter.AppSource = e.AppSource
	return s
}

// SetCollapseDuplicates only changes how cached children are displayed.
type SetCollapseDuplicates struct{ Collapse bool }

func (e SetCollapseDuplicates) apply(s State) State {
	s.Filter.CollapseDuplicates = e.Collapse
	return s
}

// FetchStarted marks a summary or list fetch as in flight.
type FetchStarted struct{}

func (FetchStarted) apply(s State) State {
	s.Loading = true
	s.Error = ""
	return s
}

// FetchFailed records a summary or list fetch failure, keeping what was already loaded.
type FetchFailed struct {
	Generation uint64
	Message    string
}

func (e FetchFailed) apply(s State) State {
	if e.Generation != s.Generation {
		return s
	}
	s.Loading = false
	s.Error = e.Message
	return s
}

// SummariesLoaded stores a page of trace summaries.
type SummariesLoaded struct {
	Generation uint64
	Summaries  []logentry.TraceSummary
	Stats      json.RawMessage
	Append     bool
	Limit      int
}

func (e SummariesLoaded) apply(s State) State {
	if e.Generation != s.Generation {
		return s
	}
	s.Loading = false
	if e.Append {
		s.Summaries = append(slices.Clip(s.Summaries), e.Summaries...)
	} else if e.Summaries != nil {
		s.Summaries = e.Summaries
	}
	s.Stats = e.Stats
	s.HasMore = len(e.Summaries) >= e.Limit
	if n := len(e.Summaries); n > 0 {
		s.LastTimestamp = e.Summaries[n-1].FirstTimestamp
	}
	return s
}

// ListLoaded stores a page of the flat list.
type ListLoaded struct {
	Generation uint64
	Logs       []logentry.LogEntry
	Stats      json.RawMessage
	Append     bool
	Limit      int
}

func (e ListLoaded) apply(s State) State {
	if e.Generation != s.Generation {
		return s
	}
	s.Loading = false
	if e.Append {
		s.List = append(slices.Clip(s.List), e.Logs...)
	} else {
		s.List = e.Logs
	}
	s.Stats = e.Stats
	s.HasMore = len(e.Logs) >= e.Limit
	if n := len(e.Logs); n > 0 {
		s.LastTimestamp = e.Logs[n-1].Timestamp
	}
	return s
}

// TraceLoading marks a trace detail fetch as in flight.
type TraceLoading struct{ TraceID string }

func (e TraceLoading) apply(s State) State {
	s.LoadingTraces = with(s.LoadingTraces, e.TraceID, true)
	return s
}

// TraceLoaded caches trace detail and clears the loading flag. A nil Logs caches an empty list.
type TraceLoaded struct {
	Generation uint64
	TraceID    string
	Logs       []logentry.LogEntry
}

func (e TraceLoaded) apply(s State) State {
	if e.Generation != s.Generation {
		return s
	}
	logs := e.Logs
	if logs == nil {
		logs = []logentry.LogEntry{}
	}
	s.TraceChildren = with(s.TraceChildren, e.TraceID, logs)
	s.LoadingTraces = with(s.LoadingTraces, e.TraceID, false)
	return s
}

// SetExpanded expands or collapses a trace or page-load group.
type SetExpanded struct {
	Key      string
	Expanded bool
}

func (e SetExpanded) apply(s State) State {
	s.Expanded = with(s.Expanded, e.Key, e.Expanded)
	return s
}

// ToggleExpanded flips a trace or page-load group.
type ToggleExpanded struct{ Key string }

func (e ToggleExpanded) apply(s State) State {
	s.Expanded = with(s.Expanded, e.Key, !s.Expanded[e.Key])
	return s
}

// ToggleDetails flips the raw detail view of one entry.
type ToggleDetails struct{ ID string }

func (e ToggleDetails) apply(s State) State {
	s.ExpandedDetails = with(s.ExpandedDetails, e.ID, !s.ExpandedDetails[e.ID])
	return s
}

// with returns a copy of m with k set to v, leaving m untouched.
func with[V any](m map[string]V, k string, v V) map[string]V {
	out := make(map[string]V, len(m)+1)
	maps.Copy(out, m)
	out[k] = v
	return out
}
