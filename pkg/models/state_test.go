package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/Slach/systemlogs-timeline/pkg/classify"
	"github.com/Slach/systemlogs-timeline/pkg/logentry"
	"github.com/Slach/systemlogs-timeline/pkg/tree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

func entry(id string, traceID string, user int64) logentry.LogEntry {
	return logentry.LogEntry{
		ID:        logentry.FlexString(id),
		Source:    logentry.SourceAPI,
		TraceID:   traceID,
		UserID:    user,
		Timestamp: t0,
		Raw:       logentry.Raw{"method": "GET", "endpoint": "/api/user"},
	}
}

func loadedState() State {
	s := NewState(DefaultFilter())
	s = Reduce(s, SummariesLoaded{
		Summaries: []logentry.TraceSummary{{TraceID: "t1", FirstLog: entry("p", "t1", 1), FirstTimestamp: t0}},
		Stats:     json.RawMessage(`{"total":1}`),
		Limit:     100,
	})
	s = Reduce(s, SetExpanded{Key: "t1", Expanded: true})
	s = Reduce(s, TraceLoading{TraceID: "t1"})
	return Reduce(s, TraceLoaded{TraceID: "t1", Logs: []logentry.LogEntry{entry("c", "t1", 2)}})
}

func TestDefaultFilter(t *testing.T) {
	f := DefaultFilter()
	assert.Equal(t, logentry.DefaultSources, f.Sources)
	assert.Equal(t, "24h", f.TimeRange)
	assert.Equal(t, Backward, f.Direction)
	assert.Equal(t, classify.AppBoth, f.AppSource)
	assert.True(t, f.CollapseDuplicates)
	assert.False(t, f.ShowPolling)
	assert.True(t, NewState(f).HasMore)
}

func TestQueryFilterChangesClear(t *testing.T) {
	events := map[string]Event{
		"types":     SetTypes{Types: []string{"User"}},
		"subtypes":  SetSubtypes{Subtypes: []string{"Login"}},
		"levels":    SetLevels{Levels: []string{"error"}},
		"search":    SetSearch{Search: "bounce"},
		"timeRange": SetTimeRange{TimeRange: "7d"},
		"user":      SetUserFilter{UserID: 9},
		"group":     SetGroupFilter{GroupID: 9},
		"message":   SetMessageFilter{MessageID: 9},
		"trace":     SetTraceFilter{TraceID: "abc"},
		"session":   SetSessionFilter{SessionID: "s"},
		"ip":        SetIPFilter{IPAddress: "10.0.0.1"},
		"email":     SetEmailFilter{Email: "a@example.org"},
		"direction": SetDirection{Direction: Forward},
		"until":     SetUntil{Until: time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)},
		"clear":     Clear{},
	}
	for name, ev := range events {
		t.Run(name, func(t *testing.T) {
			before := Reduce(loadedState(), FetchStarted{})
			after := Reduce(before, ev)

			assert.Empty(t, after.Summaries)
			assert.Empty(t, after.TraceChildren)
			assert.Empty(t, after.LoadingTraces)
			assert.Empty(t, after.Expanded)
			assert.Nil(t, after.Stats)
			assert.True(t, after.HasMore)
			assert.True(t, after.LastTimestamp.IsZero())
			assert.False(t, after.Loading)
			assert.Equal(t, before.Generation+1, after.Generation)

			assert.Len(t, before.Summaries, 1, "reducer must not touch its input")
			assert.True(t, before.Cached("t1"))
		})
	}
}

func TestDisplayOnlyChangesKeepCache(t *testing.T) {
	events := []Event{
		SetShowPolling{Show: true},
		SetAppSource{AppSource: classify.AppModTools},
		SetCollapseDuplicates{Collapse: false},
		SetSources{Sources: []logentry.Source{logentry.SourceAPI}},
	}
	for _, ev := range events {
		before := loadedState()
		after := Reduce(before, ev)
		assert.Equal(t, before.Summaries, after.Summaries)
		assert.Equal(t, before.TraceChildren, after.TraceChildren)
		assert.Equal(t, before.Expanded, after.Expanded)
		assert.Equal(t, before.Generation, after.Generation)
	}

	s := Reduce(loadedState(), SetAppSource{AppSource: classify.AppFreegle})
	assert.Equal(t, classify.AppFreegle, s.Filter.AppSource)
	s = Reduce(s, SetSources{Sources: []logentry.Source{logentry.SourceEmail}})
	assert.Equal(t, []logentry.Source{logentry.SourceEmail}, s.Filter.Sources)
}

func TestSummariesLoaded(t *testing.T) {
	page := func(ids ...string) []logentry.TraceSummary {
		var out []logentry.TraceSummary
		for i, id := range ids {
			out = append(out, logentry.TraceSummary{FirstLog: entry(id, "", 0), FirstTimestamp: t0.Add(-time.Duration(i) * time.Minute)})
		}
		return out
	}

	s := NewState(DefaultFilter())
	s = Reduce(s, FetchStarted{})
	assert.True(t, s.Loading)

	s = Reduce(s, SummariesLoaded{Summaries: page("a", "b"), Limit: 2})
	assert.False(t, s.Loading)
	assert.True(t, s.HasMore)
	assert.Equal(t, t0.Add(-time.Minute), s.LastTimestamp)

	first := s
	s = Reduce(s, SummariesLoaded{Summaries: page("c"), Append: true, Limit: 2})
	require.Len(t, s.Summaries, 3)
	assert.Len(t, first.Summaries, 2)
	assert.False(t, s.HasMore)
	assert.Equal(t, logentry.FlexString("c"), s.Summaries[2].FirstLog.ID)

	s = Reduce(s, SummariesLoaded{Summaries: page("d"), Limit: 2})
	require.Len(t, s.Summaries, 1)

	s = Reduce(s, SummariesLoaded{Summaries: nil, Limit: 2})
	assert.Len(t, s.Summaries, 1, "a response without summaries keeps the previous ones")
}

func TestFetchFailedKeepsResults(t *testing.T) {
	s := loadedState()
	s = Reduce(s, FetchStarted{})
	s = Reduce(s, FetchFailed{Generation: s.Generation, Message: "boom"})
	assert.Equal(t, "boom", s.Error)
	assert.False(t, s.Loading)
	assert.Len(t, s.Summaries, 1)

	s = Reduce(s, FetchStarted{})
	assert.Empty(t, s.Error)
}

func TestStaleResultsDiscarded(t *testing.T) {
	s := NewState(DefaultFilter())
	gen := s.Generation
	s = Reduce(s, TraceLoading{TraceID: "t"})
	s = Reduce(s, SetSearch{Search: "x"})

	s = Reduce(s, TraceLoaded{Generation: gen, TraceID: "t", Logs: []logentry.LogEntry{entry("1", "t", 0)}})
	assert.False(t, s.Cached("t"))
	s = Reduce(s, SummariesLoaded{Generation: gen, Summaries: []logentry.TraceSummary{{}}, Limit: 1})
	assert.Empty(t, s.Summaries)
	s = Reduce(s, FetchFailed{Generation: gen, Message: "late"})
	assert.Empty(t, s.Error)
}

func TestTraceLoadedEmpty(t *testing.T) {
	s := Reduce(NewState(DefaultFilter()), TraceLoading{TraceID: "t"})
	assert.True(t, s.IsLoading("t"))
	s = Reduce(s, TraceLoaded{Generation: s.Generation, TraceID: "t"})
	assert.True(t, s.Cached("t"))
	assert.NotNil(t, s.TraceChildren["t"])
	assert.Empty(t, s.TraceChildren["t"])
	assert.False(t, s.IsLoading("t"))
}

func TestToggles(t *testing.T) {
	s := NewState(DefaultFilter())
	s = Reduce(s, ToggleExpanded{Key: "g"})
	assert.True(t, s.IsExpanded("g"))
	s = Reduce(s, ToggleExpanded{Key: "g"})
	assert.False(t, s.IsExpanded("g"))
	s = Reduce(s, ToggleDetails{ID: "42"})
	assert.True(t, s.IsDetailsExpanded("42"))
	assert.Equal(t, s, Reduce(s, nil))
}

func TestTree(t *testing.T) {
	s := loadedState()
	nodes := s.Tree()
	require.Len(t, nodes, 1)
	group := nodes[0].(tree.TraceGroup)
	assert.True(t, group.Expanded)
	assert.Equal(t, []tree.ChildNode{tree.Single{Log: entry("c", "t1", 2)}}, group.Children)

	flat := NewState(DefaultFilter())
	flat = Reduce(flat, ListLoaded{Logs: []logentry.LogEntry{entry("1", "", 1), entry("2", "", 1)}, Limit: 500})
	assert.Len(t, flat.Tree(), 2)
	runs := flat.CollapsedLogs()
	require.Len(t, runs, 1)
	assert.Equal(t, 2, runs[0].Count)
	assert.False(t, flat.HasMore)
}

func TestEntityIDs(t *testing.T) {
	s := NewState(DefaultFilter())
	a := entry("1", "", 1)
	a.ByUserID = 2
	a.GroupID = 10
	b := entry("2", "", 1)
	b.MessageID = 100
	s = Reduce(s, ListLoaded{Logs: []logentry.LogEntry{a, b}, Limit: 500})
	s = Reduce(s, SummariesLoaded{Summaries: []logentry.TraceSummary{{TraceID: "t", FirstLog: entry("3", "t", 3)}}, Limit: 100})
	c := entry("4", "t", 4)
	c.GroupID = 10
	c.MessageID = 101
	s = Reduce(s, TraceLoaded{TraceID: "t", Logs: []logentry.LogEntry{c}})

	ids := s.EntityIDs()
	assert.Equal(t, []int64{1, 2, 3, 4}, ids.UserIDs)
	assert.Equal(t, []int64{10}, ids.GroupIDs)
	assert.Equal(t, []int64{100, 101}, ids.MessageIDs)
}

func TestBuckets(t *testing.T) {
	a := entry("1", "t1", 1)
	a.SessionID = "s1"
	b := entry("2", "", 1)
	s := Reduce(NewState(DefaultFilter()), ListLoaded{Logs: []logentry.LogEntry{a, b}, Limit: 500})

	bySession := s.LogsBySession()
	assert.Len(t, bySession["s1"], 1)
	assert.Len(t, bySession["no-session"], 1)

	byTrace := s.LogsByTrace()
	assert.Len(t, byTrace["t1"], 1)
	assert.Len(t, byTrace["no-trace"], 1)
}
