package tree

import (
	"time"

	"github.com/Slach/systemlogs-timeline/pkg/logentry"
)

// PageLoadWindow is how long after a page load client telemetry still counts as part of it.
const PageLoadWindow = 5 * time.Second

// IsPageLoad reports whether an entry was emitted during a page load burst.
func IsPageLoad(e logentry.LogEntry) bool {
	if e.Source != logentry.SourceClient {
		return false
	}
	switch e.Raw.Str("page_load_phase") {
	case "loading", "interactive":
		return true
	}
	ms, ok := e.Raw.Float("ms_since_page_load")
	return ok && ms >= 0 && ms < float64(PageLoadWindow/time.Millisecond)
}

type pageLoadAccumulator struct {
	nodes       []Node
	first, last time.Time
	sessionID   string
}

func (a *pageLoadAccumulator) add(n Node, e logentry.LogEntry) {
	first, last := nodeSpan(n)
	if len(a.nodes) == 0 {
		a.sessionID = e.SessionID
		a.first, a.last = first, last
	}
	if first.Before(a.first) {
		a.first = first
	}
	if last.After(a.last) {
		a.last = last
	}
	a.nodes = append(a.nodes, n)
}

func (a *pageLoadAccumulator) key() string {
	stamp := a.first.UTC().Format(time.RFC3339Nano)
	if a.sessionID != "" {
		return "pageload:" + a.sessionID + "@" + stamp
	}
	return "pageload:" + stamp
}

// GroupPageLoads wraps runs of two or more consecutive page-load nodes in a PageLoadGroup.
// A lone page-load node stays bare. expanded is consulted by group key.
func GroupPageLoads(nodes []Node, expanded map[string]bool) []Node {
	out := make([]Node, 0, len(nodes))
	var acc pageLoadAccumulator

	flush := func() {
		switch len(acc.nodes) {
		case 0:
		case 1:
			out = append(out, acc.nodes[0])
		default:
			key := acc.key()
			out = append(out, PageLoadGroup{
				GroupKey:       key,
				FirstTimestamp: acc.first,
				LastTimestamp:  acc.last,
				ChildCount:     len(acc.nodes),
				Expanded:       expanded[key],
				Children:       acc.nodes,
			})
		}
		acc = pageLoadAccumulator{}
	}

	for _, n := range nodes {
		e, ok := Representative(n)
		if ok && IsPageLoad(e) {
			acc.add(n, e)
			continue
		}
		flush()
		out = append(out, n)
	}
	flush()
	return out
}
