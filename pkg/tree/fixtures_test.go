package tree

import (
	"fmt"
	"time"

	"github.com/Slach/systemlogs-timeline/pkg/logentry"
)

var baseTime = time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)

func at(sec int) time.Time {
	return baseTime.Add(time.Duration(sec) * time.Second)
}

func api(id string, user int64, method, endpoint string, sec int) logentry.LogEntry {
	return logentry.LogEntry{
		ID:        logentry.FlexString(id),
		Source:    logentry.SourceAPI,
		UserID:    user,
		Timestamp: at(sec),
		Raw:       logentry.Raw{"method": method, "endpoint": endpoint},
	}
}

func client(id, session string, msSincePageLoad float64, sec int) logentry.LogEntry {
	return logentry.LogEntry{
		ID:        logentry.FlexString(id),
		Source:    logentry.SourceClient,
		SessionID: session,
		Timestamp: at(sec),
		Raw: logentry.Raw{
			"event_type":         "page_view",
			"url":                "https://example.org/give",
			"ms_since_page_load": msSincePageLoad,
		},
	}
}

func standaloneSummary(e logentry.LogEntry) logentry.TraceSummary {
	return logentry.TraceSummary{FirstLog: e, ChildCount: 1, FirstTimestamp: e.Timestamp, LastTimestamp: e.Timestamp}
}

func traceSummary(traceID string, parent logentry.LogEntry, children int) logentry.TraceSummary {
	parent.TraceID = traceID
	return logentry.TraceSummary{
		TraceID:        traceID,
		FirstLog:       parent,
		ChildCount:     children,
		Sources:        []logentry.Source{parent.Source},
		RouteSummary:   fmt.Sprintf("route %s", traceID),
		FirstTimestamp: parent.Timestamp,
		LastTimestamp:  parent.Timestamp.Add(time.Second),
	}
}
