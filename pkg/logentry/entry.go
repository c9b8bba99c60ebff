package logentry

import (
	"encoding/json"
	"strconv"
	"time"
)

// LogEntry is one row returned by the log service. The engine treats it as immutable.
// Zero numeric ids and empty strings mean "absent".
type LogEntry struct {
	ID        FlexString `json:"id"`
	Source    Source     `json:"source"`
	Type      string     `json:"type,omitempty"`
	Subtype   string     `json:"subtype,omitempty"`
	Level     string     `json:"level,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
	UserID    int64      `json:"user_id,omitempty"`
	ByUserID  int64      `json:"byuser_id,omitempty"`
	GroupID   int64      `json:"group_id,omitempty"`
	MessageID int64      `json:"message_id,omitempty"`
	SessionID string     `json:"session_id,omitempty"`
	TraceID   string     `json:"trace_id,omitempty"`
	Raw       Raw        `json:"raw,omitempty"`
	Text      string     `json:"text,omitempty"`
}

// UserKey is the user id as used in derived keys, "anon" when absent.
func (e LogEntry) UserKey() string {
	if e.UserID == 0 {
		return "anon"
	}
	return strconv.FormatInt(e.UserID, 10)
}

// TraceSummary is the collapsed view of one trace, or of one trace-less entry when TraceID is empty.
type TraceSummary struct {
	TraceID        string    `json:"trace_id,omitempty"`
	FirstLog       LogEntry  `json:"first_log"`
	ChildCount     int       `json:"child_count"`
	Sources        []Source  `json:"sources,omitempty"`
	RouteSummary   string    `json:"route_summary,omitempty"`
	FirstTimestamp time.Time `json:"first_timestamp"`
	LastTimestamp  time.Time `json:"last_timestamp"`
}

// Standalone reports whether the summary stands for a single entry without a trace.
func (s TraceSummary) Standalone() bool {
	return s.TraceID == ""
}

// FlexString decodes from either a JSON string or a JSON number.
type FlexString string

func (f *FlexString) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*f = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = FlexString(n.String())
	return nil
}

func (f FlexString) String() string {
	return string(f)
}
