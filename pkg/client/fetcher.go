// Package client implements the single fetch operation the engine consumes from the log
// query service, over HTTP or directly against ClickHouse.
package client

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Slach/systemlogs-timeline/pkg/config"
	"github.com/Slach/systemlogs-timeline/pkg/logentry"
	"github.com/Slach/systemlogs-timeline/pkg/timerange"
	"github.com/pkg/errors"
)

// Params is one query against the log service. Empty fields are not sent.
type Params struct {
	Sources []logentry.Source
	// Start is a relative window token such as "24h" or an absolute timestamp.
	Start string
	// End is only set when a precise upper bound is known.
	End       time.Time
	Limit     int
	Direction string
	// Summary requests one row per trace.
	Summary   bool
	TraceID   string
	Types     []string
	Subtypes  []string
	Levels    []string
	Search    string
	UserID    int64
	GroupID   int64
	MessageID int64
	SessionID string
	IP        string
	Email     string
}

// Values encodes params as the flat key/value list of the fetch contract.
func (p Params) Values() url.Values {
	v := url.Values{}
	set := func(key, value string) {
		if value != "" {
			v.Set(key, value)
		}
	}
	setID := func(key string, id int64) {
		if id != 0 {
			v.Set(key, strconv.FormatInt(id, 10))
		}
	}

	set("sources", logentry.JoinSources(p.Sources))
	set("start", p.Start)
	if !p.End.IsZero() {
		v.Set("end", timerange.FormatISO(p.End))
	}
	if p.Limit > 0 {
		v.Set("limit", strconv.Itoa(p.Limit))
	}
	set("direction", p.Direction)
	if p.Summary {
		v.Set("summary", "true")
	}
	set("trace_id", p.TraceID)
	set("types", strings.Join(p.Types, ","))
	set("subtypes", strings.Join(p.Subtypes, ","))
	set("levels", strings.Join(p.Levels, ","))
	set("search", p.Search)
	setID("userid", p.UserID)
	setID("groupid", p.GroupID)
	setID("msgid", p.MessageID)
	set("session_id", p.SessionID)
	set("ip", p.IP)
	set("email", p.Email)
	return v
}

// Response carries summaries in summary mode and logs otherwise. Stats is passed through untouched.
type Response struct {
	Summaries []logentry.TraceSummary `json:"summaries,omitempty"`
	Logs      []logentry.LogEntry     `json:"logs,omitempty"`
	Stats     json.RawMessage         `json:"stats,omitempty"`
}

// Fetcher is the log query service.
type Fetcher interface {
	Fetch(ctx context.Context, params Params) (*Response, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, params Params) (*Response, error)

func (f FetcherFunc) Fetch(ctx context.Context, params Params) (*Response, error) {
	return f(ctx, params)
}

// New builds the fetcher for a configured context.
func New(cfg config.Context, version string) (Fetcher, error) {
	switch cfg.Kind {
	case config.KindService, "":
		return NewHTTPFetcher(cfg, version)
	case config.KindClickHouse:
		return NewClickHouseFetcher(cfg, version), nil
	}
	return nil, errors.Errorf("unsupported context kind %q", cfg.Kind)
}
