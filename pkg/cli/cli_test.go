package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Slach/systemlogs-timeline/pkg/classify"
	"github.com/Slach/systemlogs-timeline/pkg/client"
	"github.com/Slach/systemlogs-timeline/pkg/config"
	"github.com/Slach/systemlogs-timeline/pkg/logentry"
	"github.com/Slach/systemlogs-timeline/pkg/models"
	"github.com/Slach/systemlogs-timeline/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaults(t *testing.T) config.Defaults {
	t.Helper()
	cfg, err := config.Parse([]byte("contexts: []\n"))
	require.NoError(t, err)
	return cfg.Defaults
}

func TestBuildFilter(t *testing.T) {
	tests := []struct {
		name    string
		cli     types.CLI
		check   func(t *testing.T, f models.Filter)
		wantErr bool
	}{
		{
			name: "config defaults",
			cli:  types.CLI{},
			check: func(t *testing.T, f models.Filter) {
				assert.Equal(t, logentry.DefaultSources, f.Sources)
				assert.Equal(t, "24h", f.TimeRange)
				assert.Equal(t, models.Backward, f.Direction)
				assert.Equal(t, classify.AppBoth, f.AppSource)
				assert.True(t, f.CollapseDuplicates)
				assert.False(t, f.ShowPolling)
			},
		},
		{
			name: "flags override",
			cli: types.CLI{RangeOption: "7d", Filter: types.FilterParams{
				Sources:     "api,email",
				Direction:   "forward",
				AppSource:   "mt",
				ShowPolling: true,
				NoCollapse:  true,
				UserID:      42,
				Email:       "a@example.com",
			}},
			check: func(t *testing.T, f models.Filter) {
				assert.Equal(t, []logentry.Source{logentry.SourceAPI, logentry.SourceEmail}, f.Sources)
				assert.Equal(t, "7d", f.TimeRange)
				assert.Equal(t, models.Forward, f.Direction)
				assert.Equal(t, classify.AppModTools, f.AppSource)
				assert.True(t, f.ShowPolling)
				assert.False(t, f.CollapseDuplicates)
				assert.Equal(t, int64(42), f.UserID)
				assert.Equal(t, "a@example.com", f.Email)
			},
		},
		{
			name: "absolute window",
			cli:  types.CLI{FromTime: "2026-03-04T10:00:00Z", ToTime: "2026-03-04T11:00:00Z"},
			check: func(t *testing.T, f models.Filter) {
				assert.Equal(t, "2026-03-04T10:00:00Z", f.TimeRange)
				assert.Equal(t, time.Date(2026, 3, 4, 11, 0, 0, 0, time.UTC), f.Until)
			},
		},
		{name: "bad source", cli: types.CLI{Filter: types.FilterParams{Sources: "fax"}}, wantErr: true},
		{name: "bad range", cli: types.CLI{RangeOption: "forever"}, wantErr: true},
		{name: "bad direction", cli: types.CLI{Filter: types.FilterParams{Direction: "sideways"}}, wantErr: true},
		{name: "bad app", cli: types.CLI{Filter: types.FilterParams{AppSource: "xx"}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := BuildFilter(defaults(t), &tt.cli)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.check(t, f)
		})
	}
}

type recordingFetcher struct {
	mu    sync.Mutex
	calls []client.Params
}

func (f *recordingFetcher) Fetch(_ context.Context, p client.Params) (*client.Response, error) {
	f.mu.Lock()
	f.calls = append(f.calls, p)
	f.mu.Unlock()

	ts := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)
	parent := logentry.LogEntry{ID: "1", Source: logentry.SourceClient, TraceID: "t1", Timestamp: ts, UserID: 7,
		Raw: logentry.Raw{"event_type": "click"}}
	child := logentry.LogEntry{ID: "2", Source: logentry.SourceAPI, TraceID: "t1", Timestamp: ts.Add(time.Second), UserID: 7, GroupID: 3,
		Raw: logentry.Raw{"method": "POST", "endpoint": "/api/message"}}
	if p.Summary {
		return &client.Response{Summaries: []logentry.TraceSummary{{
			TraceID: "t1", FirstLog: parent, ChildCount: 2,
			Sources:        []logentry.Source{logentry.SourceClient, logentry.SourceAPI},
			FirstTimestamp: ts, LastTimestamp: ts.Add(time.Second),
		}}}, nil
	}
	return &client.Response{Logs: []logentry.LogEntry{parent, child}}, nil
}

func runCommand(t *testing.T, args ...string) (string, *recordingFetcher) {
	t.Helper()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("contexts:\n  - name: test\n    url: http://localhost/logs\n"), 0644))

	fetcher := &recordingFetcher{}
	factory := func(cfg config.Context, version string) (client.Fetcher, error) {
		assert.Equal(t, "test", cfg.Name)
		return fetcher, nil
	}
	cmd := newRootCommand(&types.CLI{}, "test", factory)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs(append([]string{"--config", cfgPath, "--log", "-", "--color", "never"}, args...))
	require.NoError(t, cmd.Execute())
	return out.String(), fetcher
}

func TestSummariesCommand(t *testing.T) {
	out, fetcher := runCommand(t, "summaries", "--expand", "t1")

	require.Len(t, fetcher.calls, 2)
	assert.True(t, fetcher.calls[0].Summary)
	assert.Equal(t, "t1", fetcher.calls[1].TraceID)
	assert.Equal(t, "2026-03-04T12:00:00Z", fetcher.calls[1].Start)
	assert.Equal(t, time.Date(2026, 3, 4, 12, 0, 1, 0, time.UTC), fetcher.calls[1].End)
	assert.Contains(t, out, "▾ 2026-03-04 12:00:00.000  client     click user=7  [t1  2 entries  client,api]\n")
	assert.Contains(t, out, "    2026-03-04 12:00:01.000  api        POST /api/message user=7\n")
}

func TestTraceCommand(t *testing.T) {
	out, fetcher := runCommand(t, "trace", "t1", "--from", "2026-03-04T11:59:00Z", "--to", "2026-03-04T12:01:00Z")

	require.Len(t, fetcher.calls, 1)
	p := fetcher.calls[0]
	assert.Equal(t, "t1", p.TraceID)
	assert.Equal(t, "2026-03-04T11:59:00Z", p.Start)
	assert.Equal(t, time.Date(2026, 3, 4, 12, 1, 0, 0, time.UTC), p.End)
	assert.Contains(t, out, "POST /api/message")
}

func TestFlatCommandGroupBy(t *testing.T) {
	out, fetcher := runCommand(t, "flat", "--group-by", "trace")

	require.Len(t, fetcher.calls, 1)
	assert.False(t, fetcher.calls[0].Summary)
	assert.Contains(t, out, "t1 (2)\n")
}

func TestIDsCommand(t *testing.T) {
	out, _ := runCommand(t, "ids", "--flat")
	assert.Equal(t, "users: 7\ngroups: 3\nmessages: \n", out)
}

func TestDetailsFlag(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		contains []string
		missing  []string
	}{
		{
			name:    "hidden by default",
			args:    []string{"flat"},
			missing: []string{`"endpoint"`, `"event_type"`},
		},
		{
			name:     "one entry",
			args:     []string{"flat", "--details", "2"},
			contains: []string{`"endpoint": "/api/message"`},
			missing:  []string{`"event_type"`},
		},
		{
			name:     "repeated id stays shown",
			args:     []string{"flat", "--details", "2,1", "--details", "2"},
			contains: []string{`"endpoint": "/api/message"`, `"event_type": "click"`},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, _ := runCommand(t, tt.args...)
			for _, s := range tt.contains {
				assert.Contains(t, out, s)
			}
			for _, s := range tt.missing {
				assert.NotContains(t, out, s)
			}
		})
	}
}
