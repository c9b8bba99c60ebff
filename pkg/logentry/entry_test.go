package logentry

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeLogEntry(t *testing.T) {
	payload := `{
		"id": 12345,
		"source": "api",
		"level": "info",
		"timestamp": "2026-01-02T10:00:00.123Z",
		"user_id": 42,
		"trace_id": "abc",
		"raw": {"method": "GET", "endpoint": "/api/user", "status_code": 200, "query_params": {"modtools": "true"}}
	}`

	var e LogEntry
	require.NoError(t, json.Unmarshal([]byte(payload), &e))
	assert.Equal(t, FlexString("12345"), e.ID)
	assert.Equal(t, SourceAPI, e.Source)
	assert.Equal(t, int64(42), e.UserID)
	assert.Equal(t, "42", e.UserKey())
	assert.Equal(t, time.Date(2026, 1, 2, 10, 0, 0, 123000000, time.UTC), e.Timestamp)
	assert.Equal(t, "GET", e.Raw.Str("method"))
	status, ok := e.Raw.Float("status_code")
	assert.True(t, ok)
	assert.Equal(t, 200.0, status)
	assert.Equal(t, "true", e.Raw.Map("query_params").Str("modtools"))
	assert.Nil(t, e.Raw.Map("request_body"))
}

func TestDecodeUnknownSource(t *testing.T) {
	var e LogEntry
	require.NoError(t, json.Unmarshal([]byte(`{"id":"x","source":"carrier_pigeon","timestamp":"2026-01-02T10:00:00Z"}`), &e))
	assert.Equal(t, SourceUnknown, e.Source)
	assert.Equal(t, "anon", e.UserKey())
}

func TestParseSources(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []Source
		wantErr bool
	}{
		{name: "empty", input: "", want: nil},
		{name: "all", input: "client,api,logs_table,email,batch,batch_event", want: AllSources},
		{name: "spaces and blanks", input: " api , ,email", want: []Source{SourceAPI, SourceEmail}},
		{name: "unknown", input: "api,nope", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSources(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
	assert.Equal(t, "client,api,logs_table,email,batch", JoinSources(DefaultSources))
}

func TestRawAccessors(t *testing.T) {
	r := Raw{"ms": "1200", "flag": true, "n": float64(3), "nil": nil}
	f, ok := r.Float("ms")
	assert.True(t, ok)
	assert.Equal(t, 1200.0, f)
	_, ok = r.Float("flag")
	assert.False(t, ok)
	assert.Equal(t, "true", r.Str("flag"))
	assert.Equal(t, "3", r.Str("n"))
	assert.Equal(t, "", r.Str("nil"))
	assert.Equal(t, "", r.Str("missing"))
}
