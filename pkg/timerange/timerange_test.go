package timerange

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStart(t *testing.T) {
	now := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		expr    string
		want    time.Time
		wantErr bool
	}{
		{name: "default", expr: "", want: now.Add(-24 * time.Hour)},
		{name: "hours", expr: "24h", want: now.Add(-24 * time.Hour)},
		{name: "minutes", expr: "30m", want: now.Add(-30 * time.Minute)},
		{name: "days", expr: "7d", want: now.Add(-7 * 24 * time.Hour)},
		{name: "weeks", expr: "2w", want: now.Add(-14 * 24 * time.Hour)},
		{name: "grafana style", expr: "now-1h", want: now.Add(-time.Hour)},
		{name: "iso", expr: "2026-05-01T08:30:00Z", want: time.Date(2026, 5, 1, 8, 30, 0, 0, time.UTC)},
		{name: "garbage", expr: "yesterday-ish", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Start(tt.expr, now)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %s want %s", got, tt.want)
		})
	}
}

func TestDuration(t *testing.T) {
	tests := []struct {
		expr    string
		want    time.Duration
		wantErr bool
	}{
		{expr: "90s", want: 90 * time.Second},
		{expr: "6M", want: 180 * 24 * time.Hour},
		{expr: "292y", want: 292 * 365 * 24 * time.Hour},
		{expr: "293y", wantErr: true},
		{expr: "999999999y", wantErr: true},
		{expr: "99999999999999999999s", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := Duration(tt.expr)
			if tt.wantErr {
				require.Error(t, err)
				assert.Zero(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
	require.Error(t, Validate("999999999y"))
}

func TestIsRelative(t *testing.T) {
	assert.True(t, IsRelative("1h"))
	assert.True(t, IsRelative("now-6M"))
	assert.False(t, IsRelative("2026-01-01"))
	assert.False(t, IsRelative("h"))
}

func TestFormatISO(t *testing.T) {
	loc := time.FixedZone("X", 3600)
	assert.Equal(t, "2026-01-01T09:00:00.5Z", FormatISO(time.Date(2026, 1, 1, 10, 0, 0, 500000000, loc)))
}
