package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Slach/systemlogs-timeline/pkg/types"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTextWriter(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "header and sorted fields",
			input:    `{"time":"1700000000000","level":"warn","caller":"pkg/session/session.go:10","message":"can't fetch trace detail","trace_id":"t1","attempt":2}`,
			expected: "1700000000000 WARN pkg/session/session.go:10 > can't fetch trace detail attempt=2 trace_id=t1\n",
		},
		{
			name:     "multiline field becomes a block",
			input:    `{"level":"debug","message":"summary query","query":"SELECT 1\nFROM t"}`,
			expected: "DEBUG summary query\n  query:\n    SELECT 1\n    FROM t\n",
		},
		{
			name:     "not json is passed through",
			input:    "plain text\n",
			expected: "plain text\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			w := &textWriter{Out: &out}
			n, err := w.Write([]byte(tt.input))
			require.NoError(t, err)
			assert.Equal(t, len(tt.input), n)
			assert.Equal(t, tt.expected, out.String())
		})
	}
}

func TestSetLevel(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	require.NoError(t, SetLevel("DEBUG"))
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())
	require.NoError(t, SetLevel(""))
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
	require.Error(t, SetLevel("loud"))
}

func TestInitLogFile(t *testing.T) {
	saved := log.Logger
	defer func() { log.Logger = saved }()
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	path := filepath.Join(t.TempDir(), "nested", "app.log")
	require.NoError(t, InitLogFile(&types.CLI{LogPath: path, LogLevel: "info"}, "1.2.3"))
	log.Info().Str("trace_id", "t1").Msg("hello")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	line := string(data)
	assert.True(t, strings.Contains(line, "INFO"), line)
	assert.Contains(t, line, "hello")
	assert.Contains(t, line, "trace_id=t1")
	assert.Contains(t, line, "version=1.2.3")
}

func TestDefaultLogPath(t *testing.T) {
	assert.Equal(t, filepath.Join("/home/u", ".systemlogs-timeline", "systemlogs-timeline.log"), DefaultLogPath("/home/u"))
}
