package logentry

import (
	"strings"

	"github.com/pkg/errors"
)

// Source identifies which subsystem produced a log entry.
type Source uint8

const (
	SourceUnknown Source = iota
	SourceClient
	SourceAPI
	SourceLogsTable
	SourceEmail
	SourceBatch
	SourceBatchEvent
)

var sourceNames = [...]string{
	SourceUnknown:    "unknown",
	SourceClient:     "client",
	SourceAPI:        "api",
	SourceLogsTable:  "logs_table",
	SourceEmail:      "email",
	SourceBatch:      "batch",
	SourceBatchEvent: "batch_event",
}

// AllSources lists every known source in display order.
var AllSources = []Source{SourceClient, SourceAPI, SourceLogsTable, SourceEmail, SourceBatch, SourceBatchEvent}

// DefaultSources is the source set a fresh filter queries.
var DefaultSources = []Source{SourceClient, SourceAPI, SourceLogsTable, SourceEmail, SourceBatch}

func (s Source) String() string {
	if int(s) < len(sourceNames) {
		return sourceNames[s]
	}
	return sourceNames[SourceUnknown]
}

// ParseSource maps a wire name to a Source. Unknown names yield SourceUnknown and an error.
func ParseSource(name string) (Source, error) {
	name = strings.TrimSpace(name)
	for i, n := range sourceNames {
		if i > 0 && n == name {
			return Source(i), nil
		}
	}
	return SourceUnknown, errors.Errorf("unknown log source %q", name)
}

// ParseSources parses a comma separated list, skipping blanks.
func ParseSources(list string) ([]Source, error) {
	var out []Source
	for _, part := range strings.Split(list, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		s, err := ParseSource(part)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// JoinSources renders sources the way the log service expects them.
func JoinSources(sources []Source) string {
	names := make([]string, 0, len(sources))
	for _, s := range sources {
		names = append(names, s.String())
	}
	return strings.Join(names, ",")
}

func (s Source) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText never fails: sources the engine does not know about decode to SourceUnknown
// so one odd row cannot break a whole response.
func (s *Source) UnmarshalText(b []byte) error {
	parsed, err := ParseSource(string(b))
	if err != nil {
		*s = SourceUnknown
		return nil
	}
	*s = parsed
	return nil
}
