package types

import (
	"time"

	"github.com/araddon/dateparse"
)

type CLI struct {
	FromTime    string
	ToTime      string
	RangeOption string
	ConnectTo   string
	ConfigPath  string
	LogPath     string
	LogLevel    string
	Pprof       bool
	PprofPath   string
	Color       string // auto, always or never
	ShowRaw     bool
	Details     []string // entry ids whose raw payload is printed
	Timezone    string
	Filter      FilterParams
}

// FilterParams are the query and display filters given on the command line. Empty values
// leave the configured defaults alone.
type FilterParams struct {
	Sources     string
	Types       []string
	Subtypes    []string
	Levels      []string
	Search      string
	UserID      int64
	GroupID     int64
	MessageID   int64
	TraceID     string
	SessionID   string
	IPAddress   string
	Email       string
	Direction   string
	ShowPolling bool
	AppSource   string
	NoCollapse  bool
	Limit       int
	Expand      []string
	ExpandAll   bool
	Pages       int
}

func (c *CLI) ParseFromTime() (time.Time, error) {
	return dateparse.ParseAny(c.FromTime)
}

func (c *CLI) ParseToTime() (time.Time, error) {
	return dateparse.ParseAny(c.ToTime)
}
