package cli

import (
	"strings"

	"github.com/Slach/systemlogs-timeline/pkg/classify"
	"github.com/Slach/systemlogs-timeline/pkg/config"
	"github.com/Slach/systemlogs-timeline/pkg/logentry"
	"github.com/Slach/systemlogs-timeline/pkg/models"
	"github.com/Slach/systemlogs-timeline/pkg/timerange"
	"github.com/Slach/systemlogs-timeline/pkg/types"
	"github.com/pkg/errors"
)

// BuildFilter starts from the config defaults and applies the command line on top.
func BuildFilter(d config.Defaults, cli *types.CLI) (models.Filter, error) {
	f := models.DefaultFilter()
	p := cli.Filter

	sourceList := p.Sources
	if sourceList == "" {
		sourceList = strings.Join(d.Sources, ",")
	}
	if sourceList != "" {
		sources, err := logentry.ParseSources(sourceList)
		if err != nil {
			return f, errors.Wrap(err, "--sources")
		}
		f.Sources = sources
	}

	if d.TimeRange != "" {
		f.TimeRange = d.TimeRange
	}
	if cli.RangeOption != "" {
		if err := timerange.Validate(cli.RangeOption); err != nil {
			return f, errors.Wrap(err, "--range")
		}
		f.TimeRange = cli.RangeOption
	}
	if cli.FromTime != "" {
		from, err := cli.ParseFromTime()
		if err != nil {
			return f, errors.Wrap(err, "--from")
		}
		f.TimeRange = timerange.FormatISO(from)
	}
	if cli.ToTime != "" {
		to, err := cli.ParseToTime()
		if err != nil {
			return f, errors.Wrap(err, "--to")
		}
		f.Until = to
	}

	direction := p.Direction
	if direction == "" {
		direction = d.Direction
	}
	switch models.Direction(direction) {
	case "":
	case models.Backward, models.Forward:
		f.Direction = models.Direction(direction)
	default:
		return f, errors.Errorf("--direction must be backward or forward, got %q", direction)
	}

	app := p.AppSource
	if app == "" {
		app = d.AppSource
	}
	appSource, err := classify.ParseAppSource(app)
	if err != nil {
		return f, errors.Wrap(err, "--app")
	}
	f.AppSource = appSource

	f.ShowPolling = d.ShowPolling || p.ShowPolling
	if d.CollapseDuplicates != nil {
		f.CollapseDuplicates = *d.CollapseDuplicates
	}
	if p.NoCollapse {
		f.CollapseDuplicates = false
	}

	f.Types = p.Types
	f.Subtypes = p.Subtypes
	f.Levels = p.Levels
	f.Search = p.Search
	f.UserID = p.UserID
	f.GroupID = p.GroupID
	f.MessageID = p.MessageID
	f.TraceID = p.TraceID
	f.SessionID = p.SessionID
	f.IPAddress = p.IPAddress
	f.Email = p.Email
	return f, nil
}
