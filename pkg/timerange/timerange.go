// Package timerange parses the time window expressions accepted for the query start bound.
package timerange

import (
	"math"
	"regexp"
	"strconv"
	"time"

	"github.com/araddon/dateparse"
	"github.com/pkg/errors"
)

// DefaultWindow is the window a fresh filter queries.
const DefaultWindow = "24h"

var relativeRe = regexp.MustCompile(`^(?:now-)?(\d+)([smhdwMy])$`)

// IsRelative reports whether expr is a relative window token such as "24h", "7d" or "now-30m".
func IsRelative(expr string) bool {
	return relativeRe.MatchString(expr)
}

// Duration converts a relative window token into a duration.
func Duration(expr string) (time.Duration, error) {
	matches := relativeRe.FindStringSubmatch(expr)
	if len(matches) != 3 {
		return 0, errors.Errorf("invalid relative window %q", expr)
	}
	value, err := strconv.Atoi(matches[1])
	if err != nil {
		return 0, errors.Wrapf(err, "invalid relative window %q", expr)
	}

	var unit time.Duration
	switch matches[2] {
	case "s":
		unit = time.Second
	case "m":
		unit = time.Minute
	case "h":
		unit = time.Hour
	case "d":
		unit = 24 * time.Hour
	case "w":
		unit = 7 * 24 * time.Hour
	case "M":
		unit = 30 * 24 * time.Hour
	case "y":
		unit = 365 * 24 * time.Hour
	}
	if int64(value) > math.MaxInt64/int64(unit) {
		return 0, errors.Errorf("relative window %q is too large", expr)
	}
	return time.Duration(value) * unit, nil
}

// Start resolves a start expression, either a relative window or any parsable timestamp,
// to an absolute time.
func Start(expr string, now time.Time) (time.Time, error) {
	if expr == "" {
		expr = DefaultWindow
	}
	if IsRelative(expr) {
		d, err := Duration(expr)
		if err != nil {
			return time.Time{}, err
		}
		return now.Add(-d), nil
	}
	t, err := dateparse.ParseAny(expr)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "can't parse start %q", expr)
	}
	return t, nil
}

// Validate checks that expr is usable as a start bound.
func Validate(expr string) error {
	_, err := Start(expr, time.Now())
	return err
}

// FormatISO renders a bound the way the log service expects absolute timestamps.
func FormatISO(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
