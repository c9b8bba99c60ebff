package timezone

import (
	"os"
	"runtime"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	// Local selects the zone the machine is configured with.
	Local      = "local"
	zonePrefix = "zoneinfo/"
)

// Load resolves a --tz value: empty or "UTC" is UTC, "local" is the system zone, anything
// else an IANA name such as "Europe/London".
func Load(name string) (*time.Location, error) {
	switch strings.ToLower(name) {
	case "", "utc":
		return time.UTC, nil
	case Local:
		return loadLocal(), nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load timezone %q", name)
	}
	return loc, nil
}

// loadLocal prefers the IANA name of the system zone so that timestamps carry a real zone
// abbreviation; it falls back to time.Local.
func loadLocal() *time.Location {
	name := currentZoneName()
	if name == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		log.Debug().Err(err).Str("zone", name).Msg("can't load system timezone, using time.Local")
		return time.Local
	}
	return loc
}

func currentZoneName() string {
	if tz := os.Getenv("TZ"); tz != "" {
		return strings.TrimPrefix(tz, ":")
	}
	switch runtime.GOOS {
	case "linux", "darwin", "freebsd", "netbsd", "openbsd", "dragonfly":
		return zoneFromLink("/etc/localtime")
	}
	return ""
}

// zoneFromLink extracts "Area/City" from a symlink into a zoneinfo directory.
func zoneFromLink(path string) string {
	target, err := os.Readlink(path)
	if err != nil {
		return ""
	}
	return zoneFromPath(target)
}

func zoneFromPath(target string) string {
	idx := strings.LastIndex(target, zonePrefix)
	if idx == -1 {
		return ""
	}
	return target[idx+len(zonePrefix):]
}
