package classify

import (
	"strings"

	"github.com/Slach/systemlogs-timeline/pkg/logentry"
)

// LevelClass is the severity bucket used to style an entry.
type LevelClass string

const (
	LevelNormal  LevelClass = ""
	LevelDanger  LevelClass = "danger"
	LevelWarning LevelClass = "warning"
	LevelMuted   LevelClass = "muted"
)

// ClassifyLevel buckets an entry by severity. API entries ignore their level field: only a 5xx
// status or a non-zero v1 ret code counts as an error, and ret=1 from an auth check just means
// "not logged in".
func ClassifyLevel(e logentry.LogEntry) LevelClass {
	if e.Source == logentry.SourceAPI {
		status, ok := e.Raw.Float("status_code")
		if !ok {
			status, ok = e.Raw.Float("status")
		}
		if !ok {
			status = 200
		}

		ret, hasRet := e.Raw.Map("response_body").Float("ret")
		if !hasRet {
			ret, hasRet = e.Raw.Float("ret")
		}

		endpoint := APIPath(e.Raw)
		authCheck := strings.Contains(endpoint, "/session") || endpoint == "/api/user"
		if status >= 500 || (hasRet && ret != 0 && !(authCheck && ret == 1)) {
			return LevelDanger
		}
		return LevelNormal
	}

	switch e.Level {
	case "error":
		return LevelDanger
	case "warn":
		return LevelWarning
	case "debug":
		return LevelMuted
	}
	return LevelNormal
}
