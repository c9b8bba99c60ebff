// Package classify labels log entries as polling noise and by originating application.
// Every function here is pure: the same entry always yields the same answer.
package classify

import (
	"strings"

	"github.com/Slach/systemlogs-timeline/pkg/logentry"
	"github.com/pkg/errors"
)

// AppSource selects which application's entries are displayed.
type AppSource string

const (
	AppFreegle  AppSource = "fd"
	AppModTools AppSource = "mt"
	AppBoth     AppSource = "both"
)

// ParseAppSource validates an app source selector. Empty means both.
func ParseAppSource(s string) (AppSource, error) {
	switch AppSource(s) {
	case "":
		return AppBoth, nil
	case AppFreegle, AppModTools, AppBoth:
		return AppSource(s), nil
	}
	return AppBoth, errors.Errorf("unknown app source %q, expected fd, mt or both", s)
}

// pollingEndpoints are the count, status, online and chat list endpoints clients hit on a timer.
var pollingEndpoints = []string{
	"/message/count",
	"/notification/count",
	"/chatrooms/count",
	"/chat/rooms/count",
	"/status",
	"/online",
	"/chatrooms",
	"/chat/rooms",
}

// modToolsPathSegment appears in every page URL served by the moderation tool.
const modToolsPathSegment = "/modtools"

type actionKey struct {
	typ, subtype string
}

// moderatorActions can only be performed by a moderator.
var moderatorActions = map[actionKey]struct{}{
	{"Message", "Approved"}:       {},
	{"Message", "Rejected"}:       {},
	{"Message", "Hold"}:           {},
	{"Message", "Release"}:        {},
	{"Message", "ClassifiedSpam"}: {},
	{"User", "Approved"}:          {},
	{"User", "Rejected"}:          {},
	{"User", "Suspect"}:           {},
	{"User", "Mailed"}:            {},
	{"User", "Hold"}:              {},
	{"User", "Release"}:           {},
	{"User", "RoleChange"}:        {},
	{"Group", "Edit"}:             {},
	{"Config", "Created"}:         {},
	{"Config", "Deleted"}:         {},
	{"Config", "Edit"}:            {},
	{"StdMsg", "Created"}:         {},
	{"StdMsg", "Deleted"}:         {},
	{"StdMsg", "Edit"}:            {},
	{"Chat", "Approved"}:          {},
}

// APIPath returns the request path recorded on an api entry.
func APIPath(raw logentry.Raw) string {
	for _, key := range []string{"endpoint", "path", "call"} {
		if p := raw.Str(key); p != "" {
			return p
		}
	}
	return ""
}

func stripAPIPrefix(path string) string {
	for _, prefix := range []string{"/apiv2", "/api"} {
		if rest, ok := strings.CutPrefix(path, prefix); ok && (rest == "" || rest[0] == '/' || rest[0] == '?') {
			return rest
		}
	}
	return path
}

// IsPolling reports whether an entry is an api call to one of the polling endpoints.
func IsPolling(e logentry.LogEntry) bool {
	if e.Source != logentry.SourceAPI {
		return false
	}
	path := stripAPIPrefix(APIPath(e.Raw))
	for _, p := range pollingEndpoints {
		if path == p {
			return true
		}
		if rest, ok := strings.CutPrefix(path, p); ok && (rest[0] == '?' || rest[0] == '/') {
			return true
		}
	}
	return false
}

// IsModTools reports whether an entry originates from the moderation tool.
func IsModTools(e logentry.LogEntry) bool {
	switch e.Source {
	case logentry.SourceClient:
		return strings.Contains(PageURL(e.Raw), modToolsPathSegment)
	case logentry.SourceAPI:
		for _, bag := range []string{"query_params", "request_body"} {
			if decided, value := modToolsFlag(e.Raw.Map(bag)); decided {
				return value
			}
		}
		return false
	case logentry.SourceLogsTable:
		if _, ok := moderatorActions[actionKey{e.Type, e.Subtype}]; ok {
			return true
		}
		return e.ByUserID != 0 && e.ByUserID != e.UserID
	case logentry.SourceEmail, logentry.SourceBatch, logentry.SourceBatchEvent, logentry.SourceUnknown:
		return false
	}
	return false
}

// PageURL returns the page a client entry fired on.
func PageURL(raw logentry.Raw) string {
	if u := raw.Str("url"); u != "" {
		return u
	}
	return raw.Str("page_url")
}

// modToolsFlag decodes the modtools request flag. decided is false when the flag is
// missing or uses an encoding we do not recognise.
func modToolsFlag(bag logentry.Raw) (decided, value bool) {
	v, ok := bag.Lookup("modtools")
	if !ok {
		return false, false
	}
	switch t := v.(type) {
	case bool:
		return true, t
	case float64:
		switch t {
		case 1:
			return true, true
		case 0:
			return true, false
		}
	case int:
		switch t {
		case 1:
			return true, true
		case 0:
			return true, false
		}
	case string:
		switch t {
		case "true", "1":
			return true, true
		case "false", "0":
			return true, false
		}
	}
	return false, false
}

// MatchesAppSource reports whether an entry belongs to the selected application.
// Entries whose origin cannot be determined count as end-user application entries.
func MatchesAppSource(e logentry.LogEntry, app AppSource) bool {
	switch app {
	case AppModTools:
		return IsModTools(e)
	case AppFreegle:
		return !IsModTools(e)
	}
	return true
}

// Visible combines the polling and app source display filters.
func Visible(e logentry.LogEntry, showPolling bool, app AppSource) bool {
	if !showPolling && IsPolling(e) {
		return false
	}
	return MatchesAppSource(e, app)
}
