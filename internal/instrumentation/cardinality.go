package instrumentation

import (
	"regexp"
	"strings"
)

// Label normalisation keeps metric and span label sets bounded. Fitbit
// paths embed dates and user ids; MCP paths are a fixed set.

var (
	datePattern = regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`)
	userPattern = regexp.MustCompile(`/user/[^/]+/`)
)

// knownPaths are the HTTP routes served by the process.
var knownPaths = map[string]struct{}{
	"/":                 {},
	"/mcp":              {},
	"/auth":             {},
	"/callback":         {},
	"/healthz":          {},
	"/healthz/detailed": {},
	"/readyz":           {},
	"/metrics":          {},
}

// EndpointLabel reduces a Fitbit API path to a low-cardinality template.
//
//	EndpointLabel("/1/user/-/body/log/weight/date/2024-01-01/30d.json")
//	// "/1/user/{user}/body/log/weight/date/{date}/30d.json"
func EndpointLabel(path string) string {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "unknown"
	}
	path = userPattern.ReplaceAllString(path, "/user/{user}/")
	return datePattern.ReplaceAllString(path, "{date}")
}

// PathLabel maps an inbound request path to itself when it is a known route
// and to "other" otherwise.
func PathLabel(path string) string {
	if _, ok := knownPaths[path]; ok {
		return path
	}
	return "other"
}
