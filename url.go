package usefetch

import (
	"regexp"
	"strings"
)

// absoluteURL matches a scheme prefix such as https:// or ws://
var absoluteURL = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.-]*://`)

// ResolveURL joins path onto baseURL with exactly one slash between them.
// An empty baseURL, or a path that already carries a scheme, returns path
// unchanged. An empty path returns "".
func ResolveURL(baseURL, path string) string {
	if path == "" {
		return ""
	}
	if baseURL == "" || absoluteURL.MatchString(path) {
		return path
	}
	return strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(path, "/")
}
