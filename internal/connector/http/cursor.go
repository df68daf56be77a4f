package http

import (
	"net/http"
	"net/url"
	"regexp"
	"strings"
)

// linkRegex matches one entry of a Link header: <url>; rel="name".
var linkRegex = regexp.MustCompile(`<([^>]+)>;\s*rel="([^"]+)"`)

// NextCursor returns the rel="next" target of the Link headers, or "" when
// there is no further page.
func NextCursor(h http.Header) string {
	for _, value := range h.Values("Link") {
		for _, m := range linkRegex.FindAllStringSubmatch(value, -1) {
			if m[2] == "next" {
				return m[1]
			}
		}
	}
	return ""
}

// ResolveCursor makes a relative cursor absolute against baseURL.
func ResolveCursor(baseURL, cursor string) string {
	if cursor == "" {
		return ""
	}
	u, err := url.Parse(cursor)
	if err == nil && u.IsAbs() {
		return cursor
	}
	return strings.TrimSuffix(baseURL, "/") + "/" + strings.TrimPrefix(cursor, "/")
}
