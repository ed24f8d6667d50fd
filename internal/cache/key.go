package cache

import (
	"net/http"
	"strings"
)

// Key canonicalizes a request into a cache key: method, path and query.
// The gateway fronts a single origin, so host is deliberately not part of
// the key; clients addressing the gateway by different hostnames must hit
// the same entries, and install-time precache has no client host at all.
func Key(req *http.Request) string {
	if req == nil {
		return ""
	}
	path := "/"
	query := ""
	if req.URL != nil {
		if req.URL.Path != "" {
			path = req.URL.Path
		}
		query = req.URL.RawQuery
	}
	return PathKey(req.Method, path, query)
}

// KeyPath recovers the request path from a key built by Key or PathKey,
// without the query string. Sweeps use it to scope expiry to API entries.
func KeyPath(key string) string {
	_, target, ok := strings.Cut(key, "|u=")
	if !ok {
		return ""
	}
	if i := strings.IndexByte(target, '?'); i >= 0 {
		target = target[:i]
	}
	return target
}

func PathKey(method, path, query string) string {
	if path == "" {
		path = "/"
	}
	var builder strings.Builder
	builder.Grow(len(method) + len(path) + len(query) + 8)
	builder.WriteString("m=")
	builder.WriteString(strings.ToUpper(method))
	builder.WriteString("|u=")
	builder.WriteString(path)
	if query != "" {
		builder.WriteString("?")
		builder.WriteString(query)
	}
	return builder.String()
}
