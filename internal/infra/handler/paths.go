package handler

import "strings"

// normalizeAPIBasePath canonicalizes a configured base path: a leading slash,
// no trailing one. Empty input stays empty so callers can tell "unset" apart
// from "/".
func normalizeAPIBasePath(value string) string {
	p := strings.TrimSpace(value)
	switch p {
	case "", "/":
		return p
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return strings.TrimRight(p, "/")
}

func joinAPIPath(basePath, route string) string {
	if !strings.HasPrefix(route, "/") {
		route = "/" + route
	}
	base := normalizeAPIBasePath(basePath)
	if base == "" || base == "/" {
		return route
	}
	return base + route
}
