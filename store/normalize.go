package store

import (
	"net/url"
	"strings"
)

// NormalizePrefix decodes percent-encoded segments once, collapses
// consecutive slashes, ensures a leading slash and strips any
// trailing slash except for the root prefix "/". Callers (Router, the
// management API) apply this before invoking any Store method.
//
// Longest-prefix match semantics, applied by GetTarget implementations:
// a stored prefix P matches a request path R iff P == R, or R starts
// with P+"/", or P == "/". Among matches, the longest P wins.
func NormalizePrefix(raw string) string {
	if raw == "" {
		return "/"
	}

	decoded, err := url.PathUnescape(raw)
	if err == nil {
		raw = decoded
	}

	if !strings.HasPrefix(raw, "/") {
		raw = "/" + raw
	}

	raw = collapseSlashes(raw)

	if len(raw) > 1 && strings.HasSuffix(raw, "/") {
		raw = strings.TrimRight(raw, "/")
		if raw == "" {
			raw = "/"
		}
	}

	return raw
}

func collapseSlashes(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	prevSlash := false
	for _, r := range s {
		if r == '/' {
			if prevSlash {
				continue
			}
			prevSlash = true
		} else {
			prevSlash = false
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Segments splits a normalized prefix into its non-empty path
// segments, e.g. "/user/abc" -> ["user", "abc"], and "/" -> [].
func Segments(prefix string) []string {
	trimmed := strings.Trim(prefix, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

// Matches reports whether the normalized stored prefix matches the
// normalized request path under the longest-prefix rule of §4.1.
func Matches(prefix, path string) bool {
	if prefix == "/" || prefix == path {
		return true
	}
	return strings.HasPrefix(path, prefix+"/")
}
