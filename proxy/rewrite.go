package proxy

import (
	"net/url"
	"strings"
)

// rewriteOptions controls upstream path construction, mirroring the
// prependPath/includePrefix flags.
type rewriteOptions struct {
	prependPath   bool
	includePrefix bool
}

// upstreamURL builds the URL the request is forwarded to, given the
// matched prefix, its target origin, and the full incoming request
// path (with query/fragment preserved verbatim by the caller).
func upstreamURL(target, matchPrefix, requestPath string, opt rewriteOptions) (*url.URL, error) {
	base, err := url.Parse(target)
	if err != nil {
		return nil, err
	}

	suffix := requestPath
	if matchPrefix != "/" {
		suffix = strings.TrimPrefix(requestPath, matchPrefix)
	}

	if opt.includePrefix && matchPrefix != "/" {
		suffix = matchPrefix + suffix
	}

	out := *base
	if opt.prependPath {
		out.Path = joinPath(base.Path, suffix)
	} else {
		out.Path = suffix
	}
	out.Scheme = normalizeScheme(out.Scheme)
	return &out, nil
}

// normalizeScheme maps the ws/http equivalence spec.md requires down to
// the schemes http.Transport.RoundTrip actually accepts: "ws" carries no
// extra semantics over "http" until a request is an Upgrade, which is
// handled separately via a raw dial, so both upstreamURL's callers can
// treat it as plain "http"/"https".
func normalizeScheme(scheme string) string {
	switch scheme {
	case "ws":
		return "http"
	case "wss":
		return "https"
	default:
		return scheme
	}
}

func joinPath(a, b string) string {
	switch {
	case a == "" || a == "/":
		if !strings.HasPrefix(b, "/") {
			return "/" + b
		}
		return b
	case strings.HasSuffix(a, "/") && strings.HasPrefix(b, "/"):
		return a + b[1:]
	case !strings.HasSuffix(a, "/") && !strings.HasPrefix(b, "/") && b != "":
		return a + "/" + b
	default:
		return a + b
	}
}
