package proxy

import (
	"net"
	"net/http"
)

// hopHeaders lists headers whose semantics apply only to a single
// transport hop and which must never be forwarded, grounded on
// skipper's proxy.hopHeaders map. Upgrade is included; it is added
// back explicitly on the WebSocket upgrade path.
var hopHeaders = map[string]bool{
	"Te":                  true,
	"Connection":          true,
	"Proxy-Connection":    true,
	"Keep-Alive":          true,
	"Proxy-Authenticate":  true,
	"Proxy-Authorization": true,
	"Trailer":             true,
	"Trailers":            true,
	"Transfer-Encoding":   true,
	"Upgrade":             true,
}

func copyHeaderExcluding(to, from http.Header, exclude map[string]bool) {
	for k, vv := range from {
		if exclude[k] {
			continue
		}
		to[k] = append([]string(nil), vv...)
	}
}

func cloneHeaderExcluding(h http.Header, exclude map[string]bool) http.Header {
	hh := make(http.Header, len(h))
	copyHeaderExcluding(hh, h, exclude)
	return hh
}

// forwardedHeaders sets the X-Forwarded-* family on an outgoing
// request, grounded on net.ForwardedHeaders.Set.
type forwardedHeaders struct {
	// enabled toggles the entire X-Forward family, per --no-x-forward.
	enabled bool
	proto   string
}

func (f forwardedHeaders) apply(req *http.Request, edgeHost, edgePort string) {
	if !f.enabled {
		return
	}

	if req.RemoteAddr != "" {
		addr := req.RemoteAddr
		if host, _, err := net.SplitHostPort(req.RemoteAddr); err == nil {
			addr = host
		}
		if v := req.Header.Get("X-Forwarded-For"); v != "" {
			req.Header.Set("X-Forwarded-For", v+", "+addr)
		} else {
			req.Header.Set("X-Forwarded-For", addr)
		}
	}

	req.Header.Set("X-Forwarded-Host", edgeHost)
	req.Header.Set("X-Forwarded-Proto", f.proto)
	if edgePort != "" {
		req.Header.Set("X-Forwarded-Port", edgePort)
	}
}

// applyCustomHeaders sets configuration-supplied headers last, so
// they win over anything computed above.
func applyCustomHeaders(h http.Header, custom map[string]string) {
	for k, v := range custom {
		h.Set(k, v)
	}
}
