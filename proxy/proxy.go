// Package proxy is the data plane: it accepts client connections,
// resolves a route through a router.Router, rewrites the request per
// the configured path and header rules, and forwards it to the
// matched upstream, streaming the response back (or, for a WebSocket
// upgrade, relaying opaque bytes in both directions). Grounded on the
// ServeHTTP / deferred-access-log idiom of skipper's proxy.Proxy.
package proxy

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/chproxy/chproxy/logging"
	"github.com/chproxy/chproxy/router"
)

// Options configures a Proxy. Build it with NewOptions so the
// documented defaults (prepend_path, include_prefix, x-forward all
// on) apply; flip individual fields off for the --no-* flags.
type Options struct {
	// PrependPath appends the suffix to the target's own path
	// rather than replacing it outright.
	PrependPath bool
	// IncludePrefix keeps the matched prefix in the forwarded
	// suffix.
	IncludePrefix bool
	// ChangeOrigin rewrites the Host header to the upstream
	// authority. Default false: the client's Host is preserved.
	ChangeOrigin bool
	// XForward toggles the X-Forwarded-* header family.
	XForward bool
	// CustomHeaders are applied last, overriding any prior value.
	CustomHeaders map[string]string
	// Timeout bounds time from accepting the request to the first
	// upstream response byte. Zero means no bound.
	Timeout time.Duration
	// ProxyTimeout bounds idle time on either direction once
	// streaming has begun. Zero means no bound.
	ProxyTimeout time.Duration
	// ErrorTarget and ErrorPath configure the error handler; see
	// errorHandler for precedence.
	ErrorTarget string
	ErrorPath   string
	// ListenPort is reported as X-Forwarded-Port when the
	// request's own Host header carries none.
	ListenPort string
}

// NewOptions returns Options with prepend_path, include_prefix and
// x-forward on, matching the documented defaults.
func NewOptions() Options {
	return Options{PrependPath: true, IncludePrefix: true, XForward: true}
}

// Proxy is the HTTP and WebSocket reverse proxy data plane.
type Proxy struct {
	router       *router.Router
	opt          Options
	transport    *http.Transport
	errorHandler *errorHandler
	log          logging.Logger
}

// New returns a Proxy that resolves routes through r.
func New(r *router.Router, opt Options, log logging.Logger) *Proxy {
	if log == nil {
		log = logging.New()
	}
	return &Proxy{
		router: r,
		opt:    opt,
		transport: &http.Transport{
			MaxIdleConnsPerHost: 64,
			IdleConnTimeout:     90 * time.Second,
		},
		errorHandler: newErrorHandler(opt.ErrorTarget, opt.ErrorPath, log),
		log:          log,
	}
}

var errNoRouteMatched = errors.New("proxy: no route matched")

// ServeHTTP implements http.Handler. Every request goes through
// RECEIVED -> RESOLVED -> (CONNECTING -> STREAMING -> DONE | NO_ROUTE
// -> ERROR_PAGE | UPSTREAM_FAIL -> ERROR_PAGE).
func (p *Proxy) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	rec := logging.NewResponseRecorder(w)
	start := time.Now()

	match, ok, err := p.router.Resolve(req.Context(), req.URL.Path)

	var prefix, target string
	defer func() {
		logging.LogAccess(&logging.AccessEntry{
			Request:      req,
			StatusCode:   rec.StatusCode(),
			ResponseSize: rec.BytesWritten(),
			RequestTime:  start,
			Duration:     time.Since(start),
			Prefix:       prefix,
			Target:       target,
		})
	}()

	if err != nil {
		p.log.Errorf("proxy: router lookup failed: %v", err)
		p.errorHandler.serve(rec, req, http.StatusInternalServerError, err)
		return
	}
	if !ok {
		p.errorHandler.serve(rec, req, http.StatusNotFound, errNoRouteMatched)
		return
	}
	prefix, target = match.Prefix, match.Target

	log := p.log.WithFields(map[string]any{"prefix": prefix, "target": target})

	upstream, err := upstreamURL(match.Target, match.Prefix, req.URL.Path, rewriteOptions{
		prependPath:   p.opt.PrependPath,
		includePrefix: p.opt.IncludePrefix,
	})
	if err != nil {
		log.Errorf("proxy: bad target: %v", err)
		p.errorHandler.serve(rec, req, http.StatusBadGateway, err)
		return
	}
	upstream.RawQuery = req.URL.RawQuery
	upstream.Fragment = req.URL.Fragment

	if isUpgradeRequest(req) && strings.Contains(strings.ToLower(req.Header.Get("Upgrade")), "websocket") {
		p.serveUpgradeRequest(rec, req, upstream, log)
		return
	}

	p.serveHTTPRequest(rec, req, upstream, log)
}

func (p *Proxy) serveUpgradeRequest(w http.ResponseWriter, req *http.Request, upstream *url.URL, log logging.Logger) {
	outReq := req.Clone(req.Context())
	outReq.URL = upstream
	outReq.RequestURI = ""
	p.rewriteHeaders(outReq, req, upstream, log)
	outReq.Header.Set("Connection", "Upgrade")
	outReq.Header.Set("Upgrade", req.Header.Get("Upgrade"))

	p.serveUpgrade(w, outReq, canonicalAddr(upstream), p.opt.ProxyTimeout, log)
}

func (p *Proxy) serveHTTPRequest(w http.ResponseWriter, req *http.Request, upstream *url.URL, log logging.Logger) {
	outReq := req.Clone(req.Context())
	outReq.URL = upstream
	outReq.RequestURI = ""
	outReq.Close = false
	p.rewriteHeaders(outReq, req, upstream, log)

	ctx, cancel := context.WithCancel(req.Context())
	defer cancel()
	var firstByte *time.Timer
	if p.opt.Timeout > 0 {
		firstByte = time.AfterFunc(p.opt.Timeout, cancel)
	}
	outReq = outReq.WithContext(ctx)

	resp, err := p.transport.RoundTrip(outReq)
	timedOut := firstByte != nil && !firstByte.Stop()
	if err != nil {
		if timedOut {
			p.errorHandler.serve(w, req, http.StatusGatewayTimeout, err)
		} else {
			p.errorHandler.serve(w, req, http.StatusServiceUnavailable, err)
		}
		return
	}
	defer resp.Body.Close()

	copyHeaderExcluding(w.Header(), resp.Header, hopHeaders)
	w.WriteHeader(resp.StatusCode)

	body := io.Reader(resp.Body)
	if p.opt.ProxyTimeout > 0 {
		body = newIdleTimeoutReader(resp.Body, p.opt.ProxyTimeout)
	}
	if _, err := io.Copy(w, body); err != nil {
		log.Debugf("proxy: response streaming stopped: %v", err)
	}
}

func (p *Proxy) rewriteHeaders(outReq, origReq *http.Request, upstream *url.URL, log logging.Logger) {
	outReq.Header = cloneHeaderExcluding(origReq.Header, hopHeaders)

	if p.opt.ChangeOrigin {
		outReq.Host = upstream.Host
	} else {
		outReq.Host = origReq.Host
	}

	edgeHost, edgePort := origReq.Host, p.opt.ListenPort
	if h, port, err := net.SplitHostPort(origReq.Host); err == nil {
		edgeHost, edgePort = h, port
	}

	proto := "http"
	if origReq.TLS != nil {
		proto = "https"
	}
	forwardedHeaders{enabled: p.opt.XForward, proto: proto}.apply(outReq, edgeHost, edgePort)

	applyCustomHeaders(outReq.Header, p.opt.CustomHeaders)
}
