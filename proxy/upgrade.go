package proxy

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/chproxy/chproxy/logging"
)

// isUpgradeRequest returns true if and only if there is a "Connection"
// key with the value "Upgrade" in Headers of the given request.
func isUpgradeRequest(req *http.Request) bool {
	for _, h := range req.Header[http.CanonicalHeaderKey("Connection")] {
		if strings.Contains(strings.ToLower(h), "upgrade") {
			return true
		}
	}
	return false
}

// serveUpgrade dials upstreamAddr, replays req as a raw HTTP request
// with its headers already rewritten by the caller, relays the
// upstream's response line unmodified (including a 101 Switching
// Protocols), then hijacks the client connection and streams both
// directions as opaque bytes until either side closes. No framing is
// interpreted: this proxy never parses WebSocket frames.
func (p *Proxy) serveUpgrade(w http.ResponseWriter, req *http.Request, upstreamAddr string, idleTimeout time.Duration, log logging.Logger) {
	dialer := net.Dialer{}
	backendConn, err := dialer.DialContext(req.Context(), "tcp", upstreamAddr)
	if err != nil {
		p.errorHandler.serve(w, req, http.StatusServiceUnavailable, err)
		return
	}
	defer backendConn.Close()

	if err := req.Write(backendConn); err != nil {
		log.Errorf("proxy: failed to write upgrade request to backend: %v", err)
		p.errorHandler.serve(w, req, http.StatusBadGateway, err)
		return
	}

	resp, err := http.ReadResponse(bufio.NewReader(backendConn), req)
	if err != nil {
		log.Errorf("proxy: failed to read upgrade response from backend: %v", err)
		p.errorHandler.serve(w, req, http.StatusBadGateway, err)
		return
	}
	defer resp.Body.Close()

	hijacker, ok := w.(http.Hijacker)
	if !ok {
		log.Errorf("proxy: response writer does not support hijacking")
		p.errorHandler.serve(w, req, http.StatusInternalServerError, fmt.Errorf("hijack unsupported"))
		return
	}

	clientConn, clientBuf, err := hijacker.Hijack()
	if err != nil {
		log.Errorf("proxy: failed to hijack client connection: %v", err)
		p.errorHandler.serve(w, req, http.StatusInternalServerError, err)
		return
	}
	defer clientConn.Close()

	if err := resp.Write(clientConn); err != nil {
		log.Errorf("proxy: failed to relay upgrade response to client: %v", err)
		return
	}
	if clientBuf != nil {
		_ = clientBuf.Flush()
	}

	relay(req.Context(), clientConn, backendConn, idleTimeout, log)
}

// relay streams bytes bidirectionally between a and b until either
// side closes, or, if idleTimeout is positive, until idleTimeout
// elapses with no bytes crossing in either direction. Grounded on
// copyAsync, generalized into a pair of loops that reset an idle
// timer on every read.
func relay(ctx context.Context, a, b net.Conn, idleTimeout time.Duration, log logging.Logger) {
	var wg sync.WaitGroup
	wg.Add(2)

	var timer *time.Timer
	if idleTimeout > 0 {
		timer = time.AfterFunc(idleTimeout, func() {
			a.Close()
			b.Close()
		})
		defer timer.Stop()
	}

	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			a.Close()
			b.Close()
		case <-stop:
		}
	}()

	copyAsync := func(dst, src net.Conn) {
		defer wg.Done()
		buf := make([]byte, 32*1024)
		for {
			n, err := src.Read(buf)
			if timer != nil && n > 0 {
				timer.Reset(idleTimeout)
			}
			if n > 0 {
				if _, werr := dst.Write(buf[:n]); werr != nil {
					return
				}
			}
			if err != nil {
				if err != io.EOF && !isClosedConnErr(err) {
					log.Debugf("proxy: relay closed: %v", err)
				}
				return
			}
		}
	}

	go copyAsync(b, a)
	go copyAsync(a, b)
	wg.Wait()
	close(stop)
}

func isClosedConnErr(err error) bool {
	return strings.Contains(err.Error(), "use of closed network connection")
}

// hasPort reports whether s includes a port, grounded on upgrade.go's
// helper of the same name (itself lifted from net/http/client.go).
func hasPort(s string) bool { return strings.LastIndex(s, ":") > strings.LastIndex(s, "]") }

var schemeDefaultPort = map[string]string{
	"http": "80",
	"ws":   "80",
}

// canonicalAddr returns u.Host with a ":port" suffix, defaulting the
// port from the scheme when absent.
func canonicalAddr(u *url.URL) string {
	if hasPort(u.Host) {
		return u.Host
	}
	return u.Host + ":" + schemeDefaultPort[u.Scheme]
}
