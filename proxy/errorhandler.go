package proxy

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/chproxy/chproxy/logging"
)

// errorHandler implements the precedence rule of the spec: a
// configured sub-request target, then a static error page directory,
// then a minimal built-in page. It never consults the router and
// never recurses into itself on failure, grounded on handlers.py's
// handle_proxy_error falling through from custom target, to error
// path, to handle_proxy_error_default.
type errorHandler struct {
	// target, if non-empty, receives GET <target>/<code>?url=<path>
	// and its response is relayed verbatim to the client.
	target string
	// path, if non-empty, is searched for <code>.html then error.html.
	path string

	client *http.Client
	log    logging.Logger
}

func newErrorHandler(target, path string, log logging.Logger) *errorHandler {
	if log == nil {
		log = logging.New()
	}
	return &errorHandler{
		target: target,
		path:   path,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    log,
	}
}

// serve writes an error response for code to w, following the
// precedence documented on errorHandler. req.URL.Path is forwarded to
// a configured error_target as the url query parameter.
func (h *errorHandler) serve(w http.ResponseWriter, req *http.Request, code int, cause error) {
	h.log.WithFields(map[string]any{"status": code}).Warnf("proxy: error dispatch: %v", cause)

	if h.target != "" && h.serveFromTarget(w, req, code) {
		return
	}
	if h.path != "" && h.serveFromPath(w, code) {
		return
	}
	h.serveDefault(w, code)
}

func (h *errorHandler) serveFromTarget(w http.ResponseWriter, req *http.Request, code int) bool {
	base, err := url.Parse(h.target)
	if err != nil {
		h.log.Errorf("proxy: invalid error_target %q: %v", h.target, err)
		return false
	}
	base.Path = trimTrailingSlash(base.Path) + fmt.Sprintf("/%d", code)

	q := base.Query()
	q.Set("url", req.URL.Path)
	base.RawQuery = q.Encode()

	subReq, err := http.NewRequestWithContext(req.Context(), http.MethodGet, base.String(), nil)
	if err != nil {
		h.log.Errorf("proxy: failed to build error_target request: %v", err)
		return false
	}
	subReq.Header = cloneHeaderExcluding(req.Header, hopHeaders)

	resp, err := h.client.Do(subReq)
	if err != nil {
		h.log.Errorf("proxy: error_target request failed: %v", err)
		return false
	}
	defer resp.Body.Close()

	copyHeaderExcluding(w.Header(), resp.Header, hopHeaders)
	w.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(w, resp.Body)
	return true
}

func (h *errorHandler) serveFromPath(w http.ResponseWriter, code int) bool {
	candidates := []string{
		filepath.Join(h.path, fmt.Sprintf("%d.html", code)),
		filepath.Join(h.path, "error.html"),
	}
	for _, name := range candidates {
		body, err := os.ReadFile(name)
		if err != nil {
			if !os.IsNotExist(err) {
				h.log.Errorf("proxy: error reading %s: %v", name, err)
			}
			continue
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(code)
		_, _ = w.Write(body)
		return true
	}
	return false
}

func (h *errorHandler) serveDefault(w http.ResponseWriter, code int) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(code)
	fmt.Fprintf(w, "<html><body><h1>%d %s</h1></body></html>", code, http.StatusText(code))
}

func trimTrailingSlash(p string) string {
	for len(p) > 0 && p[len(p)-1] == '/' {
		p = p[:len(p)-1]
	}
	return p
}
