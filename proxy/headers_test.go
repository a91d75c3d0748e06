package proxy

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCloneHeaderExcludingDropsHopHeaders(t *testing.T) {
	h := http.Header{}
	h.Set("Connection", "keep-alive")
	h.Set("X-Custom", "value")

	cloned := cloneHeaderExcluding(h, hopHeaders)

	assert.Empty(t, cloned.Get("Connection"))
	assert.Equal(t, "value", cloned.Get("X-Custom"))
}

func TestForwardedHeadersApply(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.RemoteAddr = "203.0.113.5:54321"

	forwardedHeaders{enabled: true, proto: "http"}.apply(req, "example.com", "8080")

	assert.Equal(t, "203.0.113.5", req.Header.Get("X-Forwarded-For"))
	assert.Equal(t, "example.com", req.Header.Get("X-Forwarded-Host"))
	assert.Equal(t, "http", req.Header.Get("X-Forwarded-Proto"))
	assert.Equal(t, "8080", req.Header.Get("X-Forwarded-Port"))
}

func TestForwardedHeadersAppendsExistingForwardedFor(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.RemoteAddr = "203.0.113.5:54321"
	req.Header.Set("X-Forwarded-For", "198.51.100.2")

	forwardedHeaders{enabled: true, proto: "http"}.apply(req, "example.com", "")

	assert.Equal(t, "198.51.100.2, 203.0.113.5", req.Header.Get("X-Forwarded-For"))
}

func TestForwardedHeadersDisabled(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.RemoteAddr = "203.0.113.5:54321"

	forwardedHeaders{enabled: false, proto: "http"}.apply(req, "example.com", "8080")

	assert.Empty(t, req.Header.Get("X-Forwarded-For"))
}

func TestApplyCustomHeadersOverridesExisting(t *testing.T) {
	h := http.Header{}
	h.Set("X-Env", "client-value")

	applyCustomHeaders(h, map[string]string{"X-Env": "server-value"})

	assert.Equal(t, "server-value", h.Get("X-Env"))
}
