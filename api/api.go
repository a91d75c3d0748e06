// Package api is the Management API: an authenticated HTTP surface for
// reading and mutating the routing table, mounted at /api/routes.
// Grounded on handlers.py's APIHandler for endpoint/status semantics,
// re-expressed as a net/http handler in the teacher's package layout.
package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/chproxy/chproxy/logging"
	"github.com/chproxy/chproxy/store"
)

// Server serves the /api/routes tree against a Store.
type Server struct {
	store store.Store
	log   logging.Logger

	// authToken is compared against the "Authorization: token <T>"
	// header. An empty authToken never authorizes a request: the
	// header's mere presence is not enough, matching spec.md's
	// explicit instruction that an unset token still rejects every
	// call rather than opening the API up.
	authToken string

	// allowMetadataOnlyUpdates lets POST/PUT bodies without a
	// "target" field merge into an existing route's Data instead of
	// being rejected with 400.
	allowMetadataOnlyUpdates bool
}

// New returns a Server backed by s, requiring authToken on every call.
func New(s store.Store, authToken string, allowMetadataOnlyUpdates bool, log logging.Logger) *Server {
	if log == nil {
		log = logging.New()
	}
	return &Server{store: s, log: log, authToken: authToken, allowMetadataOnlyUpdates: allowMetadataOnlyUpdates}
}

const routesPrefix = "/api/routes"

func (s *Server) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if !s.isAuthorized(req) {
		s.log.Warnf("api: rejecting request from %s: missing or invalid Authorization header", req.RemoteAddr)
		writeError(w, http.StatusForbidden, "invalid or missing Authorization header")
		return
	}

	if !strings.HasPrefix(req.URL.Path, routesPrefix) {
		http.NotFound(w, req)
		return
	}
	suffix := strings.TrimPrefix(req.URL.Path, routesPrefix)

	if suffix == "" || suffix == "/" {
		s.handleCollection(w, req)
		return
	}

	prefix := store.NormalizePrefix(suffix)
	switch req.Method {
	case http.MethodGet:
		s.handleGet(w, req, prefix)
	case http.MethodPost, http.MethodPut:
		s.handleUpsert(w, req, prefix)
	case http.MethodDelete:
		s.handleDelete(w, req, prefix)
	default:
		w.Header().Set("Allow", "GET, POST, PUT, DELETE")
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// isAuthorized implements handlers.py's is_authorized, re-expressed to
// always require the header (see authToken's doc comment above for why
// this diverges from the Python original when no token is configured).
func (s *Server) isAuthorized(req *http.Request) bool {
	if s.authToken == "" {
		return false
	}
	auth := strings.TrimSpace(req.Header.Get("Authorization"))
	if !strings.HasPrefix(auth, "token") {
		return false
	}
	return strings.TrimSpace(strings.TrimPrefix(auth, "token")) == s.authToken
}

func (s *Server) handleCollection(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	all, err := s.store.GetAll(req.Context())
	if err != nil {
		s.log.Errorf("api: GetAll failed: %v", err)
		writeError(w, http.StatusInternalServerError, "store error")
		return
	}

	if since := req.URL.Query().Get("inactive_since"); since != "" {
		cutoff, err := time.Parse(time.RFC3339, since)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid datestamp, must be ISO8601")
			return
		}
		filtered := make(map[string]*store.Record, len(all))
		for prefix, rec := range all {
			if rec.LastActivity.Before(cutoff) {
				filtered[prefix] = rec
			}
		}
		all = filtered
	}

	writeJSON(w, http.StatusOK, all)
}

func (s *Server) handleGet(w http.ResponseWriter, req *http.Request, prefix string) {
	rec, ok, err := s.store.Get(req.Context(), prefix)
	if err != nil {
		s.log.Errorf("api: Get(%s) failed: %v", prefix, err)
		writeError(w, http.StatusInternalServerError, "store error")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "no such route")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleUpsert(w http.ResponseWriter, req *http.Request, prefix string) {
	body, err := io.ReadAll(req.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	var rec store.Record
	if err := json.Unmarshal(body, &rec); err != nil {
		if s.allowMetadataOnlyUpdates {
			s.handleMetadataOnlyUpdate(w, req, prefix, body)
			return
		}
		s.log.Warnf("api: bad upsert body for %s: %v", prefix, err)
		writeError(w, http.StatusBadRequest, "must specify 'target' as string")
		return
	}
	rec.LastActivity = time.Now()

	if err := s.store.Add(req.Context(), prefix, &rec); err != nil {
		s.log.Errorf("api: Add(%s) failed: %v", prefix, err)
		writeError(w, http.StatusInternalServerError, "store error")
		return
	}
	w.WriteHeader(http.StatusCreated)
}

// handleMetadataOnlyUpdate is reached only when AllowMetadataOnlyUpdates
// is set and the body failed to decode as a full Record (i.e. no
// "target" field); it merges the raw body into the existing route's
// Data via Update instead of rejecting it outright.
func (s *Server) handleMetadataOnlyUpdate(w http.ResponseWriter, req *http.Request, prefix string, body []byte) {
	var partial map[string]any
	if err := json.Unmarshal(body, &partial); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.store.Update(req.Context(), prefix, partial); err != nil {
		if err == store.ErrNotFound {
			writeError(w, http.StatusBadRequest, "must specify 'target' as string for a new route")
			return
		}
		s.log.Errorf("api: Update(%s) failed: %v", prefix, err)
		writeError(w, http.StatusInternalServerError, "store error")
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleDelete(w http.ResponseWriter, req *http.Request, prefix string) {
	if err := s.store.Remove(req.Context(), prefix); err != nil {
		s.log.Errorf("api: Remove(%s) failed: %v", prefix, err)
		writeError(w, http.StatusInternalServerError, "store error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"error": message})
}
