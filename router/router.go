// Package router is the thin coordinator between the proxy engine and
// a store.Store: it normalizes the request path, resolves the
// longest-matching route, and fires a best-effort background activity
// update, grounded on routing.Routing's role as a cache-free façade
// that the rest of the system calls through rather than talking to
// storage directly.
package router

import (
	"context"
	"time"

	"github.com/chproxy/chproxy/logging"
	"github.com/chproxy/chproxy/store"
)

// Match is the result of resolving a request path to a route.
type Match struct {
	Prefix string
	Target string
	Data   map[string]any
}

// Router resolves request paths against a store.Store and keeps
// last_activity up to date without making the caller wait for it.
type Router struct {
	store store.Store
	log   logging.Logger
	now   func() time.Time
}

// New returns a Router backed by s. A nil log is replaced by
// logging.New().
func New(s store.Store, log logging.Logger) *Router {
	if log == nil {
		log = logging.New()
	}
	return &Router{store: s, log: log, now: time.Now}
}

// Resolve normalizes path, looks up the longest matching route, and
// asynchronously touches its last_activity. It never blocks on the
// activity update: the update runs in its own goroutine and its
// failure is only logged.
func (r *Router) Resolve(ctx context.Context, path string) (Match, bool, error) {
	normalized := store.NormalizePrefix(path)

	prefix, rec, ok, err := r.store.GetTarget(ctx, normalized)
	if err != nil {
		return Match{}, false, err
	}
	if !ok {
		return Match{}, false, nil
	}

	r.touch(prefix)

	return Match{Prefix: prefix, Target: rec.Target, Data: rec.Data}, true, nil
}

// touch asynchronously bumps last_activity for prefix to now. Any
// error is logged at warn level and never surfaced to the caller.
func (r *Router) touch(prefix string) {
	go func() {
		err := r.store.Update(context.Background(), prefix, map[string]any{
			"last_activity": r.now(),
		})
		if err != nil {
			r.log.WithFields(map[string]any{
				"prefix": prefix,
			}).Warnf("router: failed to update last_activity: %v", err)
		}
	}()
}
