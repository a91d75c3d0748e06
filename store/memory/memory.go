// Package memory implements an in-process Store backed by a trie over
// path segments, one node per segment, grounded on
// configurable_http_proxy's URLTrie (trie.py): adding, removing and
// longest-prefix lookup all walk the trie segment by segment rather
// than scanning a flat list of prefixes.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/chproxy/chproxy/store"
)

func init() {
	store.Register("memory", func(string) (store.Store, error) {
		return New(), nil
	})
}

type node struct {
	children map[string]*node
	record   *store.Record
}

func newNode() *node {
	return &node{children: make(map[string]*node)}
}

// Store is an in-memory, mutex-guarded routing table.
type Store struct {
	mu   sync.RWMutex
	root *node
}

// New returns an empty in-memory Store.
func New() *Store {
	return &Store{root: newNode()}
}

func (s *Store) GetTarget(_ context.Context, path string) (string, *store.Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	normalized := store.NormalizePrefix(path)
	segments := store.Segments(normalized)
	n := s.root
	var best *store.Record
	bestDepth := -1
	if n.record != nil {
		best, bestDepth = n.record, 0
	}
	for i, seg := range segments {
		child, ok := n.children[seg]
		if !ok {
			break
		}
		n = child
		if n.record != nil {
			best, bestDepth = n.record, i+1
		}
	}
	if best == nil {
		return "", nil, false, nil
	}
	return prefixFromSegments(segments[:bestDepth]), best.Clone(), true, nil
}

func prefixFromSegments(segments []string) string {
	if len(segments) == 0 {
		return "/"
	}
	p := ""
	for _, seg := range segments {
		p += "/" + seg
	}
	return p
}

func (s *Store) Get(_ context.Context, prefix string) (*store.Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.walk(store.NormalizePrefix(prefix))
	if !ok || n.record == nil {
		return nil, false, nil
	}
	return n.record.Clone(), true, nil
}

func (s *Store) GetAll(_ context.Context) (map[string]*store.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]*store.Record)
	collect(s.root, "/", out)
	return out, nil
}

func collect(n *node, prefix string, out map[string]*store.Record) {
	if n.record != nil {
		out[prefix] = n.record.Clone()
	}
	for seg, child := range n.children {
		childPrefix := prefix
		if childPrefix == "/" || childPrefix == "" {
			childPrefix = "/" + seg
		} else {
			childPrefix = prefix + "/" + seg
		}
		collect(child, childPrefix, out)
	}
}

func (s *Store) Add(_ context.Context, prefix string, rec *store.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.ensure(store.NormalizePrefix(prefix))
	if n.record != nil {
		n.record.Target = rec.Target
		n.record.LastActivity = rec.LastActivity
		n.record.MergeData(rec.Data)
		return nil
	}
	n.record = rec.Clone()
	return nil
}

func (s *Store) Update(_ context.Context, prefix string, partial map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.walk(store.NormalizePrefix(prefix))
	if !ok || n.record == nil {
		return store.ErrNotFound
	}
	applyPartial(n.record, partial)
	return nil
}

func applyPartial(rec *store.Record, partial map[string]any) {
	if v, ok := partial["target"]; ok {
		if s, ok := v.(string); ok {
			rec.Target = s
		}
	}
	if v, ok := partial["last_activity"]; ok {
		if t, ok := v.(time.Time); ok && t.After(rec.LastActivity) {
			rec.LastActivity = t
		}
	}
	rest := make(map[string]any, len(partial))
	for k, v := range partial {
		if k == "target" || k == "last_activity" {
			continue
		}
		rest[k] = v
	}
	rec.MergeData(rest)
}

func (s *Store) Remove(_ context.Context, prefix string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	segments := store.Segments(store.NormalizePrefix(prefix))
	removeAt(s.root, segments)
	return nil
}

// removeAt deletes the record at the node reached by segments, and
// prunes now-empty branches, mirroring URLTrie.remove. It returns
// whether n itself is now childless and recordless, so its own
// parent can prune it in turn.
func removeAt(n *node, segments []string) bool {
	if len(segments) == 0 {
		n.record = nil
		return len(n.children) == 0
	}
	seg, rest := segments[0], segments[1:]
	child, ok := n.children[seg]
	if !ok {
		return false
	}
	if removeAt(child, rest) {
		delete(n.children, seg)
	}
	return len(n.children) == 0 && n.record == nil
}

// walk returns the node at prefix's segments, without creating
// missing nodes.
func (s *Store) walk(prefix string) (*node, bool) {
	n := s.root
	for _, seg := range store.Segments(prefix) {
		child, ok := n.children[seg]
		if !ok {
			return nil, false
		}
		n = child
	}
	return n, true
}

// ensure returns the node at prefix's segments, creating missing
// nodes along the way.
func (s *Store) ensure(prefix string) *node {
	n := s.root
	for _, seg := range store.Segments(prefix) {
		child, ok := n.children[seg]
		if !ok {
			child = newNode()
			n.children[seg] = child
		}
		n = child
	}
	return n
}
