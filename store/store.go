// Package store defines the Route record and the Store contract that
// every routing-table backend (memory, SQL, Redis) implements, plus a
// registered-factory lookup from a backend identifier to a Store
// constructor.
//
// Prefix normalization (percent-decoding, slash-collapsing, trailing
// slash stripping) is the caller's responsibility: Router and the
// management API normalize a path once, with NormalizePrefix, before
// ever calling into a Store.
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Update when the prefix does not exist,
// and is the sentinel compared against by the management API to
// reject a metadata-only update of a missing route with 400.
var ErrNotFound = errors.New("store: route not found")

// Store is the persistence contract for the routing table. All
// methods must be safe for concurrent use: GetTarget must observe
// either the pre-state or the post-state of a concurrent Add/Update/
// Remove, never a partial state.
type Store interface {
	// GetTarget returns the prefix and record whose prefix is the
	// longest prefix of path, per the matching rule in
	// NormalizePrefix's doc comment. ok is false if no route matches.
	GetTarget(ctx context.Context, path string) (prefix string, rec *Record, ok bool, err error)

	// Get returns the record stored at exactly prefix. prefix must
	// already be normalized.
	Get(ctx context.Context, prefix string) (rec *Record, ok bool, err error)

	// GetAll returns every record, keyed by normalized prefix.
	GetAll(ctx context.Context) (map[string]*Record, error)

	// Add upserts rec at prefix: if prefix does not exist it is
	// inserted; if it does, Target is replaced and Data is merged
	// into the existing record's Data. Either way LastActivity is
	// reset to rec.LastActivity. prefix must already be normalized.
	Add(ctx context.Context, prefix string, rec *Record) error

	// Update merges the fields in partial into the record at
	// prefix. It returns ErrNotFound if prefix does not exist.
	// prefix must already be normalized.
	Update(ctx context.Context, prefix string, partial map[string]any) error

	// Remove deletes the record at prefix. It is idempotent: removing
	// an absent prefix is not an error. prefix must already be
	// normalized.
	Remove(ctx context.Context, prefix string) error
}
