package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chproxy/chproxy/store"
	"github.com/chproxy/chproxy/store/memory"
)

func TestLongestPrefixMatch(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	require.NoError(t, s.Add(ctx, "/", &store.Record{Target: "http://a", LastActivity: time.Now()}))
	require.NoError(t, s.Add(ctx, "/user/abc", &store.Record{Target: "http://b", LastActivity: time.Now()}))

	prefix, rec, ok, err := s.GetTarget(ctx, "/user/abc/page")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "/user/abc", prefix)
	assert.Equal(t, "http://b", rec.Target)

	prefix, rec, ok, err = s.GetTarget(ctx, "/user/xyz")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "/", prefix)
	assert.Equal(t, "http://a", rec.Target)

	prefix, rec, ok, err = s.GetTarget(ctx, "/user/abc")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "/user/abc", prefix)
	assert.Equal(t, "http://b", rec.Target)
}

func TestGetTargetNoMatch(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	require.NoError(t, s.Add(ctx, "/foo", &store.Record{Target: "http://a"}))

	_, _, ok, err := s.GetTarget(ctx, "/bar/baz")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAddReplaceMergesData(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	require.NoError(t, s.Add(ctx, "/hello", &store.Record{
		Target: "http://a", Data: map[string]any{"user": "alice"},
	}))
	require.NoError(t, s.Add(ctx, "/hello", &store.Record{
		Target: "http://b", Data: map[string]any{"server_name": "s1"},
	}))

	rec, ok, err := s.Get(ctx, "/hello")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "http://b", rec.Target)
	assert.Equal(t, "alice", rec.Data["user"])
	assert.Equal(t, "s1", rec.Data["server_name"])
}

func TestUpdateNotFound(t *testing.T) {
	s := memory.New()
	err := s.Update(context.Background(), "/missing", map[string]any{"target": "http://a"})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestUpdateLastActivityMonotonic(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	t0 := time.Now()
	require.NoError(t, s.Add(ctx, "/r", &store.Record{Target: "http://a", LastActivity: t0}))

	older := t0.Add(-time.Hour)
	require.NoError(t, s.Update(ctx, "/r", map[string]any{"last_activity": older}))

	rec, _, err := s.Get(ctx, "/r")
	require.NoError(t, err)
	assert.True(t, rec.LastActivity.Equal(t0), "last_activity must not move backwards")

	newer := t0.Add(time.Hour)
	require.NoError(t, s.Update(ctx, "/r", map[string]any{"last_activity": newer}))
	rec, _, err = s.Get(ctx, "/r")
	require.NoError(t, err)
	assert.True(t, rec.LastActivity.Equal(newer))
}

func TestRemoveIdempotent(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	require.NoError(t, s.Add(ctx, "/x", &store.Record{Target: "http://a"}))
	require.NoError(t, s.Remove(ctx, "/x"))
	require.NoError(t, s.Remove(ctx, "/x")) // idempotent, no error

	_, ok, err := s.Get(ctx, "/x")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRemovePrunesBranchesWithoutAffectingSiblings(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	require.NoError(t, s.Add(ctx, "/a/b/c", &store.Record{Target: "http://c"}))
	require.NoError(t, s.Add(ctx, "/a/b/d", &store.Record{Target: "http://d"}))

	require.NoError(t, s.Remove(ctx, "/a/b/c"))

	_, ok, err := s.Get(ctx, "/a/b/c")
	require.NoError(t, err)
	assert.False(t, ok)

	rec, ok, err := s.Get(ctx, "/a/b/d")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "http://d", rec.Target)
}

func TestGetAll(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	require.NoError(t, s.Add(ctx, "/", &store.Record{Target: "http://a"}))
	require.NoError(t, s.Add(ctx, "/foo", &store.Record{Target: "http://b"}))

	all, err := s.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Equal(t, "http://a", all["/"].Target)
	assert.Equal(t, "http://b", all["/foo"].Target)
}
