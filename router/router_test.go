package router_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chproxy/chproxy/router"
	"github.com/chproxy/chproxy/store"
	"github.com/chproxy/chproxy/store/memory"
)

func TestResolveLongestPrefix(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	require.NoError(t, s.Add(ctx, "/", &store.Record{Target: "http://a", LastActivity: time.Now()}))
	require.NoError(t, s.Add(ctx, "/user/abc", &store.Record{Target: "http://b", LastActivity: time.Now()}))

	r := router.New(s, nil)

	m, ok, err := r.Resolve(ctx, "/user/abc/page")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "/user/abc", m.Prefix)
	assert.Equal(t, "http://b", m.Target)
}

func TestResolveNotFound(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	r := router.New(s, nil)

	_, ok, err := r.Resolve(ctx, "/nope")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestResolveTouchesLastActivity(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	past := time.Now().Add(-time.Hour)
	require.NoError(t, s.Add(ctx, "/hit", &store.Record{Target: "http://a", LastActivity: past}))

	r := router.New(s, nil)
	_, ok, err := r.Resolve(ctx, "/hit")
	require.NoError(t, err)
	require.True(t, ok)

	require.Eventually(t, func() bool {
		rec, ok, err := s.Get(ctx, "/hit")
		return err == nil && ok && rec.LastActivity.After(past)
	}, time.Second, 5*time.Millisecond, "last_activity should be updated asynchronously")
}
