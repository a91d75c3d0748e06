// Package redisstore implements a Store on top of a Redis client,
// grounded on the net.RedisRingClient wrapper-around-a-client idiom:
// a thin struct holding a configured client, with every command
// forwarded with a context. Each route is one Redis key holding the
// JSON-encoded Record; SCAN with a key prefix stands in for GetAll and
// longest-prefix lookup, since a routing table of this size does not
// warrant a server-side index.
package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/chproxy/chproxy/store"
)

func init() {
	store.Register("redis", func(conn string) (store.Store, error) {
		return New(Options{Addr: conn})
	})
}

// Options configures the Redis client backing a Store.
type Options struct {
	// Addr is the redis server address, host:port.
	Addr string
	// Password, if non-empty, authenticates the connection.
	Password string
	// DB selects the logical Redis database, default 0.
	DB int
	// KeyPrefix namespaces every key this Store writes, default
	// "chp:routes:".
	KeyPrefix string
}

const defaultKeyPrefix = "chp:routes:"

// Store persists routes as individual Redis string keys, one per
// prefix, under KeyPrefix+prefix.
type Store struct {
	client *redis.Client
	prefix string
}

// New dials a Redis server per opts and returns a Store. The
// connection is verified with a PING.
func New(opts Options) (*Store, error) {
	if opts.Addr == "" {
		return nil, fmt.Errorf("redisstore: address must not be empty")
	}
	keyPrefix := opts.KeyPrefix
	if keyPrefix == "" {
		keyPrefix = defaultKeyPrefix
	}

	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redisstore: ping: %w", err)
	}

	return &Store{client: client, prefix: keyPrefix}, nil
}

// Close releases the underlying Redis connection.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) key(prefix string) string {
	return s.prefix + prefix
}

func (s *Store) GetTarget(ctx context.Context, path string) (string, *store.Record, bool, error) {
	all, err := s.GetAll(ctx)
	if err != nil {
		return "", nil, false, err
	}

	normalized := store.NormalizePrefix(path)
	var bestPrefix string
	var best *store.Record
	for prefix, rec := range all {
		if !store.Matches(prefix, normalized) {
			continue
		}
		if best == nil || len(prefix) > len(bestPrefix) {
			bestPrefix, best = prefix, rec
		}
	}
	if best == nil {
		return "", nil, false, nil
	}
	return bestPrefix, best, true, nil
}

func (s *Store) Get(ctx context.Context, prefix string) (*store.Record, bool, error) {
	prefix = store.NormalizePrefix(prefix)

	raw, err := s.client.Get(ctx, s.key(prefix)).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redisstore: get: %w", err)
	}

	var rec store.Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, false, fmt.Errorf("redisstore: decode %s: %w", prefix, err)
	}
	return &rec, true, nil
}

func (s *Store) GetAll(ctx context.Context) (map[string]*store.Record, error) {
	out := make(map[string]*store.Record)

	iter := s.client.Scan(ctx, 0, s.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		raw, err := s.client.Get(ctx, key).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("redisstore: get %s: %w", key, err)
		}

		var rec store.Record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("redisstore: decode %s: %w", key, err)
		}
		out[strings.TrimPrefix(key, s.prefix)] = &rec
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redisstore: scan: %w", err)
	}
	return out, nil
}

func (s *Store) Add(ctx context.Context, prefix string, rec *store.Record) error {
	prefix = store.NormalizePrefix(prefix)

	existing, ok, err := s.Get(ctx, prefix)
	if err != nil {
		return err
	}
	if ok {
		existing.Target = rec.Target
		existing.LastActivity = rec.LastActivity
		existing.MergeData(rec.Data)
		rec = existing
	}

	return s.put(ctx, prefix, rec)
}

func (s *Store) Update(ctx context.Context, prefix string, partial map[string]any) error {
	prefix = store.NormalizePrefix(prefix)

	rec, ok, err := s.Get(ctx, prefix)
	if err != nil {
		return err
	}
	if !ok {
		return store.ErrNotFound
	}

	if v, ok := partial["target"]; ok {
		if t, ok := v.(string); ok {
			rec.Target = t
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

	return s.put(ctx, prefix, rec)
}

func (s *Store) put(ctx context.Context, prefix string, rec *store.Record) error {
	encoded, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("redisstore: encode: %w", err)
	}
	if err := s.client.Set(ctx, s.key(prefix), encoded, 0).Err(); err != nil {
		return fmt.Errorf("redisstore: set: %w", err)
	}
	return nil
}

func (s *Store) Remove(ctx context.Context, prefix string) error {
	prefix = store.NormalizePrefix(prefix)
	if err := s.client.Del(ctx, s.key(prefix)).Err(); err != nil {
		return fmt.Errorf("redisstore: del: %w", err)
	}
	return nil
}

