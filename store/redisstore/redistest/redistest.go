// Package redistest spins up a disposable Redis container for
// redisstore's tests, grounded on skipper's net/redistest helper:
// a single NewTestRedis returning an address and a teardown func.
package redistest

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// NewTestRedis starts a redis:6-alpine container and waits for it to
// accept connections, returning its address and a teardown function.
func NewTestRedis(t testing.TB) (address string, done func()) {
	start := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:6-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("* Ready to accept connections"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("redistest: failed to start redis server: %v", err)
	}

	ctx, cancel = context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	address, err = container.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("redistest: failed to get redis address: %v", err)
	}

	t.Logf("started redis server at %s in %v", address, time.Since(start))

	if err := ping(ctx, address); err != nil {
		t.Fatalf("redistest: failed to ping redis server: %v", err)
	}

	done = func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := container.Terminate(ctx); err != nil {
			t.Fatalf("redistest: failed to stop redis: %v", err)
		}
	}
	return
}

func ping(ctx context.Context, address string) error {
	rdb := redis.NewClient(&redis.Options{Addr: address})
	defer rdb.Close()

	for _, err := rdb.Ping(ctx).Result(); ctx.Err() == nil && err != nil; _, err = rdb.Ping(ctx).Result() {
		time.Sleep(100 * time.Millisecond)
	}
	return ctx.Err()
}
