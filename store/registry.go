package store

import (
	"fmt"
	"sync"
)

// Factory constructs a Store from a backend-specific connection
// string (e.g. a SQLite path or a Redis host:port address; the memory
// backend ignores it).
type Factory func(conn string) (Store, error)

var (
	registryMu sync.Mutex
	registry   = map[string]Factory{}
)

// Register makes a Store backend available under name. It is called
// from the init() of each backend package (store/memory, store/sqlstore,
// store/redisstore); callers select a backend by name at startup via
// New, so no backend package needs to be imported directly by name in
// config-driven code, only blank-imported for registration.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("store: backend %q already registered", name))
	}
	registry[name] = f
}

// New constructs the Store registered under name. An empty name
// defaults to "memory", matching configurable_http_proxy's behavior
// when no --storage-backend is given.
func New(name, conn string) (Store, error) {
	if name == "" {
		name = "memory"
	}

	registryMu.Lock()
	f, ok := registry[name]
	registryMu.Unlock()

	if !ok {
		return nil, fmt.Errorf("store: unknown backend %q", name)
	}
	return f(conn)
}
