package store

import (
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
)

// MemcachedMedium implements Medium against memcached. It can replace the
// file medium as the primary when the dashboard runs behind a shared cache.
type MemcachedMedium struct {
	client *memcache.Client
}

const memcachedKeyPrefix = "weatherdash:"

// NewMemcachedMedium creates a MemcachedMedium. addrs is a comma-separated
// list (e.g. "localhost:11211" or "host1:11211,host2:11211"). timeout and
// maxIdleConns use package defaults if zero.
func NewMemcachedMedium(addrs string, timeout time.Duration, maxIdleConns int) *MemcachedMedium {
	servers := parseAddrs(addrs)
	if len(servers) == 0 {
		servers = []string{"localhost:11211"}
	}
	client := memcache.New(servers...)
	if timeout > 0 {
		client.Timeout = timeout
	}
	if maxIdleConns > 0 {
		client.MaxIdleConns = maxIdleConns
	}
	return &MemcachedMedium{client: client}
}

func parseAddrs(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		a = strings.TrimSpace(a)
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}

func (m *MemcachedMedium) Name() string { return "memcached" }

func (m *MemcachedMedium) Read(key string) ([]byte, bool, error) {
	item, err := m.client.Get(memcachedKeyPrefix + key)
	if err != nil {
		if err == memcache.ErrCacheMiss {
			return nil, false, nil
		}
		return nil, false, err
	}
	return item.Value, true, nil
}

func (m *MemcachedMedium) Write(key string, value []byte) error {
	return m.client.Set(&memcache.Item{
		Key:   memcachedKeyPrefix + key,
		Value: value,
	})
}

// Ping checks if memcached is reachable. Used for health checks.
func (m *MemcachedMedium) Ping() error {
	return m.client.Ping()
}

// Close closes the memcached client connections. Call during shutdown.
func (m *MemcachedMedium) Close() error {
	return m.client.Close()
}
