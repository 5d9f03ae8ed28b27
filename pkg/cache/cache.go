// Package cache provides the cross-relay event-id dedup cache the pool's
// notification-forwarding path consults (spec.md §4.6 "deduplicate by event
// ID across relays"); fetch_events/stream_events deduplicate with their own
// per-call seen sets and do not use it.
//
// Grounded on internal/sync/engine.go's EventCache ("Tier 1 Optimization:
// Fast deduplication using LRU cache" — Contains/Add/Size) in the teacher
// tree, and on internal/config/config.go's Caching{Engine: memory|redis}
// config block, which names a Redis-backed engine the teacher's own code
// never wires up. This package provides both engines for real: an
// in-process LRU for the common single-process case, and a Redis-backed
// cache (SETNX + TTL) for applications running multiple SDK instances
// behind a shared relay pool that need cross-process deduplication.
package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// SeenCache reports whether an id has already been observed, recording it
// if not. Implementations must be safe for concurrent use.
type SeenCache interface {
	// MarkSeen returns true if id was already present, false if this call
	// added it.
	MarkSeen(ctx context.Context, id string) (alreadySeen bool, err error)
	// Close releases any resources the cache holds (e.g. a Redis client).
	Close() error
}

// LRU is an in-process, fixed-capacity dedup cache: the oldest entry is
// evicted once capacity is exceeded, grounded on the teacher's EventCache.
type LRU struct {
	mu       sync.Mutex
	capacity int
	ll       *list.List
	index    map[string]*list.Element
}

// NewLRU builds an LRU cache holding at most capacity ids.
func NewLRU(capacity int) *LRU {
	if capacity <= 0 {
		capacity = 5000
	}
	return &LRU{
		capacity: capacity,
		ll:       list.New(),
		index:    make(map[string]*list.Element, capacity),
	}
}

// MarkSeen implements SeenCache.
func (c *LRU) MarkSeen(_ context.Context, id string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.index[id]; ok {
		c.ll.MoveToFront(el)
		return true, nil
	}

	el := c.ll.PushFront(id)
	c.index[id] = el

	if c.ll.Len() > c.capacity {
		oldest := c.ll.Back()
		if oldest != nil {
			c.ll.Remove(oldest)
			delete(c.index, oldest.Value.(string))
		}
	}
	return false, nil
}

// Size reports the current number of tracked ids.
func (c *LRU) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// Close is a no-op for LRU; it holds no external resources.
func (c *LRU) Close() error { return nil }

// Redis is a SeenCache backed by a Redis SETNX, for applications running
// several SDK instances against a shared relay pool that want
// deduplication to hold across processes, not just within one. This
// implements the "redis" branch of the teacher's Caching.Engine switch,
// which the teacher's own code declares in config but never wires to an
// actual cache.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// RedisOptions configures a Redis-backed SeenCache.
type RedisOptions struct {
	// URL is a redis:// connection string, e.g. "redis://localhost:6379/0".
	URL string
	// KeyPrefix namespaces every key this cache writes; defaults to
	// "nostrsdk:seen:".
	KeyPrefix string
	// TTL bounds how long a seen-marker is retained; defaults to 10 minutes,
	// long enough to dedup within one fetch_events/stream_events call
	// without growing Redis memory unboundedly.
	TTL time.Duration
}

// NewRedis connects to the Redis instance described by opts.URL.
func NewRedis(opts RedisOptions) (*Redis, error) {
	parsed, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, err
	}
	prefix := opts.KeyPrefix
	if prefix == "" {
		prefix = "nostrsdk:seen:"
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Redis{
		client: redis.NewClient(parsed),
		prefix: prefix,
		ttl:    ttl,
	}, nil
}

// MarkSeen implements SeenCache using SETNX so the "already seen" check and
// the record-as-seen write happen atomically.
func (c *Redis) MarkSeen(ctx context.Context, id string) (bool, error) {
	ok, err := c.client.SetNX(ctx, c.prefix+id, 1, c.ttl).Result()
	if err != nil {
		return false, err
	}
	// SetNX reports true when the key was newly set, i.e. not seen before.
	return !ok, nil
}

// Close releases the underlying Redis client.
func (c *Redis) Close() error {
	return c.client.Close()
}

// New builds a SeenCache from config-style engine/url/capacity knobs,
// mirroring the teacher's Caching{Engine: memory|redis} switch
// (internal/config/config.go), actually instantiating the engine it names.
func New(engine, redisURL string, memoryCapacity int) (SeenCache, error) {
	if engine == "redis" && redisURL != "" {
		return NewRedis(RedisOptions{URL: redisURL})
	}
	return NewLRU(memoryCapacity), nil
}
