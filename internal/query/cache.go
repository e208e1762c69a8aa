// Package query caches fetched results with a staleness window. A fresh
// entry is served without a fetch; a stale entry is served immediately
// while one background refresh replaces it.
package query

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/pitabwire/suitekit/internal/observability"
)

// Defaults applied when no option overrides them.
const (
	DefaultStaleTime      = 5 * time.Minute
	DefaultGCTime         = 30 * time.Minute
	DefaultMaxEntries     = 1000
	DefaultRefreshTimeout = 10 * time.Second
)

// ErrDisabled is returned when a query is not enabled. No fetch is made and
// no entry is created.
var ErrDisabled = errors.New("query: disabled")

// Status describes how a result was produced.
type Status int

const (
	// StatusDisabled means the query was not enabled.
	StatusDisabled Status = iota
	// StatusFetched means there was no entry and the fetcher ran.
	StatusFetched
	// StatusFresh means a cached entry younger than the stale time was served.
	StatusFresh
	// StatusStale means a cached entry was served and a refresh was started.
	StatusStale
)

func (s Status) String() string {
	switch s {
	case StatusDisabled:
		return "disabled"
	case StatusFetched:
		return "fetched"
	case StatusFresh:
		return "fresh"
	case StatusStale:
		return "stale"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

type entry struct {
	value     any
	fetchedAt time.Time
}

// Cache holds the last successful result per key. Entries are evicted by
// ttlcache after the GC time or when capacity is exceeded.
type Cache struct {
	items          *ttlcache.Cache[string, entry]
	group          singleflight.Group
	staleTime      time.Duration
	gcTime         time.Duration
	maxEntries     uint64
	refreshTimeout time.Duration
	metrics        *observability.Metrics
	logger         *zap.Logger
	now            func() time.Time
	refreshes      sync.WaitGroup

	// mu guards the fields below and orders stores against invalidations.
	mu          sync.Mutex
	closed      bool
	epoch       uint64
	inflight    int
	invalidated []invalidation
}

// invalidation records a drop that happened while fetches were in flight.
type invalidation struct {
	match  string
	prefix bool
	epoch  uint64
}

func (inv invalidation) covers(key string) bool {
	if inv.prefix {
		return strings.HasPrefix(key, inv.match)
	}
	return key == inv.match
}

// Option configures a Cache.
type Option func(*Cache)

// WithStaleTime sets the default staleness window.
func WithStaleTime(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.staleTime = d
		}
	}
}

// WithGCTime sets how long an entry is kept after it was fetched.
func WithGCTime(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.gcTime = d
		}
	}
}

// WithMaxEntries caps the number of entries.
func WithMaxEntries(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.maxEntries = uint64(n)
		}
	}
}

// WithRefreshTimeout bounds background refreshes.
func WithRefreshTimeout(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.refreshTimeout = d
		}
	}
}

// WithMetrics records hits, misses and refreshes on m.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Cache) {
		c.metrics = m
	}
}

// WithLogger sets the logger used for background refresh failures.
func WithLogger(l *zap.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithClock overrides the time source used for staleness.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// New creates a Cache and starts its eviction loop. Call Close to stop it.
func New(opts ...Option) *Cache {
	c := &Cache{
		staleTime:      DefaultStaleTime,
		gcTime:         DefaultGCTime,
		maxEntries:     DefaultMaxEntries,
		refreshTimeout: DefaultRefreshTimeout,
		logger:         zap.NewNop(),
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.items = ttlcache.New(
		ttlcache.WithTTL[string, entry](c.gcTime),
		ttlcache.WithDisableTouchOnHit[string, entry](),
		ttlcache.WithCapacity[string, entry](c.maxEntries),
	)
	go c.items.Start()
	return c
}

// Close waits for background refreshes and stops the eviction loop. Stale
// hits after Close are served without a refresh.
func (c *Cache) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.refreshes.Wait()
	c.items.Stop()
}

// Wait blocks until every background refresh started so far has finished.
func (c *Cache) Wait() {
	c.refreshes.Wait()
}

// StaleTime returns the default staleness window.
func (c *Cache) StaleTime() time.Duration {
	return c.staleTime
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	return c.items.Len()
}

// Invalidate drops the entry for key. A fetch of key already in flight
// does not store its result.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recordInvalidation(invalidation{match: key})
	c.items.Delete(key)
}

// InvalidatePrefix drops every entry whose key starts with prefix and
// returns how many were dropped. Fetches of matching keys already in flight
// do not store their results.
func (c *Cache) InvalidatePrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recordInvalidation(invalidation{match: prefix, prefix: true})

	n := 0
	for _, k := range c.items.Keys() {
		if strings.HasPrefix(k, prefix) {
			c.items.Delete(k)
			n++
		}
	}
	return n
}

// recordInvalidation must be called with mu held.
func (c *Cache) recordInvalidation(inv invalidation) {
	c.epoch++
	if c.inflight == 0 {
		return
	}
	inv.epoch = c.epoch
	c.invalidated = append(c.invalidated, inv)
}

// flightKey qualifies key with the current epoch so that a call started
// after an invalidation never joins one started before it.
func (c *Cache) flightKey(key string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return key + "#" + strconv.FormatUint(c.epoch, 10)
}

// begin marks a fetch as in flight and returns the epoch it started in.
func (c *Cache) begin() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inflight++
	return c.epoch
}

// finish ends a fetch started in epoch start. The value is stored when ok
// and no invalidation covering key happened since start.
func (c *Cache) finish(key string, start uint64, v any, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ok && !c.invalidatedSince(key, start) {
		c.store(key, v)
	}
	c.inflight--
	if c.inflight == 0 {
		c.invalidated = nil
	}
}

func (c *Cache) invalidatedSince(key string, start uint64) bool {
	for _, inv := range c.invalidated {
		if inv.epoch > start && inv.covers(key) {
			return true
		}
	}
	return false
}

// startRefresh registers a background refresh unless the cache is closed.
func (c *Cache) startRefresh() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.refreshes.Add(1)
	return true
}

func (c *Cache) lookup(key string) (entry, bool) {
	item := c.items.Get(key)
	if item == nil {
		return entry{}, false
	}
	return item.Value(), true
}

// store must be called with mu held.
func (c *Cache) store(key string, v any) {
	c.items.Set(key, entry{value: v, fetchedAt: c.now()}, ttlcache.DefaultTTL)
}

// Key builds a cache key from the endpoint identity and every parameter
// that affects the result. Parts are escaped so that no part can contain
// the separator.
func Key(parts ...any) string {
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = url.PathEscape(fmt.Sprint(p))
	}
	return strings.Join(escaped, "/")
}

// Prefix returns the key prefix shared by every key that starts with parts.
func Prefix(parts ...any) string {
	return Key(parts...) + "/"
}
