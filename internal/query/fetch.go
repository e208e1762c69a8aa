package query

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pitabwire/suitekit/internal/observability"
)

// ErrSuperseded is returned by an Observer when a newer fetch started
// before this one finished. The result still lands in the cache.
var ErrSuperseded = errors.New("query: superseded by a newer fetch")

// Options describe one query.
type Options struct {
	// Key identifies the result; see Key.
	Key string
	// Enabled gates the query. When false nothing is fetched.
	Enabled bool
	// StaleTime overrides the cache default when positive.
	StaleTime time.Duration
	// Name labels metrics. Defaults to "query".
	Name string
}

// Fetcher produces a fresh result.
type Fetcher[T any] func(ctx context.Context) (T, error)

// Fetch returns the result for opts.Key. A missing entry is fetched
// synchronously, a fresh entry is returned as is, and a stale entry is
// returned while one deduplicated background refresh runs. Failed fetches
// are never cached.
func Fetch[T any](ctx context.Context, c *Cache, opts Options, fetch Fetcher[T]) (T, Status, error) {
	var zero T
	if !opts.Enabled {
		return zero, StatusDisabled, ErrDisabled
	}

	name := opts.Name
	if name == "" {
		name = "query"
	}
	staleTime := opts.StaleTime
	if staleTime <= 0 {
		staleTime = c.staleTime
	}

	load := func(ctx context.Context) (any, error) {
		start := c.begin()
		v, err := fetch(ctx)
		c.finish(opts.Key, start, v, err == nil)
		if err != nil {
			return nil, err
		}
		return v, nil
	}

	if e, ok := c.lookup(opts.Key); ok {
		if v, ok := e.value.(T); ok {
			c.metrics.RecordQueryCacheHit(name)
			if c.now().Sub(e.fetchedAt) < staleTime {
				return v, StatusFresh, nil
			}
			c.refresh(ctx, opts.Key, name, load)
			return v, StatusStale, nil
		}
	}

	c.metrics.RecordQueryCacheMiss(name)
	res, err, _ := c.group.Do(c.flightKey(opts.Key), func() (any, error) {
		return load(ctx)
	})
	if err != nil {
		return zero, StatusFetched, err
	}
	v, _ := res.(T)
	return v, StatusFetched, nil
}

// refresh reloads key in the background. Concurrent refreshes of one key
// share a single fetch. The fetch keeps the values of ctx but not its
// cancellation. Every caller sharing a failed refresh logs the failure.
func (c *Cache) refresh(ctx context.Context, key, name string, load func(context.Context) (any, error)) {
	if !c.startRefresh() {
		return
	}
	detached := context.WithoutCancel(ctx)
	ch := c.group.DoChan(c.flightKey(key), func() (any, error) {
		rctx, cancel := context.WithTimeout(detached, c.refreshTimeout)
		defer cancel()
		c.metrics.RecordQueryCacheRefresh(name)
		return load(rctx)
	})

	go func() {
		defer c.refreshes.Done()
		res := <-ch
		if res.Err != nil {
			observability.LoggerFrom(detached, c.logger).Warn("query: background refresh failed, keeping previous result",
				zap.String("key", key),
				zap.Bool("shared", res.Shared),
				zap.Error(res.Err),
			)
		}
	}()
}

// Observer is one consumer's view of a query whose key changes over time.
// Only the most recent Fetch delivers its result; older in-flight fetches
// return ErrSuperseded. Network calls are not aborted.
type Observer[T any] struct {
	cache *Cache
	mu    sync.Mutex
	gen   uint64
	key   string
}

// NewObserver creates an Observer over c.
func NewObserver[T any](c *Cache) *Observer[T] {
	return &Observer[T]{cache: c}
}

// Key returns the key of the most recent Fetch.
func (o *Observer[T]) Key() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.key
}

// Fetch runs Fetch for opts and supersedes every earlier call on o.
func (o *Observer[T]) Fetch(ctx context.Context, opts Options, fetch Fetcher[T]) (T, Status, error) {
	o.mu.Lock()
	o.gen++
	gen := o.gen
	o.key = opts.Key
	o.mu.Unlock()

	v, status, err := Fetch(ctx, o.cache, opts, fetch)

	o.mu.Lock()
	current := o.gen == gen
	o.mu.Unlock()
	if !current {
		var zero T
		return zero, status, ErrSuperseded
	}
	return v, status, err
}
