package swr

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/IvanBrykalov/swrcache/cache"
	"github.com/IvanBrykalov/swrcache/internal/dedupe"
)

var (
	// ErrNoFetcher is returned when a key is revalidated before any fetcher was registered for it.
	ErrNoFetcher = errors.New("swr: no fetcher registered for key")
	// ErrClosed is returned by operations on a closed Client.
	ErrClosed = errors.New("swr: client closed")
)

// Client is the stale-while-revalidate read path over a cache.Store.
// It is an ordinary value: construct one per cache domain and pass it to
// consumers. All methods are safe for concurrent use.
type Client[V any] struct {
	store    cache.Store[V]
	inflight dedupe.Group[V]
	opt      Options[V]
	logger   log.Logger
	metrics  Metrics

	// ctx scopes background work; cancelled by Close.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// ---- guarded by mu ----
	mu      sync.Mutex
	keys    map[string]*keyState[V]
	nextSub uint64
	focused bool
	online  bool
	closed  bool
}

// keyState is what the client remembers about a key besides its entry.
type keyState[V any] struct {
	fetcher   Fetcher[V]
	opts      FetchOptions[V]
	lastFetch int64 // UnixNano of the last successful fetch
	fetched   bool
	subs      map[uint64]func(Event[V])
	bindings  map[*Binding[V]]struct{}
}

// New constructs a Client. See Options for defaults.
func New[V any](opt Options[V]) *Client[V] {
	if opt.Capacity <= 0 {
		opt.Capacity = DefaultCapacity
	}
	if opt.DefaultTTL == 0 {
		opt.DefaultTTL = DefaultTTL
	}
	if opt.DefaultStaleTime == 0 {
		opt.DefaultStaleTime = DefaultStaleTime
	}
	if opt.Clock == nil {
		opt.Clock = cache.SystemClock{}
	}
	if opt.Logger == nil {
		opt.Logger = log.NewNopLogger()
	}
	if opt.Metrics == nil {
		opt.Metrics = NoopMetrics{}
	}
	if opt.Store == nil {
		opt.Store = cache.New[V](cache.Options[V]{
			Capacity:         opt.Capacity,
			DefaultTTL:       opt.DefaultTTL,
			DefaultStaleTime: opt.DefaultStaleTime,
			Metrics:          opt.StoreMetrics,
			Clock:            opt.Clock,
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Client[V]{
		store:    opt.Store,
		inflight: dedupe.Group[V]{Window: opt.DedupeWindow, Clock: opt.Clock},
		opt:      opt,
		logger:   log.With(opt.Logger, "component", "swr"),
		metrics:  opt.Metrics,
		ctx:      ctx,
		cancel:   cancel,
		keys:     make(map[string]*keyState[V]),
		focused:  true,
		online:   true,
	}
}

// Store exposes the underlying entry store.
func (c *Client[V]) Store() cache.Store[V] { return c.store }

// Stats returns the store's current statistics.
func (c *Client[V]) Stats() cache.Stats { return c.store.Stats() }

// Fetch reads key through the SWR state machine:
//   - fresh hit: cached value, no fetch;
//   - stale hit: cached value immediately, refresh in the background;
//   - miss: blocks on a (deduplicated) fetch and returns its result.
//
// The fetcher and options are remembered for Revalidate and triggers.
// Failures of a background refresh never reach the caller; they go to
// opts.OnError and to subscribers as EventError, and the stale value stays.
func (c *Client[V]) Fetch(ctx context.Context, key string, fetcher Fetcher[V], opts FetchOptions[V]) (Result[V], error) {
	if fetcher == nil {
		return Result[V]{}, ErrNoFetcher
	}
	if !c.register(key, fetcher, opts) {
		return Result[V]{}, ErrClosed
	}
	return c.fetch(ctx, key, fetcher, opts, false)
}

// Revalidate refetches key with its registered fetcher. If a value is cached
// it is returned at once and the fetch runs in the background; otherwise the
// call blocks like a miss.
func (c *Client[V]) Revalidate(ctx context.Context, key string) (Result[V], error) {
	fetcher, opts, ok := c.registration(key)
	if !ok {
		return Result[V]{}, ErrNoFetcher
	}
	return c.fetch(ctx, key, fetcher, opts, true)
}

// RevalidateWith is Revalidate with an explicit fetcher, which is registered for key.
func (c *Client[V]) RevalidateWith(ctx context.Context, key string, fetcher Fetcher[V], opts FetchOptions[V]) (Result[V], error) {
	if fetcher == nil {
		return Result[V]{}, ErrNoFetcher
	}
	if !c.register(key, fetcher, opts) {
		return Result[V]{}, ErrClosed
	}
	return c.fetch(ctx, key, fetcher, opts, true)
}

// Prefetch populates key in the background sense: it is a no-op when a fresh
// entry exists, and otherwise runs fetcher and writes the result without
// invoking callbacks. The error is returned to the caller only.
func (c *Client[V]) Prefetch(ctx context.Context, key string, fetcher Fetcher[V], opts FetchOptions[V]) error {
	if fetcher == nil {
		return ErrNoFetcher
	}
	if c.isClosed() {
		return ErrClosed
	}
	if e, ok := c.store.Peek(key); ok && !e.IsStale {
		return nil
	}
	if _, err := c.load(ctx, key, fetcher, opts, FetchPrefetch, 0); err != nil {
		level.Debug(c.logger).Log("msg", "prefetch failed", "key", key, "err", err)
		return err
	}
	return nil
}

// ClearCache removes every entry, or only keys containing pattern when it is
// non-empty. Registrations and subscriptions are kept.
func (c *Client[V]) ClearCache(pattern string) int {
	if pattern == "" {
		n := c.store.Len()
		c.store.Clear()
		return n
	}
	return c.store.ClearMatching(pattern)
}

// Close cancels background fetches, closes every binding, and waits for
// in-flight background work to return. Safe to call more than once.
func (c *Client[V]) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	var bindings []*Binding[V]
	for _, ks := range c.keys {
		for b := range ks.bindings {
			bindings = append(bindings, b)
		}
	}
	c.mu.Unlock()

	for _, b := range bindings {
		b.Close()
	}
	c.cancel()
	c.wg.Wait()
	return nil
}

// ---- state machine ----

func (c *Client[V]) fetch(ctx context.Context, key string, fetcher Fetcher[V], opts FetchOptions[V], revalidation bool) (Result[V], error) {
	e, ok := c.store.Get(key)
	if ok && !e.IsStale && !revalidation {
		return Result[V]{Data: e.Value, Found: true}, nil
	}
	if ok {
		kind := FetchStale
		if revalidation {
			kind = FetchRevalidate
		}
		started := c.background(key, fetcher, opts, kind, 0)
		return Result[V]{Data: e.Value, Found: true, Stale: e.IsStale, Revalidating: started}, nil
	}

	v, err := c.load(ctx, key, fetcher, opts, FetchMiss, 0)
	if err != nil {
		if opts.OnError != nil {
			opts.OnError(key, err)
		}
		return Result[V]{}, err
	}
	if opts.OnSuccess != nil {
		opts.OnSuccess(key, v)
	}
	return Result[V]{Data: v, Found: true}, nil
}

// background refreshes key on a tracked goroutine. It reports false when the
// client is closed and nothing was started. minSeq is passed to load.
func (c *Client[V]) background(key string, fetcher Fetcher[V], opts FetchOptions[V], kind FetchKind, minSeq uint64) bool {
	return c.spawn(func(ctx context.Context) {
		v, err := c.load(ctx, key, fetcher, opts, kind, minSeq)
		if err != nil {
			level.Warn(c.logger).Log("msg", "background revalidation failed, serving stale", "key", key, "kind", kind, "err", err)
			if opts.OnError != nil {
				opts.OnError(key, err)
			}
			return
		}
		if opts.OnSuccess != nil {
			opts.OnSuccess(key, v)
		}
	})
}

// load runs fetcher through the coordinator and commits the result with the
// sequence taken when the fetch started. A write older than the resident entry
// is dropped and the caller gets the committed value instead. A pending fetch
// that started before minSeq is not joined.
//
// Failures are published as EventError except for prefetches, which stay
// silent towards bindings.
func (c *Client[V]) load(ctx context.Context, key string, fetcher Fetcher[V], opts FetchOptions[V], kind FetchKind, minSeq uint64) (V, error) {
	c.metrics.Fetch(kind)
	ttl, stale := c.lifetimes(opts)

	seq := c.store.NextSeq()
	v, shared, err := c.inflight.ExecuteAfter(ctx, key, seq, minSeq, func() (V, error) {
		v, err := fetcher(ctx, key)
		if err != nil {
			if kind != FetchPrefetch {
				c.publish(key, Event[V]{Key: key, Kind: EventError, Err: err})
			}
			return v, err
		}
		c.touch(key)
		if c.store.SetIfNewer(key, v, ttl, stale, seq) {
			c.publish(key, Event[V]{Key: key, Kind: EventUpdated, Value: v})
		} else {
			level.Debug(c.logger).Log("msg", "fetch result superseded by a newer write", "key", key, "seq", seq)
		}
		return v, nil
	})
	if shared {
		c.metrics.Shared()
	}
	if err != nil {
		c.metrics.FetchError(kind)
		return v, err
	}
	if cur, ok := c.store.Peek(key); ok {
		v = cur.Value
	}
	return v, nil
}

// spawn runs fn on a goroutine tracked by wg with the client's context.
func (c *Client[V]) spawn(fn func(ctx context.Context)) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		fn(c.ctx)
	}()
	return true
}

// ---- key registry ----

func (c *Client[V]) lifetimes(opts FetchOptions[V]) (ttl, stale time.Duration) {
	ttl, stale = opts.TTL, opts.StaleTime
	if ttl == 0 {
		ttl = c.opt.DefaultTTL
	}
	if stale == 0 {
		stale = c.opt.DefaultStaleTime
	}
	return ttl, stale
}

// stateLocked returns the keyState for key, creating it. mu must be held.
func (c *Client[V]) stateLocked(key string) *keyState[V] {
	ks, ok := c.keys[key]
	if !ok {
		ks = &keyState[V]{
			subs:     make(map[uint64]func(Event[V])),
			bindings: make(map[*Binding[V]]struct{}),
		}
		c.keys[key] = ks
	}
	return ks
}

func (c *Client[V]) register(key string, fetcher Fetcher[V], opts FetchOptions[V]) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	ks := c.stateLocked(key)
	ks.fetcher, ks.opts = fetcher, opts
	return true
}

func (c *Client[V]) registration(key string) (Fetcher[V], FetchOptions[V], bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ks, ok := c.keys[key]
	if !ok || ks.fetcher == nil {
		return nil, FetchOptions[V]{}, false
	}
	return ks.fetcher, ks.opts, true
}

func (c *Client[V]) touch(key string) {
	now := c.opt.Clock.NowUnixNano()
	c.mu.Lock()
	ks := c.stateLocked(key)
	ks.lastFetch, ks.fetched = now, true
	c.mu.Unlock()
}

// sinceLastFetch reports how long ago key was last fetched successfully.
// ok is false if it never was.
func (c *Client[V]) sinceLastFetch(key string) (d time.Duration, ok bool) {
	c.mu.Lock()
	ks, found := c.keys[key]
	if !found || !ks.fetched {
		c.mu.Unlock()
		return 0, false
	}
	last := ks.lastFetch
	c.mu.Unlock()
	return time.Duration(c.opt.Clock.NowUnixNano() - last), true
}

func (c *Client[V]) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
