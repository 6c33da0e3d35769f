package swr

import (
	"context"
	"time"

	"github.com/IvanBrykalov/swrcache/cache"
	"github.com/go-kit/log"
)

// Defaults applied by New when the corresponding Options field is zero.
const (
	DefaultCapacity  = 100
	DefaultTTL       = 5 * time.Minute
	DefaultStaleTime = 30 * time.Second
)

// Fetcher produces the value for key, or fails. The client treats it as an
// opaque operation: retries, transport and headers are the fetcher's business.
type Fetcher[V any] func(ctx context.Context, key string) (V, error)

// FetchKind labels why a fetcher ran.
type FetchKind string

const (
	FetchMiss       FetchKind = "miss"       // blocking load, nothing cached
	FetchStale      FetchKind = "stale"      // background refresh after a stale hit
	FetchRevalidate FetchKind = "revalidate" // explicit, trigger or mutation driven
	FetchPrefetch   FetchKind = "prefetch"   // silent background population
)

// Metrics receives controller-level signals. NoopMetrics is the default.
type Metrics interface {
	Fetch(kind FetchKind)
	FetchError(kind FetchKind)
	// Shared is called when a caller's result came from a deduplicated fetch.
	Shared()
}

// NoopMetrics discards every signal.
type NoopMetrics struct{}

func (NoopMetrics) Fetch(FetchKind)      {}
func (NoopMetrics) FetchError(FetchKind) {}
func (NoopMetrics) Shared()              {}

var _ Metrics = NoopMetrics{}

// Options configures a Client. Zero values are safe; defaults are applied in New():
//   - nil Store     => cache.New with Capacity/DefaultTTL/DefaultStaleTime
//   - nil Logger    => log.NewNopLogger()
//   - nil Metrics   => NoopMetrics
//   - nil Clock     => time.Now()
type Options[V any] struct {
	// Store is the entry store to use. When nil a new one is built.
	Store cache.Store[V]

	// Capacity, DefaultTTL and DefaultStaleTime configure the built store and
	// resolve zero FetchOptions lifetimes.
	Capacity         int
	DefaultTTL       time.Duration
	DefaultStaleTime time.Duration

	// StoreMetrics is handed to the built store (ignored when Store is set).
	StoreMetrics cache.Metrics

	// DedupeWindow bounds how long an in-flight fetch is joined by new callers.
	DedupeWindow time.Duration

	Clock   cache.Clock
	Logger  log.Logger
	Metrics Metrics
}

// FetchOptions are per-key settings supplied with a fetcher.
type FetchOptions[V any] struct {
	// TTL and StaleTime of entries written for this key. Zero => client defaults.
	TTL       time.Duration
	StaleTime time.Duration

	// RevalidateOnFocus revalidates a watched key when focus is regained and
	// the last fetch is older than StaleTime.
	RevalidateOnFocus bool
	// RevalidateOnReconnect revalidates a watched key when the network returns.
	RevalidateOnReconnect bool

	OnSuccess func(key string, v V)
	OnError   func(key string, err error)

	// Disabled makes Watch return an idle binding that never fetches.
	Disabled bool
}

// Result is what Fetch and Revalidate return to the caller.
type Result[V any] struct {
	Data  V
	Found bool

	// Stale is set when Data was past its stale deadline when read.
	Stale bool
	// Revalidating is set when a background refresh was started for the key.
	Revalidating bool
}
