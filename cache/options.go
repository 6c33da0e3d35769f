package cache

import "time"

// EvictReason explains why an entry was removed.
type EvictReason int

const (
	// EvictCapacity: the least recently used entry dropped to stay within Capacity.
	EvictCapacity EvictReason = iota
	// EvictTTL: an expired entry detected on read.
	EvictTTL
)

// String returns a stable label for the reason.
func (r EvictReason) String() string {
	switch r {
	case EvictTTL:
		return "ttl"
	default:
		return "capacity"
	}
}

// Metrics exposes store-level observability hooks.
// A NoopMetrics implementation is provided and used by default.
type Metrics interface {
	Hit()
	Miss()
	Evict(reason EvictReason)
	Size(entries int)
}

// Clock provides time in UnixNano; useful for deterministic tests.
type Clock interface{ NowUnixNano() int64 }

// Options configures the store. Zero values are safe except Capacity;
// defaults are applied in New():
//   - nil Metrics  => NoopMetrics
//   - nil Clock    => time.Now()
type Options[V any] struct {
	// Capacity is the entry count limit. Must be > 0.
	Capacity int

	// DefaultTTL applies when Set is called with ttl == 0.
	// A non-positive result disables expiration for the entry.
	DefaultTTL time.Duration

	// DefaultStaleTime applies when Set is called with staleTime == 0.
	// A non-positive result makes the entry stale exactly at expiry.
	// staleTime > ttl is not validated.
	DefaultStaleTime time.Duration

	// OnEvict is called on eviction under the store lock; keep callbacks lightweight.
	OnEvict func(key string, v V, reason EvictReason)
	Metrics Metrics

	// Clock allows overriding time source (tests). Nil => time.Now().
	Clock Clock
}

// NoopMetrics is a drop-in Metrics implementation that does nothing.
type NoopMetrics struct{}

func (NoopMetrics) Hit()              {}
func (NoopMetrics) Miss()             {}
func (NoopMetrics) Evict(EvictReason) {}
func (NoopMetrics) Size(int)          {}

var _ Metrics = NoopMetrics{}

// SystemClock reads the wall clock.
type SystemClock struct{}

// NowUnixNano implements Clock.
func (SystemClock) NowUnixNano() int64 { return time.Now().UnixNano() }
