// Package cache provides the bounded entry store underneath the SWR client:
// a generic, string-keyed, in-memory table with LRU eviction, per-entry TTL
// and a soft "stale" deadline, hit accounting, and lightweight metrics hooks.
//
// Design
//
//   - Storage: a map[string]*node for lookups and an intrusive MRU↔LRU doubly
//     linked list for ordering, under a single RWMutex. There is exactly one
//     partition so that LRU order is global. All operations are O(1) expected,
//     except Stats, Keys and ClearMatching which scan.
//
//   - Deadlines: each entry has StaleAt (created + staleTime) and ExpiresAt
//     (created + ttl). A stale entry is still returned, flagged IsStale. An
//     expired entry is removed lazily when Get observes it.
//
//   - Write sequences: SetIfNewer carries a sequence from NextSeq and is
//     rejected if the resident entry is newer. Plain Set allocates its own.
//
//   - Capacity: after every write the store evicts from the LRU end until it
//     is within Capacity. Resize may shrink it at runtime.
//
//   - Metrics: Options.Metrics receives Hit/Miss/Evict/Size signals.
//     NoopMetrics is the default; metrics/prom exports them to Prometheus.
//
// Basic usage
//
//	s := cache.New[string](cache.Options[string]{Capacity: 100})
//	s.Set("movie:1", "X", time.Second, 500*time.Millisecond)
//	if e, ok := s.Get("movie:1"); ok && e.IsStale {
//	    // serve e.Value and refresh in the background
//	}
package cache
