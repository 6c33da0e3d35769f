package cache

import "time"

// Store is a bounded, in-memory key/entry table with LRU eviction order.
// All methods are safe for concurrent use by multiple goroutines.
//
// Every entry carries two deadlines: StaleAt (soft, the entry is still served
// but flagged stale) and ExpiresAt (hard, the entry is treated as absent).
// Absence is always reported as (zero, false), never as an error.
type Store[V any] interface {
	// Get returns the entry for key if present and not expired.
	// An expired entry is removed and reported absent.
	// On hit, the entry is promoted to MRU and its HitCount incremented.
	Get(key string) (Entry[V], bool)

	// Peek is Get without promotion, hit accounting or removal of expired entries.
	Peek(key string) (Entry[V], bool)

	// Set inserts or overwrites key with fresh timestamps and promotes it to MRU.
	// Zero ttl/staleTime fall back to Options.DefaultTTL/DefaultStaleTime.
	// LRU entries are evicted until the store is within Capacity.
	Set(key string, v V, ttl, staleTime time.Duration)

	// SetIfNewer is Set guarded by a write sequence obtained from NextSeq.
	// The write is dropped (false) if the resident entry carries a higher sequence.
	SetIfNewer(key string, v V, ttl, staleTime time.Duration, seq uint64) bool

	// NextSeq allocates a monotonically increasing write sequence.
	NextSeq() uint64

	// Delete removes key and reports whether it was present.
	Delete(key string) bool

	// ClearMatching removes every key containing substr and returns the count.
	ClearMatching(substr string) int

	// Clear removes all entries.
	Clear()

	// Has reports whether key is present and not expired. It does not promote.
	Has(key string) bool

	// Len returns the number of resident entries (expired ones included until detected).
	Len() int

	// Keys returns the access order, least recently used first.
	Keys() []string

	// Resize changes the capacity, evicting LRU entries until within bounds.
	Resize(capacity int)

	// Stats computes an occupancy/staleness snapshot at call time.
	Stats() Stats
}

// Entry is a read-only view of a stored value and its timestamps.
type Entry[V any] struct {
	Value     V
	CreatedAt time.Time
	StaleAt   time.Time // zero = never stale
	ExpiresAt time.Time // zero = never expires
	HitCount  int64
	Seq       uint64

	// IsStale is computed at read time: now > StaleAt.
	IsStale bool
}

// Stats is a point-in-time snapshot of the store.
// Stale and Expired are computed lazily by scanning at call time.
type Stats struct {
	Size      int
	Capacity  int
	Stale     int
	Expired   int
	HitRate   float64 // sum(HitCount) / Size, 0 when empty
	Hits      int64
	Misses    int64
	Evictions uint64
}
