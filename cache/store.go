package cache

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// store is a single LRU partition: a map for lookups and an intrusive
// list (head=MRU, tail=LRU) for access order. Keeping one partition makes
// the LRU order global, which sharding would not.
type store[V any] struct {
	// ---- guarded by mu ----
	mu   sync.RWMutex
	m    map[string]*node[V]
	head *node[V] // MRU
	tail *node[V] // LRU
	len  int
	cap  int

	opt Options[V]
	seq atomic.Uint64

	hits   atomic.Int64
	misses atomic.Int64
	evicts atomic.Uint64
}

// New constructs a store with the provided Options.
// Panics if Capacity <= 0.
func New[V any](opt Options[V]) Store[V] {
	if opt.Capacity <= 0 {
		panic("Capacity must be > 0")
	}
	if opt.Metrics == nil {
		opt.Metrics = NoopMetrics{}
	}
	if opt.Clock == nil {
		opt.Clock = SystemClock{}
	}
	return &store[V]{
		m:   make(map[string]*node[V], opt.Capacity),
		cap: opt.Capacity,
		opt: opt,
	}
}

func (s *store[V]) Get(key string) (Entry[V], bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	n, ok := s.m[key]
	if !ok {
		s.misses.Add(1)
		s.opt.Metrics.Miss()
		return Entry[V]{}, false
	}
	if n.expired(now) {
		s.evictNode(n, EvictTTL)
		s.misses.Add(1)
		s.opt.Metrics.Miss()
		s.opt.Metrics.Size(s.len)
		return Entry[V]{}, false
	}

	s.moveToFront(n)
	n.hits++
	s.hits.Add(1)
	s.opt.Metrics.Hit()
	return n.view(now), true
}

func (s *store[V]) Peek(key string) (Entry[V], bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	n, ok := s.m[key]
	if !ok || n.expired(now) {
		return Entry[V]{}, false
	}
	return n.view(now), true
}

func (s *store[V]) Set(key string, v V, ttl, staleTime time.Duration) {
	s.SetIfNewer(key, v, ttl, staleTime, s.NextSeq())
}

func (s *store[V]) SetIfNewer(key string, v V, ttl, staleTime time.Duration, seq uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	stale, exp := s.deadlines(now, ttl, staleTime)

	if n, ok := s.m[key]; ok {
		if n.seq > seq {
			return false
		}
		n.val = v
		n.created, n.stale, n.exp = now, stale, exp
		n.seq = seq
		n.hits = 0
		s.moveToFront(n)
		s.enforceLimitsLocked()
		return true
	}

	n := &node[V]{key: key, val: v, created: now, stale: stale, exp: exp, seq: seq}
	s.m[key] = n
	s.insertFront(n)
	s.enforceLimitsLocked()
	return true
}

func (s *store[V]) NextSeq() uint64 { return s.seq.Add(1) }

func (s *store[V]) Delete(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.m[key]
	if !ok {
		return false
	}
	s.removeNode(n)
	delete(s.m, key)
	s.opt.Metrics.Size(s.len)
	return true
}

func (s *store[V]) ClearMatching(substr string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for k, n := range s.m {
		if strings.Contains(k, substr) {
			s.removeNode(n)
			delete(s.m, k)
			removed++
		}
	}
	s.opt.Metrics.Size(s.len)
	return removed
}

func (s *store[V]) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.m = make(map[string]*node[V], s.cap)
	s.head, s.tail = nil, nil
	s.len = 0
	s.opt.Metrics.Size(0)
}

func (s *store[V]) Has(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.m[key]
	return ok && !n.expired(s.now())
}

func (s *store[V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.len
}

func (s *store[V]) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, s.len)
	for n := s.tail; n != nil; n = n.prev {
		keys = append(keys, n.key)
	}
	return keys
}

func (s *store[V]) Resize(capacity int) {
	if capacity <= 0 {
		panic("Capacity must be > 0")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cap = capacity
	s.enforceLimitsLocked()
}

func (s *store[V]) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	st := Stats{
		Size:      s.len,
		Capacity:  s.cap,
		Hits:      s.hits.Load(),
		Misses:    s.misses.Load(),
		Evictions: s.evicts.Load(),
	}
	var hits int64
	for n := s.head; n != nil; n = n.next {
		hits += n.hits
		switch {
		case n.expired(now):
			st.Expired++
		case n.isStale(now):
			st.Stale++
		}
	}
	if st.Size > 0 {
		st.HitRate = float64(hits) / float64(st.Size)
	}
	return st
}

// -------------------- internals (mu held) --------------------

func (s *store[V]) now() int64 { return s.opt.Clock.NowUnixNano() }

// deadlines converts relative durations into absolute UnixNano deadlines.
// ttl <= 0 means no expiry; staleTime <= 0 means stale at expiry.
func (s *store[V]) deadlines(now int64, ttl, staleTime time.Duration) (stale, exp int64) {
	if ttl == 0 {
		ttl = s.opt.DefaultTTL
	}
	if staleTime == 0 {
		staleTime = s.opt.DefaultStaleTime
	}
	if ttl > 0 {
		exp = now + int64(ttl)
	}
	if staleTime > 0 {
		stale = now + int64(staleTime)
	} else {
		stale = exp
	}
	return stale, exp
}

// insertFront inserts n at MRU in O(1).
func (s *store[V]) insertFront(n *node[V]) {
	n.prev = nil
	n.next = s.head
	if s.head != nil {
		s.head.prev = n
	}
	s.head = n
	if s.tail == nil {
		s.tail = n
	}
	s.len++
}

// moveToFront promotes n to MRU in O(1).
func (s *store[V]) moveToFront(n *node[V]) {
	if n == s.head {
		return
	}
	if n.prev != nil {
		n.prev.next = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	}
	if s.tail == n {
		s.tail = n.prev
	}
	n.prev = nil
	n.next = s.head
	if s.head != nil {
		s.head.prev = n
	}
	s.head = n
	if s.tail == nil {
		s.tail = n
	}
}

// removeNode unlinks n and updates the length. Map bookkeeping is the caller's.
func (s *store[V]) removeNode(n *node[V]) {
	if n.prev != nil {
		n.prev.next = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	}
	if s.head == n {
		s.head = n.next
	}
	if s.tail == n {
		s.tail = n.prev
	}
	n.prev, n.next = nil, nil
	s.len--
}

func (s *store[V]) evictNode(n *node[V], reason EvictReason) {
	s.removeNode(n)
	delete(s.m, n.key)
	s.evicts.Add(1)
	s.opt.Metrics.Evict(reason)
	if cb := s.opt.OnEvict; cb != nil {
		cb(n.key, n.val, reason)
	}
}

// enforceLimitsLocked evicts from the LRU end until len <= cap.
// With a fixed capacity a single Set overflows by at most one entry.
func (s *store[V]) enforceLimitsLocked() {
	for s.len > s.cap && s.tail != nil {
		s.evictNode(s.tail, EvictCapacity)
	}
	s.opt.Metrics.Size(s.len)
}
