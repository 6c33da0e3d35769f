package cache

import (
	"fmt"
	"reflect"
	"testing"
	"time"
)

type fakeClock struct{ t int64 }

func (f *fakeClock) NowUnixNano() int64  { return f.t }
func (f *fakeClock) add(d time.Duration) { f.t += int64(d) }

type movie struct{ Title string }

// movie:1 written with ttl=1000ms, stale=500ms: stale at 600ms, gone at 1100ms.
func TestStore_StaleThenExpired_FakeClock(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{}
	s := New[movie](Options[movie]{Capacity: 4, Clock: clk})

	s.Set("movie:1", movie{Title: "X"}, 1000*time.Millisecond, 500*time.Millisecond)

	clk.add(600 * time.Millisecond)
	e, ok := s.Get("movie:1")
	if !ok {
		t.Fatal("stale entry must still be served")
	}
	if !e.IsStale || e.Value.Title != "X" {
		t.Fatalf("want stale X, got %+v", e)
	}
	if !s.Has("movie:1") {
		t.Fatal("stale read must not remove the entry")
	}

	clk.add(500 * time.Millisecond) // t=1100ms
	if _, ok := s.Get("movie:1"); ok {
		t.Fatal("expired hit")
	}
	if s.Has("movie:1") {
		t.Fatal("expired entry must be removed by Get")
	}
	if s.Len() != 0 {
		t.Fatalf("Len want 0, got %d", s.Len())
	}
}

func TestStore_FreshIsNotStale(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{}
	s := New[int](Options[int]{Capacity: 2, Clock: clk})
	s.Set("a", 1, time.Second, 500*time.Millisecond)

	clk.add(500 * time.Millisecond) // boundary: now == staleAt is still fresh
	e, ok := s.Get("a")
	if !ok || e.IsStale {
		t.Fatalf("want fresh hit, got %+v ok=%v", e, ok)
	}
	if e.HitCount != 1 {
		t.Fatalf("HitCount want 1, got %d", e.HitCount)
	}
}

// Zero durations fall back to the defaults; non-positive defaults never expire.
func TestStore_DefaultDeadlines(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{}
	s := New[int](Options[int]{Capacity: 4, Clock: clk, DefaultTTL: time.Second, DefaultStaleTime: 100 * time.Millisecond})
	s.Set("d", 1, 0, 0)
	e, _ := s.Peek("d")
	if got := e.ExpiresAt.Sub(e.CreatedAt); got != time.Second {
		t.Fatalf("ttl want 1s, got %v", got)
	}
	if got := e.StaleAt.Sub(e.CreatedAt); got != 100*time.Millisecond {
		t.Fatalf("stale want 100ms, got %v", got)
	}

	forever := New[int](Options[int]{Capacity: 1, Clock: clk})
	forever.Set("f", 1, 0, 0)
	clk.add(1000 * time.Hour)
	e, ok := forever.Get("f")
	if !ok || e.IsStale || !e.ExpiresAt.IsZero() {
		t.Fatalf("want never-expiring fresh entry, got %+v ok=%v", e, ok)
	}
}

// Accessing "a" promotes it; inserting "c" evicts LRU ("b").
func TestStore_EvictionLRU(t *testing.T) {
	t.Parallel()

	s := New[int](Options[int]{Capacity: 2})

	s.Set("a", 1, 0, 0) // LRU = a
	s.Set("b", 2, 0, 0) // MRU = b

	if _, ok := s.Get("a"); !ok { // promote a -> MRU
		t.Fatal("expect hit for a")
	}
	s.Set("c", 3, 0, 0) // overflow -> evict LRU (b)

	if s.Has("b") {
		t.Fatal("b must be evicted")
	}
	if !s.Has("a") || !s.Has("c") {
		t.Fatal("a and c must survive")
	}
	if got := s.Keys(); !reflect.DeepEqual(got, []string{"a", "c"}) {
		t.Fatalf("access order want [a c], got %v", got)
	}
}

// For capacity N, inserting N+1 distinct keys evicts exactly the first one.
func TestStore_EvictsExactlyOnePerOverflow(t *testing.T) {
	t.Parallel()

	const n = 5
	var evicted []string
	s := New[int](Options[int]{
		Capacity: n,
		OnEvict: func(k string, _ int, r EvictReason) {
			if r != EvictCapacity {
				t.Errorf("unexpected reason %v", r)
			}
			evicted = append(evicted, k)
		},
	})
	for i := 0; i <= n; i++ {
		s.Set(fmt.Sprintf("k%d", i), i, 0, 0)
		if s.Len() > n {
			t.Fatalf("Len %d exceeds capacity %d", s.Len(), n)
		}
	}
	if !reflect.DeepEqual(evicted, []string{"k0"}) {
		t.Fatalf("want [k0] evicted, got %v", evicted)
	}
}

func TestStore_ResizeShrinksToBound(t *testing.T) {
	t.Parallel()

	s := New[int](Options[int]{Capacity: 6})
	for i := 0; i < 6; i++ {
		s.Set(fmt.Sprintf("k%d", i), i, 0, 0)
	}
	s.Resize(2)
	if s.Len() != 2 {
		t.Fatalf("Len want 2 after Resize, got %d", s.Len())
	}
	if got := s.Keys(); !reflect.DeepEqual(got, []string{"k4", "k5"}) {
		t.Fatalf("want the two MRU keys, got %v", got)
	}
	if st := s.Stats(); st.Capacity != 2 || st.Evictions != 4 {
		t.Fatalf("unexpected stats %+v", st)
	}
}

func TestStore_SetIfNewerRejectsOlderSequence(t *testing.T) {
	t.Parallel()

	s := New[string](Options[string]{Capacity: 4})
	early := s.NextSeq()
	late := s.NextSeq()

	if !s.SetIfNewer("k", "late", 0, 0, late) {
		t.Fatal("first write must commit")
	}
	if s.SetIfNewer("k", "early", 0, 0, early) {
		t.Fatal("older sequence must be rejected")
	}
	if e, _ := s.Peek("k"); e.Value != "late" || e.Seq != late {
		t.Fatalf("want late@%d, got %+v", late, e)
	}
	if !s.SetIfNewer("k", "again", 0, 0, late) {
		t.Fatal("equal sequence must commit")
	}
}

func TestStore_DeleteClearHas(t *testing.T) {
	t.Parallel()

	s := New[int](Options[int]{Capacity: 8})
	s.Set("movie:1", 1, 0, 0)
	s.Set("movie:2", 2, 0, 0)
	s.Set("user:1", 3, 0, 0)

	if !s.Delete("user:1") || s.Delete("user:1") {
		t.Fatal("Delete must succeed exactly once")
	}
	if n := s.ClearMatching("movie"); n != 2 {
		t.Fatalf("ClearMatching want 2, got %d", n)
	}
	if s.Len() != 0 || len(s.Keys()) != 0 {
		t.Fatal("store must be empty")
	}

	s.Set("x", 1, 0, 0)
	s.Clear()
	if s.Has("x") || s.Len() != 0 {
		t.Fatal("Clear must drop everything")
	}
	s.Set("y", 2, 0, 0) // list must still be usable after Clear
	if got := s.Keys(); !reflect.DeepEqual(got, []string{"y"}) {
		t.Fatalf("want [y], got %v", got)
	}
}

func TestStore_Stats(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{}
	s := New[int](Options[int]{Capacity: 10, Clock: clk})
	s.Set("fresh", 1, time.Hour, time.Hour)
	s.Set("stale", 2, time.Hour, time.Millisecond)
	s.Set("expired", 3, time.Millisecond, time.Millisecond)

	s.Get("fresh")
	s.Get("fresh")
	s.Get("stale")
	s.Get("nope")
	clk.add(10 * time.Millisecond)

	st := s.Stats()
	if st.Size != 3 || st.Capacity != 10 {
		t.Fatalf("size/capacity: %+v", st)
	}
	if st.Stale != 1 || st.Expired != 1 {
		t.Fatalf("want 1 stale and 1 expired, got %+v", st)
	}
	if st.HitRate != 1.0 { // 3 hits across 3 entries
		t.Fatalf("HitRate want 1.0, got %v", st.HitRate)
	}
	if st.Hits != 3 || st.Misses != 1 {
		t.Fatalf("hits/misses: %+v", st)
	}
}

func TestStore_OverwriteResetsHitCount(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{}
	s := New[int](Options[int]{Capacity: 4, Clock: clk})
	s.Set("k", 1, time.Hour, time.Hour)
	s.Get("k")
	s.Get("k")

	clk.add(time.Second)
	s.Set("k", 2, time.Hour, time.Hour)

	e, ok := s.Peek("k")
	if !ok || e.Value != 2 {
		t.Fatalf("want overwritten value 2, got %+v ok=%v", e, ok)
	}
	if e.HitCount != 0 {
		t.Fatalf("HitCount want 0 after overwrite, got %d", e.HitCount)
	}
	if !e.CreatedAt.Equal(time.Unix(0, int64(time.Second))) {
		t.Fatalf("CreatedAt not refreshed: %v", e.CreatedAt)
	}
	if st := s.Stats(); st.HitRate != 0 {
		t.Fatalf("HitRate want 0, got %v", st.HitRate)
	}
}

type countingMetrics struct {
	hits, misses int
	evicts       map[EvictReason]int
	size         int
}

func (m *countingMetrics) Hit()               { m.hits++ }
func (m *countingMetrics) Miss()              { m.misses++ }
func (m *countingMetrics) Evict(r EvictReason) { m.evicts[r]++ }
func (m *countingMetrics) Size(n int)         { m.size = n }

func TestStore_MetricsHooks(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{}
	m := &countingMetrics{evicts: map[EvictReason]int{}}
	s := New[int](Options[int]{Capacity: 1, Clock: clk, Metrics: m})

	s.Set("a", 1, time.Second, 0)
	s.Get("a")
	s.Set("b", 2, time.Second, 0) // evicts a
	clk.add(2 * time.Second)
	s.Get("b") // expired

	if m.hits != 1 || m.misses != 1 {
		t.Fatalf("hits=%d misses=%d", m.hits, m.misses)
	}
	if m.evicts[EvictCapacity] != 1 || m.evicts[EvictTTL] != 1 {
		t.Fatalf("evicts=%v", m.evicts)
	}
	if m.size != 0 {
		t.Fatalf("size gauge want 0, got %d", m.size)
	}
}
