package cache

import (
	"math/rand"
	"strconv"
	"sync/atomic"
	"testing"
	"time"
)

// benchmarkMix exercises a read/write mix against a warm store.
// A single lock guards the store, so this mostly measures contention.
func benchmarkMix(b *testing.B, readsPct int) {
	s := New[string](Options[string]{
		Capacity:   100_000,
		DefaultTTL: time.Minute,
	})

	for i := 0; i < 50_000; i++ {
		s.Set("k:"+strconv.Itoa(i), "v", 0, 0)
	}

	b.ReportAllocs()
	b.ResetTimer()

	var seed int64 = 1
	keyMask := (1 << 16) - 1

	b.RunParallel(func(pb *testing.PB) {
		r := rand.New(rand.NewSource(atomic.AddInt64(&seed, 1)))
		i := 0
		for pb.Next() {
			k := "k:" + strconv.Itoa(i&keyMask)
			if r.Intn(100) < readsPct {
				s.Get(k)
			} else {
				s.Set(k, "v", 0, 0)
			}
			i++
		}
	})
}

func BenchmarkStore_90r10w(b *testing.B) { benchmarkMix(b, 90) }
func BenchmarkStore_50r50w(b *testing.B) { benchmarkMix(b, 50) }

func BenchmarkStore_Stats(b *testing.B) {
	s := New[int](Options[int]{Capacity: 10_000})
	for i := 0; i < 10_000; i++ {
		s.Set("k:"+strconv.Itoa(i), i, time.Minute, time.Second)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = s.Stats()
	}
}
