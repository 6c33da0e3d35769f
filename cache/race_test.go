package cache

import (
	"math/rand"
	"runtime"
	"strconv"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"
)

// A mixed workload of concurrent Set/Get/Peek/Delete/Stats on random keys.
// Should pass under `-race`, and the capacity bound must hold throughout.
func TestRace_Basic(t *testing.T) {
	const capacity = 512
	s := New[[]byte](Options[[]byte]{Capacity: capacity})

	workers := 4 * runtime.GOMAXPROCS(0)
	keyspace := 5_000
	deadline := time.Now().Add(time.Second)

	var g errgroup.Group
	for w := 0; w < workers; w++ {
		id := w
		g.Go(func() error {
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(id)*9973))
			for time.Now().Before(deadline) {
				k := "k:" + strconv.Itoa(r.Intn(keyspace))
				switch r.Intn(100) {
				case 0, 1, 2: // ~3% — Delete
					s.Delete(k)
				case 3: // ~1% — Stats
					if st := s.Stats(); st.Size > capacity {
						t.Errorf("size %d exceeds capacity", st.Size)
					}
				case 4, 5, 6, 7, 8: // ~5% — short TTL
					s.Set(k, []byte("x"), time.Duration(1+r.Intn(20))*time.Millisecond, time.Millisecond)
				case 9, 10, 11, 12, 13, 14, 15, 16, 17, 18: // ~10% — Set
					s.Set(k, []byte("x"), 0, 0)
				case 19, 20, 21, 22, 23:
					s.Peek(k)
				default: // ~76% — Get
					s.Get(k)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	if s.Len() > capacity {
		t.Fatalf("Len %d exceeds capacity %d", s.Len(), capacity)
	}
	if got := len(s.Keys()); got != s.Len() {
		t.Fatalf("access order has %d keys, map has %d", got, s.Len())
	}
}
