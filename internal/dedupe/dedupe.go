// Package dedupe coalesces concurrent fetches of the same key.
package dedupe

import (
	"context"
	"sync"
	"time"

	"github.com/IvanBrykalov/swrcache/cache"
)

// DefaultWindow is used when Group.Window is zero.
const DefaultWindow = 2 * time.Second

// Group collapses concurrent calls for the same key into one execution of fn,
// as long as the in-flight call started no more than Window ago. A call older
// than the window is left to finish on its own and a new one is started, so two
// executions for one key may overlap; the store's write sequence decides which
// result wins.
//
// Concurrency notes:
//   - The first caller for a given key becomes the leader and runs fn.
//   - Followers wait on c.done. Publishing (val, err) happens-before
//     close(c.done), so reads after <-done observe the final values.
//   - Cancelling ctx in a follower unblocks only that follower; it does
//     NOT cancel the leader's fn.
//
// The zero value is ready to use.
type Group[V any] struct {
	Window time.Duration
	Clock  cache.Clock // nil => time.Now()

	mu sync.Mutex
	m  map[string]*call[V]
}

type call[V any] struct {
	done    chan struct{} // closed when val/err are published
	val     V
	err     error
	started int64
	seq     uint64 // leader's write sequence, see ExecuteAfter
	joined  int
}

// Execute runs fn for key unless a call started within the window is still
// in flight, in which case it waits for that call's result. shared reports
// whether the result came from (or was handed to) more than one caller.
func (g *Group[V]) Execute(ctx context.Context, key string, fn func() (V, error)) (v V, shared bool, err error) {
	return g.ExecuteAfter(ctx, key, 0, 0, fn)
}

// ExecuteAfter is Execute for callers that order results by write sequence.
// A pending call is joined only if its sequence is at least minSeq; otherwise
// the caller leads a new call tagged with seq. A writer that must observe
// data fetched after its own write passes that write's sequence as minSeq.
func (g *Group[V]) ExecuteAfter(ctx context.Context, key string, seq, minSeq uint64, fn func() (V, error)) (v V, shared bool, err error) {
	now := g.now()

	g.mu.Lock()
	if g.m == nil {
		g.m = make(map[string]*call[V])
	}
	if c, ok := g.m[key]; ok && now-c.started <= int64(g.window()) && c.seq >= minSeq {
		c.joined++
		g.mu.Unlock()

		select {
		case <-c.done:
			return c.val, true, c.err
		case <-ctx.Done():
			var zero V
			return zero, false, ctx.Err()
		}
	}

	// We are the leader for this key; an older call, if any, is orphaned.
	c := &call[V]{done: make(chan struct{}), started: now, seq: seq}
	g.m[key] = c
	g.mu.Unlock()

	v, err = fn()

	c.val, c.err = v, err
	close(c.done)

	g.mu.Lock()
	if g.m[key] == c {
		delete(g.m, key)
	}
	shared = c.joined > 0
	g.mu.Unlock()

	return v, shared, err
}

// Pending reports whether a call for key is in flight.
func (g *Group[V]) Pending(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.m[key]
	return ok
}

// Len returns the number of keys with a call in flight.
func (g *Group[V]) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.m)
}

func (g *Group[V]) window() time.Duration {
	if g.Window <= 0 {
		return DefaultWindow
	}
	return g.Window
}

func (g *Group[V]) now() int64 {
	if g.Clock != nil {
		return g.Clock.NowUnixNano()
	}
	return time.Now().UnixNano()
}
