package swr

import (
	"context"
	"sync"
)

// State is the observable state of a Binding.
type State[V any] struct {
	Data    V
	HasData bool
	Err     error

	// IsLoading is set while a blocking fetch runs and no data is available.
	IsLoading bool
	// IsValidating is set while any fetch for the key is in flight.
	IsValidating bool
}

// Binding is a live view of one key for a single consumer. It follows every
// change to the key (fetch, revalidation, mutation) and republishes its State
// on Updates. Close it when the consumer goes away; results that settle after
// Close are ignored by the binding, though they are still written to the cache.
type Binding[V any] struct {
	c       *Client[V]
	key     string
	fetcher Fetcher[V]
	opts    FetchOptions[V]

	mu      sync.Mutex
	state   State[V]
	updates chan State[V]
	unsub   func()
	closed  bool
	events  uint64 // count of events applied; guards results against newer events
}

// Watch binds key for a consumer and starts the initial read. A cached value
// is visible in State immediately; on a miss State reports IsLoading until the
// fetch settles. With opts.Disabled the binding stays idle.
func (c *Client[V]) Watch(ctx context.Context, key string, fetcher Fetcher[V], opts FetchOptions[V]) *Binding[V] {
	b := &Binding[V]{
		c:       c,
		key:     key,
		fetcher: fetcher,
		opts:    opts,
		updates: make(chan State[V], 1),
	}
	if opts.Disabled || fetcher == nil {
		return b
	}
	if !c.attach(key, b) {
		b.Close()
		return b
	}
	b.unsub = c.Subscribe(key, b.onEvent)
	b.run(ctx, false)
	return b
}

// Key returns the bound key.
func (b *Binding[V]) Key() string { return b.key }

// State returns a copy of the current state.
func (b *Binding[V]) State() State[V] {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Updates delivers the latest State after every change. The channel holds
// one element; a slow reader only ever sees the most recent state. It is
// closed by Close.
func (b *Binding[V]) Updates() <-chan State[V] { return b.updates }

// Revalidate refetches the key. With data present it returns immediately while
// the fetch runs in the background; otherwise it blocks until the fetch settles.
func (b *Binding[V]) Revalidate(ctx context.Context) error {
	if b.opts.Disabled || b.fetcher == nil {
		return nil
	}
	return b.run(ctx, true)
}

// Mutate applies an optimistic mutation to the bound key. See Client.Mutate.
func (b *Binding[V]) Mutate(m Mutation[V], revalidate bool) V {
	return b.c.Mutate(b.key, m, revalidate)
}

// Close detaches the binding. Safe to call more than once.
func (b *Binding[V]) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	unsub := b.unsub
	close(b.updates)
	b.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	b.c.detach(b.key, b)
}

// run performs one read of the key. A cached value is applied synchronously;
// a miss is marked loading and resolved on a tracked goroutine unless this is
// an explicit revalidation, which blocks like the client does.
func (b *Binding[V]) run(ctx context.Context, revalidation bool) error {
	if e, ok := b.c.store.Peek(b.key); ok {
		var gen uint64
		b.update(func(s *State[V]) {
			s.Data, s.HasData = e.Value, true
			gen = b.events
		})
		r, err := b.c.fetch(ctx, b.key, b.fetcher, b.opts, revalidation)
		b.apply(gen, r, err)
		return err
	}

	var gen uint64
	b.update(func(s *State[V]) {
		s.IsLoading = !s.HasData
		s.IsValidating = true
		gen = b.events
	})
	if revalidation {
		r, err := b.c.fetch(ctx, b.key, b.fetcher, b.opts, true)
		b.apply(gen, r, err)
		return err
	}
	started := b.c.spawn(func(clientCtx context.Context) {
		// Either the consumer's ctx or Close cancels the load.
		fctx, cancel := context.WithCancel(ctx)
		defer cancel()
		defer context.AfterFunc(clientCtx, cancel)()

		r, err := b.c.fetch(fctx, b.key, b.fetcher, b.opts, false)
		b.apply(gen, r, err)
	})
	if !started {
		b.apply(gen, Result[V]{}, ErrClosed)
	}
	return nil
}

// apply folds a fetch result into the state. If an event arrived since gen
// was taken, the event already carries the same or newer outcome and wins.
func (b *Binding[V]) apply(gen uint64, r Result[V], err error) {
	b.update(func(s *State[V]) {
		if b.events != gen {
			return
		}
		s.IsLoading = false
		s.IsValidating = r.Revalidating
		if err != nil {
			s.Err = err
			return
		}
		if r.Found {
			s.Data, s.HasData, s.Err = r.Data, true, nil
		}
	})
}

func (b *Binding[V]) onEvent(ev Event[V]) {
	b.update(func(s *State[V]) {
		b.events++
		s.IsLoading, s.IsValidating = false, false
		switch ev.Kind {
		case EventUpdated:
			s.Data, s.HasData, s.Err = ev.Value, true, nil
		case EventError:
			s.Err = ev.Err
		}
	})
}

// update mutates the state and republishes it, unless the binding is closed.
func (b *Binding[V]) update(fn func(*State[V])) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	fn(&b.state)

	// Latest-wins: drop an unread state, then send. All sends happen under mu,
	// so the buffer always has room after the drain.
	select {
	case <-b.updates:
	default:
	}
	b.updates <- b.state
}

// ---- client side ----

func (c *Client[V]) attach(key string, b *Binding[V]) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	ks := c.stateLocked(key)
	ks.fetcher, ks.opts = b.fetcher, b.opts
	ks.bindings[b] = struct{}{}
	return true
}

func (c *Client[V]) detach(key string, b *Binding[V]) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ks, ok := c.keys[key]; ok {
		delete(ks.bindings, b)
	}
}
