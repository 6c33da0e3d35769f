package swr

// EventKind tells subscribers what happened to a key.
type EventKind int

const (
	// EventUpdated: a new value was committed (fetch, revalidation, prefetch or mutation).
	EventUpdated EventKind = iota
	// EventError: a fetch for the key failed; any cached value is kept.
	EventError
)

// Event is delivered to subscribers of a key.
type Event[V any] struct {
	Key   string
	Kind  EventKind
	Value V     // set for EventUpdated
	Err   error // set for EventError
}

// Subscribe registers fn for events on key and returns a func that removes it.
// fn runs on the goroutine that committed the change, outside client locks;
// it must not block.
func (c *Client[V]) Subscribe(key string, fn func(Event[V])) (cancel func()) {
	c.mu.Lock()
	c.nextSub++
	id := c.nextSub
	c.stateLocked(key).subs[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		if ks, ok := c.keys[key]; ok {
			delete(ks.subs, id)
		}
		c.mu.Unlock()
	}
}

func (c *Client[V]) publish(key string, ev Event[V]) {
	c.mu.Lock()
	ks, ok := c.keys[key]
	if !ok || len(ks.subs) == 0 {
		c.mu.Unlock()
		return
	}
	fns := make([]func(Event[V]), 0, len(ks.subs))
	for _, fn := range ks.subs {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}
