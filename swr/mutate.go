package swr

// Mutation is either a literal value or an updater of the current value.
// Build one with Value or Update.
type Mutation[V any] struct {
	value   V
	updater func(cur V, ok bool) V
}

// Value replaces the cached value with v.
func Value[V any](v V) Mutation[V] { return Mutation[V]{value: v} }

// Update derives the new value from the current one; ok is false when nothing
// is cached and cur is the zero value. fn must be pure.
func Update[V any](fn func(cur V, ok bool) V) Mutation[V] { return Mutation[V]{updater: fn} }

func (m Mutation[V]) apply(cur V, ok bool) V {
	if m.updater != nil {
		return m.updater(cur, ok)
	}
	return m.value
}

// Mutate writes an optimistic value for key before any fetch: the store is
// updated and subscribers notified before Mutate returns. With revalidate set
// and a fetcher registered for key, a background revalidation follows; its
// result replaces the optimistic value when it settles.
func (c *Client[V]) Mutate(key string, m Mutation[V], revalidate bool) V {
	cur, ok := c.store.Peek(key)
	v := m.apply(cur.Value, ok)

	fetcher, opts, registered := c.registration(key)
	ttl, stale := c.lifetimes(opts)
	seq := c.store.NextSeq()
	c.store.SetIfNewer(key, v, ttl, stale, seq)
	c.publish(key, Event[V]{Key: key, Kind: EventUpdated, Value: v})

	// A fetch already in flight started before this write and would be
	// rejected by the store, so the revalidation must not join it.
	if revalidate && registered {
		c.background(key, fetcher, opts, FetchRevalidate, seq)
	}
	return v
}
