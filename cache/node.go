package cache

import "time"

// node is an intrusive doubly linked list element owned by the store.
type node[V any] struct {
	key string
	val V

	// Intrusive list links: head is MRU, tail is LRU.
	prev *node[V]
	next *node[V]

	// Absolute deadlines in UnixNano. Zero means "never".
	created int64
	stale   int64
	exp     int64

	hits int64
	seq  uint64
}

func (n *node[V]) expired(now int64) bool { return n.exp != 0 && now > n.exp }

func (n *node[V]) isStale(now int64) bool { return n.stale != 0 && now > n.stale }

// view copies the node into an Entry. Caller holds the store lock.
func (n *node[V]) view(now int64) Entry[V] {
	e := Entry[V]{
		Value:     n.val,
		CreatedAt: time.Unix(0, n.created),
		HitCount:  n.hits,
		Seq:       n.seq,
		IsStale:   n.isStale(now),
	}
	if n.stale != 0 {
		e.StaleAt = time.Unix(0, n.stale)
	}
	if n.exp != 0 {
		e.ExpiresAt = time.Unix(0, n.exp)
	}
	return e
}
