package swr

import (
	"context"

	"github.com/go-kit/log/level"
)

// SetFocused reports the consumer's focus state. On a lost→regained
// transition, every watched key with RevalidateOnFocus whose last fetch is
// older than its stale window is revalidated in the background. Repeating
// the current state does nothing.
func (c *Client[V]) SetFocused(focused bool) {
	c.mu.Lock()
	regained := focused && !c.focused
	c.focused = focused
	if !regained || c.closed {
		c.mu.Unlock()
		return
	}
	targets := c.bindingsLocked(func(o FetchOptions[V]) bool { return o.RevalidateOnFocus })
	c.mu.Unlock()

	for _, b := range targets {
		_, stale := c.lifetimes(b.opts)
		if since, ok := c.sinceLastFetch(b.key); ok && since <= stale {
			continue
		}
		c.revalidateBinding(b, "focus")
	}
}

// SetOnline reports network reachability. On an offline→online transition,
// every watched key with RevalidateOnReconnect is revalidated in the background.
func (c *Client[V]) SetOnline(online bool) {
	c.mu.Lock()
	reconnected := online && !c.online
	c.online = online
	if !reconnected || c.closed {
		c.mu.Unlock()
		return
	}
	targets := c.bindingsLocked(func(o FetchOptions[V]) bool { return o.RevalidateOnReconnect })
	c.mu.Unlock()

	for _, b := range targets {
		c.revalidateBinding(b, "reconnect")
	}
}

// Focused reports the last focus state given to SetFocused (initially true).
func (c *Client[V]) Focused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.focused
}

// Online reports the last state given to SetOnline (initially true).
func (c *Client[V]) Online() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.online
}

func (c *Client[V]) bindingsLocked(want func(FetchOptions[V]) bool) []*Binding[V] {
	var out []*Binding[V]
	for _, ks := range c.keys {
		for b := range ks.bindings {
			if want(b.opts) {
				out = append(out, b)
			}
		}
	}
	return out
}

func (c *Client[V]) revalidateBinding(b *Binding[V], trigger string) {
	level.Debug(c.logger).Log("msg", "trigger revalidation", "key", b.key, "trigger", trigger)
	c.spawn(func(ctx context.Context) {
		if err := b.Revalidate(ctx); err != nil {
			level.Warn(c.logger).Log("msg", "trigger revalidation failed", "key", b.key, "trigger", trigger, "err", err)
		}
	})
}
