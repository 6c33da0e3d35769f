// Package swr implements a stale-while-revalidate client over cache.Store.
//
// A read goes through three outcomes. A fresh entry is returned as is. A
// stale entry (past StaleTime, before TTL) is returned immediately and a
// refresh starts in the background. A miss blocks on the fetch. Concurrent
// fetches of one key inside the dedupe window share a single call of the
// fetcher.
//
// Every fetch takes a write sequence when it starts, and the store refuses
// a write older than what it holds. A slow fetch therefore cannot overwrite
// a mutation or a fetch that started after it.
//
// Background refresh failures never replace data: the stale value stays,
// FetchOptions.OnError is called and subscribers receive EventError.
//
// Consumers either call Fetch/Revalidate/Mutate directly, subscribe to a
// key's events, or hold a Binding from Watch, which tracks Data, Err,
// IsLoading and IsValidating and republishes them on a channel. SetFocused
// and SetOnline feed edge-triggered revalidation of watched keys.
//
//	c := swr.New[Movie](swr.Options[Movie]{Capacity: 100})
//	defer c.Close()
//
//	b := c.Watch(ctx, "movie:1", fetchMovie, swr.FetchOptions[Movie]{
//	    TTL:                   time.Minute,
//	    StaleTime:             10 * time.Second,
//	    RevalidateOnReconnect: true,
//	})
//	defer b.Close()
//	for st := range b.Updates() {
//	    render(st)
//	}
package swr
