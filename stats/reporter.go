// Package stats takes periodic snapshots of cache statistics for
// observability consumers.
package stats

import (
	"context"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/IvanBrykalov/swrcache/cache"
)

// DefaultInterval is the snapshot period.
const DefaultInterval = 5 * time.Second

// Source is anything that reports cache statistics; cache.Store and
// *swr.Client both do.
type Source interface {
	Stats() cache.Stats
}

// Observer receives every snapshot. The Prometheus adapter is one.
type Observer interface {
	ObserveStats(cache.Stats)
}

// Report is a timestamped snapshot.
type Report struct {
	cache.Stats
	At time.Time
}

type Options struct {
	Interval  time.Duration
	Clock     cache.Clock
	Logger    log.Logger
	Observers []Observer
}

// Reporter owns a ticker goroutine that snapshots its source. Call Close to
// stop it.
type Reporter struct {
	src    Source
	opt    Options
	logger log.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	latest  Report
	subs    map[uint64]chan Report
	nextSub uint64
	closed  bool
}

// New takes a first snapshot synchronously and starts the ticker.
func New(src Source, opt Options) *Reporter {
	if opt.Interval <= 0 {
		opt.Interval = DefaultInterval
	}
	if opt.Clock == nil {
		opt.Clock = cache.SystemClock{}
	}
	if opt.Logger == nil {
		opt.Logger = log.NewNopLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	r := &Reporter{
		src:    src,
		opt:    opt,
		logger: log.With(opt.Logger, "component", "stats"),
		ctx:    ctx,
		cancel: cancel,
		subs:   make(map[uint64]chan Report),
	}
	r.Snapshot()

	r.wg.Add(1)
	go r.loop()
	return r
}

func (r *Reporter) loop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.opt.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.Snapshot()
		}
	}
}

// Snapshot takes a report now, publishes it and returns it.
func (r *Reporter) Snapshot() Report {
	rep := Report{Stats: r.src.Stats(), At: time.Unix(0, r.opt.Clock.NowUnixNano())}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return rep
	}
	r.latest = rep
	for _, ch := range r.subs {
		select {
		case <-ch:
		default:
		}
		ch <- rep
	}
	r.mu.Unlock()

	for _, o := range r.opt.Observers {
		o.ObserveStats(rep.Stats)
	}
	level.Debug(r.logger).Log("msg", "stats", "size", rep.Size, "capacity", rep.Capacity,
		"stale", rep.Stale, "expired", rep.Expired, "hit_rate", rep.HitRate)
	return rep
}

// Latest returns the most recent report.
func (r *Reporter) Latest() Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.latest
}

// Subscribe returns a channel that holds the newest report (a slow reader
// skips intermediate ones) and a cancel func. The channel is closed by
// cancel or Close.
func (r *Reporter) Subscribe() (<-chan Report, func()) {
	ch := make(chan Report, 1)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		close(ch)
		return ch, func() {}
	}
	id := r.nextSub
	r.nextSub++
	r.subs[id] = ch
	ch <- r.latest

	return ch, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if c, ok := r.subs[id]; ok {
			delete(r.subs, id)
			close(c)
		}
	}
}

// Close stops the ticker and closes every subscription. Safe to call more
// than once.
func (r *Reporter) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	for id, ch := range r.subs {
		delete(r.subs, id)
		close(ch)
	}
	r.mu.Unlock()

	r.cancel()
	r.wg.Wait()
}
