// Package prefetch predicts which keys a consumer will need next from its
// recent interactions and populates them in the background.
package prefetch

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/IvanBrykalov/swrcache/cache"
	"github.com/IvanBrykalov/swrcache/swr"
)

// DefaultDelay is how long a predicted key waits before it is prefetched.
const DefaultDelay = 2 * time.Second

// Populator writes a key into the cache without notifying consumers.
// *swr.Client satisfies it.
type Populator[V any] interface {
	Prefetch(ctx context.Context, key string, fetcher swr.Fetcher[V], opts swr.FetchOptions[V]) error
}

var _ Populator[struct{}] = (*swr.Client[struct{}])(nil)

// Target is how a predictable key is fetched.
type Target[V any] struct {
	Fetcher swr.Fetcher[V]
	Options swr.FetchOptions[V]
}

// Options configures a Prefetcher. Zero values take the package defaults.
type Options struct {
	HistorySize int
	TopN        int
	Delay       time.Duration
	Clock       cache.Clock
	Logger      log.Logger

	// Disabled keeps recording history but never schedules a prefetch.
	Disabled bool
}

// schedule is a pending prefetch; its identity tells a firing timer whether
// it was replaced in the meantime.
type schedule struct {
	timer *time.Timer
}

// Prefetcher records interactions and schedules prefetches of the top
// predicted keys. Only keys listed in its targets are ever fetched.
type Prefetcher[V any] struct {
	pop     Populator[V]
	opt     Options
	logger  log.Logger
	history *History

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	targets map[string]Target[V]
	timers  map[string]*schedule
	closed  bool
}

// New returns a Prefetcher feeding pop. targets may be nil and set later.
func New[V any](pop Populator[V], targets map[string]Target[V], opt Options) *Prefetcher[V] {
	if opt.TopN <= 0 {
		opt.TopN = DefaultTopN
	}
	if opt.Delay <= 0 {
		opt.Delay = DefaultDelay
	}
	if opt.Clock == nil {
		opt.Clock = cache.SystemClock{}
	}
	if opt.Logger == nil {
		opt.Logger = log.NewNopLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Prefetcher[V]{
		pop:     pop,
		opt:     opt,
		logger:  log.With(opt.Logger, "component", "prefetch"),
		history: NewHistory(opt.HistorySize),
		ctx:     ctx,
		cancel:  cancel,
		timers:  make(map[string]*schedule),
	}
	p.SetTargets(targets)
	return p
}

// RecordInteraction appends key to the history, recomputes predictions and
// (re)schedules a prefetch for each predicted key that has a target. A key
// predicted again before its timer fires has that timer replaced.
func (p *Prefetcher[V]) RecordInteraction(key string) []Prediction {
	now := time.Unix(0, p.opt.Clock.NowUnixNano())
	p.history.Add(Interaction{Key: key, At: now})
	preds := Predict(p.history.Snapshot(), now, p.opt.TopN)
	if p.opt.Disabled {
		return preds
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return preds
	}
	for _, pr := range preds {
		if _, ok := p.targets[pr.Key]; !ok {
			continue
		}
		if old, ok := p.timers[pr.Key]; ok {
			old.timer.Stop()
		}
		s := &schedule{}
		k := pr.Key
		s.timer = time.AfterFunc(p.opt.Delay, func() { p.fire(k, s) })
		p.timers[k] = s
		level.Debug(p.logger).Log("msg", "prefetch scheduled", "key", k, "score", pr.Score, "delay", p.opt.Delay)
	}
	return preds
}

// SetTargets replaces the key to fetcher map. Scheduled keys that are no
// longer targets are cancelled.
func (p *Prefetcher[V]) SetTargets(targets map[string]Target[V]) {
	m := make(map[string]Target[V], len(targets))
	for k, t := range targets {
		if t.Fetcher != nil {
			m[k] = t
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.targets = m
	for k, s := range p.timers {
		if _, ok := m[k]; !ok {
			s.timer.Stop()
			delete(p.timers, k)
		}
	}
}

// Pending returns the keys with a scheduled prefetch, sorted.
func (p *Prefetcher[V]) Pending() []string {
	p.mu.Lock()
	keys := make([]string, 0, len(p.timers))
	for k := range p.timers {
		keys = append(keys, k)
	}
	p.mu.Unlock()
	sort.Strings(keys)
	return keys
}

// History returns the recorded interactions, oldest first.
func (p *Prefetcher[V]) History() []Interaction { return p.history.Snapshot() }

// Close stops every pending timer, cancels running prefetches and waits for
// them to return. Safe to call more than once.
func (p *Prefetcher[V]) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	for k, s := range p.timers {
		s.timer.Stop()
		delete(p.timers, k)
	}
	p.mu.Unlock()

	p.cancel()
	p.wg.Wait()
}

func (p *Prefetcher[V]) fire(key string, s *schedule) {
	p.mu.Lock()
	if p.closed || p.timers[key] != s {
		p.mu.Unlock()
		return
	}
	delete(p.timers, key)
	t, ok := p.targets[key]
	if !ok {
		p.mu.Unlock()
		return
	}
	p.wg.Add(1)
	p.mu.Unlock()
	defer p.wg.Done()

	if err := p.pop.Prefetch(p.ctx, key, t.Fetcher, t.Options); err != nil {
		level.Debug(p.logger).Log("msg", "prefetch failed", "key", key, "err", err)
	}
}
