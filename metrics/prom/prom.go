package prom

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/IvanBrykalov/swrcache/cache"
	"github.com/IvanBrykalov/swrcache/stats"
	"github.com/IvanBrykalov/swrcache/swr"
)

// Adapter exports store, fetch and snapshot signals as Prometheus metrics.
// It implements cache.Metrics, swr.Metrics and stats.Observer.
// Safe for concurrent use; all Prometheus metric types are goroutine-safe.
type Adapter struct {
	hits        prometheus.Counter
	misses      prometheus.Counter
	evicts      *prometheus.CounterVec
	fetches     *prometheus.CounterVec
	fetchErrors *prometheus.CounterVec
	deduped     prometheus.Counter

	sizeEnt prometheus.Gauge
	stale   prometheus.Gauge
	expired prometheus.Gauge
	hitRate prometheus.Gauge
}

// New constructs a Prometheus metrics adapter.
//   - reg:          registry to register metrics with (nil => prometheus.DefaultRegisterer)
//   - ns, sub:      Prometheus namespace and subsystem
//   - constLabels:  static labels applied to all metrics (may be nil)
func New(reg prometheus.Registerer, ns, sub string, constLabels prometheus.Labels) *Adapter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub, Name: name, Help: help, ConstLabels: constLabels,
		})
	}
	counterVec := func(name, help, label string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub, Name: name, Help: help, ConstLabels: constLabels,
		}, []string{label})
	}
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: sub, Name: name, Help: help, ConstLabels: constLabels,
		})
	}

	a := &Adapter{
		hits:        counter("hits_total", "Cache hits"),
		misses:      counter("misses_total", "Cache misses"),
		evicts:      counterVec("evictions_total", "Cache evictions by reason", "reason"),
		fetches:     counterVec("fetches_total", "Fetcher invocations requested, by kind", "kind"),
		fetchErrors: counterVec("fetch_errors_total", "Failed fetches by kind", "kind"),
		deduped: counter("deduplicated_total",
			"Fetches that joined a pending call instead of invoking the fetcher"),
		sizeEnt: gauge("size_entries", "Number of resident entries"),
		stale:   gauge("stale_entries", "Resident entries past their stale time"),
		expired: gauge("expired_entries", "Resident entries past their TTL, not yet removed"),
		hitRate: gauge("hit_rate", "Average hit count per resident entry"),
	}
	reg.MustRegister(a.hits, a.misses, a.evicts, a.fetches, a.fetchErrors, a.deduped,
		a.sizeEnt, a.stale, a.expired, a.hitRate)
	return a
}

// Hit increments the hit counter.
func (a *Adapter) Hit() { a.hits.Inc() }

// Miss increments the miss counter.
func (a *Adapter) Miss() { a.misses.Inc() }

// Evict increments the eviction counter with a reason label.
func (a *Adapter) Evict(r cache.EvictReason) {
	a.evicts.WithLabelValues(r.String()).Inc()
}

// Size updates the resident entries gauge.
func (a *Adapter) Size(entries int) {
	a.sizeEnt.Set(float64(entries))
}

// Fetch increments the fetch counter for kind.
func (a *Adapter) Fetch(kind swr.FetchKind) {
	a.fetches.WithLabelValues(string(kind)).Inc()
}

// FetchError increments the failed fetch counter for kind.
func (a *Adapter) FetchError(kind swr.FetchKind) {
	a.fetchErrors.WithLabelValues(string(kind)).Inc()
}

// Shared increments the deduplicated fetch counter.
func (a *Adapter) Shared() { a.deduped.Inc() }

// ObserveStats copies a snapshot into the gauges.
func (a *Adapter) ObserveStats(s cache.Stats) {
	a.sizeEnt.Set(float64(s.Size))
	a.stale.Set(float64(s.Stale))
	a.expired.Set(float64(s.Expired))
	a.hitRate.Set(s.HitRate)
}

var (
	_ cache.Metrics  = (*Adapter)(nil)
	_ swr.Metrics    = (*Adapter)(nil)
	_ stats.Observer = (*Adapter)(nil)
)
