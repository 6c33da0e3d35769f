// Command bench runs a synthetic read/mutate workload through the SWR client
// and exposes optional pprof/Prometheus endpoints.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	_ "net/http/pprof" // registers /debug/pprof/* on DefaultServeMux
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/IvanBrykalov/swrcache/config"
	"github.com/IvanBrykalov/swrcache/internal/logging"
	pmet "github.com/IvanBrykalov/swrcache/metrics/prom"
	"github.com/IvanBrykalov/swrcache/prefetch"
	"github.com/IvanBrykalov/swrcache/stats"
	"github.com/IvanBrykalov/swrcache/swr"
)

func main() {
	// ---- Flags ----
	var (
		configPath = flag.String("config", "", "YAML config file (defaults when empty)")

		workers  = flag.Int("workers", 2*runtime.GOMAXPROCS(0), "number of worker goroutines")
		duration = flag.Duration("duration", 10*time.Second, "benchmark duration")
		mutPct   = flag.Int("mutations", 5, "mutation percentage [0..100]")

		keys    = flag.Int("keys", 10_000, "keyspace size")
		zipfS   = flag.Float64("zipf_s", 1.1, "Zipf s > 1 (skew)")
		zipfV   = flag.Float64("zipf_v", 1.0, "Zipf v")
		seed    = flag.Int64("seed", time.Now().UnixNano(), "random seed")
		latency = flag.Duration("latency", 2*time.Millisecond, "simulated fetcher latency")
		errPct  = flag.Int("errors", 1, "fetcher failure percentage [0..100]")

		pprofAddr = flag.String("pprof", "", "serve pprof at addr (e.g. :6060); empty = disabled")
	)
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}

	logger, err := logging.New(os.Stderr, cfg.Log.Format, cfg.Log.Level)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := run(cfg, logger, workload{
		workers: *workers, duration: *duration, mutPct: *mutPct,
		keys: *keys, zipfS: *zipfS, zipfV: *zipfV, seed: *seed,
		latency: *latency, errPct: *errPct, pprofAddr: *pprofAddr,
	}); err != nil {
		level.Error(logger).Log("msg", "bench failed", "err", err)
		os.Exit(1)
	}
}

type workload struct {
	workers   int
	duration  time.Duration
	mutPct    int
	keys      int
	zipfS     float64
	zipfV     float64
	seed      int64
	latency   time.Duration
	errPct    int
	pprofAddr string
}

var errBackend = errors.New("simulated backend failure")

func run(cfg *config.Config, logger log.Logger, w workload) error {
	// ---- pprof server (on DefaultServeMux) ----
	if w.pprofAddr != "" {
		go func() {
			level.Info(logger).Log("msg", "serving pprof", "addr", w.pprofAddr)
			level.Warn(logger).Log("msg", "pprof server stopped", "err", http.ListenAndServe(w.pprofAddr, nil))
		}()
	}

	// ---- Prometheus metrics (on DefaultServeMux) ----
	opt := config.ClientOptions[string](cfg)
	opt.Logger = logger
	var observers []stats.Observer
	if cfg.Metrics.Enabled {
		m := pmet.New(nil, cfg.Metrics.Namespace, cfg.Metrics.Subsystem, nil)
		opt.Metrics, opt.StoreMetrics = m, m
		observers = append(observers, m)
		http.Handle("/metrics", promhttp.Handler())
		go func() {
			level.Info(logger).Log("msg", "serving metrics", "addr", cfg.Metrics.Addr)
			level.Warn(logger).Log("msg", "metrics server stopped", "err", http.ListenAndServe(cfg.Metrics.Addr, nil))
		}()
	}

	// ---- Build client, reporter, prefetcher ----
	c := swr.New[string](opt)
	defer func() { _ = c.Close() }()

	so := cfg.StatsOptions()
	so.Logger, so.Observers = logger, observers
	rep := stats.New(c, so)
	defer rep.Close()

	var fetches atomic.Uint64
	fetcher := func(ctx context.Context, key string) (string, error) {
		n := fetches.Add(1)
		select {
		case <-time.After(w.latency):
		case <-ctx.Done():
			return "", ctx.Err()
		}
		if w.errPct > 0 && n%100 < uint64(w.errPct) {
			return "", errBackend
		}
		return key + "@" + strconv.FormatUint(n, 10), nil
	}
	fetchOpts := config.FetchDefaults[string](cfg)

	// Only the hottest keys are worth predicting.
	hot := min(w.keys, 100)
	targets := make(map[string]prefetch.Target[string], hot)
	for i := 0; i < hot; i++ {
		targets[keyName(uint64(i))] = prefetch.Target[string]{Fetcher: fetcher, Options: fetchOpts}
	}
	po := cfg.PrefetchOptions()
	po.Logger = logger
	pf := prefetch.New[string](c, targets, po)
	defer pf.Close()

	// ---- Load generation ----
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, w.duration)
	defer cancel()

	workersN := max(w.workers, 1)
	keysMax := uint64(max(w.keys-1, 1))
	var reads, mutations, stale, failed atomic.Uint64

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	for id := 0; id < workersN; id++ {
		id := id
		g.Go(func() error {
			// Each worker gets its own RNG + Zipf (rand.Rand is NOT goroutine-safe).
			localR := rand.New(rand.NewSource(w.seed + int64(id)*9973))
			localZipf := rand.NewZipf(localR, w.zipfS, w.zipfV, keysMax)

			for gctx.Err() == nil {
				k := keyName(localZipf.Uint64())
				if int(localR.Int31n(100)) < w.mutPct {
					mutations.Add(1)
					c.Mutate(k, swr.Value("local:"+k), true)
					continue
				}
				reads.Add(1)
				r, err := c.Fetch(gctx, k, fetcher, fetchOpts)
				switch {
				case errors.Is(err, errBackend):
					failed.Add(1)
				case err != nil:
					return nil // context done or client closed
				case r.Stale:
					stale.Add(1)
				}
				if localR.Int31n(10) == 0 {
					pf.RecordInteraction(k)
				}
			}
			return nil
		})
	}

	// Flip connectivity once mid-run so reconnect revalidation shows up.
	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case <-time.After(w.duration / 2):
		}
		c.SetOnline(false)
		c.SetOnline(true)
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	elapsed := time.Since(start)

	// ---- Report ----
	final := rep.Snapshot()
	readsN := reads.Load()
	ops := readsN + mutations.Load()
	fmt.Printf("cap=%d workers=%d keys=%d dur=%v seed=%d\n",
		final.Capacity, workersN, w.keys, elapsed, w.seed)
	fmt.Printf("ops=%d (%.0f ops/s)  reads=%d  mutations=%d\n",
		ops, float64(ops)/elapsed.Seconds(), readsN, mutations.Load())
	fmt.Printf("fetches=%d  stale-served=%d  failed=%d\n", fetches.Load(), stale.Load(), failed.Load())
	fmt.Printf("store: size=%d stale=%d hits=%d misses=%d evictions=%d hit-rate=%.2f\n",
		final.Size, final.Stale, final.Hits, final.Misses, final.Evictions, final.HitRate)
	return nil
}

func keyName(i uint64) string { return "k:" + strconv.FormatUint(i, 10) }
