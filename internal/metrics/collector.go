package metrics

import (
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/allaspectsdev/resolvr/internal/chain"
)

// Collector tracks engine and cache events. Totals are atomic counters;
// per-scope series live on a private Prometheus registry. It implements
// chain.Observer and cache.Recorder.
type Collector struct {
	resolutions  int64
	handled      int64
	unhandled    int64
	fallbacks    int64
	failures     int64
	compilations int64
	modified     int64

	cacheHits   int64
	cacheMisses int64

	byOutcome  *prometheus.CounterVec // scope, outcome
	byFailure  *prometheus.CounterVec // scope, kind
	byCompile  *prometheus.CounterVec // scope
	byModified *prometheus.CounterVec // scope, link
	latency    *prometheus.HistogramVec

	registry  *prometheus.Registry
	startTime time.Time
}

var _ chain.Observer = (*Collector)(nil)

// Stats is a point-in-time snapshot of the collector's counters.
type Stats struct {
	Uptime           string  `json:"uptime"`
	Resolutions      int64   `json:"resolutions"`
	Handled          int64   `json:"handled"`
	Unhandled        int64   `json:"unhandled"`
	Fallbacks        int64   `json:"fallbacks"`
	Failures         int64   `json:"failures"`
	Compilations     int64   `json:"compilations"`
	RequestsModified int64   `json:"requests_modified"`
	CacheHits        int64   `json:"cache_hits"`
	CacheMisses      int64   `json:"cache_misses"`
	CacheHitRate     float64 `json:"cache_hit_rate"`
}

// resolveBuckets are resolve latency bounds in seconds.
var resolveBuckets = []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1}

// NewCollector creates a new Collector with all counters initialised to zero
// and the start time set to now.
func NewCollector() *Collector {
	c := &Collector{
		byOutcome: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "resolvr_scope_resolutions_total",
				Help: "Resolutions by scope and outcome.",
			},
			[]string{"scope", "outcome"},
		),
		byFailure: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "resolvr_scope_failures_total",
				Help: "Failures by scope and error kind.",
			},
			[]string{"scope", "kind"},
		),
		byCompile: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "resolvr_scope_compilations_total",
				Help: "Compilations by scope.",
			},
			[]string{"scope"},
		),
		byModified: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "resolvr_scope_requests_modified_total",
				Help: "Dropped request modifications by scope and link index.",
			},
			[]string{"scope", "link"},
		),
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "resolvr_resolve_duration_seconds",
				Help:    "Resolution duration in seconds by scope.",
				Buckets: resolveBuckets,
			},
			[]string{"scope"},
		),
		registry:  prometheus.NewRegistry(),
		startTime: time.Now(),
	}

	c.registry.MustRegister(
		c.counterFunc("resolvr_resolutions_total", "Total number of successful resolutions.", &c.resolutions),
		c.counterFunc("resolvr_resolve_failures_total", "Total number of failed resolutions and rejected chains.", &c.failures),
		c.counterFunc("resolvr_compilations_total", "Total number of scope compilations.", &c.compilations),
		c.counterFunc("resolvr_requests_modified_total", "Modified requests a link passed to next that were replaced by the original.", &c.modified),
		c.counterFunc("resolvr_cache_hits_total", "Total number of memo hits.", &c.cacheHits),
		c.counterFunc("resolvr_cache_misses_total", "Total number of memo misses.", &c.cacheMisses),
		prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{Name: "resolvr_cache_hit_rate", Help: "Memo hit rate percentage."},
			func() float64 { return c.Stats().CacheHitRate },
		),
		prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{Name: "resolvr_uptime_seconds", Help: "Number of seconds since the collector started."},
			func() float64 { return time.Since(c.startTime).Seconds() },
		),
		c.byOutcome,
		c.byFailure,
		c.byCompile,
		c.byModified,
		c.latency,
	)
	return c
}

// counterFunc exposes one of the atomic totals as a counter.
func (c *Collector) counterFunc(name, help string, v *int64) prometheus.CounterFunc {
	return prometheus.NewCounterFunc(
		prometheus.CounterOpts{Name: name, Help: help},
		func() float64 { return float64(atomic.LoadInt64(v)) },
	)
}

// Registry returns the registry holding the collector's metrics.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// ScopeCompiled implements chain.Observer.
func (c *Collector) ScopeCompiled(scope string, _ uint64) {
	atomic.AddInt64(&c.compilations, 1)
	c.byCompile.WithLabelValues(scope).Inc()
}

// Resolved implements chain.Observer.
func (c *Collector) Resolved(scope string, outcome chain.Outcome) {
	atomic.AddInt64(&c.resolutions, 1)
	switch outcome {
	case chain.OutcomeHandled:
		atomic.AddInt64(&c.handled, 1)
	case chain.OutcomeUnhandled:
		atomic.AddInt64(&c.unhandled, 1)
	case chain.OutcomeFallback:
		atomic.AddInt64(&c.fallbacks, 1)
	}
	c.byOutcome.WithLabelValues(scope, string(outcome)).Inc()
}

// RequestModified implements chain.Observer.
func (c *Collector) RequestModified(scope string, link int) {
	atomic.AddInt64(&c.modified, 1)
	c.byModified.WithLabelValues(scope, strconv.Itoa(link)).Inc()
}

// ResolveFailed implements chain.Observer.
func (c *Collector) ResolveFailed(scope string, kind string) {
	atomic.AddInt64(&c.failures, 1)
	c.byFailure.WithLabelValues(scope, kind).Inc()
}

// CacheHit implements cache.Recorder.
func (c *Collector) CacheHit(scope string) {
	atomic.AddInt64(&c.cacheHits, 1)
	c.byOutcome.WithLabelValues(scope, "cached").Inc()
}

// CacheMiss implements cache.Recorder.
func (c *Collector) CacheMiss(string) {
	atomic.AddInt64(&c.cacheMisses, 1)
}

// ObserveResolve records how long a resolution through scope took.
func (c *Collector) ObserveResolve(scope string, d time.Duration) {
	c.latency.WithLabelValues(scope).Observe(d.Seconds())
}

// Outcomes returns the resolution count for scope and outcome.
func (c *Collector) Outcomes(scope string, outcome chain.Outcome) int64 {
	return int64(c.counterValue("resolvr_scope_resolutions_total", map[string]string{
		"scope":   scope,
		"outcome": string(outcome),
	}))
}

// counterValue reads the counter of family name whose labels equal labels.
// Missing series read as zero and are not created.
func (c *Collector) counterValue(name string, labels map[string]string) float64 {
	families, err := c.registry.Gather()
	if err != nil {
		return 0
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if matchLabels(m.GetLabel(), labels) {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func matchLabels(pairs []*dto.LabelPair, labels map[string]string) bool {
	if len(pairs) != len(labels) {
		return false
	}
	for _, lp := range pairs {
		if v, ok := labels[lp.GetName()]; !ok || v != lp.GetValue() {
			return false
		}
	}
	return true
}

// Stats returns a point-in-time snapshot of all metrics.
func (c *Collector) Stats() *Stats {
	hits := atomic.LoadInt64(&c.cacheHits)
	misses := atomic.LoadInt64(&c.cacheMisses)

	var hitRate float64
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}

	return &Stats{
		Uptime:           formatDuration(time.Since(c.startTime)),
		Resolutions:      atomic.LoadInt64(&c.resolutions),
		Handled:          atomic.LoadInt64(&c.handled),
		Unhandled:        atomic.LoadInt64(&c.unhandled),
		Fallbacks:        atomic.LoadInt64(&c.fallbacks),
		Failures:         atomic.LoadInt64(&c.failures),
		Compilations:     atomic.LoadInt64(&c.compilations),
		RequestsModified: atomic.LoadInt64(&c.modified),
		CacheHits:        hits,
		CacheMisses:      misses,
		CacheHitRate:     hitRate,
	}
}

// formatDuration produces a human-readable duration string like "2d 5h 32m".
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return d.Round(time.Second).String()
	}

	days := int(d.Hours() / 24)
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60

	var s string
	for _, part := range []struct {
		v    int
		unit string
	}{{days, "d"}, {hours, "h"}, {minutes, "m"}} {
		if part.v == 0 {
			continue
		}
		if s != "" {
			s += " "
		}
		s += strconv.Itoa(part.v) + part.unit
	}
	if s == "" {
		return "0m"
	}
	return s
}
