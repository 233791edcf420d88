package internal

import (
	"fmt"
	"io"
	"time"

	"github.com/ValentinKolb/eKV/lib/db/util"
	"github.com/VictoriaMetrics/metrics"
	gometrics "github.com/rcrowley/go-metrics"
)

// --------------------------------------------------------------------------
// Operation Types
// --------------------------------------------------------------------------

type Op string

const (
	OpPut    Op = "put"
	OpGet    Op = "get"
	OpDelete Op = "delete"
	OpExists Op = "exists"
)

var allOps = []Op{OpPut, OpGet, OpDelete, OpExists}

// --------------------------------------------------------------------------
// Metrics
// --------------------------------------------------------------------------

// Metrics collects the operational metrics of one engine instance.
//
// Counters and histograms live in a private VictoriaMetrics set, so several engines
// in one process never share series. The 1-minute rate and the latency percentiles
// come from go-metrics, the rolling window of raw samples from util.LatencyWindow.
//
// Thread-safety: All methods are safe for concurrent use.
type Metrics struct {
	set *metrics.Set

	total     *metrics.Counter
	ops       map[Op]*metrics.Counter
	durations map[Op]*metrics.Histogram

	CacheHits       *metrics.Counter
	CacheMisses     *metrics.Counter
	Expired         *metrics.Counter // keys removed because their ttl passed
	Persists        *metrics.Counter // successful snapshot writes
	PersistFailures *metrics.Counter // failed snapshot writes (after all retries)

	meter   gometrics.Meter     // ops/sec, exponentially weighted
	latency gometrics.Histogram // µs, uniform sample
	window  *util.LatencyWindow
}

// NewMetrics creates a metric set with a latency window of the given size
func NewMetrics(windowSize int) *Metrics {
	set := metrics.NewSet()

	m := &Metrics{
		set:             set,
		total:           set.NewCounter(`ekv_requests_total`),
		ops:             make(map[Op]*metrics.Counter, len(allOps)),
		durations:       make(map[Op]*metrics.Histogram, len(allOps)),
		CacheHits:       set.NewCounter(`ekv_cache_hits_total`),
		CacheMisses:     set.NewCounter(`ekv_cache_misses_total`),
		Expired:         set.NewCounter(`ekv_expired_keys_total`),
		Persists:        set.NewCounter(`ekv_persist_total`),
		PersistFailures: set.NewCounter(`ekv_persist_failures_total`),
		meter:           gometrics.NewMeter(),
		latency:         gometrics.NewHistogram(gometrics.NewUniformSample(windowSize)),
		window:          util.NewLatencyWindow(windowSize),
	}

	for _, op := range allOps {
		m.ops[op] = set.NewCounter(fmt.Sprintf(`ekv_ops_total{op=%q}`, op))
		m.durations[op] = set.NewHistogram(fmt.Sprintf(`ekv_op_duration_seconds{op=%q}`, op))
	}

	return m
}

// Observe records one finished operation
func (m *Metrics) Observe(op Op, at time.Time, latency time.Duration) {
	m.total.Inc()
	m.ops[op].Inc()
	m.durations[op].Update(latency.Seconds())
	m.meter.Mark(1)
	m.latency.Update(latency.Microseconds())
	m.window.Add(at, latency)
}

// Gauge registers a gauge whose value is computed by f on every scrape
func (m *Metrics) Gauge(name string, f func() float64) {
	m.set.NewGauge(name, f)
}

// Count returns the number of observed operations of the given type
func (m *Metrics) Count(op Op) uint64 {
	return m.ops[op].Get()
}

// Total returns the number of observed operations
func (m *Metrics) Total() uint64 {
	return m.total.Get()
}

// Rate1 returns the one-minute moving average of operations per second
func (m *Metrics) Rate1() float64 {
	return m.meter.Rate1()
}

// Percentile returns the given latency percentile (0..1) in µs
func (m *Metrics) Percentile(p float64) float64 {
	return m.latency.Percentile(p)
}

// Samples returns the rolling latency window, oldest first
func (m *Metrics) Samples() []util.LatencySample {
	return m.window.Samples()
}

// WritePrometheus writes all series in Prometheus text format
func (m *Metrics) WritePrometheus(w io.Writer) {
	m.set.WritePrometheus(w)
}

// Stop releases the background ticker of the meter
func (m *Metrics) Stop() {
	m.meter.Stop()
}
