// Package stats exposes the AG's Prometheus metrics, plus periodic disk iostat sampling.
package stats

import (
	"time"

	"github.com/lufia/iostat"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/acqgw/ag/internal/hk"
)

// CacheMetrics tracks the block/manifest cache's hit rate and byte usage.
type CacheMetrics struct {
	hits      prometheus.Counter
	misses    prometheus.Counter
	usedBytes prometheus.Gauge
}

func NewCacheMetrics(reg prometheus.Registerer) *CacheMetrics {
	m := &CacheMetrics{
		hits:      prometheus.NewCounter(prometheus.CounterOpts{Name: "ag_cache_hits_total"}),
		misses:    prometheus.NewCounter(prometheus.CounterOpts{Name: "ag_cache_misses_total"}),
		usedBytes: prometheus.NewGauge(prometheus.GaugeOpts{Name: "ag_cache_used_bytes"}),
	}
	reg.MustRegister(m.hits, m.misses, m.usedBytes)
	return m
}

func (m *CacheMetrics) Hit()                     { m.hits.Inc() }
func (m *CacheMetrics) Miss()                    { m.misses.Inc() }
func (m *CacheMetrics) SetUsedBytes(n int64)     { m.usedBytes.Set(float64(n)) }

// ReversionMetrics tracks the reversioner's drain passes.
type ReversionMetrics struct {
	reversions prometheus.Counter
	dropped    prometheus.Counter
	errors     prometheus.Counter
}

func NewReversionMetrics(reg prometheus.Registerer) *ReversionMetrics {
	m := &ReversionMetrics{
		reversions: prometheus.NewCounter(prometheus.CounterOpts{Name: "ag_reversions_total"}),
		dropped:    prometheus.NewCounter(prometheus.CounterOpts{Name: "ag_reversions_dropped_total"}),
		errors:     prometheus.NewCounter(prometheus.CounterOpts{Name: "ag_reversion_errors_total"}),
	}
	reg.MustRegister(m.reversions, m.dropped, m.errors)
	return m
}

func (m *ReversionMetrics) Reversioned() { m.reversions.Inc() }
func (m *ReversionMetrics) Dropped()     { m.dropped.Inc() }
func (m *ReversionMetrics) Error()       { m.errors.Inc() }

// DriverPoolMetrics tracks per-group worker pool health.
type DriverPoolMetrics struct {
	acquired prometheus.Counter
	dead     prometheus.Counter
	idle     *prometheus.GaugeVec
}

func NewDriverPoolMetrics(reg prometheus.Registerer) *DriverPoolMetrics {
	m := &DriverPoolMetrics{
		acquired: prometheus.NewCounter(prometheus.CounterOpts{Name: "ag_driver_worker_acquired_total"}),
		dead:     prometheus.NewCounter(prometheus.CounterOpts{Name: "ag_driver_worker_dead_total"}),
		idle:     prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: "ag_driver_pool_idle"}, []string{"group"}),
	}
	reg.MustRegister(m.acquired, m.dead, m.idle)
	return m
}

func (m *DriverPoolMetrics) Acquired()            { m.acquired.Inc() }
func (m *DriverPoolMetrics) WorkerDied()           { m.dead.Inc() }
func (m *DriverPoolMetrics) SetIdle(group string, n int) {
	m.idle.WithLabelValues(group).Set(float64(n))
}

// StartIOStatSampler periodically samples per-disk iostat counters into a
// gauge vector using github.com/lufia/iostat.
func StartIOStatSampler(reg prometheus.Registerer, interval time.Duration) {
	gauge := prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: "ag_disk_io_ops_total"}, []string{"device"})
	reg.MustRegister(gauge)
	hk.Reg("stats.iostat", func() time.Duration {
		drives, err := iostat.ReadDriveStats()
		if err == nil {
			for _, d := range drives {
				gauge.WithLabelValues(d.Name).Set(float64(d.ReadCount + d.WriteCount))
			}
		}
		return interval
	}, interval)
}
