// Package metric provides Prometheus metrics for the save engine.
//
// It exposes save throughput, write latency, disk usage, compression
// efficacy and memory pressure for monitoring.
package metric

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds all save-engine metrics.
type Registry struct {
	reg *prometheus.Registry

	// Save metrics.
	SavesTotal   *prometheus.CounterVec
	SaveDuration prometheus.Histogram
	SaveRetries  prometheus.Counter

	// Store metrics.
	DiskUsageBytes   prometheus.Gauge
	QuotaBytes       prometheus.Gauge
	CompressionRatio prometheus.Gauge

	// Governor metrics.
	MemoryUsageBytes prometheus.Gauge
	SaveIntervalSecs prometheus.Gauge

	// Backup metrics.
	BackupsPrunedTotal prometheus.Counter
}

// NewRegistry creates and registers all save-engine metrics on a fresh
// Prometheus registry.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())

	r := &Registry{
		reg: reg,
		SavesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "skidinc",
			Subsystem: "save",
			Name:      "saves_total",
			Help:      "Total save attempts by kind and status.",
		}, []string{"kind", "status"}),
		SaveDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "skidinc",
			Subsystem: "save",
			Name:      "duration_seconds",
			Help:      "Wall time of completed save writes.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
		SaveRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "skidinc",
			Subsystem: "save",
			Name:      "retries_total",
			Help:      "Total save retries performed by the recovery handler.",
		}),
		DiskUsageBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "skidinc",
			Subsystem: "store",
			Name:      "disk_usage_bytes",
			Help:      "Bytes currently used in the save directory.",
		}),
		QuotaBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "skidinc",
			Subsystem: "store",
			Name:      "quota_bytes",
			Help:      "Configured disk quota for the save directory.",
		}),
		CompressionRatio: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "skidinc",
			Subsystem: "store",
			Name:      "compression_ratio",
			Help:      "Compressed/original size ratio of the last compressed write.",
		}),
		MemoryUsageBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "skidinc",
			Subsystem: "governor",
			Name:      "memory_usage_bytes",
			Help:      "Last sampled process heap usage.",
		}),
		SaveIntervalSecs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "skidinc",
			Subsystem: "governor",
			Name:      "save_interval_seconds",
			Help:      "Current adaptive periodic save interval.",
		}),
		BackupsPrunedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "skidinc",
			Subsystem: "backup",
			Name:      "pruned_total",
			Help:      "Backups deleted by retention or usage pressure.",
		}),
	}

	reg.MustRegister(
		r.SavesTotal,
		r.SaveDuration,
		r.SaveRetries,
		r.DiskUsageBytes,
		r.QuotaBytes,
		r.CompressionRatio,
		r.MemoryUsageBytes,
		r.SaveIntervalSecs,
		r.BackupsPrunedTotal,
	)

	return r
}

// Handler returns an HTTP handler serving the /metrics endpoint.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Gatherer exposes the underlying registry for tests.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}
