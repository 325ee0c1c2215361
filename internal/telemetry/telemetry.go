// Package telemetry registers the engine's Prometheus collectors. The
// engine exposes no scrape endpoint itself; collectors register on the
// default registry for whatever outer layer serves it.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TasksCompleted counts per-instrument simulations that produced a result.
	TasksCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "backtest_tasks_completed_total",
		Help: "Instrument simulations that completed successfully.",
	})

	// TasksFailed counts per-instrument simulations that failed or timed out.
	TasksFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "backtest_tasks_failed_total",
		Help: "Instrument simulations that failed or timed out.",
	})

	// InstrumentsSkipped counts instruments rejected by validation.
	InstrumentsSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "backtest_instruments_skipped_total",
		Help: "Instruments excluded from a batch by data validation.",
	})

	// TaskDuration observes wall-clock time per instrument simulation.
	TaskDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "backtest_task_duration_seconds",
		Help:    "Wall-clock duration of one instrument simulation.",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
	})

	// CacheSegments tracks live shared market-data segments.
	CacheSegments = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "backtest_cache_segments",
		Help: "Live shared market-data cache segments.",
	})

	// CacheBytes tracks bytes held by the shared market-data cache.
	CacheBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "backtest_cache_bytes",
		Help: "Bytes held by the shared market-data cache.",
	})

	// MemoryUtilization records the last sampled system memory utilization.
	MemoryUtilization = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "backtest_memory_utilization_pct",
		Help: "Last sampled system memory utilization percentage.",
	})

	// RecommendedWorkers records the memory monitor's last recommendation.
	RecommendedWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "backtest_recommended_workers",
		Help: "Worker count last recommended by the memory monitor.",
	})
)
