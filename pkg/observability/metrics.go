package observability

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Synchronization metrics
	SyncRunsTotal            *prometheus.CounterVec
	SyncRunDuration          prometheus.Histogram
	SyncResourcesCreated     prometheus.Counter
	SyncGrantsCreated        prometheus.Counter
	SyncSubtreeFailures      prometheus.Counter
	SyncNodesProcessed       prometheus.Counter

	// Store metrics
	StoreOperationsTotal   *prometheus.CounterVec
	StoreOperationDuration *prometheus.HistogramVec

	// Cache metrics
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	// Database pool metrics
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		SyncRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arbor_sync_runs_total",
				Help: "Total number of hierarchy synchronization runs",
			},
			[]string{"status"},
		),
		SyncRunDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "arbor_sync_run_duration_seconds",
				Help:    "Hierarchy synchronization run duration in seconds",
				Buckets: []float64{.1, .5, 1, 5, 15, 60, 300, 900},
			},
		),
		SyncResourcesCreated: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "arbor_sync_resources_created_total",
				Help: "Total number of resources created by synchronization",
			},
		),
		SyncGrantsCreated: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "arbor_sync_grants_created_total",
				Help: "Total number of user grants created by synchronization",
			},
		),
		SyncSubtreeFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "arbor_sync_subtree_failures_total",
				Help: "Total number of subtrees skipped due to provider or store failures",
			},
		),
		SyncNodesProcessed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "arbor_sync_nodes_processed_total",
				Help: "Total number of external nodes enumerated during synchronization",
			},
		),
		StoreOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arbor_store_operations_total",
				Help: "Total number of store operations",
			},
			[]string{"operation", "status"},
		),
		StoreOperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "arbor_store_operation_duration_seconds",
				Help:    "Store operation duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arbor_cache_hits_total",
				Help: "Total number of cache hits",
			},
			[]string{"cache_type"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arbor_cache_misses_total",
				Help: "Total number of cache misses",
			},
			[]string{"cache_type"},
		),
		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "arbor_db_connections_active",
				Help: "Number of active database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "arbor_db_connections_idle",
				Help: "Number of idle database connections",
			},
		),
	}

	registry.MustRegister(
		m.SyncRunsTotal,
		m.SyncRunDuration,
		m.SyncResourcesCreated,
		m.SyncGrantsCreated,
		m.SyncSubtreeFailures,
		m.SyncNodesProcessed,
		m.StoreOperationsTotal,
		m.StoreOperationDuration,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
	)

	return m
}

// Handler returns an HTTP handler serving the registry in Prometheus format
func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// CollectDBStats copies connection pool gauges from the database handle.
// Call periodically; the database/sql package has no stats callback.
func (m *Metrics) CollectDBStats(db *sql.DB) {
	stats := db.Stats()
	m.DBConnectionsActive.Set(float64(stats.InUse))
	m.DBConnectionsIdle.Set(float64(stats.Idle))
}

// StartDBStatsLoop collects pool gauges on an interval until stop is closed
func (m *Metrics) StartDBStatsLoop(db *sql.DB, interval time.Duration, stop <-chan struct{}) {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				m.CollectDBStats(db)
			}
		}
	}()
}
