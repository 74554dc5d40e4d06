package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_catalog_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_catalog_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_catalog_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

// Database metrics
var (
	DBQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_catalog_db_queries_total",
			Help: "Total number of catalog queries",
		},
		[]string{"operation", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_catalog_db_query_duration_seconds",
			Help:    "Catalog query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)

	DBTransactionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_catalog_db_transaction_duration_seconds",
			Help:    "Catalog transaction duration in seconds by outcome",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"outcome"}, // "commit" or "rollback"
	)

	DBConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_catalog_db_connections_open",
			Help: "Number of open database connections",
		},
	)

	DBConflictsResolved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_catalog_db_conflicts_resolved_total",
			Help: "Uniqueness conflicts resolved by re-fetching the winning row",
		},
		[]string{"table"},
	)
)

// Catalog contents
var (
	CatalogFoldersTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_catalog_folders",
			Help: "Number of cataloged folders",
		},
	)

	CatalogMediaTotal = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "media_catalog_media_items",
			Help: "Number of cataloged media items by media type",
		},
		[]string{"media_type"},
	)
)

// Scan metrics
var (
	ScanRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_catalog_scan_runs_total",
			Help: "Total number of full scans by outcome",
		},
		[]string{"status"}, // "completed", "cancelled", "error"
	)

	ScanRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_catalog_scan_running",
			Help: "Whether a full scan is currently running (1 = running, 0 = idle)",
		},
	)

	ScanLastRunTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_catalog_scan_last_run_timestamp",
			Help: "Unix timestamp of the last completed scan",
		},
	)

	ScanLastRunDuration = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_catalog_scan_last_run_duration_seconds",
			Help: "Duration of the last completed scan in seconds",
		},
	)

	ScanProgress = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "media_catalog_scan_progress_items",
			Help: "Item counters of the running or last scan",
		},
		[]string{"counter"}, // total, processed, succeeded, failed, existing, skipped
	)

	ScanFoldersDiscovered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_catalog_scan_folders_discovered_total",
			Help: "Folders resolved by the directory scanner",
		},
	)

	ScanDirectoriesSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_catalog_scan_directories_skipped_total",
			Help: "Directories skipped during a walk by reason",
		},
		[]string{"reason"}, // "unreadable", "unresolvable", "symlink_loop"
	)

	IngestItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_catalog_ingest_items_total",
			Help: "Items handled by the ingestion path by source and outcome",
		},
		[]string{"source", "outcome"}, // source: scan|watch, outcome: inserted|existing|failed
	)

	PoolWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_catalog_pool_workers",
			Help: "Number of ingestion workers in the running pool",
		},
	)

	OrphanFilesRemoved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_catalog_orphan_files_removed_total",
			Help: "Derivative files swept after their catalog rows were removed",
		},
		[]string{"status"},
	)
)

// Generator metrics
var (
	GeneratorRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_catalog_generator_runs_total",
			Help: "Derived asset generations by media kind and status",
		},
		[]string{"kind", "status"},
	)

	GeneratorDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_catalog_generator_duration_seconds",
			Help:    "Derived asset generation duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"kind"},
	)

	GeneratorExternalToolDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_catalog_generator_external_tool_duration_seconds",
			Help:    "Time spent in ffmpeg, ffprobe or libvips calls",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"tool"},
	)
)

// Watcher metrics
var (
	WatcherEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_catalog_watcher_events_total",
			Help: "Total number of filesystem watcher events",
		},
		[]string{"event_type"},
	)

	WatcherErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_catalog_watcher_errors_total",
			Help: "Total number of filesystem watcher errors",
		},
	)

	WatcherWatchedDirectories = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_catalog_watcher_watched_directories",
			Help: "Number of directories currently being watched",
		},
	)

	WatcherPendingDebounce = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_catalog_watcher_pending_debounce",
			Help: "Create events waiting for their debounce timer",
		},
	)

	WatcherDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_catalog_watcher_dropped_total",
			Help: "Watch events dropped before ingestion by reason",
		},
		[]string{"reason"},
	)
)

// Filesystem retry metrics
var (
	FilesystemRetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_catalog_filesystem_retry_attempts_total",
			Help: "Retries issued after a stale NFS file handle",
		},
		[]string{"operation"},
	)

	FilesystemRetrySuccess = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_catalog_filesystem_retry_success_total",
			Help: "Operations that succeeded after at least one retry",
		},
		[]string{"operation"},
	)

	FilesystemRetryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_catalog_filesystem_retry_failures_total",
			Help: "Operations that still failed after all retries",
		},
		[]string{"operation"},
	)

	FilesystemStaleErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_catalog_filesystem_stale_errors_total",
			Help: "ESTALE errors observed",
		},
		[]string{"operation"},
	)

	FilesystemRetryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_catalog_filesystem_retry_duration_seconds",
			Help:    "Total time spent in a retried filesystem operation",
			Buckets: []float64{0.0001, 0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2},
		},
		[]string{"operation"},
	)
)

// Memory metrics
var (
	MemoryUsageRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_catalog_memory_usage_ratio",
			Help: "Heap allocation as a ratio of the configured memory limit",
		},
	)

	MemoryPaused = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_catalog_memory_paused",
			Help: "Whether ingestion is paused for memory pressure (1 = paused)",
		},
	)

	MemoryGCPauses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_catalog_memory_gc_pauses_total",
			Help: "Times ingestion was paused for memory pressure",
		},
	)
)

// Application info metric
var (
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "media_catalog_app_info",
			Help: "Application information",
		},
		[]string{"version", "commit", "go_version"},
	)
)

// SetAppInfo sets the application info metric
func SetAppInfo(version, commit, goVersion string) {
	AppInfo.WithLabelValues(version, commit, goVersion).Set(1)
}
