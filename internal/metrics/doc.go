// Package metrics declares the Prometheus instrumentation of the catalog
// service. Every metric is prefixed with "media_catalog_".
//
// # Categories
//
//   - HTTP: request counts, durations and in-flight gauge for the read API.
//   - Database: per-operation query counters and latencies, transaction
//     outcomes, and uniqueness conflicts resolved by re-fetch.
//   - Catalog: folder and media-item totals, refreshed by a Collector.
//   - Scan: run outcomes, last-run timing, live progress counters, folders
//     discovered, directories skipped, orphan files swept.
//   - Generator: derived asset generations by media kind and status, plus
//     time spent in ffmpeg, ffprobe and libvips.
//   - Watcher: filesystem events, pending debounce timers, dropped events.
//   - Filesystem: ESTALE retry attempts and outcomes.
//   - Memory: usage ratio and backpressure pauses.
//
// # Example queries
//
// Generation failure ratio by kind:
//
//	sum by (kind) (rate(media_catalog_generator_runs_total{status!="success"}[5m]))
//	  / sum by (kind) (rate(media_catalog_generator_runs_total[5m]))
//
// Scan completion percentage while a scan runs:
//
//	media_catalog_scan_progress_items{counter="processed"}
//	  / media_catalog_scan_progress_items{counter="total"}
package metrics
