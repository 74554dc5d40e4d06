// Command media-catalog serves a browsable catalog of a media directory.
//
// On start it loads configuration from the environment (and an optional
// .env file), opens the SQLite catalog, and runs a full scan in the
// background if the catalog is empty. A full scan resets the catalog, walks
// MEDIA_DIR, and ingests every supported file through a pool of workers that
// write thumbnails, converted copies of raw images, and extracted metadata
// into CACHE_DIR. With WATCH_ENABLED, filesystem events keep the catalog
// current between scans.
//
// Two HTTP servers run:
//
//  1. The API on PORT: folder and media listings, media files, scan
//     control, and the health probes /healthz, /livez and /readyz.
//  2. Prometheus metrics on METRICS_PORT, when METRICS_ENABLED.
//
// SIGINT and SIGTERM stop the watcher and any running scan (in-flight items
// complete), then drain the HTTP servers and close the database.
//
// The cmd/rescan tool runs a one-off full scan against the same database.
package main
