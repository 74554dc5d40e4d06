// Package startup loads configuration and prints the startup and shutdown
// banners.
//
// # Configuration
//
// Settings come from environment variables, optionally seeded from a dotenv
// file named by ENV_FILE (default ".env"). Values already present in the
// environment take precedence over the file.
//
//   - MEDIA_DIR: root of the cataloged tree (default: /media)
//   - CACHE_DIR: parent of the thumbnails/ and converted/ directories (default: /cache)
//   - DATABASE_DIR: directory holding catalog.db (default: /database)
//   - PORT, METRICS_PORT, METRICS_ENABLED: HTTP listeners
//   - SUPPORTED_EXTENSIONS: comma-separated extensions to catalog
//   - SKIP_HIDDEN: leave dotfiles and dot-directories out (default: false)
//   - THUMBNAIL_WIDTH, THUMBNAIL_HEIGHT: thumbnail bounding box (default: 200x200)
//   - SCAN_WORKERS, SCAN_CHUNK_SIZE: ingestion pool sizing
//   - SCAN_INTERVAL: periodic full rescan, 0 disables (default: 0)
//   - PROGRESS_INTERVAL: scan progress log interval (default: 5s)
//   - WATCH_ENABLED, WATCH_DEBOUNCE: filesystem watching (default: true, 10s)
//   - PAGE_SIZE: listing page size (default: 50)
//   - RECORD_DERIVATIVES: catalog thumbnails as their own rows (default: false)
//   - LOG_LEVEL, LOG_HEALTH_CHECKS
//
// [Load] only parses. [Config.Prepare] validates MEDIA_DIR and creates the
// writable directories. [LoadConfig] does both and logs the result.
package startup
