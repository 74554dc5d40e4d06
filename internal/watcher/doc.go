// Package watcher keeps the catalog current between full scans using
// fsnotify.
//
// Creates and writes of supported files are debounced per path; the path is
// ingested once no further event has arrived for the debounce interval, and
// only if its folder is already cataloged. Removals and renames take effect
// immediately. New directories are subscribed as they appear.
package watcher
