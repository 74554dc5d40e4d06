// Package database persists the media catalog in SQLite.
//
// Two registries live here. Folders form a tree keyed by their path relative
// to the media root, with the root stored as path "" and no parent. Media
// items are keyed by absolute source path and point at their folder and, for
// derived rows, at the original they were generated from.
//
// Writers are made safe by UNIQUE constraints rather than application locks:
// [Catalog.GetOrCreateFolder] re-fetches the winning row on a constraint
// violation and [Catalog.InsertIfAbsent] uses ON CONFLICT DO NOTHING. Each
// ingestion worker should run on its own [Session] so connections are never
// shared between goroutines.
//
// The database runs in WAL mode with foreign keys enabled.
package database
