// Package indexer builds the catalog from the media directory.
//
// A full scan resets the catalog, then runs the Scanner and the ingestion
// Pool concurrently. The Scanner walks the tree, creating each folder row
// before streaming that folder's supported files. The Pool groups the stream
// into chunks and hands them to workers that each hold a private database
// session. Every item goes through the Ingester: catalog lookup, derivative
// generation, then an insert that is atomic per source path.
//
// Item failures are recorded in a FailLog and counted; they never stop the
// scan. Cancelling a scan lets each worker finish the item it is on and
// counts the rest as skipped. Derivative files of the rows removed by the
// reset are deleted in the background.
//
// The Ingester is shared with the file watcher, which serializes with a
// running scan on the same per-path locks.
package indexer
