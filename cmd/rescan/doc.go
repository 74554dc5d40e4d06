// Command rescan runs a one-off full scan against the catalog database the
// server uses, or reports what the catalog holds.
//
// Usage:
//
//	rescan [-v] <command>
//
// Commands:
//
//	scan    Reset the catalog and rebuild it from MEDIA_DIR. Derivatives are
//	        written to CACHE_DIR exactly as the server writes them. When
//	        stdout is a terminal a live progress line is shown; otherwise
//	        progress is logged every PROGRESS_INTERVAL.
//
//	status  Print the number of cataloged folders and media per type.
//
// Configuration is read from the same environment variables (and optional
// .env file) as the server. Do not run scan while the server is scanning:
// the second scan would reset rows the first is still filling.
//
// Interrupting a scan lets in-flight items finish and exits non-zero.
package main
