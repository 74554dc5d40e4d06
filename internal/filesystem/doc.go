/*
Package filesystem wraps os.Stat and os.Open with retries for ESTALE
(stale NFS file handle) errors.

Media roots are frequently NFS exports. A file that is replaced on the server
while a worker holds its handle returns ESTALE, which usually clears on the
next attempt. Every other error is returned immediately.

	info, err := filesystem.StatWithRetry(path, filesystem.DefaultRetryConfig())

Defaults: 3 retries, 50ms initial backoff doubling up to 500ms.
*/
package filesystem
