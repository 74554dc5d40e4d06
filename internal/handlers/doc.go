// Package handlers serves the read-only catalog API.
//
// It covers:
//   - Folder listings and paged subfolder and media listings
//   - Media item details, thumbnails and full-resolution files
//   - Triggering full scans and reporting scan progress
//   - Health, liveness, readiness and version endpoints
package handlers
