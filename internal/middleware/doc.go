// Package middleware provides the HTTP middleware of the catalog API: a
// one-line access log and Prometheus request metrics labelled by route.
package middleware
