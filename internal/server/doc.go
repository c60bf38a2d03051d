// Package server hosts the read-only Fiber surface over the stowage directory
// and the shared upstream HTTP client used for downloads. Handlers never write
// to the cache; fetching stays a CLI concern so that the HTTP surface can be
// exposed without credentials.
package server
