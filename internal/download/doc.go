// Package download is the transfer primitive used by the fetch orchestrator.
// It streams a URL into a destination path using temp file + rename, or keeps
// the body in memory when no destination is given. Writes targeting the same
// destination are serialized per client; an existing destination is treated as
// already downloaded because stowed artifacts are immutable.
package download
