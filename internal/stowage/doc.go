// Package stowage maps cacheable artifacts (bottles and source archives) to
// filenames inside the flat www directory and reconstructs them back from a
// directory listing. The filename is the only persisted metadata: encoding and
// decoding share the grammar in grammar.go so that every name written by Path
// is recovered by List. Entries that do not fit the grammar are skipped rather
// than failing the scan, since the directory may hold foreign or legacy files.
package stowage
