// Package ingest provides the record import engine for subjectgraph.
//
// Each supported format (JSON Lines, JSON, YAML, CSV/TSV) has its own
// importer that implements the Importer interface. The engine picks a format
// by file extension and streams records from the file instead of loading the
// whole corpus into memory.
//
// Records that cannot be interpreted (missing identifier, non-string subject)
// are reported as *cooccur.MalformedRecordError and skipped; structural
// damage to the file itself is a hard error.
package ingest
