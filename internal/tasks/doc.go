// Package tasks implements the listening-history pipeline stages.
//
// The stages run in order: export ingestion (IngestExportDir) loads the raw
// streaming history, the FetchController enriches its distinct tracks
// through the catalog API in resumable rate-limited batches, Reconcile
// merges duplicate track rows into a canonical table plus an identifier
// mapping, and AggregateGenres/DisambiguateArtists finish the artist table.
//
// Each stage takes explicit store handles and a Catalog; nothing here owns
// a connection or global state.
package tasks
