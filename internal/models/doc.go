// Package models contains the plain structs shared across the pipeline:
// listening-history plays, staged catalog attribute rows, artists, albums,
// worklist keys and the canonical identifier mapping.
//
// The structs carry no behavior beyond validation; persistence lives in
// internal/repositories and the pipeline logic in internal/tasks.
package models
