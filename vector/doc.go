// Package vector persists chunk vectors to the vector database. Writes
// are keyed by deterministic chunk IDs, so re-running a document
// replaces its previous vectors instead of duplicating them.
package vector
