// Package pipeline orchestrates one indexing run: list the source
// prefix, fan the pending documents out to a bounded worker pool, push
// each one through extract, chunk, embed and write, and finally promote
// it to the processed prefix. Failures are isolated per document; only
// a failed source listing aborts the run.
package pipeline
