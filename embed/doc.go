// Package embed produces embedding vectors for chunk texts. The
// Generator batches requests, paces them through a shared rate limiter,
// and retries transient provider failures with exponential backoff.
package embed
