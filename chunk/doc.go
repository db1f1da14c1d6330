// Package chunk splits extracted text into overlapping chunks with
// stable character offsets.
//
// Two modes cover the two kinds of input. Text that contains at least
// one of the configured separators is cut at the last separator inside
// each window, so chunks end on sentence or paragraph boundaries. Text
// with no separators at all (minified output, base64 blobs) falls back
// to fixed-stride windows.
package chunk
