// Package extract turns raw document bytes into plain text. A Registry
// dispatches on the detected media type; unsupported types are a
// permanent failure since retrying cannot change the format.
package extract
