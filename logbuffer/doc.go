// Package logbuffer implements a term buffer: a fixed capacity region of
// aligned, self describing frames written by a single Appender and drained
// concurrently by any number of Readers, or scanned in MTU sized batches by
// Scan.
//
// Frame lengths and the tail counter are only accessed atomically. A frame
// becomes visible when its length is stored as a positive value; readers
// stop on a claimed frame that is still uncommitted instead of waiting. A
// padding frame fills the space left at the end of the buffer when a claim
// does not fit, and readers step over it.
//
// Nothing in this package blocks, logs or retries.
package logbuffer
