// Package registry owns endpoint pool membership and selection. The Pool
// keeps the active and idle endpoint sets, a weight-ordered selection queue
// with lazy requeueing, and per-endpoint sliding-window failure records,
// all guarded by a single mutex so the active/idle partition never tears.
package registry
