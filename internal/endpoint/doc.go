// Package endpoint defines the backend endpoint type: an immutable
// address with a per-rotation capacity limit and outbound URL resolution.
package endpoint
