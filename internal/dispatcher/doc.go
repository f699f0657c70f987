// Package dispatcher implements the per-request proxy loop: endpoint
// selection with capacity-based rotation, transparent retry on backend
// failure, request timeout enforcement, and response pass-through annotated
// with the serving endpoint.
package dispatcher
