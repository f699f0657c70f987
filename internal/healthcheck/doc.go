// Package healthcheck implements periodic recovery for demoted endpoints.
// It rescores the pool's idle set on a fixed interval and promotes
// endpoints whose weight climbed back above the configured threshold.
package healthcheck
