package endpoint

import (
	"fmt"
	"net/url"
)

// Endpoint represents a single backend address requests can be routed to.
// Identity (the address string) and capacity are fixed at construction;
// only pool membership and weight change over the process lifetime.
type Endpoint struct {
	address       string
	baseURL       *url.URL
	maxConcurrent int
}

// New creates an Endpoint from its base address and per-rotation capacity.
// The address must be an absolute http(s) URL.
func New(address string, maxConcurrent int) (*Endpoint, error) {
	u, err := url.Parse(address)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint address %q: %w", address, err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("endpoint address %q must use http or https", address)
	}

	if u.Host == "" {
		return nil, fmt.Errorf("endpoint address %q has no host", address)
	}

	if maxConcurrent < 1 {
		return nil, fmt.Errorf("endpoint %q: max concurrent must be at least 1", address)
	}

	return &Endpoint{
		address:       address,
		baseURL:       u,
		maxConcurrent: maxConcurrent,
	}, nil
}

// Address returns the configured address string, the endpoint's unique key.
func (e *Endpoint) Address() string {
	return e.address
}

// MaxConcurrent returns how many requests the endpoint serves before the
// dispatcher is forced to rotate away from it.
func (e *Endpoint) MaxConcurrent() int {
	return e.maxConcurrent
}

// ResolvePath builds the outbound URL for a proxied request path and query.
func (e *Endpoint) ResolvePath(path, rawQuery string) *url.URL {
	target := e.baseURL.ResolveReference(&url.URL{Path: path})
	target.RawQuery = rawQuery
	return target
}
