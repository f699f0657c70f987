package dispatcher

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sardanna/roundrobin-lb/internal/endpoint"
	"github.com/sardanna/roundrobin-lb/internal/metrics"
	"github.com/sardanna/roundrobin-lb/internal/registry"
)

// RoutedURLHeader names the response header carrying the address of the
// endpoint that produced the returned response. It is absent on 503 and 408
// responses produced without a successful forward.
const RoutedURLHeader = "Routed-Url"

// Dispatcher proxies inbound requests to pool endpoints. It keeps one
// process-wide rotation cursor: the current endpoint serves up to its
// capacity of requests (or until repeated backend failures) before the next
// endpoint is dequeued, so traffic drains through the pool in weight order.
type Dispatcher struct {
	logger             *slog.Logger
	pool               *registry.Pool
	collector          *metrics.Collector
	client             *http.Client
	requestTimeout     time.Duration
	maxBackendFailures int

	mutex               sync.Mutex
	current             *endpoint.Endpoint
	servedOnCurrent     int
	consecutiveFailures int
}

// New creates a Dispatcher routing through pool. Each request is bounded by
// requestTimeout; maxBackendFailures consecutive backend failures on the
// current endpoint force rotation to the next one. The collector may be nil.
func New(logger *slog.Logger, pool *registry.Pool, collector *metrics.Collector, requestTimeout time.Duration, maxBackendFailures int) *Dispatcher {
	return &Dispatcher{
		logger:             logger,
		pool:               pool,
		collector:          collector,
		client:             &http.Client{},
		requestTimeout:     requestTimeout,
		maxBackendFailures: maxBackendFailures,
	}
}

func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.NewString()
	clientIP := extractClientIP(r)

	d.logger.Info("Received request",
		slog.String("request_id", requestID),
		slog.String("from", clientIP),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("host", r.Host))

	body, err := io.ReadAll(r.Body)
	if err != nil {
		d.logger.Error("Failed to read request body",
			slog.String("request_id", requestID),
			slog.Any("err", err))
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), d.requestTimeout)
	defer cancel()

	for {
		ep, err := d.selectEndpoint()
		if err != nil {
			if !errors.Is(err, registry.ErrNoServersAvailable) {
				d.logger.Error("Endpoint selection failed",
					slog.String("request_id", requestID),
					slog.Any("err", err))
			}
			d.logger.Warn("No servers available",
				slog.String("request_id", requestID),
				slog.String("client", clientIP))
			http.Error(w, "No servers available", http.StatusServiceUnavailable)
			return
		}

		d.emit(metrics.Event{
			Type:      metrics.EventRequestReceived,
			Timestamp: time.Now(),
			Endpoint:  ep.Address(),
		})

		start := time.Now()
		resp, err := d.forward(ctx, ep, r, body)

		if err != nil {
			if ctx.Err() != nil {
				d.logger.Warn("Request timed out",
					slog.String("request_id", requestID),
					slog.String("endpoint", ep.Address()))
				http.Error(w, "Request timed out", http.StatusRequestTimeout)
				return
			}

			// Transport-level failures count the same as an unavailable
			// response from the backend.
			d.recordFailure(ep, requestID)
			continue
		}

		if isUnavailable(resp.StatusCode) {
			resp.Body.Close()
			d.recordFailure(ep, requestID)
			continue
		}

		d.logger.Info("Forwarded to endpoint",
			slog.String("request_id", requestID),
			slog.String("endpoint", ep.Address()),
			slog.Int("status", resp.StatusCode))

		d.writeResponse(w, resp, ep)

		d.emit(metrics.Event{
			Type:       metrics.EventResponseCompleted,
			Timestamp:  time.Now(),
			Endpoint:   ep.Address(),
			Duration:   time.Since(start),
			StatusCode: resp.StatusCode,
		})
		return
	}
}

// selectEndpoint returns the endpoint the next forward should target,
// rotating to a freshly dequeued one when there is no current endpoint, the
// current one exhausted its capacity, or it failed too many times in a row.
// The served counter is charged here, one increment per forward attempt.
func (d *Dispatcher) selectEndpoint() (*endpoint.Endpoint, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	rotate := d.current == nil ||
		d.consecutiveFailures >= d.maxBackendFailures ||
		d.servedOnCurrent >= d.current.MaxConcurrent()

	if rotate {
		ep, err := d.pool.Dequeue()
		if err != nil {
			return nil, err
		}
		d.current = ep
		d.servedOnCurrent = 0
		d.consecutiveFailures = 0
	}

	d.servedOnCurrent++
	return d.current, nil
}

func (d *Dispatcher) forward(ctx context.Context, ep *endpoint.Endpoint, r *http.Request, body []byte) (*http.Response, error) {
	target := ep.ResolvePath(r.URL.Path, r.URL.RawQuery)

	req, err := http.NewRequestWithContext(ctx, r.Method, target.String(), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	if ct := r.Header.Get("Content-Type"); ct != "" {
		req.Header.Set("Content-Type", ct)
	}

	return d.client.Do(req)
}

func (d *Dispatcher) recordFailure(ep *endpoint.Endpoint, requestID string) {
	d.pool.TrackFailure(ep.Address(), requestID)

	d.mutex.Lock()
	if d.current == ep {
		d.consecutiveFailures++
	}
	d.mutex.Unlock()
}

func (d *Dispatcher) writeResponse(w http.ResponseWriter, resp *http.Response, ep *endpoint.Endpoint) {
	defer resp.Body.Close()

	for key, values := range resp.Header {
		for _, v := range values {
			w.Header().Add(key, v)
		}
	}
	w.Header().Set(RoutedURLHeader, ep.Address())
	w.WriteHeader(resp.StatusCode)

	if _, err := io.Copy(w, resp.Body); err != nil {
		d.logger.Error("Failed to copy response body",
			slog.String("endpoint", ep.Address()),
			slog.Any("err", err))
	}
}

// isUnavailable reports whether the backend status belongs to the
// server-unavailable class that triggers rotation and retry.
func isUnavailable(status int) bool {
	switch status {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

func extractClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}

	host, _, _ := net.SplitHostPort(r.RemoteAddr)
	return host
}

func (d *Dispatcher) emit(event metrics.Event) {
	d.collector.Emit(event)
}
