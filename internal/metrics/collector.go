package metrics

import (
	"context"
	"log/slog"
	"time"
)

type EventType string

const (
	EventRequestReceived   EventType = "request_received"
	EventEndpointSelected  EventType = "endpoint_selected"
	EventResponseCompleted EventType = "response_completed"
	EventEndpointDemoted   EventType = "endpoint_demoted"
	EventEndpointPromoted  EventType = "endpoint_promoted"
)

type Event struct {
	Type       EventType
	Timestamp  time.Time
	Endpoint   string
	Duration   time.Duration
	StatusCode int
}

type Collector struct {
	eventCh chan Event
	metrics *Metrics
	logger  *slog.Logger
}

func NewCollector(bufferSize int, logger *slog.Logger) *Collector {
	return &Collector{
		eventCh: make(chan Event, bufferSize),
		metrics: NewMetrics(),
		logger:  logger,
	}
}

func (c *Collector) EventChannel() chan<- Event {
	return c.eventCh
}

// Emit enqueues an event without blocking; events are dropped when the
// buffer is full. Safe to call on a nil collector.
func (c *Collector) Emit(event Event) {
	if c == nil {
		return
	}

	select {
	case c.eventCh <- event:
	default:
	}
}

func (c *Collector) Start(ctx context.Context) {
	go c.run(ctx)
}

func (c *Collector) run(ctx context.Context) {
	c.logger.Info("Metrics collector started")
	defer c.logger.Info("Metrics collector stopped")

	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		case <-ctx.Done():
			// Drain remaining events before shutdown
			c.drain()
			return
		}
	}
}

func (c *Collector) processEvent(event Event) {
	switch event.Type {
	case EventRequestReceived:
		c.metrics.IncrementRequests(event.Endpoint)

	case EventEndpointSelected:
		c.metrics.RecordSelection(event.Endpoint)

	case EventResponseCompleted:
		c.metrics.RecordResponse(event.Endpoint, event.Duration, event.StatusCode)

	case EventEndpointDemoted:
		c.metrics.RecordDemotion(event.Endpoint)

	case EventEndpointPromoted:
		c.metrics.RecordPromotion(event.Endpoint)
	}
}

func (c *Collector) drain() {
	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		default:
			return
		}
	}
}

func (c *Collector) Snapshot() Snapshot {
	return c.metrics.Snapshot()
}
