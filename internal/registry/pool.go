package registry

import (
	"container/heap"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/sardanna/roundrobin-lb/internal/endpoint"
	"github.com/sardanna/roundrobin-lb/internal/metrics"
	"github.com/sardanna/roundrobin-lb/internal/weight"
)

// ErrNoServersAvailable is returned when selection is attempted and no
// endpoint can be handed out.
var ErrNoServersAvailable = errors.New("no servers available")

// initialWeight seeds every configured endpoint so the first round of
// traffic is distributed evenly before any real weight is computed.
const initialWeight = 100

// Options holds the tuning parameters governing demotion and recovery.
type Options struct {
	// WeightThreshold is the minimum computed weight an endpoint needs to
	// stay in (or return to) the active set.
	WeightThreshold float64
	// FailureThreshold is how many tracked failures within the reset window
	// an endpoint survives before being demoted.
	FailureThreshold int
	// FailureResetWindow is the sliding window for failure accumulation.
	// A failure arriving after the window elapsed starts a new count.
	FailureResetWindow time.Duration
}

// failureRecord tracks failures for one endpoint within a sliding window.
type failureRecord struct {
	count       int
	lastFailure time.Time
}

// Pool owns the active and idle endpoint sets, the weight-ordered selection
// queue, and the per-endpoint failure records. Membership, selection and
// failure tracking read and mutate each other, so a single mutex guards all
// three as one unit.
type Pool struct {
	mutex     sync.Mutex
	active    []*endpoint.Endpoint
	idle      []*endpoint.Endpoint
	queue     entryHeap
	seq       uint64
	current   *endpoint.Endpoint
	failures  map[string]*failureRecord
	scorer    weight.Scorer
	opts      Options
	logger    *slog.Logger
	collector *metrics.Collector
}

// NewPool creates a Pool with every endpoint active and queued at the
// initial weight, in configuration order. The collector may be nil.
func NewPool(endpoints []*endpoint.Endpoint, scorer weight.Scorer, opts Options, logger *slog.Logger, collector *metrics.Collector) *Pool {
	p := &Pool{
		active:    make([]*endpoint.Endpoint, 0, len(endpoints)),
		failures:  make(map[string]*failureRecord),
		scorer:    scorer,
		opts:      opts,
		logger:    logger,
		collector: collector,
	}

	for _, ep := range endpoints {
		p.active = append(p.active, ep)
		p.pushLocked(ep, initialWeight)
	}

	return p
}

// Peek returns the endpoint the next Dequeue would hand out, without
// removing it. Returns ErrNoServersAvailable when nothing can be selected.
func (p *Pool) Peek() (*endpoint.Endpoint, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.queue.Len() <= 1 {
		p.refreshLocked()
	}

	if p.queue.Len() == 0 {
		return nil, ErrNoServersAvailable
	}

	return p.queue[0].endpoint, nil
}

// Dequeue removes and returns the highest-weight queued endpoint, refreshing
// weights first when the queue is about to run dry. The returned endpoint
// becomes the pool's selection cursor: the next refresh skips re-enqueueing
// it, since it is already in the dispatcher's hands.
func (p *Pool) Dequeue() (*endpoint.Endpoint, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.queue.Len() <= 1 {
		p.refreshLocked()
	}

	if p.queue.Len() == 0 {
		return nil, ErrNoServersAvailable
	}

	e := heap.Pop(&p.queue).(*entry)
	p.current = e.endpoint

	p.emit(metrics.Event{
		Type:      metrics.EventEndpointSelected,
		Timestamp: time.Now(),
		Endpoint:  e.endpoint.Address(),
	})

	return e.endpoint, nil
}

// TrackFailure records one backend failure against the endpoint. When the
// time since the previous failure exceeds the reset window, the count starts
// over with this failure as the first of a new window. Crossing the failure
// threshold demotes the endpoint from active to idle; the return value
// reports whether that happened on this call.
func (p *Pool) TrackFailure(address, requestID string) bool {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	rec, ok := p.failures[address]
	if !ok {
		rec = &failureRecord{}
		p.failures[address] = rec
	}

	now := time.Now()
	if !rec.lastFailure.IsZero() && now.Sub(rec.lastFailure) > p.opts.FailureResetWindow {
		rec.count = 0
	}
	rec.count++
	rec.lastFailure = now

	p.logger.Warn("Tracked backend failure",
		slog.String("endpoint", address),
		slog.String("request_id", requestID),
		slog.Int("failures", rec.count))

	if rec.count <= p.opts.FailureThreshold {
		return false
	}

	if !p.demoteLocked(address) {
		return false
	}

	p.logger.Warn("Endpoint demoted after repeated failures",
		slog.String("endpoint", address),
		slog.String("request_id", requestID),
		slog.Int("failures", rec.count))

	p.emit(metrics.Event{
		Type:      metrics.EventEndpointDemoted,
		Timestamp: now,
		Endpoint:  address,
	})

	return true
}

// PromoteRecovered rescores every idle endpoint and moves those scoring
// above the weight threshold back to the active set, queueing them
// immediately at their fresh weight. Failure records are deliberately left
// intact: a promoted endpoint that keeps failing inside its old window is
// demoted again quickly. Returns the promoted addresses.
func (p *Pool) PromoteRecovered() []string {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	var promoted []string
	remaining := p.idle[:0]

	for _, ep := range p.idle {
		w := p.scorer.Score()
		if w <= p.opts.WeightThreshold {
			remaining = append(remaining, ep)
			continue
		}

		p.active = append(p.active, ep)
		p.pushLocked(ep, w)
		promoted = append(promoted, ep.Address())

		p.logger.Info("Endpoint promoted back to active",
			slog.String("endpoint", ep.Address()),
			slog.Float64("weight", w))

		p.emit(metrics.Event{
			Type:      metrics.EventEndpointPromoted,
			Timestamp: time.Now(),
			Endpoint:  ep.Address(),
		})
	}

	p.idle = remaining
	return promoted
}

// ActiveAddresses returns the addresses currently eligible for selection.
func (p *Pool) ActiveAddresses() []string {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return addresses(p.active)
}

// IdleAddresses returns the addresses demoted and pending health recovery.
func (p *Pool) IdleAddresses() []string {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return addresses(p.idle)
}

// refreshLocked recomputes the weight of every active endpoint in one atomic
// pass. Endpoints scoring below the threshold move to idle; the rest are
// re-enqueued at their fresh weight, except the cursor endpoint, which the
// dispatcher is still holding. Stale queue entries are only scrubbed for the
// cursor endpoint; entries of other demoted endpoints are left to drain
// lazily.
func (p *Pool) refreshLocked() {
	if len(p.active) == 0 {
		return
	}

	remaining := p.active[:0]

	for _, ep := range p.active {
		w := p.scorer.Score()

		if w < p.opts.WeightThreshold {
			p.idle = append(p.idle, ep)
			if ep == p.current {
				p.removeEntriesLocked(ep)
			}

			p.logger.Warn("Endpoint demoted below weight threshold",
				slog.String("endpoint", ep.Address()),
				slog.Float64("weight", w),
				slog.Float64("threshold", p.opts.WeightThreshold))

			p.emit(metrics.Event{
				Type:      metrics.EventEndpointDemoted,
				Timestamp: time.Now(),
				Endpoint:  ep.Address(),
			})
			continue
		}

		if ep != p.current {
			p.pushLocked(ep, w)
		}
		remaining = append(remaining, ep)
	}

	p.active = remaining
}

// demoteLocked moves an endpoint from active to idle. Returns false when the
// endpoint is not in the active set (already idle).
func (p *Pool) demoteLocked(address string) bool {
	for i, ep := range p.active {
		if ep.Address() != address {
			continue
		}
		p.active = append(p.active[:i], p.active[i+1:]...)
		p.idle = append(p.idle, ep)
		return true
	}
	return false
}

func (p *Pool) pushLocked(ep *endpoint.Endpoint, w float64) {
	p.seq++
	heap.Push(&p.queue, &entry{endpoint: ep, weight: w, seq: p.seq})
}

func (p *Pool) removeEntriesLocked(ep *endpoint.Endpoint) {
	kept := p.queue[:0]
	for _, e := range p.queue {
		if e.endpoint != ep {
			kept = append(kept, e)
		}
	}
	p.queue = kept
	heap.Init(&p.queue)
}

func (p *Pool) emit(event metrics.Event) {
	p.collector.Emit(event)
}

func addresses(endpoints []*endpoint.Endpoint) []string {
	out := make([]string, 0, len(endpoints))
	for _, ep := range endpoints {
		out = append(out, ep.Address())
	}
	return out
}
