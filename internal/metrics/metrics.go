package metrics

import (
	"sort"
	"sync"
	"time"
)

type Metrics struct {
	mutex         sync.RWMutex
	requests      map[string]int64
	selections    map[string]int64
	responseTimes map[string][]time.Duration
	statusCodes   map[string]map[int]int64
	demotions     map[string]int64
	promotions    map[string]int64
	active        map[string]bool
	startTime     time.Time
}

type Snapshot struct {
	TotalRequests int64                      `json:"total_requests"`
	Uptime        time.Duration              `json:"uptime"`
	Endpoints     map[string]EndpointMetrics `json:"endpoints"`
}

type EndpointMetrics struct {
	Requests    int64         `json:"requests"`
	Selections  int64         `json:"selections"`
	Demotions   int64         `json:"demotions"`
	Promotions  int64         `json:"promotions"`
	Active      bool          `json:"active"`
	AvgResponse time.Duration `json:"avg_response"`
	P50Response time.Duration `json:"p50_response"`
	P95Response time.Duration `json:"p95_response"`
	P99Response time.Duration `json:"p99_response"`
	StatusCodes map[int]int64 `json:"status_codes"`
}

func (m *Metrics) IncrementRequests(endpoint string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.requests[endpoint]++
}

func (m *Metrics) RecordSelection(endpoint string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.selections[endpoint]++
	m.active[endpoint] = true
}

func (m *Metrics) RecordResponse(endpoint string, duration time.Duration, statusCode int) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.responseTimes[endpoint] = append(m.responseTimes[endpoint], duration)

	if len(m.responseTimes[endpoint]) > 1000 {
		m.responseTimes[endpoint] = m.responseTimes[endpoint][1:]
	}

	if m.statusCodes[endpoint] == nil {
		m.statusCodes[endpoint] = make(map[int]int64)
	}
	m.statusCodes[endpoint][statusCode]++
}

func (m *Metrics) RecordDemotion(endpoint string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.demotions[endpoint]++
	m.active[endpoint] = false
}

func (m *Metrics) RecordPromotion(endpoint string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.promotions[endpoint]++
	m.active[endpoint] = true
}

func (m *Metrics) Snapshot() Snapshot {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	snap := Snapshot{
		Uptime:    time.Since(m.startTime),
		Endpoints: make(map[string]EndpointMetrics),
	}

	// Collect all endpoint addresses seen by any event type
	all := make(map[string]bool)
	for endpoint := range m.requests {
		all[endpoint] = true
	}
	for endpoint := range m.selections {
		all[endpoint] = true
	}
	for endpoint := range m.responseTimes {
		all[endpoint] = true
	}
	for endpoint := range m.demotions {
		all[endpoint] = true
	}
	for endpoint := range m.promotions {
		all[endpoint] = true
	}

	for endpoint := range all {
		snap.TotalRequests += m.requests[endpoint]

		em := EndpointMetrics{
			Requests:    m.requests[endpoint],
			Selections:  m.selections[endpoint],
			Demotions:   m.demotions[endpoint],
			Promotions:  m.promotions[endpoint],
			Active:      m.active[endpoint],
			StatusCodes: m.statusCodes[endpoint],
		}

		durations := m.responseTimes[endpoint]
		if len(durations) > 0 {
			sorted := make([]time.Duration, len(durations))
			copy(sorted, durations)
			sort.Slice(sorted, func(i, j int) bool {
				return sorted[i] < sorted[j]
			})

			em.AvgResponse = average(sorted)
			em.P50Response = percentile(sorted, 0.50)
			em.P95Response = percentile(sorted, 0.95)
			em.P99Response = percentile(sorted, 0.99)
		}

		snap.Endpoints[endpoint] = em
	}

	return snap
}

func NewMetrics() *Metrics {
	return &Metrics{
		requests:      make(map[string]int64),
		selections:    make(map[string]int64),
		responseTimes: make(map[string][]time.Duration),
		statusCodes:   make(map[string]map[int]int64),
		demotions:     make(map[string]int64),
		promotions:    make(map[string]int64),
		active:        make(map[string]bool),
		startTime:     time.Now(),
	}
}

func average(durations []time.Duration) time.Duration {
	if len(durations) == 0 {
		return 0
	}

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}

	return sum / time.Duration(len(durations))
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}

	index := int(float64(len(sorted)) * p)
	if index >= len(sorted) {
		index = len(sorted) - 1
	}

	return sorted[index]
}
