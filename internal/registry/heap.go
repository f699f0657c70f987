package registry

import (
	"github.com/sardanna/roundrobin-lb/internal/endpoint"
)

// entry is one queued candidate: an endpoint snapshot taken at enqueue time.
// The same endpoint may appear more than once; older entries go stale rather
// than being eagerly rewritten.
type entry struct {
	endpoint *endpoint.Endpoint
	weight   float64
	seq      uint64
}

// entryHeap is a max-heap over entries ordered by weight, with insertion
// order breaking ties so equally weighted endpoints pop first-in first-out.
// It implements heap.Interface for use with container/heap.
type entryHeap []*entry

func (h entryHeap) Len() int {
	return len(h)
}

func (h entryHeap) Less(i, j int) bool {
	if h[i].weight != h[j].weight {
		return h[i].weight > h[j].weight
	}
	return h[i].seq < h[j].seq
}

func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
}

func (h *entryHeap) Push(x any) {
	*h = append(*h, x.(*entry))
}

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}
