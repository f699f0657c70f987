package weight

import (
	"math/rand"
	"sync"
)

// Scorer computes a 0-100 desirability score for an endpoint. Scores are
// sampled once per endpoint during a pool refresh; implementations are not
// required to vary per call.
type Scorer interface {
	Score() float64
}

// ScorerFunc adapts a plain function to the Scorer interface.
type ScorerFunc func() float64

func (f ScorerFunc) Score() float64 {
	return f()
}

// resource holds the scoring coefficient and saturation threshold for one
// simulated system resource.
type resource struct {
	coefficient float64
	threshold   float64
}

var resources = []resource{
	{coefficient: 100, threshold: 80}, // cpu
	{coefficient: 100, threshold: 85}, // memory
	{coefficient: 100, threshold: 90}, // disk
}

// systemScorer samples simulated cpu, memory and disk utilization and
// converts each into a headroom factor. Each resource is sampled
// independently rather than reusing a single draw across all three.
type systemScorer struct {
	mutex sync.Mutex
	rng   *rand.Rand
}

// NewSystemScorer creates the default metric-sampling scorer seeded from seed.
func NewSystemScorer(seed int64) Scorer {
	return &systemScorer{
		rng: rand.New(rand.NewSource(seed)),
	}
}

// Score samples each resource uniformly in [0,100) and averages the
// per-resource factors. An idle resource (metric near zero) contributes a
// factor near 100; a saturated one contributes zero.
func (s *systemScorer) Score() float64 {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	var sum float64
	for _, r := range resources {
		metric := s.rng.Float64() * 100
		factor := r.coefficient * (r.threshold - metric) / r.threshold
		sum += clamp(factor, 0, 100)
	}

	return sum / float64(len(resources))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
