// Package rng provides the single explicit random-number stream handle
// threaded through the exchange, every trader, and the customer
// generator, per spec.md §9's "pass an explicit RNG handle... do not
// rely on process-wide state" design note. Adapted from the teacher's
// internal/latency/model.go (a single seeded *rand.Rand wrapped in a
// small struct), generalized from latency jitter sampling into the
// general-purpose Gaussian/uniform/shuffle primitives this simulator's
// trader strategies and customer generator need.
package rng

import (
	"math"
	"math/rand"
)

// Stream is a seeded random source. One Stream exists per session; it is
// never shared across goroutines.
type Stream struct {
	r *rand.Rand
}

// New creates a stream seeded deterministically from seed.
func New(seed int64) *Stream {
	return &Stream{r: rand.New(rand.NewSource(seed))}
}

// Float64 returns a uniform sample in [0, 1).
func (s *Stream) Float64() float64 {
	return s.r.Float64()
}

// IntN returns a uniform integer in [0, n).
func (s *Stream) IntN(n int) int {
	return s.r.Intn(n)
}

// UniformInt returns a uniform integer in [lo, hi] inclusive.
func (s *Stream) UniformInt(lo, hi int) int {
	if hi < lo {
		lo, hi = hi, lo
	}
	return lo + s.r.Intn(hi-lo+1)
}

// Gauss draws from N(mu, sigma) via the stream's rand.NormFloat64.
func (s *Stream) Gauss(mu, sigma float64) float64 {
	if sigma == 0 {
		return mu
	}
	return mu + sigma*s.r.NormFloat64()
}

// Expovariate draws from an exponential distribution with the given
// rate, matching Python's random.expovariate semantics used by the
// drip-poisson customer-order timemode.
func (s *Stream) Expovariate(rate float64) float64 {
	u := s.r.Float64()
	for u == 1 {
		u = s.r.Float64()
	}
	return -math.Log(1-u) / rate
}

// Coinflip returns true with probability 0.5.
func (s *Stream) Coinflip() bool {
	return s.r.Intn(2) == 0
}

// Shuffle performs a Fisher-Yates shuffle of n items via swap(i, j).
func (s *Stream) Shuffle(n int, swap func(i, j int)) {
	s.r.Shuffle(n, swap)
}

// Perm returns a random permutation of [0, n).
func (s *Stream) Perm(n int) []int {
	return s.r.Perm(n)
}

// Raw exposes the underlying *rand.Rand for call sites that need it
// directly (e.g. math/rand-compatible library calls).
func (s *Stream) Raw() *rand.Rand {
	return s.r
}
