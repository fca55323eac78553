package shared

import (
	"math"
	"strconv"
	"sync"
)

// DefaultDomainSize is the number of candidates in the search space.
// Candidates are drawn from [0, DefaultDomainSize).
const DefaultDomainSize = 11

// Candidate is a value from the bounded search space that a validator commits to
// and miners try to guess.
type Candidate uint64

// String returns the decimal form of the candidate. The digest is computed over it.
func (c Candidate) String() string {
	return strconv.FormatUint(uint64(c), 10)
}

// RandSource is the source of randomness used to draw candidates.
// *math/rand.Rand satisfies it.
type RandSource interface {
	Int63n(n int64) int64
}

// Sampler draws candidates uniformly at random from [0, domain).
// It keeps no state between draws other than the random source.
type Sampler struct {
	domain uint64

	mu  sync.Mutex
	src RandSource
}

func NewSampler(domain uint64, src RandSource) *Sampler {
	switch {
	case domain == 0:
		domain = DefaultDomainSize
	case domain > math.MaxInt64:
		domain = math.MaxInt64
	}
	return &Sampler{domain: domain, src: src}
}

// Domain returns the size of the search space.
func (s *Sampler) Domain() uint64 {
	return s.domain
}

// Sample draws a new candidate.
func (s *Sampler) Sample() Candidate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Candidate(s.src.Int63n(int64(s.domain)))
}
