// Package sharedtest provides helpers for tests that need control over candidate draws.
package sharedtest

import "sync"

// SequenceSource is a shared.RandSource replaying a fixed sequence of values.
// Once the sequence is consumed the last value is repeated.
type SequenceSource struct {
	mu     sync.Mutex
	values []int64
	pos    int
	calls  int
}

func NewSequenceSource(values ...int64) *SequenceSource {
	return &SequenceSource{values: values}
}

func (s *SequenceSource) Int63n(n int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if len(s.values) == 0 {
		return 0
	}
	v := s.values[s.pos]
	if s.pos < len(s.values)-1 {
		s.pos++
	}
	return v % n
}

// Calls returns the number of draws made so far.
func (s *SequenceSource) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
