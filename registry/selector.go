package registry

import (
	"context"
	"fmt"
	"sync"
)

// DefaultVpermitStakeLimit is the stake above which a participant holding a
// validator permit is considered a validator and is not queried.
const DefaultVpermitStakeLimit = 4096

// PermSource is the randomness used to pick participants.
// *math/rand.Rand satisfies it.
type PermSource interface {
	Perm(n int) []int
}

// RandomSelector picks k random available miners to query.
type RandomSelector struct {
	reg               Registry
	self              string
	vpermitStakeLimit float64

	mu  sync.Mutex
	rng PermSource
}

func NewRandomSelector(reg Registry, self string, vpermitStakeLimit float64, rng PermSource) *RandomSelector {
	return &RandomSelector{
		reg:               reg,
		self:              self,
		vpermitStakeLimit: vpermitStakeLimit,
		rng:               rng,
	}
}

// Available reports whether a participant can be queried.
func (s *RandomSelector) Available(p Participant) bool {
	if p.Hotkey == s.self || p.Address == "" {
		return false
	}
	if p.ValidatorPermit && p.Stake > s.vpermitStakeLimit {
		return false
	}
	return true
}

// Select returns k distinct available participants, or all of them if fewer are available.
func (s *RandomSelector) Select(ctx context.Context, k int) ([]Participant, error) {
	if k <= 0 {
		return nil, nil
	}
	all, err := s.reg.Participants(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing participants: %w", err)
	}
	var available []Participant
	for _, p := range all {
		if s.Available(p) {
			available = append(available, p)
		}
	}
	if k >= len(available) {
		return available, nil
	}

	s.mu.Lock()
	perm := s.rng.Perm(len(available))
	s.mu.Unlock()

	selected := make([]Participant, 0, k)
	for _, i := range perm[:k] {
		selected = append(selected, available[i])
	}
	return selected, nil
}
